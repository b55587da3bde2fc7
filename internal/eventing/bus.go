package eventing

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"carbon-inventory/internal/observability/metrics"
)

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event any) error

// Publisher publishes events.
type Publisher interface {
	Publish(ctx context.Context, event any) error
}

var (
	// ErrNilEvent is returned when a nil event is published.
	ErrNilEvent = errors.New("eventing: nil event")
	// ErrInvalidEventType is returned when the event type cannot be determined.
	ErrInvalidEventType = errors.New("eventing: invalid event type")
	// ErrHandlerPanic wraps a panic recovered from a handler.
	ErrHandlerPanic = errors.New("eventing: handler panicked")
)

// InMemoryBus delivers events to handlers registered for their Go type.
// Handlers run on the publishing goroutine in subscription order.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	logger   *logrus.Logger
}

// BusOption customizes an InMemoryBus.
type BusOption func(*InMemoryBus)

// WithLogger reports handler failures to logger.
func WithLogger(logger *logrus.Logger) BusOption {
	return func(b *InMemoryBus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewInMemoryBus constructs an empty bus.
func NewInMemoryBus(opts ...BusOption) *InMemoryBus {
	b := &InMemoryBus{
		handlers: make(map[string][]EventHandler),
		logger:   logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Publish runs every handler subscribed to the event's type. A failing or
// panicking handler does not stop the others; all failures are joined
// into the returned error.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	eventType := EventType(event)
	if eventType == "" {
		return ErrInvalidEventType
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	var errs []error
	for i, handler := range handlers {
		err := b.invoke(ctx, handler, event)
		if err == nil {
			continue
		}
		reason := "error"
		if errors.Is(err, ErrHandlerPanic) {
			reason = "panic"
		}
		metrics.IncEventHandlerFailure(eventType, reason)
		b.logger.WithFields(logrus.Fields{
			"event_type": eventType,
			"handler":    i,
			"reason":     reason,
		}).WithError(err).Warn("event handler failed")
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (b *InMemoryBus) invoke(ctx context.Context, handler EventHandler, event any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(ctx, event)
}

// Subscribe registers a handler for an event type name.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// EventType names the dynamic type of event, pointers dereferenced.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf names T the same way EventType names its instances.
func EventTypeOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}

// SubscribeTyped registers a handler that receives events of type T or *T.
func SubscribeTyped[T any](bus *InMemoryBus, handler func(ctx context.Context, event T) error) {
	if bus == nil || handler == nil {
		return
	}
	bus.Subscribe(EventTypeOf[T](), func(ctx context.Context, event any) error {
		switch typed := event.(type) {
		case T:
			return handler(ctx, typed)
		case *T:
			if typed != nil {
				return handler(ctx, *typed)
			}
		}
		return ErrInvalidEventType
	})
}
