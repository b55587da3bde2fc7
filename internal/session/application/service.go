package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	catalog "carbon-inventory/internal/catalog/domain"
	"carbon-inventory/internal/eventing"
	inventory "carbon-inventory/internal/inventory/domain"
	mapping "carbon-inventory/internal/mapping/domain"
	"carbon-inventory/internal/observability/metrics"
	session "carbon-inventory/internal/session/domain"
)

const defaultIdleTTL = 2 * time.Hour

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SnapshotRequested is published when a form step is saved.
type SnapshotRequested struct {
	Snapshot session.Snapshot
}

// Service holds the form sessions and applies every mutation under the
// owning session's lock.
type Service struct {
	catalogs catalog.Repository
	bus      eventing.Publisher
	logger   *logrus.Logger
	clock    Clock
	idleTTL  time.Duration
	dispatch func(func())

	mu       sync.RWMutex
	sessions map[string]*Session
	inflight sync.WaitGroup
}

// ServiceOption customizes the session service.
type ServiceOption func(*Service)

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithIdleTTL sets how long an untouched session is kept.
func WithIdleTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.idleTTL = ttl
		}
	}
}

// WithDispatch replaces the goroutine used to publish save requests.
func WithDispatch(dispatch func(func())) ServiceOption {
	return func(s *Service) {
		if dispatch != nil {
			s.dispatch = dispatch
		}
	}
}

// NewService constructs a session service.
func NewService(catalogs catalog.Repository, bus eventing.Publisher, logger *logrus.Logger, opts ...ServiceOption) (*Service, error) {
	if catalogs == nil {
		return nil, errors.New("session service: nil catalog repository")
	}
	if bus == nil {
		return nil, errors.New("session service: nil publisher")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{
		catalogs: catalogs,
		bus:      bus,
		logger:   logger,
		clock:    systemClock{},
		idleTTL:  defaultIdleTTL,
		sessions: make(map[string]*Session),
	}
	s.dispatch = func(fn func()) { go fn() }
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Create opens a session for a site with one fresh ledger per category.
func (s *Service) Create(ctx context.Context, siteID string) (SessionView, error) {
	if siteID == "" {
		return SessionView{}, session.ErrEmptySiteID
	}
	snapshot, err := s.catalogs.Load(ctx, siteID)
	if err != nil {
		return SessionView{}, fmt.Errorf("session: load catalog: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return SessionView{}, fmt.Errorf("session: catalog: %w", err)
	}

	now := s.clock.Now()
	sess, err := newSession(uuid.NewString(), snapshot, now)
	if err != nil {
		return SessionView{}, err
	}

	view := sess.view()

	s.mu.Lock()
	s.sessions[sess.id] = sess
	active := len(s.sessions)
	s.mu.Unlock()

	metrics.IncSessionEvent("created")
	metrics.SetSessionsActive(active)
	s.logger.WithFields(logrus.Fields{"session_id": sess.id, "site_id": siteID}).Info("session created")
	return view, nil
}

// Get returns a summary of a session.
func (s *Service) Get(sessionID string) (SessionView, error) {
	var view SessionView
	err := s.with(sessionID, func(sess *Session) error {
		view = sess.view()
		return nil
	})
	return view, err
}

// Close discards a session.
func (s *Service) Close(sessionID string) error {
	s.mu.Lock()
	_, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	active := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return session.ErrSessionNotFound
	}
	metrics.IncSessionEvent("closed")
	metrics.SetSessionsActive(active)
	s.logger.WithField("session_id", sessionID).Info("session closed")
	return nil
}

// Catalog returns the reference data the session was opened with.
func (s *Service) Catalog(sessionID string) (*catalog.Snapshot, error) {
	var snapshot *catalog.Snapshot
	err := s.with(sessionID, func(sess *Session) error {
		snapshot = sess.catalog
		return nil
	})
	return snapshot, err
}

// RefreshCatalog reloads the unit processes of the session's site. Links to
// unit processes that disappeared are dropped together with their ratios;
// resource types and mapping data stay as the session was opened with.
func (s *Service) RefreshCatalog(ctx context.Context, sessionID string) (CatalogRefresh, error) {
	var siteID string
	if err := s.with(sessionID, func(sess *Session) error {
		siteID = sess.siteID
		return nil
	}); err != nil {
		return CatalogRefresh{}, err
	}

	fresh, err := s.catalogs.Load(ctx, siteID)
	if err != nil {
		return CatalogRefresh{}, fmt.Errorf("session: load catalog: %w", err)
	}
	if err := fresh.Validate(); err != nil {
		return CatalogRefresh{}, fmt.Errorf("session: catalog: %w", err)
	}

	var result CatalogRefresh
	err = s.with(sessionID, func(sess *Session) error {
		updated := *sess.catalog
		updated.UnitProcesses = append([]inventory.UnitProcess(nil), fresh.UnitProcesses...)
		sess.catalog = &updated

		result.UnitProcesses = updated.UnitProcesses
		result.RemovedLinks = make(map[inventory.Category]int)
		for _, category := range inventory.Categories() {
			if removed := sess.ledgers[category].RetainUnitProcesses(updated.UnitProcesses); removed > 0 {
				result.RemovedLinks[category] = removed
			}
		}
		return nil
	})
	if err != nil {
		return CatalogRefresh{}, err
	}

	metrics.IncSessionEvent("catalog_refreshed")
	s.logger.WithFields(logrus.Fields{
		"session_id":     sessionID,
		"site_id":        siteID,
		"unit_processes": len(result.UnitProcesses),
	}).Info("session catalog refreshed")
	return result, nil
}

// Ledger returns the current state of one category.
func (s *Service) Ledger(sessionID string, category inventory.Category) (LedgerView, error) {
	return s.readLedger(sessionID, category)
}

// LedgerSnapshot returns a detached copy of one category for exports.
func (s *Service) LedgerSnapshot(sessionID string, category inventory.Category) (session.Snapshot, error) {
	var snapshot session.Snapshot
	err := s.withLedger(sessionID, category, func(sess *Session, l *ledger) error {
		snapshot = s.ledgerSnapshot(sess, category, l)
		return nil
	})
	return snapshot, err
}

// AddItem appends an item to a category ledger.
func (s *Service) AddItem(sessionID string, category inventory.Category, defaults inventory.ItemDefaults) (inventory.ResourceItem, error) {
	var item inventory.ResourceItem
	err := s.mutateLedger(sessionID, category, "add_item", func(l *ledger) error {
		added, err := l.AddItem(defaults)
		item = added
		return err
	})
	return item, err
}

// DeleteItem removes an item from a category ledger.
func (s *Service) DeleteItem(sessionID string, category inventory.Category, itemID string) error {
	return s.mutateLedger(sessionID, category, "delete_item", func(l *ledger) error {
		return l.DeleteItem(itemID)
	})
}

// SetMonthlyAmountInput records raw monthly usage input.
func (s *Service) SetMonthlyAmountInput(sessionID string, category inventory.Category, itemID string, month int, raw string) error {
	return s.mutateLedger(sessionID, category, "set_amount", func(l *ledger) error {
		return l.SetMonthlyAmountInput(itemID, month, raw)
	})
}

// SetLinkedUnitProcesses replaces the links of an item.
func (s *Service) SetLinkedUnitProcesses(sessionID string, category inventory.Category, itemID string, unitProcessIDs []string) error {
	return s.mutateLedger(sessionID, category, "set_links", func(l *ledger) error {
		return l.SetLinkedUnitProcesses(itemID, unitProcessIDs)
	})
}

// SetResourceType selects the catalog entry of an item.
func (s *Service) SetResourceType(sessionID string, category inventory.Category, itemID, typeID string) error {
	return s.mutateLedger(sessionID, category, "set_resource_type", func(l *ledger) error {
		return l.SetResourceType(itemID, typeID)
	})
}

// SetDQI sets the data quality indicator of an item.
func (s *Service) SetDQI(sessionID string, category inventory.Category, itemID string, dqi inventory.DQI) error {
	return s.mutateLedger(sessionID, category, "set_dqi", func(l *ledger) error {
		return l.SetDQI(itemID, dqi)
	})
}

// SetMethod switches the allocation method of a category.
func (s *Service) SetMethod(sessionID string, category inventory.Category, method inventory.AllocationMethod) error {
	return s.mutateLedger(sessionID, category, "set_method", func(l *ledger) error {
		return l.SetMethod(method)
	})
}

// SetManualRatio stores a user ratio for a linked pair.
func (s *Service) SetManualRatio(sessionID string, category inventory.Category, itemID, unitProcessID string, ratio decimal.Decimal) error {
	return s.mutateLedger(sessionID, category, "set_ratio", func(l *ledger) error {
		return l.SetManualRatio(itemID, unitProcessID, ratio)
	})
}

// SaveLedger hands a copy of the ledger to the save sink without waiting
// for it. Allocation warnings are returned to the caller and never block.
func (s *Service) SaveLedger(ctx context.Context, sessionID string, category inventory.Category) (SaveResult, error) {
	var snapshot session.Snapshot
	err := s.withLedger(sessionID, category, func(sess *Session, l *ledger) error {
		snapshot = s.ledgerSnapshot(sess, category, l)
		return nil
	})
	if err != nil {
		return SaveResult{}, err
	}
	metrics.AddAllocationWarnings(string(category), snapshot.WarningCount())
	s.publish(ctx, snapshot)
	return SaveResult{SnapshotID: snapshot.ID, Warnings: snapshot.Ledger.Warnings}, nil
}

// Mapping returns the product process mapping state.
func (s *Service) Mapping(sessionID string) (MappingView, error) {
	var view MappingView
	err := s.with(sessionID, func(sess *Session) error {
		view = sess.mappingView()
		return nil
	})
	return view, err
}

// SelectProcess makes a catalog process the governing process.
func (s *Service) SelectProcess(sessionID, processID string) (MappingView, error) {
	if processID == "" {
		return MappingView{}, mapping.ErrEmptyProcessID
	}
	var view MappingView
	err := s.with(sessionID, func(sess *Session) error {
		process, ok := sess.catalog.Process(processID)
		if !ok {
			return ErrProcessNotFound
		}
		reset, err := sess.mapper.SelectProcess(process)
		if err != nil {
			return err
		}
		if reset {
			s.logger.WithFields(logrus.Fields{"session_id": sess.id, "process_id": processID}).Debug("mapping reset by process change")
		}
		view = sess.mappingView()
		return nil
	})
	return view, err
}

// Toggle assigns or unassigns a sub-process for an item.
func (s *Service) Toggle(sessionID, itemID string, itemType mapping.ItemType, subProcessID string) (ToggleResult, error) {
	var result ToggleResult
	err := s.with(sessionID, func(sess *Session) error {
		order, assigned, err := sess.mapper.Toggle(itemID, itemType, subProcessID)
		if err != nil {
			metrics.IncMappingToggle(metrics.ResultRejected)
			return err
		}
		if assigned {
			metrics.IncMappingToggle(metrics.ToggleAssigned)
		} else {
			metrics.IncMappingToggle(metrics.ToggleUnassigned)
		}
		result = ToggleResult{
			Order:       order,
			Assigned:    assigned,
			Assignments: sess.mapper.Assignments(itemID, itemType),
		}
		return nil
	})
	return result, err
}

// ResetMapping clears every ordering of a session.
func (s *Service) ResetMapping(sessionID string) error {
	return s.with(sessionID, func(sess *Session) error {
		sess.mapper.Reset()
		return nil
	})
}

// SaveMapping hands a copy of the mapping to the save sink without waiting for it.
func (s *Service) SaveMapping(ctx context.Context, sessionID string) (SaveResult, error) {
	var snapshot session.Snapshot
	err := s.with(sessionID, func(sess *Session) error {
		mapped := sess.mapper.Snapshot()
		snapshot = session.Snapshot{
			ID:        uuid.NewString(),
			SessionID: sess.id,
			SiteID:    sess.siteID,
			Kind:      session.KindMapping,
			Mapping:   &mapped,
			SavedAt:   s.clock.Now(),
		}
		return nil
	})
	if err != nil {
		return SaveResult{}, err
	}
	s.publish(ctx, snapshot)
	return SaveResult{SnapshotID: snapshot.ID, Warnings: []inventory.AllocationWarning{}}, nil
}

// Sweep drops sessions idle for longer than the configured TTL and returns
// how many were removed.
func (s *Service) Sweep(now time.Time) int {
	s.mu.Lock()
	removed := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := now.Sub(sess.lastSeen)
		sess.mu.Unlock()
		if idle > s.idleTTL {
			delete(s.sessions, id)
			removed++
		}
	}
	active := len(s.sessions)
	s.mu.Unlock()

	if removed > 0 {
		for i := 0; i < removed; i++ {
			metrics.IncSessionEvent("expired")
		}
		s.logger.WithField("count", removed).Info("idle sessions swept")
	}
	metrics.SetSessionsActive(active)
	return removed
}

// Active returns the number of open sessions.
func (s *Service) Active() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Wait blocks until every dispatched save has been handed to the bus.
func (s *Service) Wait() {
	s.inflight.Wait()
}

func (s *Service) publish(ctx context.Context, snapshot session.Snapshot) {
	event := SnapshotRequested{Snapshot: snapshot}
	fields := logrus.Fields{
		"session_id":  snapshot.SessionID,
		"snapshot_id": snapshot.ID,
		"kind":        snapshot.Kind,
	}
	// The request context ends with the response; the save outlives it.
	detached := context.WithoutCancel(ctx)
	s.inflight.Add(1)
	s.dispatch(func() {
		defer s.inflight.Done()
		if err := s.bus.Publish(detached, event); err != nil {
			s.logger.WithFields(fields).WithError(err).Warn("snapshot save failed")
		}
	})
}

func (s *Service) ledgerSnapshot(sess *Session, category inventory.Category, l *ledger) session.Snapshot {
	state := l.Snapshot()
	return session.Snapshot{
		ID:        uuid.NewString(),
		SessionID: sess.id,
		SiteID:    sess.siteID,
		Kind:      session.KindLedger,
		Category:  category,
		Ledger:    &state,
		SavedAt:   s.clock.Now(),
	}
}

func (s *Service) readLedger(sessionID string, category inventory.Category) (LedgerView, error) {
	var view LedgerView
	err := s.withLedger(sessionID, category, func(_ *Session, l *ledger) error {
		view = newLedgerView(l)
		return nil
	})
	return view, err
}

func (s *Service) mutateLedger(sessionID string, category inventory.Category, operation string, fn func(l *ledger) error) error {
	err := s.withLedger(sessionID, category, func(_ *Session, l *ledger) error {
		return fn(l)
	})
	switch {
	case err == nil:
		metrics.IncLedgerMutation(string(category), operation, metrics.ResultSuccess)
	case inventory.IsValidation(err):
		metrics.IncLedgerMutation(string(category), operation, metrics.ResultRejected)
	default:
		metrics.IncLedgerMutation(string(category), operation, metrics.ResultError)
	}
	return err
}

func (s *Service) withLedger(sessionID string, category inventory.Category, fn func(sess *Session, l *ledger) error) error {
	if !category.IsValid() {
		return inventory.ErrInvalidCategory
	}
	return s.with(sessionID, func(sess *Session) error {
		l, ok := sess.ledgers[category]
		if !ok {
			return inventory.ErrInvalidCategory
		}
		return fn(sess, l)
	})
}

func (s *Service) with(sessionID string, fn func(sess *Session) error) error {
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok {
		return session.ErrSessionNotFound
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.lastSeen = s.clock.Now()
	return fn(sess)
}
