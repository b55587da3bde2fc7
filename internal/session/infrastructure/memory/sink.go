package memory

import (
	"context"
	"sync"

	session "carbon-inventory/internal/session/domain"
)

// Sink keeps saved snapshots in memory.
type Sink struct {
	mu        sync.Mutex
	snapshots []session.Snapshot
	err       error
}

// NewSink constructs an in-memory sink.
func NewSink() *Sink {
	return &Sink{}
}

// Save stores a snapshot.
func (s *Sink) Save(ctx context.Context, snapshot session.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.snapshots = append(s.snapshots, snapshot)
	return nil
}

// FailWith makes subsequent saves return err; nil restores normal behaviour.
func (s *Sink) FailWith(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Snapshots returns the saved snapshots in save order.
func (s *Sink) Snapshots() []session.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.Snapshot(nil), s.snapshots...)
}

// Latest returns the most recently saved snapshot of a session.
func (s *Sink) Latest(sessionID string, kind session.Kind) (session.Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].SessionID == sessionID && s.snapshots[i].Kind == kind {
			return s.snapshots[i], true
		}
	}
	return session.Snapshot{}, false
}
