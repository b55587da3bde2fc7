package session

import (
	"context"
	"errors"
	"time"

	inventory "carbon-inventory/internal/inventory/domain"
	mapping "carbon-inventory/internal/mapping/domain"
)

// Kind identifies what a snapshot holds.
type Kind string

const (
	KindLedger  Kind = "ledger"
	KindMapping Kind = "mapping"
)

var (
	ErrSessionNotFound  = errors.New("session: not found")
	ErrEmptySiteID      = errors.New("session: empty site id")
	ErrInvalidSnapshot  = errors.New("session: invalid snapshot")
	ErrSnapshotMismatch = errors.New("session: snapshot kind does not match payload")
)

// Snapshot is the payload handed to the save sink.
type Snapshot struct {
	ID        string                    `json:"id"`
	SessionID string                    `json:"session_id"`
	SiteID    string                    `json:"site_id"`
	Kind      Kind                      `json:"kind"`
	Category  inventory.Category        `json:"category,omitempty"`
	Ledger    *inventory.LedgerSnapshot `json:"ledger,omitempty"`
	Mapping   *mapping.Snapshot         `json:"mapping,omitempty"`
	SavedAt   time.Time                 `json:"saved_at"`
}

// WarningCount returns the number of allocation warnings carried by a ledger snapshot.
func (s Snapshot) WarningCount() int {
	if s.Ledger == nil {
		return 0
	}
	return len(s.Ledger.Warnings)
}

// Validate checks identity fields and that the payload matches the kind.
func (s Snapshot) Validate() error {
	if s.ID == "" || s.SessionID == "" || s.SiteID == "" {
		return ErrInvalidSnapshot
	}
	switch s.Kind {
	case KindLedger:
		if s.Ledger == nil || s.Mapping != nil || s.Category == "" {
			return ErrSnapshotMismatch
		}
	case KindMapping:
		if s.Mapping == nil || s.Ledger != nil {
			return ErrSnapshotMismatch
		}
	default:
		return ErrInvalidSnapshot
	}
	return nil
}

// Sink persists snapshots.
type Sink interface {
	Save(ctx context.Context, snapshot Snapshot) error
}
