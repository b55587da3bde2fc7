package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	session "carbon-inventory/internal/session/domain"
)

// SnapshotRepository stores saved form snapshots as JSONB.
type SnapshotRepository struct {
	db *sql.DB
}

// NewSnapshotRepository constructs a snapshot repository.
func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	if db == nil {
		return nil
	}
	return &SnapshotRepository{db: db}
}

// Save inserts a snapshot. Saving the same snapshot id twice is a no-op.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot session.Snapshot) error {
	if r == nil || r.db == nil {
		return errors.New("snapshot repo: nil db")
	}
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	savedAt := snapshot.SavedAt
	if savedAt.IsZero() {
		savedAt = time.Now().UTC()
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO inventory_snapshots (
	id, session_id, site_id, kind, category, payload, payload_digest, warning_count, saved_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (id) DO NOTHING`,
		snapshot.ID, snapshot.SessionID, snapshot.SiteID, string(snapshot.Kind), string(snapshot.Category),
		payload, digest(payload), snapshot.WarningCount(), savedAt.UTC())
	return err
}

// Latest returns the most recent snapshot of a site for a kind and category.
func (r *SnapshotRepository) Latest(ctx context.Context, siteID string, kind session.Kind, category string) (*session.Snapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("snapshot repo: nil db")
	}
	var payload []byte
	err := r.db.QueryRowContext(ctx, `
SELECT payload
FROM inventory_snapshots
WHERE site_id = $1 AND kind = $2 AND category = $3
ORDER BY saved_at DESC, created_at DESC
LIMIT 1`, siteID, string(kind), category).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snapshot session.Snapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func digest(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
