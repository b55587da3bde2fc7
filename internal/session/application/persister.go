package application

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"carbon-inventory/internal/observability/metrics"
	session "carbon-inventory/internal/session/domain"
)

// SnapshotPersister writes requested snapshots to the save sink.
type SnapshotPersister struct {
	sink   session.Sink
	logger *logrus.Logger
}

// NewSnapshotPersister constructs a persister.
func NewSnapshotPersister(sink session.Sink, logger *logrus.Logger) (*SnapshotPersister, error) {
	if sink == nil {
		return nil, errors.New("snapshot persister: nil sink")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SnapshotPersister{sink: sink, logger: logger}, nil
}

// HandleSnapshotRequested persists one snapshot. Failures are logged and
// counted; the saving request has already been answered.
func (p *SnapshotPersister) HandleSnapshotRequested(ctx context.Context, event SnapshotRequested) error {
	snapshot := event.Snapshot
	entry := p.logger.WithFields(logrus.Fields{
		"session_id":  snapshot.SessionID,
		"snapshot_id": snapshot.ID,
		"kind":        snapshot.Kind,
		"category":    snapshot.Category,
	})
	if err := snapshot.Validate(); err != nil {
		metrics.ObserveSnapshotSave(string(snapshot.Kind), metrics.ResultRejected, 0)
		entry.WithError(err).Error("snapshot rejected")
		return err
	}

	start := time.Now()
	err := p.sink.Save(ctx, snapshot)
	if err != nil {
		metrics.ObserveSnapshotSave(string(snapshot.Kind), metrics.ResultError, time.Since(start))
		entry.WithError(err).Error("snapshot save error")
		return err
	}
	metrics.ObserveSnapshotSave(string(snapshot.Kind), metrics.ResultSuccess, time.Since(start))
	entry.WithField("warnings", snapshot.WarningCount()).Info("snapshot saved")
	return nil
}
