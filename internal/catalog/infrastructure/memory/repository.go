package memory

import (
	"context"
	"sync"

	catalog "carbon-inventory/internal/catalog/domain"
)

// Repository is an in-memory catalog store for demos and tests.
type Repository struct {
	mu    sync.RWMutex
	sites map[string]*catalog.Snapshot
}

// NewRepository constructs a repository seeded with the given snapshots.
func NewRepository(snapshots ...*catalog.Snapshot) *Repository {
	repo := &Repository{sites: make(map[string]*catalog.Snapshot)}
	for _, snapshot := range snapshots {
		if snapshot != nil {
			repo.sites[snapshot.SiteID] = snapshot
		}
	}
	return repo
}

// Put stores or replaces a site catalog.
func (r *Repository) Put(snapshot *catalog.Snapshot) error {
	if err := snapshot.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.sites[snapshot.SiteID] = snapshot
	r.mu.Unlock()
	return nil
}

// Load returns the catalog of a site.
func (r *Repository) Load(ctx context.Context, siteID string) (*catalog.Snapshot, error) {
	_ = ctx
	if siteID == "" {
		return nil, catalog.ErrEmptySiteID
	}
	r.mu.RLock()
	snapshot := r.sites[siteID]
	r.mu.RUnlock()
	if snapshot == nil {
		return nil, catalog.ErrSiteNotFound
	}
	return snapshot, nil
}
