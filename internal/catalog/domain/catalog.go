package catalog

import (
	"context"
	"errors"

	inventory "carbon-inventory/internal/inventory/domain"
	mapping "carbon-inventory/internal/mapping/domain"
)

var (
	// ErrEmptySiteID is returned when loading without a site id.
	ErrEmptySiteID = errors.New("catalog: empty site id")
	// ErrSiteNotFound is returned when no catalog exists for a site.
	ErrSiteNotFound = errors.New("catalog: site not found")
)

// Snapshot is the read-only reference data of one site: the unit processes
// resources are allocated to, the resource catalogs per category, and the
// products and processes used for sequence mapping.
type Snapshot struct {
	SiteID        string                                          `json:"site_id"`
	UnitProcesses []inventory.UnitProcess                         `json:"unit_processes"`
	ResourceTypes map[inventory.Category][]inventory.ResourceType `json:"resource_types"`
	Processes     []mapping.Process                               `json:"processes"`
	Mappables     []mapping.Mappable                              `json:"mappables"`
}

// Validate checks snapshot invariants.
func (s *Snapshot) Validate() error {
	if s == nil {
		return errors.New("catalog: nil snapshot")
	}
	if s.SiteID == "" {
		return ErrEmptySiteID
	}
	seen := make(map[string]struct{}, len(s.UnitProcesses))
	for _, up := range s.UnitProcesses {
		if up.ID == "" {
			return errors.New("catalog: unit process without id")
		}
		if _, dup := seen[up.ID]; dup {
			return errors.New("catalog: duplicate unit process " + up.ID)
		}
		seen[up.ID] = struct{}{}
	}
	for category := range s.ResourceTypes {
		if !category.IsValid() {
			return errors.New("catalog: invalid resource category " + string(category))
		}
	}
	for _, item := range s.Mappables {
		if !item.Type.IsValid() {
			return errors.New("catalog: invalid mappable type " + string(item.Type))
		}
	}
	return nil
}

// ResourceTypesFor returns the catalog entries of one category.
func (s *Snapshot) ResourceTypesFor(category inventory.Category) []inventory.ResourceType {
	if s == nil || s.ResourceTypes == nil {
		return nil
	}
	return append([]inventory.ResourceType(nil), s.ResourceTypes[category]...)
}

// Process finds a main process by id.
func (s *Snapshot) Process(id string) (mapping.Process, bool) {
	if s == nil {
		return mapping.Process{}, false
	}
	for _, p := range s.Processes {
		if p.ID == id {
			return p, true
		}
	}
	return mapping.Process{}, false
}

// Repository loads site catalogs.
type Repository interface {
	Load(ctx context.Context, siteID string) (*Snapshot, error)
}
