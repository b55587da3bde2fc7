package application

import (
	"errors"
	"sync"
	"time"

	catalog "carbon-inventory/internal/catalog/domain"
	inventory "carbon-inventory/internal/inventory/domain"
	mapping "carbon-inventory/internal/mapping/domain"
)

// ErrProcessNotFound is returned when selecting a process the site catalog does not know.
var ErrProcessNotFound = errors.New("session: process not found")

type ledger = inventory.Ledger[inventory.ResourceType]

// Session is the state of one form session for one site: a ledger per
// resource category and the product process mapping.
type Session struct {
	mu sync.Mutex

	id        string
	siteID    string
	catalog   *catalog.Snapshot
	ledgers   map[inventory.Category]*ledger
	mapper    *mapping.Mapper
	createdAt time.Time
	lastSeen  time.Time
}

func newSession(id string, snapshot *catalog.Snapshot, now time.Time) (*Session, error) {
	sess := &Session{
		id:        id,
		siteID:    snapshot.SiteID,
		catalog:   snapshot,
		ledgers:   make(map[inventory.Category]*ledger, len(inventory.Categories())),
		mapper:    mapping.NewMapper(snapshot.Mappables),
		createdAt: now,
		lastSeen:  now,
	}
	for _, category := range inventory.Categories() {
		l, err := inventory.NewLedger(category, snapshot.ResourceTypesFor(category), snapshot.UnitProcesses)
		if err != nil {
			return nil, err
		}
		sess.ledgers[category] = l
	}
	return sess, nil
}

// SessionView summarizes a session.
type SessionView struct {
	ID         string            `json:"session_id"`
	SiteID     string            `json:"site_id"`
	CreatedAt  time.Time         `json:"created_at"`
	LastSeen   time.Time         `json:"last_seen"`
	Categories []CategorySummary `json:"categories"`
	ProcessID  string            `json:"process_id,omitempty"`
}

// CategorySummary is the per-category overview of a session.
type CategorySummary struct {
	Category     inventory.Category         `json:"category"`
	Method       inventory.AllocationMethod `json:"method"`
	ItemCount    int                        `json:"item_count"`
	WarningCount int                        `json:"warning_count"`
}

func (s *Session) view() SessionView {
	view := SessionView{
		ID:        s.id,
		SiteID:    s.siteID,
		CreatedAt: s.createdAt,
		LastSeen:  s.lastSeen,
	}
	for _, category := range inventory.Categories() {
		l := s.ledgers[category]
		view.Categories = append(view.Categories, CategorySummary{
			Category:     category,
			Method:       l.Method(),
			ItemCount:    l.Len(),
			WarningCount: len(l.Warnings()),
		})
	}
	if process, ok := s.mapper.Process(); ok {
		view.ProcessID = process.ID
	}
	return view
}

// LedgerView is the read model of one category ledger.
type LedgerView struct {
	Category      inventory.Category                    `json:"category"`
	Method        inventory.AllocationMethod            `json:"method"`
	ResourceTypes []inventory.ResourceType              `json:"resource_types"`
	Items         []inventory.ResourceItem              `json:"items"`
	Allocations   []inventory.AllocationRecord          `json:"allocations"`
	Status        map[string]inventory.ValidationStatus `json:"status"`
	Warnings      []inventory.AllocationWarning         `json:"warnings"`
}

func newLedgerView(l *ledger) LedgerView {
	view := LedgerView{
		Category:      l.Category(),
		Method:        l.Method(),
		ResourceTypes: l.ResourceTypes(),
		Items:         l.Items(),
		Allocations:   l.Allocations(),
		Status:        make(map[string]inventory.ValidationStatus),
		Warnings:      l.Warnings(),
	}
	for _, record := range view.Allocations {
		view.Status[record.ItemID] = inventory.Validate(record)
	}
	if view.ResourceTypes == nil {
		view.ResourceTypes = []inventory.ResourceType{}
	}
	if view.Warnings == nil {
		view.Warnings = []inventory.AllocationWarning{}
	}
	return view
}

// MappingView is the read model of the product process mapping.
type MappingView struct {
	ProcessID   string             `json:"process_id"`
	ProcessName string             `json:"process_name"`
	Processes   []mapping.Process  `json:"processes"`
	Eligible    []mapping.Mappable `json:"eligible_items"`
	Entries     []mapping.Entry    `json:"entries"`
}

func (s *Session) mappingView() MappingView {
	snapshot := s.mapper.Snapshot()
	view := MappingView{
		ProcessID:   snapshot.ProcessID,
		ProcessName: snapshot.ProcessName,
		Processes:   append([]mapping.Process{}, s.catalog.Processes...),
		Eligible:    s.mapper.EligibleItems(),
		Entries:     snapshot.Entries,
	}
	if view.Eligible == nil {
		view.Eligible = []mapping.Mappable{}
	}
	if view.Entries == nil {
		view.Entries = []mapping.Entry{}
	}
	return view
}

// ToggleResult reports the outcome of a mapping toggle.
type ToggleResult struct {
	Order       int                  `json:"order"`
	Assigned    bool                 `json:"assigned"`
	Assignments []mapping.Assignment `json:"assignments"`
}

// SaveResult is returned to the saving caller before the sink completes.
type SaveResult struct {
	SnapshotID string                        `json:"snapshot_id"`
	Warnings   []inventory.AllocationWarning `json:"warnings"`
}

// CatalogRefresh reports the outcome of reloading unit processes.
type CatalogRefresh struct {
	UnitProcesses []inventory.UnitProcess    `json:"unit_processes"`
	RemovedLinks  map[inventory.Category]int `json:"removed_links"`
}
