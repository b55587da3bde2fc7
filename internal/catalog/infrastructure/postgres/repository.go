package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	catalog "carbon-inventory/internal/catalog/domain"
	inventory "carbon-inventory/internal/inventory/domain"
	mapping "carbon-inventory/internal/mapping/domain"
)

// Repository loads site catalogs from Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository constructs a repository.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Load reads every reference table of a site.
func (r *Repository) Load(ctx context.Context, siteID string) (*catalog.Snapshot, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("catalog repo: nil db")
	}
	if siteID == "" {
		return nil, catalog.ErrEmptySiteID
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sites WHERE id = $1)`, siteID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, catalog.ErrSiteNotFound
	}

	snapshot := &catalog.Snapshot{
		SiteID:        siteID,
		ResourceTypes: make(map[inventory.Category][]inventory.ResourceType),
	}
	if err := r.loadUnitProcesses(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("catalog repo: unit processes: %w", err)
	}
	if err := r.loadResourceTypes(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("catalog repo: resource types: %w", err)
	}
	if err := r.loadProcesses(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("catalog repo: processes: %w", err)
	}
	if err := r.loadMappables(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("catalog repo: mappables: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (r *Repository) loadUnitProcesses(ctx context.Context, snapshot *catalog.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name
FROM unit_processes
WHERE site_id = $1
ORDER BY sort_order ASC, id ASC`, snapshot.SiteID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var up inventory.UnitProcess
		if err := rows.Scan(&up.ID, &up.Name); err != nil {
			return err
		}
		snapshot.UnitProcesses = append(snapshot.UnitProcesses, up)
	}
	return rows.Err()
}

func (r *Repository) loadResourceTypes(ctx context.Context, snapshot *catalog.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
SELECT category, id, name, unit, factor
FROM resource_types
WHERE site_id = $1
ORDER BY category ASC, name ASC`, snapshot.SiteID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rawCategory string
			rt          inventory.ResourceType
			factor      decimal.NullDecimal
		)
		if err := rows.Scan(&rawCategory, &rt.ID, &rt.Name, &rt.Unit, &factor); err != nil {
			return err
		}
		category, err := inventory.ParseCategory(rawCategory)
		if err != nil {
			return err
		}
		if factor.Valid {
			value := factor.Decimal
			rt.Factor = &value
		}
		snapshot.ResourceTypes[category] = append(snapshot.ResourceTypes[category], rt)
	}
	return rows.Err()
}

func (r *Repository) loadProcesses(ctx context.Context, snapshot *catalog.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
SELECT p.id, p.name, sp.id, sp.name
FROM processes p
LEFT JOIN sub_processes sp ON sp.process_id = p.id
WHERE p.site_id = $1
ORDER BY p.name ASC, p.id ASC, sp.sort_order ASC`, snapshot.SiteID)
	if err != nil {
		return err
	}
	defer rows.Close()

	index := make(map[string]int)
	for rows.Next() {
		var (
			processID, processName string
			subID, subName         sql.NullString
		)
		if err := rows.Scan(&processID, &processName, &subID, &subName); err != nil {
			return err
		}
		pos, ok := index[processID]
		if !ok {
			pos = len(snapshot.Processes)
			index[processID] = pos
			snapshot.Processes = append(snapshot.Processes, mapping.Process{ID: processID, Name: processName})
		}
		if subID.Valid {
			snapshot.Processes[pos].SubProcesses = append(snapshot.Processes[pos].SubProcesses, mapping.SubProcess{
				ID:   subID.String,
				Name: subName.String,
			})
		}
	}
	return rows.Err()
}

func (r *Repository) loadMappables(ctx context.Context, snapshot *catalog.Snapshot) error {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, name, 'product' AS item_type, process_name
FROM products
WHERE site_id = $1
UNION ALL
SELECT id, name, 'product_group' AS item_type, process_name
FROM product_groups
WHERE site_id = $1
ORDER BY item_type ASC, name ASC`, snapshot.SiteID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item        mapping.Mappable
			itemType    string
			processName sql.NullString
		)
		if err := rows.Scan(&item.ID, &item.Name, &itemType, &processName); err != nil {
			return err
		}
		item.Type = mapping.ItemType(itemType)
		item.ProcessName = processName.String
		snapshot.Mappables = append(snapshot.Mappables, item)
	}
	return rows.Err()
}
