package inventory

import "github.com/shopspring/decimal"

// CatalogEntry is a read-only resource catalog row a ledger item can reference.
type CatalogEntry interface {
	CatalogID() string
	CatalogUnit() string
}

// UnitProcess is a selectable process step owned by the process definition.
type UnitProcess struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// ResourceType is a material or utility catalog entry.
type ResourceType struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Unit   string           `json:"unit"`
	Factor *decimal.Decimal `json:"factor,omitempty"`
}

// CatalogID implements CatalogEntry.
func (t ResourceType) CatalogID() string { return t.ID }

// CatalogUnit implements CatalogEntry.
func (t ResourceType) CatalogUnit() string { return t.Unit }

// Catalog is an immutable id-indexed view over catalog entries.
type Catalog[T CatalogEntry] struct {
	entries []T
	index   map[string]int
}

// NewCatalog indexes entries by id. Later duplicates are ignored.
func NewCatalog[T CatalogEntry](entries []T) *Catalog[T] {
	c := &Catalog[T]{index: make(map[string]int, len(entries))}
	for _, entry := range entries {
		id := entry.CatalogID()
		if id == "" {
			continue
		}
		if _, exists := c.index[id]; exists {
			continue
		}
		c.index[id] = len(c.entries)
		c.entries = append(c.entries, entry)
	}
	return c
}

// Lookup returns the entry with the given id.
func (c *Catalog[T]) Lookup(id string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}
	pos, ok := c.index[id]
	if !ok {
		return zero, false
	}
	return c.entries[pos], true
}

// List returns the entries in catalog order.
func (c *Catalog[T]) List() []T {
	if c == nil {
		return nil
	}
	return append([]T(nil), c.entries...)
}
