package mapping

import "sort"

// ItemType distinguishes products from product groups.
type ItemType string

const (
	ItemTypeProduct      ItemType = "product"
	ItemTypeProductGroup ItemType = "product_group"
)

// IsValid reports whether the type is supported.
func (t ItemType) IsValid() bool {
	return t == ItemTypeProduct || t == ItemTypeProductGroup
}

// ItemKey identifies a mappable item.
type ItemKey struct {
	ID   string   `json:"item_id"`
	Type ItemType `json:"item_type"`
}

// Assignment places a sub-process at a position in an item's sequence.
type Assignment struct {
	SubProcessID string `json:"sub_process_id"`
	Order        int    `json:"order"`
}

// Entry is the full sequence of one item.
type Entry struct {
	ItemKey
	Assignments []Assignment `json:"assignments"`
}

type pairKey struct {
	item         ItemKey
	subProcessID string
}

// OrderMap keeps, per item, an ordered set of sub-processes numbered 1..k
// without gaps.
type OrderMap struct {
	entries map[ItemKey][]Assignment
	index   map[pairKey]int
}

// NewOrderMap constructs an empty map.
func NewOrderMap() *OrderMap {
	return &OrderMap{
		entries: make(map[ItemKey][]Assignment),
		index:   make(map[pairKey]int),
	}
}

// Toggle assigns the sub-process at the end of the item's sequence, or
// removes it and closes the gap. It returns the new order and true when
// the pair was assigned, or the removed order and false.
func (m *OrderMap) Toggle(key ItemKey, subProcessID string) (int, bool) {
	pair := pairKey{item: key, subProcessID: subProcessID}
	assignments := m.entries[key]

	if order, ok := m.index[pair]; ok {
		pos := order - 1
		assignments = append(assignments[:pos], assignments[pos+1:]...)
		delete(m.index, pair)
		for i := pos; i < len(assignments); i++ {
			assignments[i].Order = i + 1
			m.index[pairKey{item: key, subProcessID: assignments[i].SubProcessID}] = i + 1
		}
		if len(assignments) == 0 {
			delete(m.entries, key)
		} else {
			m.entries[key] = assignments
		}
		return order, false
	}

	order := len(assignments) + 1
	m.entries[key] = append(assignments, Assignment{SubProcessID: subProcessID, Order: order})
	m.index[pair] = order
	return order, true
}

// GetOrder returns the position of a sub-process in the item's sequence.
func (m *OrderMap) GetOrder(key ItemKey, subProcessID string) (int, bool) {
	order, ok := m.index[pairKey{item: key, subProcessID: subProcessID}]
	return order, ok
}

// Assignments returns a copy of the item's sequence ordered by position.
func (m *OrderMap) Assignments(key ItemKey) []Assignment {
	return append([]Assignment(nil), m.entries[key]...)
}

// Entries returns every non-empty sequence sorted by item type and id.
func (m *OrderMap) Entries() []Entry {
	keys := make([]ItemKey, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Type != keys[j].Type {
			return keys[i].Type < keys[j].Type
		}
		return keys[i].ID < keys[j].ID
	})
	result := make([]Entry, 0, len(keys))
	for _, key := range keys {
		result = append(result, Entry{ItemKey: key, Assignments: m.Assignments(key)})
	}
	return result
}

// Len returns the total number of assignments.
func (m *OrderMap) Len() int {
	return len(m.index)
}

// Reset discards every assignment.
func (m *OrderMap) Reset() {
	m.entries = make(map[ItemKey][]Assignment)
	m.index = make(map[pairKey]int)
}
