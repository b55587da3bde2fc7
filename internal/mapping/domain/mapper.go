package mapping

// SubProcess is a step of a governing manufacturing process.
type SubProcess struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Process is a main manufacturing process and its sub-processes.
type Process struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	SubProcesses []SubProcess `json:"sub_processes"`
}

// Mappable is a product or product group together with the name of the
// process it was recorded against.
type Mappable struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Type        ItemType `json:"type"`
	ProcessName string   `json:"process_name"`
}

// Key returns the item key of the mappable.
func (m Mappable) Key() ItemKey {
	return ItemKey{ID: m.ID, Type: m.Type}
}

// Snapshot is a detached copy of the mapper state.
type Snapshot struct {
	ProcessID   string  `json:"process_id"`
	ProcessName string  `json:"process_name"`
	Entries     []Entry `json:"entries"`
}

// Mapper orders products and product groups against the sub-processes of
// one selected governing process. Changing the selection discards all
// orderings. A Mapper is not safe for concurrent use.
type Mapper struct {
	process      *Process
	subProcesses map[string]struct{}
	mappables    map[ItemKey]Mappable
	order        []ItemKey
	orders       *OrderMap
}

// NewMapper constructs a mapper over the given products and groups.
func NewMapper(mappables []Mappable) *Mapper {
	m := &Mapper{
		mappables: make(map[ItemKey]Mappable, len(mappables)),
		orders:    NewOrderMap(),
	}
	for _, item := range mappables {
		if item.ID == "" || !item.Type.IsValid() {
			continue
		}
		key := item.Key()
		if _, exists := m.mappables[key]; exists {
			continue
		}
		m.mappables[key] = item
		m.order = append(m.order, key)
	}
	return m
}

// SelectProcess makes p the governing process. Selecting a different
// process resets the order map; it reports whether a reset happened.
func (m *Mapper) SelectProcess(p Process) (bool, error) {
	if p.ID == "" {
		return false, ErrEmptyProcessID
	}
	if m.process != nil && m.process.ID == p.ID {
		return false, nil
	}
	selected := p
	selected.SubProcesses = append([]SubProcess(nil), p.SubProcesses...)
	m.process = &selected
	m.subProcesses = make(map[string]struct{}, len(p.SubProcesses))
	for _, sub := range p.SubProcesses {
		m.subProcesses[sub.ID] = struct{}{}
	}
	m.orders.Reset()
	return true, nil
}

// Process returns the governing process.
func (m *Mapper) Process() (Process, bool) {
	if m.process == nil {
		return Process{}, false
	}
	return *m.process, true
}

// EligibleItems returns the items recorded against the governing process,
// in registration order.
func (m *Mapper) EligibleItems() []Mappable {
	if m.process == nil {
		return nil
	}
	var result []Mappable
	for _, key := range m.order {
		item := m.mappables[key]
		if item.ProcessName == m.process.Name {
			result = append(result, item)
		}
	}
	return result
}

// Toggle assigns or unassigns a sub-process for an eligible item.
func (m *Mapper) Toggle(itemID string, itemType ItemType, subProcessID string) (int, bool, error) {
	if !itemType.IsValid() {
		return 0, false, ErrInvalidItemType
	}
	if m.process == nil {
		return 0, false, ErrNoProcessSelected
	}
	if _, ok := m.subProcesses[subProcessID]; !ok {
		return 0, false, ErrUnknownSubProcess
	}
	key := ItemKey{ID: itemID, Type: itemType}
	item, ok := m.mappables[key]
	if !ok {
		return 0, false, ErrUnknownItem
	}
	if item.ProcessName != m.process.Name {
		return 0, false, ErrIneligibleItem
	}
	order, assigned := m.orders.Toggle(key, subProcessID)
	return order, assigned, nil
}

// GetOrder returns the position of a sub-process for an item.
func (m *Mapper) GetOrder(itemID string, itemType ItemType, subProcessID string) (int, bool) {
	return m.orders.GetOrder(ItemKey{ID: itemID, Type: itemType}, subProcessID)
}

// Assignments returns the ordered sequence of an item.
func (m *Mapper) Assignments(itemID string, itemType ItemType) []Assignment {
	return m.orders.Assignments(ItemKey{ID: itemID, Type: itemType})
}

// Reset clears every ordering but keeps the governing process.
func (m *Mapper) Reset() {
	m.orders.Reset()
}

// Snapshot returns a detached copy of the mapper state.
func (m *Mapper) Snapshot() Snapshot {
	snapshot := Snapshot{Entries: m.orders.Entries()}
	if m.process != nil {
		snapshot.ProcessID = m.process.ID
		snapshot.ProcessName = m.process.Name
	}
	return snapshot
}
