package inventory

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Ledger owns the resource items of one category together with their
// derived allocation records. Every mutation either succeeds and
// recomputes derived state, or is rejected and leaves the ledger untouched.
// A Ledger is not safe for concurrent use.
type Ledger[T CatalogEntry] struct {
	category      Category
	resourceTypes *Catalog[T]
	unitProcesses map[string]UnitProcess

	items       []*ResourceItem
	method      AllocationMethod
	manual      ManualRatios
	allocations []AllocationRecord
}

// LedgerSnapshot is a detached copy of a ledger handed to persistence and exports.
type LedgerSnapshot struct {
	Category    Category            `json:"category"`
	Method      AllocationMethod    `json:"method"`
	Items       []ResourceItem      `json:"items"`
	Allocations []AllocationRecord  `json:"allocations"`
	Warnings    []AllocationWarning `json:"warnings"`
}

// NewLedger constructs a ledger holding one empty item, allocated by production volume.
func NewLedger[T CatalogEntry](category Category, resourceTypes []T, unitProcesses []UnitProcess) (*Ledger[T], error) {
	if category == "" {
		return nil, ErrEmptyCategory
	}
	if !category.IsValid() {
		return nil, ErrInvalidCategory
	}
	l := &Ledger[T]{
		category:      category,
		resourceTypes: NewCatalog(resourceTypes),
		unitProcesses: make(map[string]UnitProcess, len(unitProcesses)),
		method:        MethodProductionVolume,
		manual:        make(ManualRatios),
	}
	for _, up := range unitProcesses {
		if up.ID != "" {
			l.unitProcesses[up.ID] = up
		}
	}
	l.items = append(l.items, newResourceItem(l.itemID(1)))
	l.recompute()
	return l, nil
}

// Category returns the ledger category.
func (l *Ledger[T]) Category() Category { return l.category }

// Method returns the active allocation method.
func (l *Ledger[T]) Method() AllocationMethod { return l.method }

// ResourceTypes returns the catalog entries selectable in this ledger.
func (l *Ledger[T]) ResourceTypes() []T { return l.resourceTypes.List() }

// Len returns the number of items.
func (l *Ledger[T]) Len() int { return len(l.items) }

// Items returns copies of all items in insertion order.
func (l *Ledger[T]) Items() []ResourceItem {
	result := make([]ResourceItem, 0, len(l.items))
	for _, item := range l.items {
		result = append(result, item.clone())
	}
	return result
}

// Item returns a copy of one item.
func (l *Ledger[T]) Item(id string) (ResourceItem, error) {
	item, _ := l.find(id)
	if item == nil {
		return ResourceItem{}, ErrItemNotFound
	}
	return item.clone(), nil
}

// Allocations returns the current allocation records.
func (l *Ledger[T]) Allocations() []AllocationRecord {
	result := make([]AllocationRecord, 0, len(l.allocations))
	for _, record := range l.allocations {
		record.UnitProcessAllocations = append([]UnitProcessAllocation(nil), record.UnitProcessAllocations...)
		result = append(result, record)
	}
	return result
}

// ValidationStatus returns the advisory status of an item's allocation.
// The second result is false when the item has no allocation record.
func (l *Ledger[T]) ValidationStatus(itemID string) (ValidationStatus, bool) {
	for _, record := range l.allocations {
		if record.ItemID == itemID {
			return Validate(record), true
		}
	}
	return ValidationStatus{}, false
}

// Warnings returns allocation warnings for the current state.
func (l *Ledger[T]) Warnings() []AllocationWarning {
	return Warnings(l.allocations)
}

// AddItem appends an item with twelve zero months and returns it.
func (l *Ledger[T]) AddItem(defaults ItemDefaults) (ResourceItem, error) {
	if !defaults.DQI.IsValid() {
		return ResourceItem{}, ErrInvalidDQI
	}
	unit := ""
	if defaults.ResourceTypeID != "" {
		entry, ok := l.resourceTypes.Lookup(defaults.ResourceTypeID)
		if !ok {
			return ResourceItem{}, ErrUnknownResourceType
		}
		unit = entry.CatalogUnit()
	}
	links, err := l.normalizeLinks(defaults.LinkedUnitProcessIDs)
	if err != nil {
		return ResourceItem{}, err
	}

	item := newResourceItem(l.itemID(l.nextSuffix()))
	item.ResourceTypeID = defaults.ResourceTypeID
	item.Unit = unit
	item.DQI = defaults.DQI
	item.LinkedUnitProcessIDs = links
	l.items = append(l.items, item)
	l.recompute()
	return item.clone(), nil
}

// DeleteItem removes an item and every ratio that references it.
func (l *Ledger[T]) DeleteItem(id string) error {
	item, pos := l.find(id)
	if item == nil {
		return ErrItemNotFound
	}
	if len(l.items) <= 1 {
		return ErrMinimumOneItem
	}
	l.items = append(l.items[:pos], l.items[pos+1:]...)
	for key := range l.manual {
		if key.ItemID == id {
			delete(l.manual, key)
		}
	}
	l.recompute()
	return nil
}

// SetMonthlyAmount records the usage of one month.
func (l *Ledger[T]) SetMonthlyAmount(id string, month int, amount decimal.Decimal) error {
	item, _ := l.find(id)
	if item == nil {
		return ErrItemNotFound
	}
	if month < 1 || month > MonthsPerYear {
		return ErrInvalidMonth
	}
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if !inRange(amount) {
		return ErrAmountOutOfRange
	}
	item.MonthlyUsage[month-1].Amount = amount
	item.recomputeTotal()
	l.recompute()
	return nil
}

// SetMonthlyAmountInput records raw form input; non-numeric input counts as zero.
func (l *Ledger[T]) SetMonthlyAmountInput(id string, month int, raw string) error {
	return l.SetMonthlyAmount(id, month, ParseAmount(raw))
}

// SetLinkedUnitProcesses replaces the item's link set. Ratios entered for
// pairs that are no longer linked are discarded.
func (l *Ledger[T]) SetLinkedUnitProcesses(id string, unitProcessIDs []string) error {
	item, _ := l.find(id)
	if item == nil {
		return ErrItemNotFound
	}
	links, err := l.normalizeLinks(unitProcessIDs)
	if err != nil {
		return err
	}
	item.LinkedUnitProcessIDs = links
	l.pruneRatios(item)
	l.recompute()
	return nil
}

// SetResourceType selects a catalog entry and takes over its unit.
// Recorded amounts are kept as entered.
func (l *Ledger[T]) SetResourceType(id, typeID string) error {
	item, _ := l.find(id)
	if item == nil {
		return ErrItemNotFound
	}
	entry, ok := l.resourceTypes.Lookup(typeID)
	if !ok {
		return ErrUnknownResourceType
	}
	item.ResourceTypeID = typeID
	item.Unit = entry.CatalogUnit()
	return nil
}

// SetDQI sets the data quality indicator of an item.
func (l *Ledger[T]) SetDQI(id string, dqi DQI) error {
	item, _ := l.find(id)
	if item == nil {
		return ErrItemNotFound
	}
	if !dqi.IsValid() {
		return ErrInvalidDQI
	}
	item.DQI = dqi
	return nil
}

// SetMethod switches the allocation method. Manual ratios survive a
// round trip through production volume.
func (l *Ledger[T]) SetMethod(method AllocationMethod) error {
	if !method.IsValid() {
		return ErrInvalidMethod
	}
	l.method = method
	l.recompute()
	return nil
}

// SetManualRatio stores a user ratio for a linked pair.
func (l *Ledger[T]) SetManualRatio(itemID, unitProcessID string, ratio decimal.Decimal) error {
	item, _ := l.find(itemID)
	if item == nil {
		return ErrItemNotFound
	}
	if !item.IsLinked(unitProcessID) {
		return ErrPairNotLinked
	}
	if ratio.IsNegative() || !inRange(ratio) || ratio.GreaterThan(hundred) {
		return ErrInvalidRatio
	}
	l.manual[RatioKey{ItemID: itemID, UnitProcessID: unitProcessID}] = ratio
	l.recompute()
	return nil
}

// RetainUnitProcesses replaces the set of known unit processes and drops
// links to processes that no longer exist. It returns the number of
// links removed.
func (l *Ledger[T]) RetainUnitProcesses(unitProcesses []UnitProcess) int {
	known := make(map[string]UnitProcess, len(unitProcesses))
	for _, up := range unitProcesses {
		if up.ID != "" {
			known[up.ID] = up
		}
	}
	l.unitProcesses = known

	removed := 0
	for _, item := range l.items {
		kept := item.LinkedUnitProcessIDs[:0]
		for _, id := range item.LinkedUnitProcessIDs {
			if _, ok := known[id]; ok {
				kept = append(kept, id)
				continue
			}
			removed++
		}
		item.LinkedUnitProcessIDs = kept
		l.pruneRatios(item)
	}
	l.recompute()
	return removed
}

// Snapshot returns a detached copy of the ledger state.
func (l *Ledger[T]) Snapshot() LedgerSnapshot {
	return LedgerSnapshot{
		Category:    l.category,
		Method:      l.method,
		Items:       l.Items(),
		Allocations: l.Allocations(),
		Warnings:    l.Warnings(),
	}
}

// ParseAmount converts raw input to an amount; anything non-numeric is zero.
// Values outside the supported magnitude are treated as non-numeric.
func ParseAmount(raw string) decimal.Decimal {
	value, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil || !inRange(value) {
		return decimal.Zero
	}
	return value
}

// Bounds on the decimal representation of user input. Values outside them
// never reach arithmetic, which rescales operands to a common exponent.
const (
	minInputExponent = -12
	maxInputExponent = 15
	maxInputDigits   = 30
)

// inRange reports whether value can enter ledger arithmetic. It only inspects
// the representation and never rescales.
func inRange(value decimal.Decimal) bool {
	exp := value.Exponent()
	if exp < minInputExponent || exp > maxInputExponent {
		return false
	}
	return value.NumDigits() <= maxInputDigits
}

func (l *Ledger[T]) recompute() {
	items := make([]ResourceItem, 0, len(l.items))
	for _, item := range l.items {
		items = append(items, *item)
	}
	l.allocations = Compute(items, l.method, l.manual)
}

func (l *Ledger[T]) pruneRatios(item *ResourceItem) {
	for key := range l.manual {
		if key.ItemID == item.ID && !item.IsLinked(key.UnitProcessID) {
			delete(l.manual, key)
		}
	}
}

func (l *Ledger[T]) normalizeLinks(ids []string) ([]string, error) {
	links := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := l.unitProcesses[id]; !ok {
			return nil, ErrUnknownUnitProcess
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		links = append(links, id)
	}
	return links, nil
}

func (l *Ledger[T]) find(id string) (*ResourceItem, int) {
	for i, item := range l.items {
		if item.ID == id {
			return item, i
		}
	}
	return nil, -1
}

func (l *Ledger[T]) itemID(suffix int) string {
	return string(l.category) + "-" + strconv.Itoa(suffix)
}

func (l *Ledger[T]) nextSuffix() int {
	highest := 0
	for _, item := range l.items {
		pos := strings.LastIndex(item.ID, "-")
		if pos < 0 {
			continue
		}
		n, err := strconv.Atoi(item.ID[pos+1:])
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest + 1
}
