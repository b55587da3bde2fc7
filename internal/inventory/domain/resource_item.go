package inventory

import "github.com/shopspring/decimal"

// MonthsPerYear is the fixed length of a usage series.
const MonthsPerYear = 12

// DQI is the data quality indicator of a resource item.
type DQI string

const (
	DQIUnset      DQI = ""
	DQIMeasured   DQI = "M"
	DQICalculated DQI = "C"
	DQIEstimated  DQI = "E"
)

// IsValid reports whether the indicator is one of M, C, E or unset.
func (d DQI) IsValid() bool {
	switch d {
	case DQIUnset, DQIMeasured, DQICalculated, DQIEstimated:
		return true
	default:
		return false
	}
}

// MonthlyUsage is the amount consumed in one calendar month.
type MonthlyUsage struct {
	Month  int             `json:"month"`
	Amount decimal.Decimal `json:"amount"`
}

// ResourceItem is one material or utility entry of a ledger.
type ResourceItem struct {
	ID                   string          `json:"id"`
	ResourceTypeID       string          `json:"resource_type_id"`
	Unit                 string          `json:"unit"`
	LinkedUnitProcessIDs []string        `json:"linked_unit_process_ids"`
	MonthlyUsage         []MonthlyUsage  `json:"monthly_usage"`
	TotalAmount          decimal.Decimal `json:"total_amount"`
	DQI                  DQI             `json:"dqi"`
}

// ItemDefaults seeds a newly added item.
type ItemDefaults struct {
	ResourceTypeID       string
	LinkedUnitProcessIDs []string
	DQI                  DQI
}

func newResourceItem(id string) *ResourceItem {
	usage := make([]MonthlyUsage, MonthsPerYear)
	for i := range usage {
		usage[i] = MonthlyUsage{Month: i + 1, Amount: decimal.Zero}
	}
	return &ResourceItem{
		ID:                   id,
		LinkedUnitProcessIDs: []string{},
		MonthlyUsage:         usage,
		TotalAmount:          decimal.Zero,
	}
}

// IsLinked reports whether the item is linked to the unit process.
func (i ResourceItem) IsLinked(unitProcessID string) bool {
	for _, id := range i.LinkedUnitProcessIDs {
		if id == unitProcessID {
			return true
		}
	}
	return false
}

// Amount returns the usage recorded for a month, or zero for months outside 1..12.
func (i ResourceItem) Amount(month int) decimal.Decimal {
	if month < 1 || month > len(i.MonthlyUsage) {
		return decimal.Zero
	}
	return i.MonthlyUsage[month-1].Amount
}

func (i *ResourceItem) recomputeTotal() {
	total := decimal.Zero
	for _, usage := range i.MonthlyUsage {
		total = total.Add(usage.Amount)
	}
	i.TotalAmount = total
}

func (i *ResourceItem) clone() ResourceItem {
	copy := *i
	copy.LinkedUnitProcessIDs = append([]string{}, i.LinkedUnitProcessIDs...)
	copy.MonthlyUsage = append([]MonthlyUsage(nil), i.MonthlyUsage...)
	return copy
}
