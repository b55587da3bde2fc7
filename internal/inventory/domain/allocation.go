package inventory

import "github.com/shopspring/decimal"

// AllocationMethod selects how an item's usage is split across unit processes.
type AllocationMethod string

const (
	// MethodProductionVolume splits evenly across linked unit processes.
	// It stands in for a production-volume weighting computed elsewhere.
	MethodProductionVolume AllocationMethod = "production-volume"
	// MethodManualRatio uses ratios entered by the user.
	MethodManualRatio AllocationMethod = "manual-ratio"
)

// IsValid reports whether the method is supported.
func (m AllocationMethod) IsValid() bool {
	return m == MethodProductionVolume || m == MethodManualRatio
}

// ParseAllocationMethod validates a raw method string.
func ParseAllocationMethod(value string) (AllocationMethod, error) {
	method := AllocationMethod(value)
	if !method.IsValid() {
		return "", ErrInvalidMethod
	}
	return method, nil
}

// RatioPlaces is the number of decimals kept for computed ratios.
const RatioPlaces = 1

var hundred = decimal.NewFromInt(100)

// RatioKey identifies one (item, unit process) pair.
type RatioKey struct {
	ItemID        string
	UnitProcessID string
}

// ManualRatios holds user-entered ratios keyed by pair.
type ManualRatios map[RatioKey]decimal.Decimal

// UnitProcessAllocation is the share of an item assigned to one unit process.
type UnitProcessAllocation struct {
	UnitProcessID string          `json:"unit_process_id"`
	Ratio         decimal.Decimal `json:"ratio"`
}

// AllocationRecord is the derived allocation of one linked item.
type AllocationRecord struct {
	ItemID                 string                  `json:"item_id"`
	UnitProcessAllocations []UnitProcessAllocation `json:"unit_process_allocations"`
	TotalRatio             decimal.Decimal         `json:"total_ratio"`
}

// Ratio returns the ratio assigned to a unit process.
func (r AllocationRecord) Ratio(unitProcessID string) (decimal.Decimal, bool) {
	for _, alloc := range r.UnitProcessAllocations {
		if alloc.UnitProcessID == unitProcessID {
			return alloc.Ratio, true
		}
	}
	return decimal.Zero, false
}

// Compute derives allocation records for every item with at least one link.
// Records follow item order and, within a record, link order. The result
// depends only on the arguments.
func Compute(items []ResourceItem, method AllocationMethod, manual ManualRatios) []AllocationRecord {
	records := make([]AllocationRecord, 0, len(items))
	for _, item := range items {
		count := len(item.LinkedUnitProcessIDs)
		if count == 0 {
			continue
		}

		record := AllocationRecord{
			ItemID:                 item.ID,
			UnitProcessAllocations: make([]UnitProcessAllocation, 0, count),
			TotalRatio:             decimal.Zero,
		}
		var share decimal.Decimal
		if method == MethodProductionVolume {
			share = EqualShare(count)
		}
		for _, unitProcessID := range item.LinkedUnitProcessIDs {
			ratio := share
			if method == MethodManualRatio {
				ratio = decimal.Zero
				if value, ok := manual[RatioKey{ItemID: item.ID, UnitProcessID: unitProcessID}]; ok {
					ratio = value
				}
			}
			record.UnitProcessAllocations = append(record.UnitProcessAllocations, UnitProcessAllocation{
				UnitProcessID: unitProcessID,
				Ratio:         ratio,
			})
			record.TotalRatio = record.TotalRatio.Add(ratio)
		}
		records = append(records, record)
	}
	return records
}

// EqualShare returns 100 / count rounded to RatioPlaces.
// Rounding drift is not redistributed: three links yield 33.3 each.
func EqualShare(count int) decimal.Decimal {
	if count <= 0 {
		return decimal.Zero
	}
	return hundred.DivRound(decimal.NewFromInt(int64(count)), RatioPlaces)
}
