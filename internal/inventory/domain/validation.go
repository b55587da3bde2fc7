package inventory

import "github.com/shopspring/decimal"

// RatioTolerance is the accepted distance between a ratio sum and 100.
var RatioTolerance = decimal.New(1, -1)

// WarningRatioSum is shown when an allocation does not add up.
const WarningRatioSum = "ratio sum must equal 100%"

// ValidationStatus is the advisory check result of one allocation record.
// Delta is the signed distance TotalRatio - 100.
type ValidationStatus struct {
	OK    bool            `json:"ok"`
	Delta decimal.Decimal `json:"delta"`
}

// Validate checks that a record sums to 100 within RatioTolerance, inclusive.
func Validate(record AllocationRecord) ValidationStatus {
	delta := record.TotalRatio.Sub(hundred)
	return ValidationStatus{
		OK:    delta.Abs().LessThanOrEqual(RatioTolerance),
		Delta: delta,
	}
}

// AllocationWarning is a non-blocking notice that a record does not sum to 100.
type AllocationWarning struct {
	ItemID     string          `json:"item_id"`
	TotalRatio decimal.Decimal `json:"total_ratio"`
	Delta      decimal.Decimal `json:"delta"`
	Message    string          `json:"message"`
}

// Warnings returns one warning per record that fails Validate.
func Warnings(records []AllocationRecord) []AllocationWarning {
	var warnings []AllocationWarning
	for _, record := range records {
		status := Validate(record)
		if status.OK {
			continue
		}
		warnings = append(warnings, AllocationWarning{
			ItemID:     record.ItemID,
			TotalRatio: record.TotalRatio,
			Delta:      status.Delta,
			Message:    WarningRatioSum,
		})
	}
	return warnings
}
