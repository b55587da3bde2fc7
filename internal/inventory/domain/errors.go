package inventory

import "errors"

// ValidationError reports input that violates a ledger invariant.
// The operation that returned it left the ledger unchanged.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "inventory: " + e.Message
}

var (
	// ErrMinimumOneItem is returned when deleting the last item of a ledger.
	ErrMinimumOneItem = &ValidationError{Message: "minimum one item required"}
	// ErrInvalidMonth is returned for months outside 1..12.
	ErrInvalidMonth = &ValidationError{Message: "invalid month"}
	// ErrNegativeAmount is returned for monthly amounts below zero.
	ErrNegativeAmount = &ValidationError{Message: "amount must not be negative"}
	// ErrAmountOutOfRange is returned for amounts beyond the supported magnitude.
	ErrAmountOutOfRange = &ValidationError{Message: "amount out of range"}
	// ErrUnknownResourceType is returned when a type id is not in the catalog.
	ErrUnknownResourceType = &ValidationError{Message: "unknown resource type"}
	// ErrUnknownUnitProcess is returned when a link targets an undefined unit process.
	ErrUnknownUnitProcess = &ValidationError{Message: "unknown unit process"}
	// ErrInvalidDQI is returned for data quality indicators other than M, C, E or empty.
	ErrInvalidDQI = &ValidationError{Message: "invalid data quality indicator"}
	// ErrInvalidMethod is returned for unsupported allocation methods.
	ErrInvalidMethod = &ValidationError{Message: "invalid allocation method"}
	// ErrInvalidRatio is returned for manual ratios outside 0..100.
	ErrInvalidRatio = &ValidationError{Message: "ratio must be between 0 and 100"}
	// ErrPairNotLinked is returned when a ratio targets a unit process the item is not linked to.
	ErrPairNotLinked = &ValidationError{Message: "unit process is not linked to item"}
	// ErrInvalidCategory is returned for unknown resource categories.
	ErrInvalidCategory = &ValidationError{Message: "invalid resource category"}

	// ErrItemNotFound is returned when an item id is not in the ledger.
	ErrItemNotFound = errors.New("inventory: item not found")
	// ErrEmptyCategory is returned when a ledger is built without a category.
	ErrEmptyCategory = errors.New("inventory: empty category")
)

// IsValidation reports whether err is a ledger validation rejection.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
