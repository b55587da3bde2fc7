package mapping

import "errors"

// ValidationError reports a rejected mapping change. The mapper is unchanged.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "mapping: " + e.Message
}

var (
	// ErrNoProcessSelected is returned when toggling before a governing process is chosen.
	ErrNoProcessSelected = &ValidationError{Message: "no governing process selected"}
	// ErrUnknownSubProcess is returned for sub-processes outside the governing process.
	ErrUnknownSubProcess = &ValidationError{Message: "unknown sub-process"}
	// ErrUnknownItem is returned for products or groups that are not registered.
	ErrUnknownItem = &ValidationError{Message: "unknown mappable item"}
	// ErrIneligibleItem is returned when the item belongs to another process.
	ErrIneligibleItem = &ValidationError{Message: "item is not associated with the governing process"}
	// ErrInvalidItemType is returned for types other than product and product_group.
	ErrInvalidItemType = &ValidationError{Message: "invalid item type"}

	// ErrEmptyProcessID is returned when selecting a process without id.
	ErrEmptyProcessID = errors.New("mapping: empty process id")
)

// IsValidation reports whether err is a mapping validation rejection.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
