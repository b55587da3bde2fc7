package inventory

// Category identifies the kind of resource a ledger tracks.
type Category string

const (
	CategoryPower             Category = "power"
	CategorySteam             Category = "steam"
	CategoryFuel              Category = "fuel"
	CategoryWater             Category = "water"
	CategoryAuxiliaryMaterial Category = "auxiliary_material"
	CategoryCompressedAir     Category = "compressed_air"
)

// Categories lists every supported category in display order.
func Categories() []Category {
	return []Category{
		CategoryPower,
		CategorySteam,
		CategoryFuel,
		CategoryWater,
		CategoryAuxiliaryMaterial,
		CategoryCompressedAir,
	}
}

// IsValid reports whether the category is supported.
func (c Category) IsValid() bool {
	switch c {
	case CategoryPower, CategorySteam, CategoryFuel, CategoryWater, CategoryAuxiliaryMaterial, CategoryCompressedAir:
		return true
	default:
		return false
	}
}

// ParseCategory validates a raw category string.
func ParseCategory(value string) (Category, error) {
	category := Category(value)
	if !category.IsValid() {
		return "", ErrInvalidCategory
	}
	return category, nil
}
