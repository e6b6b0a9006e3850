// Package resolve turns raw barcode/search lookup results into tagged
// resolution outcomes, reclassifying generic products into the alcohol
// or caffeine catalogs when a confident match exists.
package resolve

import "encoding/json"

// GenericProduct is a product as the food lookup backend reports it.
type GenericProduct struct {
	ID       string  `json:"id"`
	Name     *string `json:"product_name"`
	Brand    *string `json:"brands"`
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	IsCustom *bool   `json:"is_custom"`
}

// DisplayName returns the product name or an empty string.
func (p GenericProduct) DisplayName() string {
	if p.Name == nil {
		return ""
	}
	return *p.Name
}

// BrandName returns the brand or an empty string.
func (p GenericProduct) BrandName() string {
	if p.Brand == nil {
		return ""
	}
	return *p.Brand
}

// LookupResult is the wire contract for a barcode scan or search hit.
// When the backend has already disambiguated the product, Type names
// the specialized catalog and SpecializedProduct carries its payload;
// otherwise both are null and the flat generic fields describe it.
type LookupResult struct {
	GenericProduct

	Type                *string         `json:"type"` // "alcohol" | "caffeine" | null
	SpecializedProduct  json.RawMessage `json:"specialized_product"`
	OriginalFoodProduct *GenericProduct `json:"original_food_product"`
}

// Generic returns the generic-product view of the lookup: the embedded
// original food product when the backend included one, else the flat
// top-level fields.
func (l *LookupResult) Generic() GenericProduct {
	if l.OriginalFoodProduct != nil {
		return *l.OriginalFoodProduct
	}
	return l.GenericProduct
}

// Explicit catalog type values the backend may send.
const (
	TypeAlcohol  = "alcohol"
	TypeCaffeine = "caffeine"
)
