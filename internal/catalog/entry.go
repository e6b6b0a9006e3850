// Package catalog holds the specialized product catalogs (alcohol,
// caffeine) used to reclassify generic food lookups.
package catalog

// AlcoholEntry is one beverage in the alcohol catalog.
type AlcoholEntry struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Brand          string  `json:"brand,omitempty"`
	Category       string  `json:"category"`
	AlcoholPercent float64 `json:"alcohol_percent"`
	ServingSizeML  float64 `json:"serving_size_ml"`
	Calories       float64 `json:"calories"`
	Carbs          float64 `json:"carbs"`
}

// CaffeineEntry is one product in the caffeine catalog.
type CaffeineEntry struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Brand         string  `json:"brand,omitempty"`
	Category      string  `json:"category"`
	CaffeineMG    float64 `json:"caffeine_mg"`
	ServingSizeML float64 `json:"serving_size_ml"`
	Calories      float64 `json:"calories"`
	Sugar         float64 `json:"sugar"`
}
