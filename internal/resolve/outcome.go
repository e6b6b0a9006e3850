package resolve

import "github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/catalog"

// Outcome is the tagged result of one resolution. Exactly one variant
// is produced per call. The interface is sealed so a type switch over
// the five variants is exhaustive.
type Outcome interface {
	// Kind returns the outcome tag ("food", "alcohol", ...) for
	// logging and metrics.
	Kind() string

	sealedOutcome()
}

// Food means no specialized classification applies; the product stays
// in the generic food catalog. This is a normal outcome, not an error.
type Food struct {
	Product GenericProduct
}

// Alcohol is a backend-confirmed alcohol product; no generic product
// is retained.
type Alcohol struct {
	Beverage catalog.AlcoholEntry
}

// Caffeine is a backend-confirmed caffeine product.
type Caffeine struct {
	Product catalog.CaffeineEntry
}

// MappedAlcohol is a fuzzy-matched alcohol classification. Both sides
// are kept so callers can show provenance or fall back to the generic
// product.
type MappedAlcohol struct {
	Product  GenericProduct
	Beverage catalog.AlcoholEntry
	Score    float64
}

// MappedCaffeine is a fuzzy-matched caffeine classification.
type MappedCaffeine struct {
	Product GenericProduct
	Drink   catalog.CaffeineEntry
	Score   float64
}

func (Food) Kind() string           { return "food" }
func (Alcohol) Kind() string        { return "alcohol" }
func (Caffeine) Kind() string       { return "caffeine" }
func (MappedAlcohol) Kind() string  { return "mapped_alcohol" }
func (MappedCaffeine) Kind() string { return "mapped_caffeine" }

func (Food) sealedOutcome()           {}
func (Alcohol) sealedOutcome()        {}
func (Caffeine) sealedOutcome()       {}
func (MappedAlcohol) sealedOutcome()  {}
func (MappedCaffeine) sealedOutcome() {}
