package resolve

import (
	"encoding/json"
	"fmt"
	"time"
)

// ResolutionEvent is the record published after each resolution for
// downstream consumers (persistence, webhooks, analytics).
type ResolutionEvent struct {
	EventID    string    `json:"event_id"`
	ProductID  string    `json:"product_id"`
	Outcome    string    `json:"outcome"`
	Source     string    `json:"source"` // "barcode" or "search"
	CatalogID  string    `json:"catalog_id,omitempty"`
	MatchScore float64   `json:"match_score,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewResolutionEvent builds the event for a finished resolution.
func NewResolutionEvent(lookup *LookupResult, outcome Outcome, source string) *ResolutionEvent {
	now := time.Now().UTC()

	evt := &ResolutionEvent{
		EventID:   fmt.Sprintf("res-%s-%d", lookup.ID, now.UnixNano()),
		ProductID: lookup.ID,
		Outcome:   outcome.Kind(),
		Source:    source,
		Timestamp: now,
	}

	switch o := outcome.(type) {
	case Alcohol:
		evt.CatalogID = o.Beverage.ID
	case Caffeine:
		evt.CatalogID = o.Product.ID
	case MappedAlcohol:
		evt.CatalogID = o.Beverage.ID
		evt.MatchScore = o.Score
	case MappedCaffeine:
		evt.CatalogID = o.Drink.ID
		evt.MatchScore = o.Score
	}

	return evt
}

// ToJSON serializes the event for publishing.
func (e *ResolutionEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
