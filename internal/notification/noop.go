package notification

import (
	"context"

	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/observability"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/resolve"
)

// NoOpPublisher is a publisher that does nothing but log events.
// Use this when SNS is not configured (local development, testing).
type NoOpPublisher struct {
	logger *observability.Logger
}

// NewNoOpPublisher creates a new no-op publisher that only logs events.
func NewNoOpPublisher(logger *observability.Logger) *NoOpPublisher {
	return &NoOpPublisher{
		logger: logger,
	}
}

// PublishResolution logs the event instead of publishing to SNS.
// Implements resolve.EventPublisher interface.
func (p *NoOpPublisher) PublishResolution(ctx context.Context, evt *resolve.ResolutionEvent) error {
	if p.logger != nil {
		p.logger.Info("resolution event (SNS disabled)",
			"event_id", evt.EventID,
			"product_id", evt.ProductID,
			"outcome", evt.Outcome,
			"source", evt.Source,
			"catalog_id", evt.CatalogID,
			"match_score", evt.MatchScore,
		)
	}
	return nil
}
