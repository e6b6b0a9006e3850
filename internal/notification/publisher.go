package notification

import (
	"context"
	"fmt"

	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/aws"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/observability"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/resolve"
	"go.opentelemetry.io/otel/attribute"
)

// Publisher publishes resolution events to SNS for downstream
// consumers (persistence, webhooks).
type Publisher struct {
	snsClient *aws.SNSClient
	topicARN  string
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    observability.Tracer
}

// PublisherConfig holds publisher configuration
type PublisherConfig struct {
	SNSClient *aws.SNSClient
	TopicARN  string
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    observability.Tracer
}

// NewPublisher creates a new resolution event publisher
func NewPublisher(cfg PublisherConfig) (*Publisher, error) {
	if cfg.SNSClient == nil {
		return nil, fmt.Errorf("SNS client is required")
	}
	if cfg.TopicARN == "" {
		return nil, fmt.Errorf("SNS topic ARN is required")
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}

	return &Publisher{
		snsClient: cfg.SNSClient,
		topicARN:  cfg.TopicARN,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
	}, nil
}

// PublishResolution publishes a resolution event to SNS
// Implements resolve.EventPublisher interface
func (p *Publisher) PublishResolution(ctx context.Context, evt *resolve.ResolutionEvent) error {
	ctx, span := p.tracer.StartSpan(
		ctx,
		"Publisher.PublishResolution",
		observability.WithAttributes(
			attribute.String("event_id", evt.EventID),
			attribute.String("outcome", evt.Outcome),
			attribute.String("topic_arn", p.topicARN),
		),
	)
	defer span.End()

	// Message attributes for SNS subscription filtering
	attributes := map[string]string{
		"outcome": evt.Outcome,
		"source":  evt.Source,
	}

	err := p.snsClient.Publish(ctx, p.topicARN, evt, attributes)
	if err != nil {
		span.NoticeError(err)
		if p.logger != nil {
			p.logger.LogError(ctx, "failed to publish to SNS", err,
				"event_id", evt.EventID,
				"topic_arn", p.topicARN,
			)
		}
		return fmt.Errorf("SNS publish failed: %w", err)
	}

	if p.logger != nil {
		p.logger.Debug("published resolution event to SNS",
			"event_id", evt.EventID,
			"outcome", evt.Outcome,
			"topic_arn", p.topicARN,
		)
	}

	return nil
}
