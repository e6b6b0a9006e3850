package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// Metrics holds all application metrics
type Metrics struct {
	meter metric.Meter

	// Resolution metrics
	ResolutionDuration metric.Float64Histogram
	ResolutionsTotal   metric.Int64Counter

	// Matcher metrics
	MatchAttempts metric.Int64Counter
	MatchScore    metric.Float64Histogram

	// Catalog refresh metrics
	CatalogRefreshTotal    metric.Int64Counter
	CatalogRefreshDuration metric.Float64Histogram
	CatalogSize            metric.Int64Gauge

	// Catalog API metrics
	CatalogAPICalls    metric.Int64Counter
	CatalogAPIDuration metric.Float64Histogram

	// Cache metrics
	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter

	// Disk cache metrics
	DiskWrites metric.Int64Counter

	// Promotion metrics
	PromotionFetches metric.Int64Counter

	// Event publishing metrics
	EventsPublished metric.Int64Counter
	PublishDuration metric.Float64Histogram

	// Circuit breaker metrics
	CircuitBreakerState metric.Int64Gauge

	// Error metrics
	Errors metric.Int64Counter

	// Prometheus exporter for HTTP handler
	exporter *prometheus.Exporter
}

// NewMetrics creates a new Metrics instance
func NewMetrics(serviceName string, enabled bool) (*Metrics, error) {
	if !enabled {
		return &Metrics{}, nil
	}

	// Create resource
	res, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String("1.0.0"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Create Prometheus exporter
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	// Create meter provider
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)

	// Get meter
	meter := provider.Meter(serviceName)

	// Create metrics instance
	m := &Metrics{
		meter:    meter,
		exporter: exporter,
	}

	// Initialize all metrics
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return m, nil
}

// initMetrics initializes all metric instruments
func (m *Metrics) initMetrics() error {
	var err error

	// Resolution metrics
	m.ResolutionDuration, err = m.meter.Float64Histogram(
		"resolver.resolution.duration",
		metric.WithDescription("Product resolution duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.ResolutionsTotal, err = m.meter.Int64Counter(
		"resolver.resolutions.total",
		metric.WithDescription("Total resolutions, labeled by outcome"),
	)
	if err != nil {
		return err
	}

	// Matcher metrics
	m.MatchAttempts, err = m.meter.Int64Counter(
		"resolver.match.attempts",
		metric.WithDescription("Fuzzy match attempts, labeled by catalog and result"),
	)
	if err != nil {
		return err
	}

	m.MatchScore, err = m.meter.Float64Histogram(
		"resolver.match.score",
		metric.WithDescription("Best-candidate similarity score per match attempt"),
	)
	if err != nil {
		return err
	}

	// Catalog refresh metrics
	m.CatalogRefreshTotal, err = m.meter.Int64Counter(
		"catalog.refresh.total",
		metric.WithDescription("Catalog refreshes, labeled by catalog and status"),
	)
	if err != nil {
		return err
	}

	m.CatalogRefreshDuration, err = m.meter.Float64Histogram(
		"catalog.refresh.duration",
		metric.WithDescription("Catalog refresh duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	m.CatalogSize, err = m.meter.Int64Gauge(
		"catalog.size",
		metric.WithDescription("Entries in the current catalog snapshot"),
	)
	if err != nil {
		return err
	}

	// Catalog API metrics
	m.CatalogAPICalls, err = m.meter.Int64Counter(
		"catalog.api.calls",
		metric.WithDescription("Catalog backend API calls"),
	)
	if err != nil {
		return err
	}

	m.CatalogAPIDuration, err = m.meter.Float64Histogram(
		"catalog.api.duration",
		metric.WithDescription("Catalog backend API call duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	// Cache metrics
	m.CacheHits, err = m.meter.Int64Counter(
		"cache.hits",
		metric.WithDescription("Cache hits by layer"),
	)
	if err != nil {
		return err
	}

	m.CacheMisses, err = m.meter.Int64Counter(
		"cache.misses",
		metric.WithDescription("Cache misses by layer"),
	)
	if err != nil {
		return err
	}

	// Disk cache metrics
	m.DiskWrites, err = m.meter.Int64Counter(
		"cache.disk.writes",
		metric.WithDescription("Background disk cache writes by status"),
	)
	if err != nil {
		return err
	}

	// Promotion metrics
	m.PromotionFetches, err = m.meter.Int64Counter(
		"promotions.fetches",
		metric.WithDescription("Promotion fetches by source (disk, network)"),
	)
	if err != nil {
		return err
	}

	// Event publishing metrics
	m.EventsPublished, err = m.meter.Int64Counter(
		"events.published",
		metric.WithDescription("Resolution events published, labeled by status"),
	)
	if err != nil {
		return err
	}

	m.PublishDuration, err = m.meter.Float64Histogram(
		"events.publish.duration",
		metric.WithDescription("Event publish duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return err
	}

	// Circuit breaker metrics
	m.CircuitBreakerState, err = m.meter.Int64Gauge(
		"circuit_breaker.state",
		metric.WithDescription("Circuit breaker state (0=closed, 1=open, 2=half-open)"),
	)
	if err != nil {
		return err
	}

	// Error metrics
	m.Errors, err = m.meter.Int64Counter(
		"errors.total",
		metric.WithDescription("Total errors by type"),
	)
	if err != nil {
		return err
	}

	return nil
}

// RecordResolution records one completed resolution
func (m *Metrics) RecordResolution(ctx context.Context, outcome, source string, duration time.Duration) {
	if m.ResolutionsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	)
	m.ResolutionsTotal.Add(ctx, 1, attrs)
	m.ResolutionDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordMatchAttempt records one fuzzy match attempt against a catalog
func (m *Metrics) RecordMatchAttempt(ctx context.Context, catalog string, matched bool, score float64) {
	if m.MatchAttempts == nil {
		return
	}

	m.MatchAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("catalog", catalog),
		attribute.Bool("matched", matched),
	))
	m.MatchScore.Record(ctx, score, metric.WithAttributes(
		attribute.String("catalog", catalog),
	))
}

// RecordCatalogRefresh records a catalog refresh attempt
func (m *Metrics) RecordCatalogRefresh(ctx context.Context, catalog, status string, entries int, duration time.Duration) {
	if m.CatalogRefreshTotal == nil {
		return
	}

	m.CatalogRefreshTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("catalog", catalog),
		attribute.String("status", status),
	))
	m.CatalogRefreshDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(
		attribute.String("catalog", catalog),
	))
	if status == "success" {
		m.CatalogSize.Record(ctx, int64(entries), metric.WithAttributes(
			attribute.String("catalog", catalog),
		))
	}
}

// RecordCatalogAPICall records a catalog backend API call
func (m *Metrics) RecordCatalogAPICall(ctx context.Context, catalog, endpoint, status string, duration time.Duration) {
	if m.CatalogAPICalls == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("catalog", catalog),
		attribute.String("endpoint", endpoint),
		attribute.String("status", status),
	)
	m.CatalogAPICalls.Add(ctx, 1, attrs)
	m.CatalogAPIDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

// RecordCacheHit records a cache hit
func (m *Metrics) RecordCacheHit(ctx context.Context, layer string) {
	if m.CacheHits == nil {
		return
	}
	m.CacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordCacheMiss records a cache miss
func (m *Metrics) RecordCacheMiss(ctx context.Context, layer string) {
	if m.CacheMisses == nil {
		return
	}
	m.CacheMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("layer", layer)))
}

// RecordDiskWrite records a background disk cache write
func (m *Metrics) RecordDiskWrite(ctx context.Context, success bool) {
	if m.DiskWrites == nil {
		return
	}
	status := "success"
	if !success {
		status = "error"
	}
	m.DiskWrites.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordPromotionFetch records where a promotion list was served from
func (m *Metrics) RecordPromotionFetch(ctx context.Context, source string) {
	if m.PromotionFetches == nil {
		return
	}
	m.PromotionFetches.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

// RecordEventPublish records a resolution event publish attempt
func (m *Metrics) RecordEventPublish(ctx context.Context, status string, duration time.Duration) {
	if m.EventsPublished == nil {
		return
	}
	m.EventsPublished.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	m.PublishDuration.Record(ctx, float64(duration.Milliseconds()))
}

// SetCircuitBreakerState sets circuit breaker state
func (m *Metrics) SetCircuitBreakerState(ctx context.Context, service string, state int64) {
	if m.CircuitBreakerState == nil {
		return
	}
	m.CircuitBreakerState.Record(ctx, state, metric.WithAttributes(attribute.String("service", service)))
}

// RecordError records an error occurrence
func (m *Metrics) RecordError(ctx context.Context, errorType string) {
	if m.Errors == nil {
		return
	}
	m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("type", errorType)))
}

// Handler returns HTTP handler for Prometheus metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
