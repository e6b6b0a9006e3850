package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/catalog"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/match"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/observability"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// CatalogFetcher defines the interface for fetching catalog samples.
// Interfaces defined where they're consumed (Dependency Inversion Principle)
type CatalogFetcher interface {
	FetchAlcohol(ctx context.Context) ([]catalog.AlcoholEntry, error)
	FetchCaffeine(ctx context.Context) ([]catalog.CaffeineEntry, error)
}

// EventPublisher defines the interface for publishing resolution events
type EventPublisher interface {
	PublishResolution(ctx context.Context, evt *ResolutionEvent) error
}

// Resolver is the single entry point that turns a raw lookup result
// into an Outcome. It never mutates its input and never fails for "no
// match": the worst case is a product logging as generic food.
type Resolver struct {
	store     *catalog.Store
	fetcher   CatalogFetcher
	publisher EventPublisher
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    observability.Tracer

	matchCfg match.Config

	// Staleness-gated refresh, double-checked under refreshMu so
	// concurrent resolutions don't stampede the backend. A redundant
	// refresh is only wasted work: each one is a wholesale replace.
	staleness time.Duration
	refreshMu sync.Mutex
}

// ResolverConfig holds resolver configuration
type ResolverConfig struct {
	Store     *catalog.Store
	Fetcher   CatalogFetcher
	Publisher EventPublisher
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Tracer    observability.Tracer
	MatchCfg  match.Config
	Staleness time.Duration
}

// NewResolver creates a new product resolver
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("catalog store is required")
	}
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("catalog fetcher is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if cfg.Staleness <= 0 {
		cfg.Staleness = 10 * time.Minute
	}
	if cfg.MatchCfg.Threshold == 0 {
		cfg.MatchCfg = match.DefaultConfig()
	}
	if cfg.Tracer == nil {
		cfg.Tracer = observability.NewNoopTracer()
	}

	return &Resolver{
		store:     cfg.Store,
		fetcher:   cfg.Fetcher,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		tracer:    cfg.Tracer,
		matchCfg:  cfg.MatchCfg,
		staleness: cfg.Staleness,
	}, nil
}

// Resolve classifies one lookup result. Source is "barcode" or
// "search" and only feeds logging and metrics.
func (r *Resolver) Resolve(ctx context.Context, lookup *LookupResult, source string) Outcome {
	start := time.Now()

	ctx, span := r.tracer.StartSpan(
		ctx,
		"Resolver.Resolve",
		observability.WithAttributes(
			attribute.String("product_id", lookup.ID),
			attribute.String("source", source),
		),
	)
	defer span.End()

	outcome := r.resolve(ctx, lookup)

	span.SetAttribute("outcome", outcome.Kind())

	if r.metrics != nil {
		r.metrics.RecordResolution(ctx, outcome.Kind(), source, time.Since(start))
	}
	r.logger.Info("product resolved",
		"product_id", lookup.ID,
		"source", source,
		"outcome", outcome.Kind(),
		"duration_ms", time.Since(start).Milliseconds(),
	)

	r.publish(ctx, lookup, outcome, source)

	return outcome
}

func (r *Resolver) resolve(ctx context.Context, lookup *LookupResult) Outcome {
	// Fast path: backend already disambiguated the product. This always
	// wins over fuzzy matching. A malformed payload despite an explicit
	// type is still informative, so it falls through to matching rather
	// than aborting.
	if outcome, ok := r.resolveExplicit(ctx, lookup); ok {
		return outcome
	}

	r.ensureFresh(ctx)

	snap := r.store.Snapshot()
	generic := lookup.Generic()
	query := match.Query{
		Name:  generic.DisplayName(),
		Brand: generic.BrandName(),
	}

	alcohol, alcScore, alcOK := match.BestAlcohol(r.matchCfg, query, snap.Alcohol)
	caffeine, cafScore, cafOK := match.BestCaffeine(r.matchCfg, query, snap.Caffeine)

	if r.metrics != nil {
		r.metrics.RecordMatchAttempt(ctx, "alcohol", alcOK, alcScore)
		r.metrics.RecordMatchAttempt(ctx, "caffeine", cafOK, cafScore)
	}

	// Both catalogs accepting is rare; take the higher score, alcohol
	// on an exact tie.
	switch {
	case alcOK && (!cafOK || alcScore >= cafScore):
		return MappedAlcohol{Product: generic, Beverage: alcohol, Score: alcScore}
	case cafOK:
		return MappedCaffeine{Product: generic, Drink: caffeine, Score: cafScore}
	default:
		return Food{Product: generic}
	}
}

// resolveExplicit handles the explicit-type fast path. The second
// return is false when there is no usable explicit type and fuzzy
// matching should run.
func (r *Resolver) resolveExplicit(ctx context.Context, lookup *LookupResult) (Outcome, bool) {
	if lookup.Type == nil || len(lookup.SpecializedProduct) == 0 {
		return nil, false
	}

	switch *lookup.Type {
	case TypeAlcohol:
		var entry catalog.AlcoholEntry
		if err := json.Unmarshal(lookup.SpecializedProduct, &entry); err != nil || entry.ID == "" {
			r.logger.LogWarn(ctx, "explicit alcohol payload malformed, falling back to matching",
				"product_id", lookup.ID, "error", err)
			return nil, false
		}
		return Alcohol{Beverage: entry}, true

	case TypeCaffeine:
		var entry catalog.CaffeineEntry
		if err := json.Unmarshal(lookup.SpecializedProduct, &entry); err != nil || entry.ID == "" {
			r.logger.LogWarn(ctx, "explicit caffeine payload malformed, falling back to matching",
				"product_id", lookup.ID, "error", err)
			return nil, false
		}
		return Caffeine{Product: entry}, true

	default:
		r.logger.LogWarn(ctx, "unknown explicit type, falling back to matching",
			"product_id", lookup.ID, "type", *lookup.Type)
		return nil, false
	}
}

// ensureFresh refreshes the catalog store when its last refresh is
// outside the staleness window. Both catalogs fetch concurrently; a
// failure on one side leaves the other's fresh data in place and the
// failed side's previous snapshot as-is (possibly empty, in which case
// matching simply finds nothing).
func (r *Resolver) ensureFresh(ctx context.Context) {
	if time.Since(r.store.LastRefresh()) <= r.staleness {
		return
	}

	r.refreshMu.Lock()
	defer r.refreshMu.Unlock()

	// Double-check: another resolution may have refreshed while we
	// waited on the lock.
	if time.Since(r.store.LastRefresh()) <= r.staleness {
		return
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		start := time.Now()
		entries, err := r.fetcher.FetchAlcohol(gctx)
		if err != nil {
			r.recordRefresh(gctx, "alcohol", "error", 0, time.Since(start))
			r.logger.LogWarn(gctx, "alcohol catalog refresh failed, matching against stale data", "error", err)
			return nil // partial catalogs are matched against as-is
		}
		r.store.ReplaceAlcohol(entries)
		r.recordRefresh(gctx, "alcohol", "success", len(entries), time.Since(start))
		return nil
	})

	g.Go(func() error {
		start := time.Now()
		entries, err := r.fetcher.FetchCaffeine(gctx)
		if err != nil {
			r.recordRefresh(gctx, "caffeine", "error", 0, time.Since(start))
			r.logger.LogWarn(gctx, "caffeine catalog refresh failed, matching against stale data", "error", err)
			return nil
		}
		r.store.ReplaceCaffeine(entries)
		r.recordRefresh(gctx, "caffeine", "success", len(entries), time.Since(start))
		return nil
	})

	// Refresh completes before any matching against the new snapshot.
	_ = g.Wait()
}

func (r *Resolver) recordRefresh(ctx context.Context, kind, status string, entries int, duration time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordCatalogRefresh(ctx, kind, status, entries, duration)
	}
}

// publish sends the resolution event; failures are logged, never
// surfaced, so publishing can never block a resolution.
func (r *Resolver) publish(ctx context.Context, lookup *LookupResult, outcome Outcome, source string) {
	if r.publisher == nil {
		return
	}

	evt := NewResolutionEvent(lookup, outcome, source)
	if err := r.publisher.PublishResolution(ctx, evt); err != nil {
		if r.metrics != nil {
			r.metrics.RecordError(ctx, "event_publish")
		}
		r.logger.LogWarn(ctx, "failed to publish resolution event",
			"event_id", evt.EventID, "error", err)
	}
}
