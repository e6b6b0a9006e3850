package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/catalog"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/match"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/notification"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/aws"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/cache"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/config"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/observability"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/promotion"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/resolve"
)

func main() {
	// Create root context
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	log.Println("Loading configuration...")
	cfg := config.MustLoad("config.yaml")

	// Setup observability (foundational - must be first)
	log.Println("Setting up observability...")
	logger := observability.NewLogger(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	metrics, err := observability.NewMetrics("product-resolver", cfg.Observability.Metrics.Enabled)
	if err != nil {
		log.Fatalf("Failed to create metrics: %v", err)
	}

	tracerProvider, err := observability.NewTracerProvider(ctx, "product-resolver", cfg.Observability.Tracing.Endpoint, cfg.Observability.Tracing.Enabled)
	if err != nil {
		log.Fatalf("Failed to create tracer: %v", err)
	}
	defer tracerProvider.Shutdown(ctx)

	tracer := observability.NewTracer("product-resolver")

	logger.Info("observability setup complete")

	// Setup infrastructure
	logger.Info("setting up infrastructure...")

	// Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.LogError(ctx, "failed to create Redis cache", err)
		log.Fatalf("Failed to create Redis cache: %v", err)
	}
	defer redisCache.Close()

	// Memory cache
	memCache := cache.NewMemoryCache(cfg.Cache.L1MaxSize)
	defer memCache.Close()

	// Layered cache for catalog responses
	layeredCache := cache.NewLayeredCache(memCache, redisCache)

	// Disk cache for bounded-lifetime local persistence
	diskCache, err := cache.NewDiskCache(cache.DiskCacheConfig{
		Dir:                 cfg.DiskCache.Dir,
		TTL:                 cfg.DiskCache.TTL,
		MaxConcurrentWrites: int64(cfg.DiskCache.MaxConcurrentWrites),
		Logger:              logger,
		Metrics:             metrics,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create disk cache", err)
		log.Fatalf("Failed to create disk cache: %v", err)
	}
	defer diskCache.Close()

	// Catalog store + client
	logger.Info("creating catalog client...")
	store := catalog.NewStore()

	catalogClient, err := catalog.NewClient(catalog.ClientConfig{
		BaseURL:            cfg.Catalogs.BaseURL,
		PageSize:           cfg.Catalogs.PageSize,
		MaxPages:           cfg.Catalogs.MaxPages,
		AlcoholCategories:  cfg.Catalogs.AlcoholCategories,
		CaffeineCategories: cfg.Catalogs.CaffeineCategories,
		FetchConcurrency:   cfg.Catalogs.FetchConcurrency,
		RateLimitRPM:       cfg.Catalogs.RateLimit.RequestsPerMinute,
		RateLimitBurst:     cfg.Catalogs.RateLimit.Burst,
		ResponseTTL:        cfg.Catalogs.ResponseTTL,
		Cache:              layeredCache,
		Logger:             logger,
		Metrics:            metrics,
		Store:              store,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create catalog client", err)
		log.Fatalf("Failed to create catalog client: %v", err)
	}

	// Event publisher: SNS when a topic is configured, log-only otherwise
	var publisher resolve.EventPublisher
	if cfg.AWS.SNSTopicARN != "" {
		awsCfg, err := aws.LoadAWSConfig(ctx, aws.Config{
			Region:   cfg.AWS.Region,
			Endpoint: cfg.AWS.Endpoint,
		})
		if err != nil {
			logger.LogError(ctx, "failed to load AWS config", err)
			log.Fatalf("Failed to load AWS config: %v", err)
		}

		snsClient := aws.NewSNSClient(aws.SNSClientConfig{
			AWSConfig: awsCfg,
			Logger:    logger,
			Metrics:   metrics,
		})

		publisher, err = notification.NewPublisher(notification.PublisherConfig{
			SNSClient: snsClient,
			TopicARN:  cfg.AWS.SNSTopicARN,
			Logger:    logger,
			Metrics:   metrics,
			Tracer:    tracer,
		})
		if err != nil {
			logger.LogError(ctx, "failed to create publisher", err)
			log.Fatalf("Failed to create publisher: %v", err)
		}
	} else {
		logger.Info("SNS topic not configured, resolution events will only be logged")
		publisher = notification.NewNoOpPublisher(logger)
	}

	// Product resolver
	logger.Info("creating product resolver...")
	resolver, err := resolve.NewResolver(resolve.ResolverConfig{
		Store:     store,
		Fetcher:   catalogClient,
		Publisher: publisher,
		Logger:    logger,
		Metrics:   metrics,
		Tracer:    tracer,
		MatchCfg: match.Config{
			Threshold:  cfg.Matcher.Threshold,
			BrandBonus: cfg.Matcher.BrandBonus,
		},
		Staleness: cfg.Catalogs.StalenessWindow,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create resolver", err)
		log.Fatalf("Failed to create resolver: %v", err)
	}

	// Promotion service
	logger.Info("creating promotion service...")
	promoClient, err := promotion.NewClient(promotion.ClientConfig{
		BaseURL: cfg.Promotions.BaseURL,
		Timeout: cfg.Promotions.Timeout,
		Logger:  logger,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create promotion client", err)
		log.Fatalf("Failed to create promotion client: %v", err)
	}

	promoService, err := promotion.NewService(promotion.ServiceConfig{
		Fetcher: promoClient,
		Disk:    diskCache,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		logger.LogError(ctx, "failed to create promotion service", err)
		log.Fatalf("Failed to create promotion service: %v", err)
	}

	// Warm the catalog caches so the first resolutions have a snapshot
	logger.Info("warming catalog caches...")
	warmer := cache.NewWarmer(logger, cache.DefaultWarmupConfig())
	warmer.RegisterProvider(catalogClient)
	results := warmer.Warmup(ctx)
	if results.HasErrors() {
		logger.Warn("catalog warmup incomplete, resolutions will refresh on demand",
			"errors", results.Errors)
	}

	// Start HTTP server
	logger.Info("starting HTTP server...")
	server := newHTTPServer(cfg.HTTP.Port, resolver, promoService, catalogClient, metrics, logger)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.LogError(context.Background(), "HTTP server error", err)
			cancel()
		}
	}()

	// Setup signal handling
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Wait for shutdown signal
	select {
	case <-sigCh:
		logger.Info("shutdown signal received, gracefully stopping...")
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.LogError(shutdownCtx, "HTTP server shutdown error", err)
	}

	logger.Info("application stopped")
}

// newHTTPServer builds the HTTP surface: health checks, metrics, the
// resolution endpoint, and the promotions endpoint.
func newHTTPServer(
	port int,
	resolver *resolve.Resolver,
	promos *promotion.Service,
	catalogClient *catalog.Client,
	metrics *observability.Metrics,
	logger *observability.Logger,
) *http.Server {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})

	// Readiness check: not ready while the catalog backend circuit is open
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		health := catalogClient.Health()
		if health.CircuitState == "open" {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{
				"status":     "not_ready",
				"last_error": health.LastError,
			})
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	})

	// Metrics endpoint
	mux.Handle("/metrics", metrics.Handler())

	// Resolution endpoint
	mux.HandleFunc("/v1/products/resolve", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var lookup resolve.LookupResult
		if err := json.NewDecoder(r.Body).Decode(&lookup); err != nil {
			http.Error(w, fmt.Sprintf("invalid lookup payload: %v", err), http.StatusBadRequest)
			return
		}

		source := r.URL.Query().Get("source")
		if source == "" {
			source = "search"
		}

		outcome := resolver.Resolve(r.Context(), &lookup, source)

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(outcomeResponse(outcome)); err != nil {
			logger.LogError(r.Context(), "failed to encode resolution response", err)
		}
	})

	// Promotions endpoint
	mux.HandleFunc("/v1/promotions", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if userID == "" {
			http.Error(w, "user query parameter is required", http.StatusBadRequest)
			return
		}
		activeOnly := r.URL.Query().Get("active") != "false"

		list, err := promos.ActivePromotions(r.Context(), userID, activeOnly)
		if err != nil {
			logger.LogError(r.Context(), "failed to fetch promotions", err, "user_id", userID)
			http.Error(w, "failed to fetch promotions", http.StatusBadGateway)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(list)
	})

	addr := fmt.Sprintf(":%d", port)
	logger.Info("HTTP server listening", "address", addr)

	return &http.Server{
		Addr:    addr,
		Handler: mux,
	}
}

// outcomeResponse flattens the sealed outcome union into a response
// body tagged by outcome kind.
func outcomeResponse(outcome resolve.Outcome) map[string]interface{} {
	resp := map[string]interface{}{
		"outcome": outcome.Kind(),
	}

	switch o := outcome.(type) {
	case resolve.Food:
		resp["product"] = o.Product
	case resolve.Alcohol:
		resp["beverage"] = o.Beverage
	case resolve.Caffeine:
		resp["caffeine_product"] = o.Product
	case resolve.MappedAlcohol:
		resp["product"] = o.Product
		resp["beverage"] = o.Beverage
		resp["match_score"] = o.Score
	case resolve.MappedCaffeine:
		resp["product"] = o.Product
		resp["caffeine_product"] = o.Drink
		resp["match_score"] = o.Score
	}

	return resp
}
