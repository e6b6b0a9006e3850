package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/cache"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/observability"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/resilience"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/worker"
)

// Client fetches the specialized catalogs from the backend. Fetches are
// bounded: a fixed list of popular categories per catalog, the top page
// of each, which is a representative enough sample for fuzzy matching.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	maxPages   int

	alcoholCategories  []string
	caffeineCategories []string
	concurrency        int

	limiter     *resilience.AdaptiveLimiter
	responseTTL time.Duration
	cache       cache.Cache
	logger      *observability.Logger
	metrics     *observability.Metrics
	retryCfg    resilience.RetryConfig
	cb          *resilience.CircuitBreaker

	store *Store // populated during warmup

	healthMu sync.RWMutex
	health   ClientHealth
}

// ClientConfig holds catalog client configuration
type ClientConfig struct {
	BaseURL            string
	PageSize           int
	MaxPages           int
	AlcoholCategories  []string
	CaffeineCategories []string
	FetchConcurrency   int
	RateLimitRPM       int
	RateLimitBurst     int
	ResponseTTL        time.Duration
	Cache              cache.Cache
	Logger             *observability.Logger
	Metrics            *observability.Metrics
	RetryConfig        resilience.RetryConfig
	CircuitBreaker     *resilience.CircuitBreaker
	Store              *Store
}

// categoryPage mirrors the backend's paginated category response.
type categoryPage struct {
	Count   int             `json:"count"`
	Next    *string         `json:"next"`
	Results json.RawMessage `json:"results"`
}

// defaultResponseTTL is how long raw category responses stay in the
// layered cache.
var defaultResponseTTL = 5 * time.Minute

// NewClient creates a new catalog client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("catalog base URL is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 2
	}
	if cfg.FetchConcurrency <= 0 {
		cfg.FetchConcurrency = 4
	}
	if cfg.RateLimitRPM <= 0 {
		cfg.RateLimitRPM = 300
	}
	if cfg.ResponseTTL <= 0 {
		cfg.ResponseTTL = defaultResponseTTL
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Jitter:      0.2,
		}
	}

	// Adaptive limiter: back off when the backend throttles us, recover
	// gradually while healthy.
	limiter := resilience.NewAdaptiveLimiterFromRPM(cfg.RateLimitRPM, cfg.RateLimitRPM/10, cfg.RateLimitRPM*2, cfg.RateLimitBurst)

	// Create circuit breaker if not provided
	cb := cfg.CircuitBreaker
	if cb == nil {
		cb = resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			Name:             "catalogs",
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Timeout:          30 * time.Second,
			OnStateChange: func(from, to resilience.State) {
				if cfg.Metrics != nil {
					cfg.Metrics.SetCircuitBreakerState(context.Background(), "catalogs", int64(to))
				}
			},
		})
	}
	if cfg.Metrics != nil {
		cfg.Metrics.SetCircuitBreakerState(context.Background(), "catalogs", cb.StateInt())
	}

	httpClient := &http.Client{
		Timeout: 10 * time.Second,
	}

	c := &Client{
		httpClient:         httpClient,
		baseURL:            cfg.BaseURL,
		pageSize:           cfg.PageSize,
		maxPages:           cfg.MaxPages,
		alcoholCategories:  cfg.AlcoholCategories,
		caffeineCategories: cfg.CaffeineCategories,
		concurrency:        cfg.FetchConcurrency,
		limiter:            limiter,
		responseTTL:        cfg.ResponseTTL,
		cache:              cfg.Cache,
		logger:             cfg.Logger,
		metrics:            cfg.Metrics,
		retryCfg:           cfg.RetryConfig,
		cb:                 cb,
		store:              cfg.Store,
		health: ClientHealth{
			Provider: "catalogs",
		},
	}
	return c, nil
}

// FetchAlcohol fetches the popular-category sample of the alcohol
// catalog. Categories are fetched concurrently; a failed category is
// logged and skipped, so a partial sample still comes back. It only
// errors when every category fails.
func (c *Client) FetchAlcohol(ctx context.Context) ([]AlcoholEntry, error) {
	bodies, err := c.fetchCategories(ctx, "alcohol", c.alcoholCategories)
	if err != nil {
		return nil, err
	}

	entries := make([]AlcoholEntry, 0, len(bodies)*c.pageSize)
	for _, body := range bodies {
		var page []AlcoholEntry
		if err := json.Unmarshal(body, &page); err != nil {
			c.logger.Warn("failed to decode alcohol category page", "error", err)
			continue
		}
		entries = append(entries, page...)
	}
	return entries, nil
}

// FetchCaffeine fetches the popular-category sample of the caffeine
// catalog.
func (c *Client) FetchCaffeine(ctx context.Context) ([]CaffeineEntry, error) {
	bodies, err := c.fetchCategories(ctx, "caffeine", c.caffeineCategories)
	if err != nil {
		return nil, err
	}

	entries := make([]CaffeineEntry, 0, len(bodies)*c.pageSize)
	for _, body := range bodies {
		var page []CaffeineEntry
		if err := json.Unmarshal(body, &page); err != nil {
			c.logger.Warn("failed to decode caffeine category page", "error", err)
			continue
		}
		entries = append(entries, page...)
	}
	return entries, nil
}

// fetchCategories fans category fetches out over a worker pool and
// collects the raw result pages in deterministic (category) order.
func (c *Client) fetchCategories(ctx context.Context, kind string, categories []string) ([]json.RawMessage, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	pool := worker.NewPool(ctx, c.concurrency, len(categories))
	defer pool.Close()

	jobs := make([]worker.Job, 0, len(categories))
	for _, category := range categories {
		category := category
		jobs = append(jobs, worker.Job{
			ID: category,
			Execute: func(ctx context.Context) (interface{}, error) {
				return c.fetchCategory(ctx, kind, category)
			},
		})
	}

	results := pool.SubmitAndWait(jobs)

	// Sort by category so the assembled catalog is stable across runs.
	sort.Slice(results, func(i, j int) bool { return results[i].JobID < results[j].JobID })

	bodies := make([]json.RawMessage, 0, len(results))
	var failures int
	for _, res := range results {
		if res.Err != nil {
			failures++
			c.logger.Warn("catalog category fetch failed",
				"catalog", kind, "category", res.JobID, "error", res.Err)
			continue
		}
		bodies = append(bodies, res.Value.([]json.RawMessage)...)
	}

	if failures == len(categories) {
		return nil, fmt.Errorf("all %s category fetches failed", kind)
	}
	return bodies, nil
}

// fetchCategory walks a category's pages up to maxPages, following the
// backend's next-page cursor, and returns the raw results arrays.
func (c *Client) fetchCategory(ctx context.Context, kind, category string) ([]json.RawMessage, error) {
	var pages []json.RawMessage

	for pageNum := 0; pageNum < c.maxPages; pageNum++ {
		offset := pageNum * c.pageSize

		page, err := c.fetchPage(ctx, kind, category, offset)
		if err != nil {
			return nil, err
		}

		pages = append(pages, page.Results)

		if page.Next == nil {
			break
		}
	}

	return pages, nil
}

// fetchPage fetches a single category page, cache-first.
func (c *Client) fetchPage(ctx context.Context, kind, category string, offset int) (*categoryPage, error) {
	cacheKey := fmt.Sprintf("catalog:%s:%s:%d", kind, category, offset)

	// Try cache first. Responses are cached as raw JSON strings so both
	// the memory and Redis layers round-trip them unchanged.
	if c.cache != nil {
		if cached, err := c.cache.Get(ctx, cacheKey); err == nil {
			if body, ok := cached.(string); ok {
				if c.metrics != nil {
					c.metrics.RecordCacheHit(ctx, "catalog")
				}
				var page categoryPage
				if err := json.Unmarshal([]byte(body), &page); err == nil {
					return &page, nil
				}
				// Corrupt cached response: drop it and refetch.
				_ = c.cache.Delete(ctx, cacheKey)
			}
		} else if c.metrics != nil {
			c.metrics.RecordCacheMiss(ctx, "catalog")
		}
	}

	body, err := c.doRequest(ctx, kind, category, offset)
	if err != nil {
		return nil, err
	}

	var page categoryPage
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to decode %s category response: %w", kind, err)
	}

	if c.cache != nil {
		_ = c.cache.Set(ctx, cacheKey, string(body), c.responseTTL)
	}

	return &page, nil
}

// doRequest performs one rate-limited, circuit-protected, retried call
// against the category endpoint.
func (c *Client) doRequest(ctx context.Context, kind, category string, offset int) ([]byte, error) {
	return resilience.ExecuteWithResult(c.cb, ctx, func(ctx context.Context) ([]byte, error) {
		return resilience.RetryIfWithResult(ctx, c.retryCfg, resilience.IsRetryable, func(ctx context.Context) ([]byte, error) {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter error: %w", err)
			}

			endpoint := fmt.Sprintf("%s/api/%s/category/?category=%s&limit=%d&offset=%d",
				c.baseURL, kind, url.QueryEscape(category), c.pageSize, offset)

			start := time.Now()
			body, status, err := c.get(ctx, endpoint)
			duration := time.Since(start)

			c.recordHealth(err, duration)
			c.recordLimiter(status, err)

			if c.metrics != nil {
				outcome := "success"
				if err != nil {
					outcome = "error"
				}
				c.metrics.RecordCatalogAPICall(ctx, kind, "category", outcome, duration)
			}

			return body, err
		})
	})
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
	}

	return body, resp.StatusCode, nil
}

// recordLimiter feeds the adaptive limiter with the call outcome.
func (c *Client) recordLimiter(status int, err error) {
	switch {
	case err == nil:
		c.limiter.RecordSuccess()
	case status == http.StatusTooManyRequests:
		c.limiter.RecordRateLimitError()
	default:
		c.limiter.RecordError()
	}
}

// Health returns the current health status of the catalog client.
func (c *Client) Health() ClientHealth {
	c.healthMu.RLock()
	defer c.healthMu.RUnlock()
	h := c.health
	if c.cb != nil {
		h.CircuitState = c.cb.State().String()
	}
	return h
}

func (c *Client) recordHealth(err error, duration time.Duration) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	c.health.LastDuration = duration
	if err == nil {
		c.health.LastSuccess = time.Now()
		c.health.LastError = ""
		c.health.ConsecutiveFailures = 0
		return
	}

	c.health.LastFailure = time.Now()
	c.health.LastError = err.Error()
	c.health.ConsecutiveFailures++
}

// Name returns the provider name for warmup logging.
func (c *Client) Name() string {
	return "catalogs"
}

// Warmup pre-populates the response cache and, when a store is
// configured, installs the initial catalog snapshots.
// This implements the cache.WarmupProvider interface.
func (c *Client) Warmup(ctx context.Context) error {
	alcohol, alcErr := c.FetchAlcohol(ctx)
	if alcErr == nil && c.store != nil {
		c.store.ReplaceAlcohol(alcohol)
	}

	caffeine, cafErr := c.FetchCaffeine(ctx)
	if cafErr == nil && c.store != nil {
		c.store.ReplaceCaffeine(caffeine)
	}

	if alcErr != nil && cafErr != nil {
		return fmt.Errorf("failed to warm catalogs: alcohol: %v, caffeine: %v", alcErr, cafErr)
	}

	c.logger.Info("catalog cache warmed",
		"alcohol_entries", len(alcohol),
		"caffeine_entries", len(caffeine),
	)
	return nil
}
