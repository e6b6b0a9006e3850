// Package promotion serves per-user promotion lists, cached on disk
// for a bounded window so the list survives restarts without hitting
// the backend on every request.
package promotion

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/cache"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/observability"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/resilience"
)

// Promotion is one backend promotion entry.
type Promotion struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	ExpiresAt time.Time `json:"expires_at"`
	Active    bool      `json:"active"`
}

// Fetcher defines the interface for fetching promotions from the backend
type Fetcher interface {
	FetchPromotions(ctx context.Context, userID string, activeOnly bool) ([]Promotion, error)
}

// Service returns a user's promotions, disk cache first. An empty
// cached list is a valid hit, distinct from a miss.
type Service struct {
	fetcher Fetcher
	disk    *cache.DiskCache
	logger  *observability.Logger
	metrics *observability.Metrics
}

// ServiceConfig holds promotion service configuration
type ServiceConfig struct {
	Fetcher Fetcher
	Disk    *cache.DiskCache
	Logger  *observability.Logger
	Metrics *observability.Metrics
}

// NewService creates a new promotion service
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Fetcher == nil {
		return nil, fmt.Errorf("promotion fetcher is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Service{
		fetcher: cfg.Fetcher,
		disk:    cfg.Disk,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}, nil
}

// ActivePromotions returns the promotion list for a user. A cache miss
// falls back to the network; the fetched list is saved in the
// background for next time. Cache failures never surface: the worst
// case is an extra network fetch.
func (s *Service) ActivePromotions(ctx context.Context, userID string, activeOnly bool) ([]Promotion, error) {
	key := fmt.Sprintf("user_%s_active_%t", userID, activeOnly)

	if s.disk != nil {
		if promos, ok := cache.LoadJSON[Promotion](ctx, s.disk, key); ok {
			if s.metrics != nil {
				s.metrics.RecordPromotionFetch(ctx, "disk")
			}
			s.logger.Debug("promotions served from disk cache",
				"user_id", userID, "count", len(promos))
			return promos, nil
		}
	}

	promos, err := s.fetcher.FetchPromotions(ctx, userID, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch promotions: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RecordPromotionFetch(ctx, "network")
	}

	if s.disk != nil {
		cache.SaveJSON(ctx, s.disk, key, promos)
	}

	return promos, nil
}

// Client fetches promotions over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	retryCfg   resilience.RetryConfig
	logger     *observability.Logger
}

// ClientConfig holds promotion client configuration
type ClientConfig struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig resilience.RetryConfig
	Logger      *observability.Logger
}

// NewClient creates a new promotion client
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("promotion base URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = resilience.RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   200 * time.Millisecond,
			MaxDelay:    2 * time.Second,
			Jitter:      0.2,
		}
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		retryCfg:   cfg.RetryConfig,
		logger:     cfg.Logger,
	}, nil
}

// FetchPromotions fetches a user's promotions from the backend.
// Implements the Fetcher interface.
func (c *Client) FetchPromotions(ctx context.Context, userID string, activeOnly bool) ([]Promotion, error) {
	return resilience.RetryIfWithResult(ctx, c.retryCfg, resilience.IsRetryable, func(ctx context.Context) ([]Promotion, error) {
		endpoint := fmt.Sprintf("%s/api/promotions/?user=%s&active=%t", c.baseURL, userID, activeOnly)

		req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(body))
		}

		var promos []Promotion
		if err := json.NewDecoder(resp.Body).Decode(&promos); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}

		return promos, nil
	})
}
