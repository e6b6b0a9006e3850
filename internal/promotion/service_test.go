package promotion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/cache"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/observability"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/resilience"
)

// mockFetcher is a configurable promotion fetcher for testing
type mockFetcher struct {
	mu     sync.Mutex
	promos []Promotion
	err    error
	calls  int
}

func (m *mockFetcher) FetchPromotions(ctx context.Context, userID string, activeOnly bool) ([]Promotion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.promos, nil
}

func (m *mockFetcher) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func testLogger() *observability.Logger {
	return observability.NewLogger("error", "text")
}

func newTestDisk(t *testing.T) *cache.DiskCache {
	t.Helper()

	disk, err := cache.NewDiskCache(cache.DiskCacheConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("NewDiskCache failed: %v", err)
	}
	return disk
}

// TestCacheMissFetchesAndSaves verifies a miss hits the backend and
// warms the disk cache for next time
func TestCacheMissFetchesAndSaves(t *testing.T) {
	ctx := context.Background()

	fetcher := &mockFetcher{
		promos: []Promotion{{ID: "promo_1", Title: "Welcome", Active: true}},
	}
	disk := newTestDisk(t)

	svc, err := NewService(ServiceConfig{Fetcher: fetcher, Disk: disk, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	promos, err := svc.ActivePromotions(ctx, "user_42", true)
	if err != nil {
		t.Fatalf("ActivePromotions failed: %v", err)
	}
	if len(promos) != 1 || promos[0].ID != "promo_1" {
		t.Errorf("Expected fetched promotions, got %+v", promos)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("Expected 1 backend fetch, got %d", fetcher.callCount())
	}

	// Wait for the background save, then the next call is a disk hit
	if err := disk.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	promos, err = svc.ActivePromotions(ctx, "user_42", true)
	if err != nil {
		t.Fatalf("Second ActivePromotions failed: %v", err)
	}
	if len(promos) != 1 || promos[0].ID != "promo_1" {
		t.Errorf("Expected cached promotions, got %+v", promos)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("Expected no second backend fetch, got %d", fetcher.callCount())
	}

	t.Log("✓ Cache miss fetches from backend and warms the disk cache")
}

// TestCachedEmptyListSkipsBackend verifies an empty cached list is a
// valid hit, not a miss
func TestCachedEmptyListSkipsBackend(t *testing.T) {
	ctx := context.Background()

	fetcher := &mockFetcher{promos: []Promotion{}}
	disk := newTestDisk(t)

	svc, err := NewService(ServiceConfig{Fetcher: fetcher, Disk: disk, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if _, err := svc.ActivePromotions(ctx, "user_43", true); err != nil {
		t.Fatalf("First call failed: %v", err)
	}
	if err := disk.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	promos, err := svc.ActivePromotions(ctx, "user_43", true)
	if err != nil {
		t.Fatalf("Second call failed: %v", err)
	}
	if len(promos) != 0 {
		t.Errorf("Expected empty list, got %+v", promos)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("Expected cached empty list to skip backend, got %d fetches", fetcher.callCount())
	}

	t.Log("✓ Cached empty list is served without a backend fetch")
}

// TestCacheKeyVariesByUserAndFilter verifies user and filter each get
// their own cache entry
func TestCacheKeyVariesByUserAndFilter(t *testing.T) {
	ctx := context.Background()

	fetcher := &mockFetcher{promos: []Promotion{{ID: "promo_1"}}}
	disk := newTestDisk(t)

	svc, err := NewService(ServiceConfig{Fetcher: fetcher, Disk: disk, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if _, err := svc.ActivePromotions(ctx, "user_a", true); err != nil {
		t.Fatalf("First call failed: %v", err)
	}
	if err := disk.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Different user and different filter both miss
	if _, err := svc.ActivePromotions(ctx, "user_b", true); err != nil {
		t.Fatalf("Second call failed: %v", err)
	}
	if _, err := svc.ActivePromotions(ctx, "user_a", false); err != nil {
		t.Fatalf("Third call failed: %v", err)
	}

	if fetcher.callCount() != 3 {
		t.Errorf("Expected 3 distinct cache keys, got %d fetches", fetcher.callCount())
	}

	t.Log("✓ Cache key varies by user and active filter")
}

// TestFetchErrorSurfaces verifies a backend failure with no cache
// surfaces as an error
func TestFetchErrorSurfaces(t *testing.T) {
	ctx := context.Background()

	fetcher := &mockFetcher{err: errors.New("backend down")}

	svc, err := NewService(ServiceConfig{Fetcher: fetcher, Disk: newTestDisk(t), Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	if _, err := svc.ActivePromotions(ctx, "user_44", true); err == nil {
		t.Error("Expected error when backend fails with cold cache")
	}

	t.Log("✓ Backend failure with a cold cache surfaces as an error")
}

// TestServiceWorksWithoutDisk verifies the disk cache is optional
func TestServiceWorksWithoutDisk(t *testing.T) {
	ctx := context.Background()

	fetcher := &mockFetcher{promos: []Promotion{{ID: "promo_1"}}}

	svc, err := NewService(ServiceConfig{Fetcher: fetcher, Logger: testLogger()})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}

	promos, err := svc.ActivePromotions(ctx, "user_45", true)
	if err != nil {
		t.Fatalf("ActivePromotions failed: %v", err)
	}
	if len(promos) != 1 {
		t.Errorf("Expected direct fetch result, got %+v", promos)
	}

	t.Log("✓ Service works with no disk cache configured")
}

// TestClientFetchPromotions verifies the HTTP client decodes the
// backend response and passes its query parameters
func TestClientFetchPromotions(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("user"); got != "user_46" {
			t.Errorf("Expected user query param user_46, got %q", got)
		}
		if got := r.URL.Query().Get("active"); got != "true" {
			t.Errorf("Expected active query param true, got %q", got)
		}
		json.NewEncoder(w).Encode([]Promotion{{ID: "promo_1", Title: "Welcome", Active: true}})
	}))
	defer server.Close()

	c, err := NewClient(ClientConfig{
		BaseURL: server.URL,
		RetryConfig: resilienceFastRetry(),
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	promos, err := c.FetchPromotions(ctx, "user_46", true)
	if err != nil {
		t.Fatalf("FetchPromotions failed: %v", err)
	}
	if len(promos) != 1 || promos[0].ID != "promo_1" {
		t.Errorf("Expected decoded promotions, got %+v", promos)
	}

	t.Log("✓ HTTP client decodes promotions and forwards query parameters")
}

// TestClientErrorStatus verifies non-200 responses surface as errors
func TestClientErrorStatus(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend down", http.StatusInternalServerError)
	}))
	defer server.Close()

	c, err := NewClient(ClientConfig{
		BaseURL: server.URL,
		RetryConfig: resilienceFastRetry(),
		Logger:  testLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	if _, err := c.FetchPromotions(ctx, "user_47", true); err == nil {
		t.Error("Expected error for 500 response")
	}

	t.Log("✓ Error status codes surface as errors")
}

func resilienceFastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts: 1,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}
}
