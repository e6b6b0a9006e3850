package resolve

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/catalog"
	"github.com/Natanel-solomonov/Evolve-HealthTech--sub001/internal/platform/observability"
)

// mockFetcher is a configurable catalog fetcher for testing
type mockFetcher struct {
	mu sync.Mutex

	alcohol    []catalog.AlcoholEntry
	caffeine   []catalog.CaffeineEntry
	alcoholErr error
	caffErr    error

	alcoholCalls int
	caffCalls    int
}

func (m *mockFetcher) FetchAlcohol(ctx context.Context) ([]catalog.AlcoholEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alcoholCalls++
	if m.alcoholErr != nil {
		return nil, m.alcoholErr
	}
	return m.alcohol, nil
}

func (m *mockFetcher) FetchCaffeine(ctx context.Context) ([]catalog.CaffeineEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caffCalls++
	if m.caffErr != nil {
		return nil, m.caffErr
	}
	return m.caffeine, nil
}

func (m *mockFetcher) calls() (alcohol, caffeine int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alcoholCalls, m.caffCalls
}

// mockPublisher records published events and can be made to fail
type mockPublisher struct {
	mu     sync.Mutex
	events []*ResolutionEvent
	err    error
}

func (m *mockPublisher) PublishResolution(ctx context.Context, evt *ResolutionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockPublisher) published() []*ResolutionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func newTestResolver(t *testing.T, cfg ResolverConfig) *Resolver {
	t.Helper()

	if cfg.Store == nil {
		cfg.Store = catalog.NewStore()
	}
	if cfg.Fetcher == nil {
		cfg.Fetcher = &mockFetcher{}
	}
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger("error", "text")
	}

	r, err := NewResolver(cfg)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return r
}

func strptr(s string) *string { return &s }

func genericLookup(id, name, brand string) *LookupResult {
	return &LookupResult{
		GenericProduct: GenericProduct{
			ID:    id,
			Name:  strptr(name),
			Brand: strptr(brand),
		},
	}
}

func warmStore(t *testing.T, alcohol []catalog.AlcoholEntry, caffeine []catalog.CaffeineEntry) *catalog.Store {
	t.Helper()
	s := catalog.NewStore()
	s.ReplaceAlcohol(alcohol)
	s.ReplaceCaffeine(caffeine)
	return s
}

// TestExplicitAlcoholFastPath verifies a backend-confirmed alcohol
// product short-circuits matching and never touches the catalogs
func TestExplicitAlcoholFastPath(t *testing.T) {
	ctx := context.Background()

	fetcher := &mockFetcher{}
	r := newTestResolver(t, ResolverConfig{Fetcher: fetcher})

	payload, _ := json.Marshal(catalog.AlcoholEntry{ID: "beer_001", Name: "Bud Light"})
	lookup := &LookupResult{
		GenericProduct:     GenericProduct{ID: "prod_1"},
		Type:               strptr(TypeAlcohol),
		SpecializedProduct: payload,
	}

	outcome := r.Resolve(ctx, lookup, "barcode")

	alc, ok := outcome.(Alcohol)
	if !ok {
		t.Fatalf("Expected Alcohol outcome, got %T", outcome)
	}
	if alc.Beverage.ID != "beer_001" {
		t.Errorf("Expected beer_001, got %s", alc.Beverage.ID)
	}

	// The store is cold, yet the fast path must win without any fetch
	a, c := fetcher.calls()
	if a != 0 || c != 0 {
		t.Errorf("Expected no catalog fetches on fast path, got alcohol=%d caffeine=%d", a, c)
	}

	t.Log("✓ Explicit alcohol type wins without touching the catalogs")
}

// TestExplicitCaffeineFastPath verifies the caffeine fast path
func TestExplicitCaffeineFastPath(t *testing.T) {
	ctx := context.Background()

	r := newTestResolver(t, ResolverConfig{})

	payload, _ := json.Marshal(catalog.CaffeineEntry{ID: "caf_001", Name: "Espresso"})
	lookup := &LookupResult{
		GenericProduct:     GenericProduct{ID: "prod_2"},
		Type:               strptr(TypeCaffeine),
		SpecializedProduct: payload,
	}

	outcome := r.Resolve(ctx, lookup, "barcode")

	caf, ok := outcome.(Caffeine)
	if !ok {
		t.Fatalf("Expected Caffeine outcome, got %T", outcome)
	}
	if caf.Product.ID != "caf_001" {
		t.Errorf("Expected caf_001, got %s", caf.Product.ID)
	}

	t.Log("✓ Explicit caffeine type resolves directly")
}

// TestMalformedExplicitPayloadFallsThrough verifies a bad payload
// behind an explicit type degrades to fuzzy matching, not an error
func TestMalformedExplicitPayloadFallsThrough(t *testing.T) {
	ctx := context.Background()

	store := warmStore(t,
		[]catalog.AlcoholEntry{{ID: "beer_001", Name: "Bud Light", Brand: "Anheuser-Busch"}},
		nil,
	)
	r := newTestResolver(t, ResolverConfig{Store: store})

	tests := []struct {
		name    string
		payload json.RawMessage
	}{
		{"unparseable payload", json.RawMessage("{not json")},
		{"payload without id", json.RawMessage(`{"name":"Bud Light"}`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lookup := genericLookup("prod_3", "Bud Light", "Anheuser-Busch")
			lookup.Type = strptr(TypeAlcohol)
			lookup.SpecializedProduct = tt.payload

			outcome := r.Resolve(ctx, lookup, "barcode")

			mapped, ok := outcome.(MappedAlcohol)
			if !ok {
				t.Fatalf("Expected fall-through to MappedAlcohol, got %T", outcome)
			}
			if mapped.Beverage.ID != "beer_001" {
				t.Errorf("Expected beer_001, got %s", mapped.Beverage.ID)
			}
		})
	}

	t.Log("✓ Malformed explicit payload falls through to matching")
}

// TestUnknownExplicitTypeFallsThrough verifies an unrecognized type tag
// is treated as no explicit type
func TestUnknownExplicitTypeFallsThrough(t *testing.T) {
	ctx := context.Background()

	r := newTestResolver(t, ResolverConfig{})

	lookup := genericLookup("prod_4", "Mystery Drink", "")
	lookup.Type = strptr("supplement")
	lookup.SpecializedProduct = json.RawMessage(`{"id":"x"}`)

	outcome := r.Resolve(ctx, lookup, "search")
	if _, ok := outcome.(Food); !ok {
		t.Fatalf("Expected Food outcome for unknown type, got %T", outcome)
	}

	t.Log("✓ Unknown explicit type falls through to matching")
}

// TestNoMatchIsFoodNotError verifies an unmatched product resolves as
// generic food
func TestNoMatchIsFoodNotError(t *testing.T) {
	ctx := context.Background()

	store := warmStore(t,
		[]catalog.AlcoholEntry{{ID: "beer_001", Name: "Bud Light", Brand: "Anheuser-Busch"}},
		[]catalog.CaffeineEntry{{ID: "caf_001", Name: "Espresso", Brand: "Stumptown"}},
	)
	r := newTestResolver(t, ResolverConfig{Store: store})

	lookup := genericLookup("prod_5", "Generic Granola Bar", "")

	outcome := r.Resolve(ctx, lookup, "search")

	food, ok := outcome.(Food)
	if !ok {
		t.Fatalf("Expected Food outcome, got %T", outcome)
	}
	if food.Product.ID != "prod_5" {
		t.Errorf("Expected generic product preserved, got %+v", food.Product)
	}

	t.Log("✓ No match resolves as Food, never an error")
}

// TestFuzzyMatchProducesMappedAlcohol verifies a confident match
// reclassifies a generic product
func TestFuzzyMatchProducesMappedAlcohol(t *testing.T) {
	ctx := context.Background()

	store := warmStore(t,
		[]catalog.AlcoholEntry{
			{ID: "beer_001", Name: "Bud Light", Brand: "Anheuser-Busch"},
			{ID: "wine_001", Name: "Pinot Noir", Brand: "Meiomi"},
		},
		nil,
	)
	r := newTestResolver(t, ResolverConfig{Store: store})

	lookup := genericLookup("prod_6", "Bud Light", "Anheuser-Busch")

	outcome := r.Resolve(ctx, lookup, "barcode")

	mapped, ok := outcome.(MappedAlcohol)
	if !ok {
		t.Fatalf("Expected MappedAlcohol, got %T", outcome)
	}
	if mapped.Beverage.ID != "beer_001" {
		t.Errorf("Expected beer_001, got %s", mapped.Beverage.ID)
	}
	if mapped.Score != 1.0 {
		t.Errorf("Expected score 1.0, got %v", mapped.Score)
	}
	if mapped.Product.ID != "prod_6" {
		t.Errorf("Expected generic product retained, got %+v", mapped.Product)
	}

	t.Log("✓ Confident fuzzy match produces MappedAlcohol with provenance")
}

// TestCrossCatalogTiePrefersAlcohol verifies an exact score tie across
// catalogs resolves to alcohol
func TestCrossCatalogTiePrefersAlcohol(t *testing.T) {
	ctx := context.Background()

	store := warmStore(t,
		[]catalog.AlcoholEntry{{ID: "cocktail_001", Name: "Espresso Martini"}},
		[]catalog.CaffeineEntry{{ID: "caf_001", Name: "Espresso Martini"}},
	)
	r := newTestResolver(t, ResolverConfig{Store: store})

	lookup := genericLookup("prod_7", "Espresso Martini", "")

	outcome := r.Resolve(ctx, lookup, "search")
	if _, ok := outcome.(MappedAlcohol); !ok {
		t.Fatalf("Expected tie to resolve as MappedAlcohol, got %T", outcome)
	}

	t.Log("✓ Cross-catalog score tie prefers alcohol")
}

// TestHigherCaffeineScoreWins verifies the better-scoring catalog wins
func TestHigherCaffeineScoreWins(t *testing.T) {
	ctx := context.Background()

	store := warmStore(t,
		// Partial overlap only: {cold, brew} vs {cold, brew, ale, house}
		[]catalog.AlcoholEntry{{ID: "beer_001", Name: "Cold Brew House Ale"}},
		// Full overlap
		[]catalog.CaffeineEntry{{ID: "caf_001", Name: "Cold Brew"}},
	)
	r := newTestResolver(t, ResolverConfig{Store: store})

	lookup := genericLookup("prod_8", "Cold Brew", "")

	outcome := r.Resolve(ctx, lookup, "search")

	mapped, ok := outcome.(MappedCaffeine)
	if !ok {
		t.Fatalf("Expected MappedCaffeine, got %T", outcome)
	}
	if mapped.Drink.ID != "caf_001" {
		t.Errorf("Expected caf_001, got %s", mapped.Drink.ID)
	}

	t.Log("✓ Higher-scoring catalog wins across catalogs")
}

// TestStaleStoreTriggersRefresh verifies a cold store is refreshed
// before matching and the refresh is not repeated while fresh
func TestStaleStoreTriggersRefresh(t *testing.T) {
	ctx := context.Background()

	fetcher := &mockFetcher{
		alcohol:  []catalog.AlcoholEntry{{ID: "beer_001", Name: "Bud Light", Brand: "Anheuser-Busch"}},
		caffeine: []catalog.CaffeineEntry{{ID: "caf_001", Name: "Espresso"}},
	}
	store := catalog.NewStore()
	r := newTestResolver(t, ResolverConfig{Store: store, Fetcher: fetcher})

	lookup := genericLookup("prod_9", "Bud Light", "Anheuser-Busch")

	outcome := r.Resolve(ctx, lookup, "search")
	if _, ok := outcome.(MappedAlcohol); !ok {
		t.Fatalf("Expected match after refresh, got %T", outcome)
	}

	a, c := fetcher.calls()
	if a != 1 || c != 1 {
		t.Errorf("Expected one fetch per catalog, got alcohol=%d caffeine=%d", a, c)
	}

	// Store is now fresh: a second resolution must not refetch
	r.Resolve(ctx, lookup, "search")
	a, c = fetcher.calls()
	if a != 1 || c != 1 {
		t.Errorf("Expected no refetch while fresh, got alcohol=%d caffeine=%d", a, c)
	}

	t.Log("✓ Stale store refreshed once, fresh store left alone")
}

// TestPartialRefreshFailureTolerated verifies one catalog failing to
// refresh leaves the other fully usable
func TestPartialRefreshFailureTolerated(t *testing.T) {
	ctx := context.Background()

	fetcher := &mockFetcher{
		alcoholErr: errors.New("backend down"),
		caffeine:   []catalog.CaffeineEntry{{ID: "caf_001", Name: "Espresso", Brand: "Stumptown"}},
	}
	store := catalog.NewStore()
	r := newTestResolver(t, ResolverConfig{Store: store, Fetcher: fetcher})

	lookup := genericLookup("prod_10", "Espresso", "Stumptown")

	outcome := r.Resolve(ctx, lookup, "search")

	mapped, ok := outcome.(MappedCaffeine)
	if !ok {
		t.Fatalf("Expected MappedCaffeine despite alcohol refresh failure, got %T", outcome)
	}
	if mapped.Drink.ID != "caf_001" {
		t.Errorf("Expected caf_001, got %s", mapped.Drink.ID)
	}

	t.Log("✓ Partial refresh failure leaves the surviving catalog usable")
}

// TestPublisherReceivesEvent verifies a resolution event reaches the
// publisher with catalog provenance
func TestPublisherReceivesEvent(t *testing.T) {
	ctx := context.Background()

	pub := &mockPublisher{}
	store := warmStore(t,
		[]catalog.AlcoholEntry{{ID: "beer_001", Name: "Bud Light", Brand: "Anheuser-Busch"}},
		nil,
	)
	r := newTestResolver(t, ResolverConfig{Store: store, Publisher: pub})

	lookup := genericLookup("prod_11", "Bud Light", "Anheuser-Busch")
	r.Resolve(ctx, lookup, "barcode")

	events := pub.published()
	if len(events) != 1 {
		t.Fatalf("Expected 1 published event, got %d", len(events))
	}

	evt := events[0]
	if evt.ProductID != "prod_11" {
		t.Errorf("Expected product prod_11, got %s", evt.ProductID)
	}
	if evt.Outcome != "mapped_alcohol" {
		t.Errorf("Expected outcome mapped_alcohol, got %s", evt.Outcome)
	}
	if evt.CatalogID != "beer_001" {
		t.Errorf("Expected catalog ID beer_001, got %s", evt.CatalogID)
	}
	if evt.MatchScore != 1.0 {
		t.Errorf("Expected match score 1.0, got %v", evt.MatchScore)
	}
	if evt.Source != "barcode" {
		t.Errorf("Expected source barcode, got %s", evt.Source)
	}
	if evt.EventID == "" || evt.Timestamp.IsZero() {
		t.Error("Expected event ID and timestamp to be set")
	}

	t.Log("✓ Resolution events carry outcome, provenance and score")
}

// TestPublisherFailureIsNonFatal verifies a failing publisher never
// affects the resolution result
func TestPublisherFailureIsNonFatal(t *testing.T) {
	ctx := context.Background()

	pub := &mockPublisher{err: errors.New("sns unavailable")}
	store := warmStore(t,
		[]catalog.AlcoholEntry{{ID: "beer_001", Name: "Bud Light", Brand: "Anheuser-Busch"}},
		nil,
	)
	r := newTestResolver(t, ResolverConfig{Store: store, Publisher: pub})

	lookup := genericLookup("prod_12", "Bud Light", "Anheuser-Busch")

	outcome := r.Resolve(ctx, lookup, "barcode")
	if _, ok := outcome.(MappedAlcohol); !ok {
		t.Fatalf("Expected resolution to succeed despite publish failure, got %T", outcome)
	}

	t.Log("✓ Publish failures never affect the resolution outcome")
}

// TestGenericPrefersOriginalFoodProduct verifies matching uses the
// embedded original product when the backend includes one
func TestGenericPrefersOriginalFoodProduct(t *testing.T) {
	lookup := &LookupResult{
		GenericProduct: GenericProduct{ID: "outer", Name: strptr("Outer Name")},
		OriginalFoodProduct: &GenericProduct{
			ID:   "inner",
			Name: strptr("Inner Name"),
		},
	}

	got := lookup.Generic()
	if got.ID != "inner" || got.DisplayName() != "Inner Name" {
		t.Errorf("Expected embedded original product, got %+v", got)
	}

	t.Log("✓ Generic view prefers the embedded original food product")
}

// TestNewResolverValidation verifies required dependencies are enforced
func TestNewResolverValidation(t *testing.T) {
	logger := observability.NewLogger("error", "text")
	store := catalog.NewStore()
	fetcher := &mockFetcher{}

	if _, err := NewResolver(ResolverConfig{Fetcher: fetcher, Logger: logger}); err == nil {
		t.Error("Expected error for missing store")
	}
	if _, err := NewResolver(ResolverConfig{Store: store, Logger: logger}); err == nil {
		t.Error("Expected error for missing fetcher")
	}
	if _, err := NewResolver(ResolverConfig{Store: store, Fetcher: fetcher}); err == nil {
		t.Error("Expected error for missing logger")
	}

	t.Log("✓ Resolver constructor validates required dependencies")
}
