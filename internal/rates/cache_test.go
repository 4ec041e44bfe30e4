package rates

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int
	rates map[string]decimal.Decimal
	err   error
}

func (f *fakeSource) FetchLatest(_ context.Context, _ string) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.rates, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]string)}
}

func (m *memStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func usdRates() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		"USD": decimal.NewFromInt(1),
		"EUR": decimal.NewFromFloat(0.9),
	}
}

func TestRatesCacheHitWithinTTL(t *testing.T) {
	src := &fakeSource{rates: usdRates()}
	cache := NewCache(src, newMemStore())
	ctx := context.Background()

	first := cache.Rates(ctx, "USD")
	second := cache.Rates(ctx, "USD")

	assert.Equal(t, 1, src.callCount(), "second call within TTL must not refetch")
	assert.Same(t, first, second)

	rate, ok := second.Rate("EUR")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromFloat(0.9)))
}

func TestRatesRefetchAfterExpiry(t *testing.T) {
	src := &fakeSource{rates: usdRates()}
	cache := NewCache(src, newMemStore())

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	cache.Rates(context.Background(), "USD")
	require.Equal(t, 1, src.callCount())

	now = now.Add(DefaultTTL + time.Minute)
	cache.Rates(context.Background(), "USD")
	assert.Equal(t, 2, src.callCount(), "expired table should trigger a refetch")
}

func TestRatesFallsBackToStaleCacheOnFailure(t *testing.T) {
	src := &fakeSource{rates: usdRates()}
	cache := NewCache(src, newMemStore())

	now := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }

	fresh := cache.Rates(context.Background(), "USD")
	require.NotNil(t, fresh)

	src.mu.Lock()
	src.err = errors.New("boom")
	src.mu.Unlock()
	now = now.Add(2 * DefaultTTL)

	stale := cache.Rates(context.Background(), "USD")
	rate, ok := stale.Rate("EUR")
	require.True(t, ok, "stale table should still serve reads")
	assert.True(t, rate.Equal(decimal.NewFromFloat(0.9)))
}

func TestRatesSurvivesRestartViaStore(t *testing.T) {
	store := newMemStore()
	src := &fakeSource{rates: usdRates()}
	cache := NewCache(src, store)
	cache.Rates(context.Background(), "USD")
	require.Equal(t, 1, src.callCount())

	// New cache sharing the store, as after a process restart.
	restarted := NewCache(src, store)
	table := restarted.Rates(context.Background(), "USD")

	assert.Equal(t, 1, src.callCount(), "fresh persisted table must not refetch")
	rate, ok := table.Rate("EUR")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromFloat(0.9)))
}

func TestRatesStaticFallbackWhenNothingCached(t *testing.T) {
	src := &fakeSource{err: errors.New("network down")}
	cache := NewCache(src, newMemStore())

	table := cache.Rates(context.Background(), "EUR")
	require.NotNil(t, table)

	// Scenario: EUR base with no cache at all still converts through the
	// static table, never an error.
	rate, ok := table.Rate("USD")
	require.True(t, ok)
	want := decimal.NewFromFloat(1.0).Div(decimal.NewFromFloat(0.85))
	assert.True(t, rate.Equal(want), "expected %s, got %s", want, rate)

	converted := decimal.NewFromInt(10).Mul(rate)
	assert.True(t, converted.GreaterThan(decimal.NewFromInt(11)))
	assert.True(t, converted.LessThan(decimal.NewFromInt(12)))
}

func TestRateProviderLookup(t *testing.T) {
	src := &fakeSource{rates: usdRates()}
	cache := NewCache(src, newMemStore())

	rate, ok := cache.Rate(context.Background(), "USD", "EUR")
	require.True(t, ok)
	assert.True(t, rate.Equal(decimal.NewFromFloat(0.9)))

	_, ok = cache.Rate(context.Background(), "USD", "XXX")
	assert.False(t, ok)
}
