package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bitage/bitage/internal/domain"
	"github.com/bitage/bitage/internal/services/pricer"
)

var testPair = domain.Pair{From: "BTC", To: "USDT"}

type stubPricer struct {
	name  string
	price decimal.Decimal
	err   error
	calls int
}

func (p *stubPricer) GetPrice(context.Context, domain.Pair) (decimal.Decimal, error) {
	p.calls++
	if p.err != nil {
		return decimal.Zero, p.err
	}
	return p.price, nil
}

func (p *stubPricer) Source() string { return p.name }

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestCache(t *testing.T, clock *fakeClock, providers ...pricer.Pricer) *Cache {
	t.Helper()
	cache, err := NewCache(nil, providers, WithClock(clock.Now))
	require.NoError(t, err)
	return cache
}

func TestCacheServesFreshSnapshotWithoutRefetch(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	provider := &stubPricer{name: "stub", price: decimal.NewFromInt(50000)}
	cache := newTestCache(t, clock, provider)

	snap, err := cache.Get(context.Background(), testPair, 30*time.Second)
	require.NoError(t, err)
	require.True(t, snap.Price.Equal(decimal.NewFromInt(50000)))
	require.Equal(t, "stub", snap.Source)
	require.Equal(t, 1, provider.calls)

	// still inside the TTL window
	clock.now = clock.now.Add(20 * time.Second)
	_, err = cache.Get(context.Background(), testPair, 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, 1, provider.calls, "fresh snapshot must not trigger a fetch")

	// past the TTL the cache refetches
	clock.now = clock.now.Add(20 * time.Second)
	provider.price = decimal.NewFromInt(51000)
	snap, err = cache.Get(context.Background(), testPair, 30*time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, provider.calls)
	require.True(t, snap.Price.Equal(decimal.NewFromInt(51000)))
}

func TestCacheFallsBackAcrossProviders(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	broken := &stubPricer{name: "primary", err: errors.New("timeout")}
	backup := &stubPricer{name: "backup", price: decimal.NewFromInt(42000)}
	cache := newTestCache(t, clock, broken, backup)

	snap, err := cache.Get(context.Background(), testPair, time.Second)
	require.NoError(t, err)
	require.Equal(t, "backup", snap.Source)
	require.Equal(t, 1, broken.calls)
	require.Equal(t, 1, backup.calls)
}

func TestCacheReturnsStaleAlongsideError(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	provider := &stubPricer{name: "stub", price: decimal.NewFromInt(50000)}
	cache := newTestCache(t, clock, provider)

	_, err := cache.Get(context.Background(), testPair, time.Second)
	require.NoError(t, err)

	clock.now = clock.now.Add(time.Minute)
	provider.err = errors.New("connection refused")

	snap, err := cache.Get(context.Background(), testPair, time.Second)
	require.ErrorIs(t, err, domain.ErrAdapterUnavailable)
	require.True(t, snap.Price.Equal(decimal.NewFromInt(50000)),
		"the stale snapshot rides along with the error")
}

func TestCacheErrorWithoutAnySnapshot(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	provider := &stubPricer{name: "stub", err: errors.New("down")}
	cache := newTestCache(t, clock, provider)

	_, err := cache.Get(context.Background(), testPair, time.Second)
	require.ErrorIs(t, err, domain.ErrAdapterUnavailable)

	_, ok := cache.Peek(testPair)
	require.False(t, ok)
}

func TestCacheRefreshAllWarmsEveryPair(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	provider := &stubPricer{name: "stub", price: decimal.NewFromInt(100)}
	cache := newTestCache(t, clock, provider)

	pairs := []domain.Pair{
		testPair,
		{From: "ETH", To: "USDT"},
		testPair, // duplicates fetch once
	}
	cache.RefreshAll(context.Background(), pairs, time.Second, 2)
	require.Equal(t, 2, provider.calls)

	for _, pair := range pairs {
		_, ok := cache.Peek(pair)
		require.True(t, ok)
	}
}
