// Package snapshot caches market snapshots with staleness-driven refresh.
package snapshot

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bitage/bitage/internal/domain"
	"github.com/bitage/bitage/internal/services/pricer"
)

const defaultFetchTimeout = 10 * time.Second

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// Cache deduplicates and rate-limits price reads. Entries are process-wide
// state keyed by pair; the only eviction is staleness-driven overwrite.
// Fetches for distinct pairs run concurrently, fetches for the same pair are
// serialized behind a per-pair lock.
type Cache struct {
	providers    []pricer.Pricer
	fetchTimeout time.Duration
	now          Clock
	logger       *zap.Logger

	mu      sync.Mutex
	entries map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	snap domain.MarketSnapshot
	ok   bool
}

// Option configures the cache.
type Option func(*Cache)

// WithFetchTimeout bounds a single provider call.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Cache) { c.fetchTimeout = d }
}

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(c *Cache) { c.now = clock }
}

// NewCache creates a cache over an ordered provider fallback list.
func NewCache(logger *zap.Logger, providers []pricer.Pricer, opts ...Option) (*Cache, error) {
	if len(providers) == 0 {
		return nil, errors.New("at least one price provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Cache{
		providers:    providers,
		fetchTimeout: defaultFetchTimeout,
		now:          time.Now,
		logger:       logger,
		entries:      make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get returns the cached snapshot when its age is within maxAge, otherwise
// fetches a fresh one. When every provider fails the error wraps
// domain.ErrAdapterUnavailable; the caller decides between the stale value
// (returned alongside the error when one exists) and skipping the tick.
func (c *Cache) Get(ctx context.Context, pair domain.Pair, maxAge time.Duration) (domain.MarketSnapshot, error) {
	e := c.entry(pair)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := c.now()
	if e.ok && e.snap.Age(now) <= maxAge {
		return e.snap, nil
	}

	snap, err := c.fetch(ctx, pair)
	if err != nil {
		if e.ok {
			// serve the stale snapshot alongside the error
			return e.snap, err
		}
		return domain.MarketSnapshot{}, err
	}

	e.snap = snap
	e.ok = true
	return snap, nil
}

// Peek returns whatever snapshot the cache holds without fetching, stale or
// not. ok is false when the pair was never fetched successfully.
func (c *Cache) Peek(pair domain.Pair) (domain.MarketSnapshot, bool) {
	e := c.entry(pair)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap, e.ok
}

// RefreshAll warms the cache for the given pairs with a bounded worker pool.
// Individual failures are logged, not returned; a later Get surfaces them.
func (c *Cache) RefreshAll(ctx context.Context, pairs []domain.Pair, maxAge time.Duration, workers int) {
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	seen := make(map[string]struct{}, len(pairs))
	for _, pair := range pairs {
		if _, ok := seen[pair.String()]; ok {
			continue
		}
		seen[pair.String()] = struct{}{}

		g.Go(func() error {
			if _, err := c.Get(ctx, pair, maxAge); err != nil {
				c.logger.Warn("snapshot refresh failed",
					zap.String("pair", pair.String()),
					zap.Error(err))
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (c *Cache) entry(pair domain.Pair) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[pair.String()]
	if !ok {
		e = &entry{}
		c.entries[pair.String()] = e
	}
	return e
}

// fetch walks the provider list in order, the first success wins.
func (c *Cache) fetch(ctx context.Context, pair domain.Pair) (domain.MarketSnapshot, error) {
	var lastErr error
	for _, p := range c.providers {
		fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
		price, err := p.GetPrice(fetchCtx, pair)
		cancel()
		if err != nil {
			lastErr = err
			c.logger.Debug("price provider failed",
				zap.String("provider", p.Source()),
				zap.String("pair", pair.String()),
				zap.Error(err))
			continue
		}

		return domain.MarketSnapshot{
			Pair:      pair,
			Price:     price,
			Timestamp: c.now(),
			Source:    p.Source(),
		}, nil
	}

	return domain.MarketSnapshot{}, errors.Wrapf(domain.ErrAdapterUnavailable,
		"all providers failed for %s: %v", pair.String(), lastErr)
}
