package pricer

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/bitage/bitage/internal/domain"
)

// ReplayPricer serves prices from a pre-recorded sequence, one per call, so
// historical snapshots can be replayed deterministically through the engine.
// When a pair's sequence is exhausted the last price keeps being served.
type ReplayPricer struct {
	mu     sync.Mutex
	prices map[string][]decimal.Decimal
	cursor map[string]int
}

// NewReplayPricer creates an empty replay pricer.
func NewReplayPricer() *ReplayPricer {
	return &ReplayPricer{
		prices: make(map[string][]decimal.Decimal),
		cursor: make(map[string]int),
	}
}

// Feed appends prices to the pair's replay sequence.
func (p *ReplayPricer) Feed(pair domain.Pair, prices ...decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := pair.String()
	p.prices[key] = append(p.prices[key], prices...)
}

func (p *ReplayPricer) GetPrice(_ context.Context, pair domain.Pair) (decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := pair.String()
	seq := p.prices[key]
	if len(seq) == 0 {
		return decimal.Decimal{}, errors.Errorf("no replay prices fed for %s", pair.String())
	}

	idx := p.cursor[key]
	if idx >= len(seq) {
		idx = len(seq) - 1
	} else {
		p.cursor[key] = idx + 1
	}
	return seq[idx], nil
}

func (p *ReplayPricer) Source() string { return "replay" }
