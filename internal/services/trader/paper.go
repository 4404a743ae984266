package trader

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bitage/bitage/internal/domain"
)

// Pricer supplies the mark price paper fills execute at.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
}

// PaperTrader simulates order execution against a wallet. Orders are stored
// by client order id, so replaying an id returns the original fill instead of
// trading twice.
type PaperTrader struct {
	mu     sync.Mutex
	logger *zap.Logger
	pricer Pricer
	wallet map[string]decimal.Decimal
	orders map[string]Fill
	// fillRatio < 1 simulates partial fills.
	fillRatio decimal.Decimal
}

// PaperOption configures the paper trader.
type PaperOption func(*PaperTrader)

// WithFillRatio makes every order fill only the given fraction, for
// exercising partial-fill handling. Must be in (0, 1].
func WithFillRatio(ratio decimal.Decimal) PaperOption {
	return func(t *PaperTrader) { t.fillRatio = ratio }
}

// WithBalance seeds the wallet with a starting balance.
func WithBalance(currency string, amount decimal.Decimal) PaperOption {
	return func(t *PaperTrader) { t.wallet[currency] = amount }
}

// NewPaperTrader creates a simulated trader marking fills at pricer prices.
func NewPaperTrader(logger *zap.Logger, pricer Pricer, opts ...PaperOption) (*PaperTrader, error) {
	if pricer == nil {
		return nil, errors.New("pricer is required for PaperTrader")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &PaperTrader{
		logger:    logger,
		pricer:    pricer,
		wallet:    make(map[string]decimal.Decimal),
		orders:    make(map[string]Fill),
		fillRatio: decimal.NewFromInt(1),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// PlaceOrder fills a market order at the current mark price.
func (t *PaperTrader) PlaceOrder(ctx context.Context, side domain.Side, pair domain.Pair,
	quantity decimal.Decimal, clientOrderID string) (Fill, error) {

	if quantity.LessThanOrEqual(decimal.Zero) {
		return Fill{}, errors.Errorf("order quantity must be positive, got %s", quantity.String())
	}

	t.mu.Lock()
	if fill, ok := t.orders[clientOrderID]; ok {
		t.mu.Unlock()
		return fill, nil
	}
	t.mu.Unlock()

	price, err := t.pricer.GetPrice(ctx, pair)
	if err != nil {
		return Fill{}, errors.Wrapf(domain.ErrAdapterUnavailable, "paper mark price: %v", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// re-check after re-acquiring the lock
	if fill, ok := t.orders[clientOrderID]; ok {
		return fill, nil
	}

	filled := quantity.Mul(t.fillRatio)
	quote := filled.Mul(price)

	switch side {
	case domain.SideBuy:
		t.wallet[pair.To] = t.wallet[pair.To].Sub(quote)
		t.wallet[pair.From] = t.wallet[pair.From].Add(filled)
	case domain.SideSell:
		t.wallet[pair.From] = t.wallet[pair.From].Sub(filled)
		t.wallet[pair.To] = t.wallet[pair.To].Add(quote)
	default:
		return Fill{}, errors.Errorf("unknown side %q", side)
	}

	fill := Fill{OrderID: clientOrderID, FilledQty: filled, AvgPrice: price}
	t.orders[clientOrderID] = fill

	t.logger.Debug("paper fill",
		zap.String("pair", pair.String()),
		zap.String("side", string(side)),
		zap.String("qty", filled.String()),
		zap.String("price", price.String()))

	return fill, nil
}

// Balance returns the wallet balance for a currency.
func (t *PaperTrader) Balance(currency string) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.wallet[currency]
}
