// Package trader provides execution adapters the dispatcher places orders
// through.
package trader

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/bitage/bitage/internal/domain"
)

// Fill is the adapter's response to a placed order. FilledQty may be less
// than requested (partial fill); the caller books only what was filled.
type Fill struct {
	OrderID   string
	FilledQty decimal.Decimal
	AvgPrice  decimal.Decimal
}

// Trader places market orders. Implementations must treat clientOrderID as an
// idempotency key: repeating a call with the same id must not produce a
// second order.
type Trader interface {
	PlaceOrder(ctx context.Context, side domain.Side, pair domain.Pair,
		quantity decimal.Decimal, clientOrderID string) (Fill, error)
}
