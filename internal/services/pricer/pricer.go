// Package pricer provides market price adapters for the snapshot cache.
package pricer

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/bitage/bitage/internal/domain"
)

// Pricer fetches the current market price for a pair.
type Pricer interface {
	GetPrice(ctx context.Context, pair domain.Pair) (decimal.Decimal, error)
	// Source identifies the provider in snapshots and logs.
	Source() string
}
