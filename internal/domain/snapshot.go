package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MarketSnapshot is a single observed market price. Immutable once created;
// the latest snapshot per pair is authoritative for live evaluation while
// historical snapshots may be replayed for simulation.
type MarketSnapshot struct {
	Pair      Pair            `json:"pair"`
	Price     decimal.Decimal `json:"price"`
	Timestamp time.Time       `json:"timestamp"`
	Source    string          `json:"source"`
}

// Age returns how old the snapshot is relative to now.
func (s MarketSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}
