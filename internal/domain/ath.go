package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ATHState tracks the reference high for a single pair. RunningHigh is
// monotonically non-decreasing except through an explicit manual override.
// ManualHigh mirrors the original "athv" value used by DinamicDCA sell rules,
// kept separate from the live running high ("athn").
type ATHState struct {
	Pair           Pair            `json:"pair"`
	RunningHigh    decimal.Decimal `json:"running_high"`
	ManualHigh     decimal.Decimal `json:"manual_high,omitempty"`
	ManualSetAt    time.Time       `json:"manual_set_at,omitempty"`
	MaxDropPctSeen decimal.Decimal `json:"max_drop_pct_seen"`
	LastUpdated    time.Time       `json:"last_updated"`
}

// Apply folds a snapshot into the state: lifts the running high when exceeded
// and advances the max observed drawdown. Returns the updated state.
func (a ATHState) Apply(snap MarketSnapshot) ATHState {
	if snap.Price.GreaterThan(a.RunningHigh) {
		a.RunningHigh = snap.Price
	}
	drop := DropPct(a.RunningHigh, snap.Price)
	if drop.GreaterThan(a.MaxDropPctSeen) {
		a.MaxDropPctSeen = drop
	}
	a.LastUpdated = snap.Timestamp
	return a
}

// WithOverride replaces the manual high unconditionally. The running high is
// untouched, the transition is recorded via ManualSetAt.
func (a ATHState) WithOverride(high decimal.Decimal, at time.Time) ATHState {
	a.ManualHigh = high
	a.ManualSetAt = at
	return a
}

// SellReference returns the high sell rules are priced off: the manual high
// when set, otherwise the live running high.
func (a ATHState) SellReference() decimal.Decimal {
	if a.ManualHigh.GreaterThan(decimal.Zero) {
		return a.ManualHigh
	}
	return a.RunningHigh
}

// DropPct returns (high - price) / high as a fraction, zero for a zero high.
func DropPct(high, price decimal.Decimal) decimal.Decimal {
	if high.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero
	}
	drop := high.Sub(price).Div(high)
	if drop.IsNegative() {
		return decimal.Zero
	}
	return drop
}
