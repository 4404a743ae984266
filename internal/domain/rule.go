package domain

import (
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Side represents the direction of a rule or action.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// ConditionKind selects how a rule's firing condition is computed.
type ConditionKind string

const (
	// ConditionDropFromATH fires when the drawdown from the running high
	// reaches Threshold (a fraction, e.g. 0.20 for a 20% drop).
	ConditionDropFromATH ConditionKind = "drop_from_ath"
	// ConditionPriceBand fires while price sits inside
	// [ref*LowerPct, ref*UpperPct] of the ATH reference (laddered entries).
	ConditionPriceBand ConditionKind = "price_band"
	// ConditionAbsolutePrice fires when price crosses Threshold in the
	// direction implied by the rule side: sells above, buys below.
	ConditionAbsolutePrice ConditionKind = "absolute_price"
	// ConditionPriceMultiplier fires when price >= reference * Multiplier,
	// where the reference is the plan buy price or, when unset, the ATH
	// sell reference.
	ConditionPriceMultiplier ConditionKind = "price_multiplier"
	// ConditionCadence fires once per cadence window of ticks.
	ConditionCadence ConditionKind = "cadence"
)

// Condition is the tagged firing condition of a rule. Only the fields
// relevant to Kind are set.
type Condition struct {
	Kind       ConditionKind   `json:"kind"`
	Threshold  decimal.Decimal `json:"threshold,omitempty"`
	UpperPct   decimal.Decimal `json:"upper_pct,omitempty"`
	LowerPct   decimal.Decimal `json:"lower_pct,omitempty"`
	Multiplier decimal.Decimal `json:"multiplier,omitempty"`
	// CadenceTicks overrides the plan cadence when non-zero.
	CadenceTicks uint64 `json:"cadence_ticks,omitempty"`
}

// QuantityKind selects how a firing rule sizes its order.
type QuantityKind string

const (
	// QuantityQuoteAmount spends a fixed quote amount; order size in base is
	// amount / price.
	QuantityQuoteAmount QuantityKind = "quote_amount"
	// QuantityBaseAmount buys or sells a fixed base quantity.
	QuantityBaseAmount QuantityKind = "base_amount"
	// QuantityPositionFraction sells a fraction of the remaining position.
	QuantityPositionFraction QuantityKind = "position_fraction"
)

// QuantitySpec sizes the order a firing rule produces.
type QuantitySpec struct {
	Kind  QuantityKind    `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

// Rule belongs to exactly one plan. Definition fields are immutable; the
// mutable execution state lives in RuleState.
type Rule struct {
	ID     string `json:"id"`
	PlanID string `json:"plan_id"`
	// Seq is the creation order inside the plan, the deterministic tie-break
	// among rules of the same side.
	Seq       int          `json:"seq"`
	Side      Side         `json:"side"`
	Condition Condition    `json:"condition"`
	Quantity  QuantitySpec `json:"quantity"`
	// OneShot rules fire at most once in their lifetime.
	OneShot bool `json:"one_shot"`
	Enabled bool `json:"enabled"`
}

// Validate checks the rule definition for internal consistency.
func (r *Rule) Validate() error {
	if r.ID == "" {
		return errors.New("rule id is required")
	}
	if r.Side != SideBuy && r.Side != SideSell {
		return errors.Errorf("rule %s: invalid side %q", r.ID, r.Side)
	}
	switch r.Condition.Kind {
	case ConditionDropFromATH, ConditionAbsolutePrice:
		if r.Condition.Threshold.LessThanOrEqual(decimal.Zero) {
			return errors.Errorf("rule %s: %s condition needs a positive threshold", r.ID, r.Condition.Kind)
		}
	case ConditionPriceBand:
		if r.Condition.LowerPct.LessThanOrEqual(decimal.Zero) || r.Condition.UpperPct.LessThan(r.Condition.LowerPct) {
			return errors.Errorf("rule %s: price band needs 0 < lower <= upper", r.ID)
		}
	case ConditionPriceMultiplier:
		if r.Condition.Multiplier.LessThanOrEqual(decimal.Zero) {
			return errors.Errorf("rule %s: multiplier must be positive", r.ID)
		}
	case ConditionCadence:
		// cadence may come from the plan default
	default:
		return errors.Errorf("rule %s: unknown condition kind %q", r.ID, r.Condition.Kind)
	}
	switch r.Quantity.Kind {
	case QuantityQuoteAmount, QuantityBaseAmount:
		if r.Quantity.Value.LessThanOrEqual(decimal.Zero) {
			return errors.Errorf("rule %s: quantity must be positive", r.ID)
		}
	case QuantityPositionFraction:
		if r.Quantity.Value.LessThanOrEqual(decimal.Zero) || r.Quantity.Value.GreaterThan(decimal.NewFromInt(1)) {
			return errors.Errorf("rule %s: position fraction must be in (0, 1]", r.ID)
		}
	default:
		return errors.Errorf("rule %s: unknown quantity kind %q", r.ID, r.Quantity.Kind)
	}
	return nil
}

// RuleState is the mutable execution state of one rule.
type RuleState struct {
	RuleID string `json:"rule_id"`
	// Fired marks a one-shot rule as fully executed.
	Fired bool `json:"fired"`
	// RequestedBase is the total base quantity locked when a one-shot rule
	// first fires; FilledBase accumulates partial fills against it. The rule
	// stays eligible until the remainder reaches zero.
	RequestedBase decimal.Decimal `json:"requested_base"`
	FilledBase    decimal.Decimal `json:"filled_base"`
	// NextFillSeq extends the idempotency key family across partial fills.
	NextFillSeq int `json:"next_fill_seq"`
	// LastFiredTick is valid only when EverFired is set.
	LastFiredTick uint64 `json:"last_fired_tick"`
	EverFired     bool   `json:"ever_fired"`
	FireCount     int    `json:"fire_count"`
}

// Remainder returns the unfilled base quantity of a short-filled one-shot rule.
func (s *RuleState) Remainder() decimal.Decimal {
	rem := s.RequestedBase.Sub(s.FilledBase)
	if rem.IsNegative() {
		return decimal.Zero
	}
	return rem
}

// Eligible reports whether the rule may still produce actions given its state.
func (s *RuleState) Eligible(r *Rule, tick uint64) bool {
	if !r.Enabled {
		return false
	}
	if r.OneShot && s.Fired {
		return false
	}
	// a repeatable rule fires at most once per tick
	if s.EverFired && s.LastFiredTick == tick {
		return false
	}
	return true
}
