// Package evaluator holds the pure trigger decision function: it maps a
// (snapshot, plan, state) triple to a deterministic ordered action list and
// never performs I/O or mutates persisted state.
package evaluator

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/bitage/bitage/internal/domain"
)

// Evaluate proposes the actions that should fire for one plan at one tick.
// Ordering is reproducible: sells precede buys, ties break on rule creation
// order. Replaying the same snapshots yields the same list.
func Evaluate(plan *domain.Plan, state *domain.PlanState, snap domain.MarketSnapshot,
	ath domain.ATHState, tick uint64) ([]domain.Action, error) {

	if state.RemainingAllocation.IsNegative() || state.Position.IsNegative() {
		return nil, errors.Wrapf(domain.ErrInvalidRuleState,
			"plan %s: remaining allocation %s, position %s",
			plan.ID, state.RemainingAllocation.String(), state.Position.String())
	}

	var actions []domain.Action
	remainingAlloc := state.RemainingAllocation
	remainingPos := state.Position

	for i := range plan.Rules {
		rule := &plan.Rules[i]
		rs := state.RuleState(rule.ID)

		if !rs.Eligible(rule, tick) {
			continue
		}
		if !conditionHolds(plan, rule, snap, ath, rs, tick) {
			continue
		}

		amount := quantityFor(plan, rule, rs, snap.Price, remainingAlloc, remainingPos)
		if amount.LessThanOrEqual(decimal.Zero) {
			continue
		}

		// reserve against the running budget so several rules firing in one
		// tick cannot overspend together
		if rule.Side == domain.SideBuy {
			remainingAlloc = remainingAlloc.Sub(amount.Mul(snap.Price))
		} else {
			remainingPos = remainingPos.Sub(amount)
		}

		actions = append(actions, domain.Action{
			RuleID: rule.ID,
			PlanID: plan.ID,
			Side:   rule.Side,
			Pair:   plan.Pair,
			Amount: amount,
			Price:  snap.Price,
			Tick:   tick,
		})
	}

	// sells before buys, then creation order; never by price magnitude
	seq := make(map[string]int, len(plan.Rules))
	for i := range plan.Rules {
		seq[plan.Rules[i].ID] = plan.Rules[i].Seq
	}
	sort.SliceStable(actions, func(i, j int) bool {
		if actions[i].Side != actions[j].Side {
			return actions[i].Side == domain.SideSell
		}
		return seq[actions[i].RuleID] < seq[actions[j].RuleID]
	})

	return actions, nil
}

// conditionHolds computes the rule's boolean firing condition.
func conditionHolds(plan *domain.Plan, rule *domain.Rule, snap domain.MarketSnapshot,
	ath domain.ATHState, rs *domain.RuleState, tick uint64) bool {

	cond := rule.Condition
	price := snap.Price

	switch cond.Kind {
	case domain.ConditionDropFromATH:
		// fires once the drawdown from the running high reaches the
		// threshold, for dip buys and drawdown exits alike
		drop := domain.DropPct(ath.RunningHigh, price)
		return drop.GreaterThanOrEqual(cond.Threshold)

	case domain.ConditionPriceBand:
		ref := ath.RunningHigh
		if ref.LessThanOrEqual(decimal.Zero) {
			return false
		}
		lower := ref.Mul(cond.LowerPct)
		upper := ref.Mul(cond.UpperPct)
		return price.GreaterThanOrEqual(lower) && price.LessThanOrEqual(upper)

	case domain.ConditionAbsolutePrice:
		if rule.Side == domain.SideSell {
			return price.GreaterThanOrEqual(cond.Threshold)
		}
		return price.LessThanOrEqual(cond.Threshold)

	case domain.ConditionPriceMultiplier:
		// Cryptopips multiplies the recorded buy price; DinamicDCA sell
		// targets multiply the manual ATH reference instead
		base := plan.BuyPrice
		if base.LessThanOrEqual(decimal.Zero) {
			base = ath.SellReference()
		}
		if base.LessThanOrEqual(decimal.Zero) {
			return false
		}
		target := base.Mul(cond.Multiplier)
		if rule.Side == domain.SideSell {
			return price.GreaterThanOrEqual(target)
		}
		return price.LessThanOrEqual(target)

	case domain.ConditionCadence:
		cadence := cond.CadenceTicks
		if cadence == 0 {
			cadence = plan.CadenceTicks
		}
		if cadence == 0 {
			return false
		}
		if !rs.EverFired {
			return true
		}
		return tick-rs.LastFiredTick >= cadence

	default:
		return false
	}
}

// quantityFor sizes the order in base units. A short-filled one-shot rule
// produces its unfilled remainder regardless of the quantity spec.
func quantityFor(plan *domain.Plan, rule *domain.Rule, rs *domain.RuleState,
	price, remainingAlloc, remainingPos decimal.Decimal) decimal.Decimal {

	if rule.OneShot && rs.EverFired && !rs.Fired {
		return rs.Remainder()
	}

	var base decimal.Decimal
	switch rule.Quantity.Kind {
	case domain.QuantityQuoteAmount:
		if price.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero
		}
		base = rule.Quantity.Value.Div(price)
	case domain.QuantityBaseAmount:
		base = rule.Quantity.Value
	case domain.QuantityPositionFraction:
		base = remainingPos.Mul(rule.Quantity.Value)
	default:
		return decimal.Zero
	}

	if rule.Side == domain.SideBuy {
		// clamp to the remaining quote budget
		if price.LessThanOrEqual(decimal.Zero) {
			return decimal.Zero
		}
		maxBase := remainingAlloc.Div(price)
		if base.GreaterThan(maxBase) {
			base = maxBase
		}
	} else if base.GreaterThan(remainingPos) {
		base = remainingPos
	}

	return base
}
