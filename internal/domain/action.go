package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Action is a proposed execution the evaluator emits. Amount is always a base
// quantity: configuredUsd / price for fixed-quote buys, position * fraction
// for percent sells.
type Action struct {
	RuleID string          `json:"rule_id"`
	PlanID string          `json:"plan_id"`
	Side   Side            `json:"side"`
	Pair   Pair            `json:"pair"`
	Amount decimal.Decimal `json:"amount"`
	// Price is the snapshot price at evaluation time, for the record only.
	Price decimal.Decimal `json:"price"`
	Tick  uint64          `json:"tick"`
}

// String returns a human-readable representation.
func (a *Action) String() string {
	return fmt.Sprintf("%s %s %s @ tick %d", a.Side, a.Amount.String(), a.Pair.String(), a.Tick)
}
