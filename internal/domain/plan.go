package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyKind tags a plan with its strategy family. The evaluator treats all
// kinds uniformly as a set of independent rules; the kind drives validation
// and display only.
type StrategyKind string

const (
	StrategyDCAFixedUSD     StrategyKind = "dca_fixed_usd"
	StrategyDCAFixedQty     StrategyKind = "dca_fixed_qty"
	StrategyLadderedEntry   StrategyKind = "laddered_entry"
	StrategyPriceTargetSell StrategyKind = "price_target_sell"
	StrategyHybrid          StrategyKind = "hybrid"
	StrategyDinamicDCA      StrategyKind = "dinamic_dca"
	StrategyCryptopips      StrategyKind = "cryptopips"
)

// Valid reports whether the kind is one of the known strategy families.
func (k StrategyKind) Valid() bool {
	switch k {
	case StrategyDCAFixedUSD, StrategyDCAFixedQty, StrategyLadderedEntry,
		StrategyPriceTargetSell, StrategyHybrid, StrategyDinamicDCA, StrategyCryptopips:
		return true
	}
	return false
}

// Plan is an immutable strategy definition. Only Enabled may change after
// creation (pause/resume); everything else is fixed.
type Plan struct {
	ID   string       `json:"id"`
	Name string       `json:"name"`
	Pair Pair         `json:"pair"`
	Kind StrategyKind `json:"kind"`
	// CadenceTicks is the default firing window for the plan's repeatable rules.
	CadenceTicks uint64 `json:"cadence_ticks"`
	// BuyPrice is the recorded entry price Cryptopips multiplier rules are
	// computed against.
	BuyPrice decimal.Decimal `json:"buy_price,omitempty"`
	// AllocationQuote is the total quote-currency budget the plan may commit.
	AllocationQuote decimal.Decimal `json:"allocation_quote"`
	CreatedAt       time.Time       `json:"created_at"`
	Enabled         bool            `json:"enabled"`

	// Rules in creation order. The plan exclusively owns its rules.
	Rules []Rule `json:"rules"`
}

// RuleByID returns the rule with the given id, or nil.
func (p *Plan) RuleByID(id string) *Rule {
	for i := range p.Rules {
		if p.Rules[i].ID == id {
			return &p.Rules[i]
		}
	}
	return nil
}
