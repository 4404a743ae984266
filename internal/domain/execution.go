package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ExecutionStatus is the lifecycle state of an execution record.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionCommitted ExecutionStatus = "committed"
	ExecutionFailed    ExecutionStatus = "failed"
	// ExecutionRetried marks a failed attempt superseded by a later record in
	// the same key family.
	ExecutionRetried ExecutionStatus = "retried"
)

// Terminal reports whether the status ends an attempt.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCommitted || s == ExecutionFailed || s == ExecutionRetried
}

// ExecutionRecord is one entry in the append-only execution log. The
// idempotency key is (RuleID, Tick, FillSeq); records are never mutated after
// reaching a terminal status, a follow-up attempt appends a new record.
type ExecutionRecord struct {
	RuleID  string `json:"rule_id"`
	PlanID  string `json:"plan_id"`
	Tick    uint64 `json:"tick"`
	FillSeq int    `json:"fill_seq"`

	Side      Side            `json:"side"`
	Pair      Pair            `json:"pair"`
	Requested decimal.Decimal `json:"requested"`
	FilledQty decimal.Decimal `json:"filled_qty"`
	AvgPrice  decimal.Decimal `json:"avg_price"`

	OrderID string          `json:"order_id,omitempty"`
	Status  ExecutionStatus `json:"status"`
	Error   string          `json:"error,omitempty"`
	Time    time.Time       `json:"time"`
}

// Key returns the record's idempotency key.
func (r *ExecutionRecord) Key() string {
	return ExecutionKey(r.RuleID, r.Tick, r.FillSeq)
}

// ExecutionKey builds the idempotency key for a rule attempt at a tick.
func ExecutionKey(ruleID string, tick uint64, fillSeq int) string {
	return fmt.Sprintf("%s:%d:%d", ruleID, tick, fillSeq)
}

// EvaluationTick is the scheduler's logical clock unit.
type EvaluationTick struct {
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
}
