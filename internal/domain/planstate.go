package domain

import (
	"github.com/shopspring/decimal"
)

// PlanState is the mutable execution state of one plan: rule states, the
// remaining-allocation bookkeeping and the scheduler's resume point. It is
// persisted atomically together with each execution record commit.
type PlanState struct {
	PlanID string `json:"plan_id"`
	// LastEvaluatedTick is valid only when Evaluated is set. It is advanced
	// only after every rule of the tick reached a terminal dispatcher status,
	// so a crash mid-tick resumes by re-evaluating the same tick.
	LastEvaluatedTick uint64 `json:"last_evaluated_tick"`
	Evaluated         bool   `json:"evaluated"`
	// RemainingAllocation is the quote budget still available for buys.
	RemainingAllocation decimal.Decimal `json:"remaining_allocation"`
	// Position is the base quantity currently held by the plan.
	Position decimal.Decimal `json:"position"`
	// Paused plans are skipped; Reason is surfaced to the plan owner.
	Paused      bool   `json:"paused"`
	PauseReason string `json:"pause_reason,omitempty"`

	Rules map[string]*RuleState `json:"rules"`
}

// NewPlanState builds the initial state for a plan definition.
func NewPlanState(plan *Plan) *PlanState {
	st := &PlanState{
		PlanID:              plan.ID,
		RemainingAllocation: plan.AllocationQuote,
		Position:            decimal.Zero,
		Rules:               make(map[string]*RuleState, len(plan.Rules)),
	}
	for _, r := range plan.Rules {
		st.Rules[r.ID] = &RuleState{RuleID: r.ID}
	}
	return st
}

// RuleState returns the state for a rule id, creating it when absent (rules
// added to a plan after the state was first persisted).
func (s *PlanState) RuleState(id string) *RuleState {
	if s.Rules == nil {
		s.Rules = make(map[string]*RuleState)
	}
	rs, ok := s.Rules[id]
	if !ok {
		rs = &RuleState{RuleID: id}
		s.Rules[id] = rs
	}
	return rs
}

// Clone returns a deep copy, used for dry-run evaluation.
func (s *PlanState) Clone() *PlanState {
	cp := *s
	cp.Rules = make(map[string]*RuleState, len(s.Rules))
	for id, rs := range s.Rules {
		rsCopy := *rs
		cp.Rules[id] = &rsCopy
	}
	return &cp
}
