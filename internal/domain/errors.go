package domain

import "github.com/pkg/errors"

// Engine error kinds. Callers classify failures with errors.Is.
var (
	// ErrAdapterUnavailable means a market or execution adapter was
	// unreachable or timed out; the affected plan is retried next tick.
	ErrAdapterUnavailable = errors.New("adapter unavailable")
	// ErrInvalidRuleState means a plan reached an inconsistent state (e.g.
	// negative remaining allocation); the plan is paused with a reason.
	ErrInvalidRuleState = errors.New("invalid rule state")
	// ErrPersistenceFailure means a store write failed; the plan's tick is
	// not advanced so the tick is re-evaluated.
	ErrPersistenceFailure = errors.New("persistence failure")
)
