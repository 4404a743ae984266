// Package dispatcher turns evaluator actions into at-most-once order
// executions backed by the append-only execution log.
package dispatcher

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bitage/bitage/internal/domain"
	"github.com/bitage/bitage/internal/services/trader"
	"github.com/bitage/bitage/pkg/retrier"
)

// recordLog is the append-only execution record store.
type recordLog interface {
	Append(rec domain.ExecutionRecord) error
	Lookup(ruleID string, tick uint64, fillSeq int) (domain.ExecutionRecord, bool)
}

// stateStore persists plan state.
type stateStore interface {
	Save(state *domain.PlanState) error
}

// Clock abstracts time for deterministic tests.
type Clock func() time.Time

// Dispatcher commits actions exactly once per idempotency key. The commit
// protocol is: append pending record, place the order (the adapter call is
// itself idempotent under the client order id), append the terminal record,
// then apply and persist the rule/plan bookkeeping. A crash between the
// terminal record and the state save is healed on the next attempt by
// re-applying the bookkeeping from the committed record.
type Dispatcher struct {
	records recordLog
	states  stateStore
	trader  trader.Trader
	retrier *retrier.Retrier
	logger  *zap.Logger
	now     Clock
}

// Option configures the dispatcher.
type Option func(*Dispatcher)

// WithClock overrides the time source.
func WithClock(clock Clock) Option {
	return func(d *Dispatcher) { d.now = clock }
}

// WithRetrier overrides the order placement retrier.
func WithRetrier(r *retrier.Retrier) Option {
	return func(d *Dispatcher) { d.retrier = r }
}

// New creates a dispatcher.
func New(logger *zap.Logger, records recordLog, states stateStore, t trader.Trader, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		records: records,
		states:  states,
		trader:  t,
		retrier: retrier.New(),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Commit executes one action. Re-invoking with an already committed
// (ruleID, tick) is a no-op returning the prior record.
func (d *Dispatcher) Commit(ctx context.Context, plan *domain.Plan, state *domain.PlanState,
	action domain.Action) (domain.ExecutionRecord, error) {

	rule := plan.RuleByID(action.RuleID)
	if rule == nil {
		return domain.ExecutionRecord{}, errors.Wrapf(domain.ErrInvalidRuleState,
			"action references unknown rule %s", action.RuleID)
	}

	rs := state.RuleState(action.RuleID)

	// the (rule, tick) was already dispatched and booked: return the result
	if rs.EverFired && rs.LastFiredTick == action.Tick && rs.NextFillSeq > 0 {
		if rec, ok := d.records.Lookup(action.RuleID, action.Tick, rs.NextFillSeq-1); ok &&
			rec.Status == domain.ExecutionCommitted {
			return rec, nil
		}
	}

	seq := rs.NextFillSeq

	if rec, ok := d.records.Lookup(action.RuleID, action.Tick, seq); ok {
		switch rec.Status {
		case domain.ExecutionCommitted:
			// crash happened between the commit write and the state save:
			// finish the bookkeeping now
			d.apply(state, rule, rs, rec)
			if err := d.states.Save(state); err != nil {
				return rec, err
			}
			return rec, nil
		case domain.ExecutionFailed:
			// earlier attempt at this tick failed, supersede it
			rec.Status = domain.ExecutionRetried
			if err := d.records.Append(rec); err != nil {
				return rec, err
			}
		case domain.ExecutionPending:
			// crash mid-placement: the client order id makes the repeated
			// adapter call safe, fall through and retry under the same key
		}
	}

	rec := domain.ExecutionRecord{
		RuleID:    action.RuleID,
		PlanID:    plan.ID,
		Tick:      action.Tick,
		FillSeq:   seq,
		Side:      action.Side,
		Pair:      action.Pair,
		Requested: action.Amount,
		Status:    domain.ExecutionPending,
		Time:      d.now(),
	}
	if err := d.records.Append(rec); err != nil {
		return rec, err
	}

	fill, err := retrier.DoWithData(d.retrier, ctx, func(ctx context.Context) (trader.Fill, error) {
		return d.trader.PlaceOrder(ctx, action.Side, action.Pair, action.Amount, rec.Key())
	})
	if err != nil {
		rec.Status = domain.ExecutionFailed
		rec.Error = err.Error()
		rec.Time = d.now()
		if appendErr := d.records.Append(rec); appendErr != nil {
			return rec, appendErr
		}
		// the rule's fire state is untouched, a future tick may retry
		d.logger.Warn("order placement failed",
			zap.String("rule", action.RuleID),
			zap.Uint64("tick", action.Tick),
			zap.Error(err))
		return rec, err
	}

	rec.Status = domain.ExecutionCommitted
	rec.OrderID = fill.OrderID
	rec.FilledQty = fill.FilledQty
	rec.AvgPrice = fill.AvgPrice
	if rec.AvgPrice.LessThanOrEqual(decimal.Zero) {
		rec.AvgPrice = action.Price
	}
	rec.Time = d.now()

	if err := d.records.Append(rec); err != nil {
		return rec, err
	}

	d.apply(state, rule, rs, rec)
	if err := d.states.Save(state); err != nil {
		return rec, err
	}

	d.logger.Info("execution committed",
		zap.String("plan", plan.ID),
		zap.String("rule", action.RuleID),
		zap.String("side", string(action.Side)),
		zap.Uint64("tick", action.Tick),
		zap.String("requested", rec.Requested.String()),
		zap.String("filled", rec.FilledQty.String()))

	return rec, nil
}

// apply books a committed fill into the rule and plan state. Bookkeeping uses
// the filled quantity, never the requested one, so short-fills leave one-shot
// rules eligible for the remainder.
func (d *Dispatcher) apply(state *domain.PlanState, rule *domain.Rule,
	rs *domain.RuleState, rec domain.ExecutionRecord) {

	quote := rec.FilledQty.Mul(rec.AvgPrice)
	switch rec.Side {
	case domain.SideBuy:
		state.Position = state.Position.Add(rec.FilledQty)
		state.RemainingAllocation = state.RemainingAllocation.Sub(quote)
	case domain.SideSell:
		state.Position = state.Position.Sub(rec.FilledQty)
		state.RemainingAllocation = state.RemainingAllocation.Add(quote)
	}

	rs.EverFired = true
	rs.LastFiredTick = rec.Tick
	rs.FireCount++
	rs.NextFillSeq = rec.FillSeq + 1

	if rule.OneShot {
		if rs.RequestedBase.LessThanOrEqual(decimal.Zero) {
			rs.RequestedBase = rec.Requested
		}
		rs.FilledBase = rs.FilledBase.Add(rec.FilledQty)
		rs.Fired = rs.FilledBase.GreaterThanOrEqual(rs.RequestedBase)
	}
}
