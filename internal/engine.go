// Package internal wires the strategy engine together: snapshot cache, ATH
// tracker, trigger evaluator, execution dispatcher and plan state.
package internal

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bitage/bitage/internal/domain"
	"github.com/bitage/bitage/internal/metrics"
	"github.com/bitage/bitage/internal/services/ath"
	"github.com/bitage/bitage/internal/services/dispatcher"
	"github.com/bitage/bitage/internal/services/evaluator"
	"github.com/bitage/bitage/internal/services/snapshot"
)

// planStateStore persists plan state across restarts.
type planStateStore interface {
	Load(planID string) (*domain.PlanState, error)
	Save(state *domain.PlanState) error
}

// Engine drives evaluation for a set of plans. Plans are independent and
// evaluated concurrently; rules inside one plan are evaluated and dispatched
// strictly sequentially to keep the firing order deterministic.
type Engine struct {
	cache      *snapshot.Cache
	tracker    *ath.Tracker
	dispatcher *dispatcher.Dispatcher
	states     planStateStore
	logger     *zap.Logger

	snapshotMaxAge time.Duration
	fetchWorkers   int

	mu    sync.Mutex
	plans []*domain.Plan
	// state and per-plan lock, keyed by plan id; single writer per plan
	state map[string]*domain.PlanState
	locks map[string]*sync.Mutex
	// stale marks pairs whose last fetch failed, for status display
	stale map[string]bool
}

// NewEngine loads (or initializes) the state of every plan and returns a
// ready engine.
func NewEngine(logger *zap.Logger, plans []*domain.Plan, cache *snapshot.Cache,
	tracker *ath.Tracker, disp *dispatcher.Dispatcher, states planStateStore,
	snapshotMaxAge time.Duration, fetchWorkers int) (*Engine, error) {

	if logger == nil {
		logger = zap.NewNop()
	}
	if fetchWorkers < 1 {
		fetchWorkers = 1
	}

	e := &Engine{
		cache:          cache,
		tracker:        tracker,
		dispatcher:     disp,
		states:         states,
		logger:         logger,
		snapshotMaxAge: snapshotMaxAge,
		fetchWorkers:   fetchWorkers,
		plans:          plans,
		state:          make(map[string]*domain.PlanState, len(plans)),
		locks:          make(map[string]*sync.Mutex, len(plans)),
		stale:          make(map[string]bool),
	}

	for _, plan := range plans {
		for i := range plan.Rules {
			if err := plan.Rules[i].Validate(); err != nil {
				return nil, errors.Wrapf(err, "plan %s", plan.ID)
			}
		}

		st, err := states.Load(plan.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "load state for plan %s", plan.ID)
		}
		if st == nil {
			st = domain.NewPlanState(plan)
		}
		e.state[plan.ID] = st
		e.locks[plan.ID] = &sync.Mutex{}
	}

	return e, nil
}

// Tick runs one evaluation cycle across all active plans and returns the
// execution records produced. Both the live loop and the simulator drive the
// engine through this single entry point.
func (e *Engine) Tick(ctx context.Context, now time.Time) ([]domain.ExecutionRecord, error) {
	plans := e.activePlans()
	if len(plans) == 0 {
		metrics.TicksTotal.Inc()
		return nil, nil
	}

	pairs := make([]domain.Pair, 0, len(plans))
	for _, p := range plans {
		pairs = append(pairs, p.Pair)
	}
	e.cache.RefreshAll(ctx, pairs, e.snapshotMaxAge, e.fetchWorkers)

	var (
		recMu   sync.Mutex
		records []domain.ExecutionRecord
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.fetchWorkers)
	for _, plan := range plans {
		g.Go(func() error {
			recs := e.tickPlan(gctx, plan, now)
			if len(recs) > 0 {
				recMu.Lock()
				records = append(records, recs...)
				recMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	metrics.TicksTotal.Inc()
	return records, nil
}

// tickPlan evaluates and dispatches one plan for its next pending tick.
// The plan's lastEvaluatedTick advances only when every action reached a
// committed record, so a crash or failure re-evaluates the same tick and
// leans on dispatcher idempotency instead of double-firing.
func (e *Engine) tickPlan(ctx context.Context, plan *domain.Plan, now time.Time) []domain.ExecutionRecord {
	lock := e.planLock(plan.ID)
	lock.Lock()
	defer lock.Unlock()

	state := e.planState(plan.ID)
	if state.Paused {
		return nil
	}

	snap, err := e.cache.Get(ctx, plan.Pair, e.snapshotMaxAge)
	if err != nil {
		// skip the tick for this plan; its tick number is retried next cycle
		e.setStale(plan.Pair, true)
		metrics.SnapshotFailures.WithLabelValues(plan.Pair.String()).Inc()
		e.logger.Warn("skipping plan, market data unavailable",
			zap.String("plan", plan.ID),
			zap.String("pair", plan.Pair.String()),
			zap.Error(err))
		return nil
	}
	e.setStale(plan.Pair, false)

	athState, err := e.tracker.Update(snap)
	if err != nil {
		e.logger.Error("ATH update failed", zap.String("plan", plan.ID), zap.Error(err))
		return nil
	}
	metrics.Drawdown.WithLabelValues(plan.Pair.String()).
		Set(toFloat(domain.DropPct(athState.RunningHigh, snap.Price)))

	tick := nextTick(state)

	actions, err := evaluator.Evaluate(plan, state, snap, athState, tick)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRuleState) {
			e.pausePlan(plan, state, err)
		} else {
			e.logger.Error("evaluation failed", zap.String("plan", plan.ID), zap.Error(err))
		}
		return nil
	}

	var (
		records  []domain.ExecutionRecord
		allGreen = true
	)
	// strictly sequential inside the plan to preserve the action order
	for _, action := range actions {
		metrics.ActionsTotal.WithLabelValues(string(action.Side)).Inc()

		rec, err := e.dispatcher.Commit(ctx, plan, state, action)
		records = append(records, rec)
		metrics.ExecutionsTotal.WithLabelValues(string(rec.Status)).Inc()
		if err != nil || rec.Status != domain.ExecutionCommitted {
			allGreen = false
			break
		}
	}

	if !allGreen {
		// leave lastEvaluatedTick untouched; the whole tick window is
		// re-evaluated next cycle
		return records
	}

	state.LastEvaluatedTick = tick
	state.Evaluated = true
	if err := e.states.Save(state); err != nil {
		e.logger.Error("failed to persist plan tick",
			zap.String("plan", plan.ID),
			zap.Uint64("tick", tick),
			zap.Error(err))
	}

	return records
}

// PlanStatus is the side-effect-free view of a plan for display.
type PlanStatus struct {
	Plan               *domain.Plan                 `json:"plan"`
	ATH                domain.ATHState              `json:"ath"`
	RuleStates         map[string]*domain.RuleState `json:"rule_states"`
	Paused             bool                         `json:"paused"`
	PauseReason        string                       `json:"pause_reason,omitempty"`
	StaleData          bool                         `json:"stale_data"`
	RecommendedActions []domain.Action              `json:"recommended_actions"`
}

// Status runs a dry evaluation for the plan: it reports the actions the next
// tick would propose without dispatching or mutating anything.
func (e *Engine) Status(planID string) (*PlanStatus, error) {
	plan := e.planByID(planID)
	if plan == nil {
		return nil, errors.Errorf("unknown plan %s", planID)
	}

	lock := e.planLock(plan.ID)
	lock.Lock()
	state := e.planState(plan.ID).Clone()
	lock.Unlock()

	athState, _ := e.tracker.State(plan.Pair)

	status := &PlanStatus{
		Plan:        plan,
		ATH:         athState,
		RuleStates:  state.Rules,
		Paused:      state.Paused,
		PauseReason: state.PauseReason,
		StaleData:   e.isStale(plan.Pair),
	}

	// serve whatever snapshot the cache holds, stale included; a dry run
	// must not trigger fetches
	snap, ok := e.cache.Peek(plan.Pair)
	if !ok {
		return status, nil
	}

	actions, err := evaluator.Evaluate(plan, state, snap, athState, nextTick(state))
	if err != nil {
		return status, nil
	}
	status.RecommendedActions = actions
	return status, nil
}

// OverrideATH sets a manual all-time high for the plan's pair.
func (e *Engine) OverrideATH(planID string, high decimal.Decimal, at time.Time) (domain.ATHState, error) {
	plan := e.planByID(planID)
	if plan == nil {
		return domain.ATHState{}, errors.Errorf("unknown plan %s", planID)
	}
	return e.tracker.Override(plan.Pair, high, at)
}

// Resume clears a pause set by an invalid rule state.
func (e *Engine) Resume(planID string) error {
	plan := e.planByID(planID)
	if plan == nil {
		return errors.Errorf("unknown plan %s", planID)
	}

	lock := e.planLock(plan.ID)
	lock.Lock()
	defer lock.Unlock()

	state := e.planState(plan.ID)
	if !state.Paused {
		return nil
	}
	state.Paused = false
	state.PauseReason = ""
	metrics.PlansPaused.Dec()
	return e.states.Save(state)
}

// Plans returns the engine's plan definitions.
func (e *Engine) Plans() []*domain.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*domain.Plan(nil), e.plans...)
}

func (e *Engine) pausePlan(plan *domain.Plan, state *domain.PlanState, cause error) {
	state.Paused = true
	state.PauseReason = cause.Error()
	metrics.PlansPaused.Inc()
	e.logger.Error("plan paused",
		zap.String("plan", plan.ID),
		zap.String("reason", state.PauseReason))
	if err := e.states.Save(state); err != nil {
		e.logger.Error("failed to persist pause", zap.String("plan", plan.ID), zap.Error(err))
	}
}

func (e *Engine) activePlans() []*domain.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	active := make([]*domain.Plan, 0, len(e.plans))
	for _, p := range e.plans {
		if p.Enabled {
			active = append(active, p)
		}
	}
	return active
}

func (e *Engine) planByID(id string) *domain.Plan {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.plans {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (e *Engine) planState(id string) *domain.PlanState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state[id]
}

func (e *Engine) planLock(id string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locks[id]
}

func (e *Engine) setStale(pair domain.Pair, v bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stale[pair.String()] = v
}

func (e *Engine) isStale(pair domain.Pair) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stale[pair.String()]
}

func nextTick(state *domain.PlanState) uint64 {
	if !state.Evaluated {
		return 0
	}
	return state.LastEvaluatedTick + 1
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
