// Package ath maintains the reference high per pair used by drawdown rules.
package ath

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/bitage/bitage/internal/domain"
)

// store persists the state map across restarts.
type store interface {
	Load() (map[string]domain.ATHState, error)
	Save(states map[string]domain.ATHState) error
}

// Tracker keeps one ATHState per pair under a single-writer discipline: all
// updates for a pair go through the tracker's lock, plans only read.
type Tracker struct {
	mu     sync.RWMutex
	states map[string]domain.ATHState
	store  store
	logger *zap.Logger
}

// NewTracker loads persisted state and returns a ready tracker. The store may
// be nil for purely in-memory use (simulation).
func NewTracker(logger *zap.Logger, st store) (*Tracker, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	states := map[string]domain.ATHState{}
	if st != nil {
		loaded, err := st.Load()
		if err != nil {
			return nil, errors.Wrap(err, "load ath state")
		}
		states = loaded
	}
	return &Tracker{states: states, store: st, logger: logger}, nil
}

// Update folds a snapshot into the pair's state and returns the new state.
// The running high never decreases here; only Override can lower it.
func (t *Tracker) Update(snap domain.MarketSnapshot) (domain.ATHState, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := snap.Pair.String()
	st, ok := t.states[key]
	if !ok {
		st = domain.ATHState{Pair: snap.Pair}
	}

	st = st.Apply(snap)
	t.states[key] = st

	if err := t.persistLocked(); err != nil {
		return st, err
	}
	return st, nil
}

// Override sets a user-specified manual high for the pair. The transition is
// recorded explicitly, never merged silently with live updates.
func (t *Tracker) Override(pair domain.Pair, manualHigh decimal.Decimal, at time.Time) (domain.ATHState, error) {
	if manualHigh.LessThanOrEqual(decimal.Zero) {
		return domain.ATHState{}, errors.Errorf("manual high must be positive, got %s", manualHigh.String())
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	key := pair.String()
	st, ok := t.states[key]
	if !ok {
		st = domain.ATHState{Pair: pair}
	}

	prev := st.ManualHigh
	st = st.WithOverride(manualHigh, at)
	t.states[key] = st

	t.logger.Info("manual ATH override",
		zap.String("pair", pair.String()),
		zap.String("previous", prev.String()),
		zap.String("new", manualHigh.String()))

	if err := t.persistLocked(); err != nil {
		return st, err
	}
	return st, nil
}

// State returns the current state for a pair; ok is false when the pair has
// never been observed.
func (t *Tracker) State(pair domain.Pair) (domain.ATHState, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.states[pair.String()]
	return st, ok
}

func (t *Tracker) persistLocked() error {
	if t.store == nil {
		return nil
	}
	if err := t.store.Save(t.states); err != nil {
		return errors.Wrap(domain.ErrPersistenceFailure, err.Error())
	}
	return nil
}
