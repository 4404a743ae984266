package ath

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bitage/bitage/internal/domain"
)

var testPair = domain.Pair{From: "BTC", To: "USDT"}

type memoryStore struct {
	states map[string]domain.ATHState
	saves  int
}

func (s *memoryStore) Load() (map[string]domain.ATHState, error) {
	if s.states == nil {
		return map[string]domain.ATHState{}, nil
	}
	return s.states, nil
}

func (s *memoryStore) Save(states map[string]domain.ATHState) error {
	s.saves++
	copied := make(map[string]domain.ATHState, len(states))
	for k, v := range states {
		copied[k] = v
	}
	s.states = copied
	return nil
}

func snapAt(price int64, at time.Time) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		Pair:      testPair,
		Price:     decimal.NewFromInt(price),
		Timestamp: at,
		Source:    "test",
	}
}

func TestTrackerRunningHighIsMonotonic(t *testing.T) {
	tracker, err := NewTracker(nil, nil)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	st, err := tracker.Update(snapAt(50000, base))
	require.NoError(t, err)
	require.True(t, st.RunningHigh.Equal(decimal.NewFromInt(50000)))

	// a lower price never lowers the high, only deepens observed drawdown
	st, err = tracker.Update(snapAt(40000, base.Add(time.Minute)))
	require.NoError(t, err)
	require.True(t, st.RunningHigh.Equal(decimal.NewFromInt(50000)))
	require.True(t, st.MaxDropPctSeen.Equal(decimal.RequireFromString("0.2")))

	st, err = tracker.Update(snapAt(55000, base.Add(2*time.Minute)))
	require.NoError(t, err)
	require.True(t, st.RunningHigh.Equal(decimal.NewFromInt(55000)))
	require.True(t, st.MaxDropPctSeen.Equal(decimal.RequireFromString("0.2")),
		"max drawdown is a watermark, a new high must not reset it")
}

func TestTrackerOverride(t *testing.T) {
	tracker, err := NewTracker(nil, nil)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = tracker.Update(snapAt(50000, base))
	require.NoError(t, err)

	st, err := tracker.Override(testPair, decimal.NewFromInt(60000), base.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, st.ManualHigh.Equal(decimal.NewFromInt(60000)))
	require.True(t, st.RunningHigh.Equal(decimal.NewFromInt(50000)),
		"override must not touch the live running high")
	require.True(t, st.SellReference().Equal(decimal.NewFromInt(60000)))

	_, err = tracker.Override(testPair, decimal.Zero, base)
	require.Error(t, err, "non-positive manual high must be rejected")
}

func TestTrackerPersistsAcrossRestart(t *testing.T) {
	store := &memoryStore{}
	tracker, err := NewTracker(nil, store)
	require.NoError(t, err)

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	_, err = tracker.Update(snapAt(50000, base))
	require.NoError(t, err)
	_, err = tracker.Override(testPair, decimal.NewFromInt(65000), base.Add(time.Minute))
	require.NoError(t, err)
	require.Equal(t, 2, store.saves)

	reopened, err := NewTracker(nil, store)
	require.NoError(t, err)

	st, ok := reopened.State(testPair)
	require.True(t, ok)
	require.True(t, st.RunningHigh.Equal(decimal.NewFromInt(50000)))
	require.True(t, st.ManualHigh.Equal(decimal.NewFromInt(65000)))
}

func TestTrackerUnknownPair(t *testing.T) {
	tracker, err := NewTracker(nil, nil)
	require.NoError(t, err)

	_, ok := tracker.State(domain.Pair{From: "ETH", To: "USDT"})
	require.False(t, ok)
}
