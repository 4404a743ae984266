package planstate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bitage/bitage/internal/domain"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	state := &domain.PlanState{
		PlanID:              "btc-dca",
		LastEvaluatedTick:   7,
		Evaluated:           true,
		RemainingAllocation: decimal.NewFromInt(900),
		Position:            decimal.RequireFromString("0.0025"),
		Rules: map[string]*domain.RuleState{
			"r1": {
				RuleID:        "r1",
				EverFired:     true,
				LastFiredTick: 7,
				NextFillSeq:   1,
				FireCount:     1,
			},
		},
	}
	require.NoError(t, store.Save(state))

	loaded, err := store.Load("btc-dca")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	require.Equal(t, uint64(7), loaded.LastEvaluatedTick)
	require.True(t, loaded.Evaluated)
	require.True(t, loaded.Position.Equal(decimal.RequireFromString("0.0025")))
	require.Equal(t, 1, loaded.Rules["r1"].NextFillSeq)
}

func TestStoreMissingPlanYieldsNil(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	loaded, err := store.Load("never-saved")
	require.NoError(t, err)
	require.Nil(t, loaded)
}

func TestStoreRejectsEmptyPlanID(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	require.Error(t, store.Save(&domain.PlanState{}))
	require.Error(t, store.Save(nil))
}

func TestStoreOverwrite(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	state := &domain.PlanState{PlanID: "p", LastEvaluatedTick: 1, Evaluated: true}
	require.NoError(t, store.Save(state))
	state.LastEvaluatedTick = 2
	require.NoError(t, store.Save(state))

	loaded, err := store.Load("p")
	require.NoError(t, err)
	require.Equal(t, uint64(2), loaded.LastEvaluatedTick)
}
