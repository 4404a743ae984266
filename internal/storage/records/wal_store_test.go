package records

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bitage/bitage/internal/domain"
)

var testPair = domain.Pair{From: "BTC", To: "USDT"}

func record(ruleID string, tick uint64, fillSeq int, status domain.ExecutionStatus) domain.ExecutionRecord {
	return domain.ExecutionRecord{
		RuleID:    ruleID,
		PlanID:    "plan1",
		Tick:      tick,
		FillSeq:   fillSeq,
		Side:      domain.SideBuy,
		Pair:      testPair,
		Requested: decimal.RequireFromString("0.5"),
		Status:    status,
		Time:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestWALStoreAppendAndLookup(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(record("r1", 3, 0, domain.ExecutionPending)))

	rec, ok := store.Lookup("r1", 3, 0)
	require.True(t, ok)
	require.Equal(t, domain.ExecutionPending, rec.Status)

	// a later write for the same key supersedes the earlier one
	committed := record("r1", 3, 0, domain.ExecutionCommitted)
	committed.FilledQty = decimal.RequireFromString("0.5")
	require.NoError(t, store.Append(committed))

	rec, ok = store.Lookup("r1", 3, 0)
	require.True(t, ok)
	require.Equal(t, domain.ExecutionCommitted, rec.Status)

	_, ok = store.Lookup("r1", 4, 0)
	require.False(t, ok)
}

func TestWALStoreRejectsEmptyRuleID(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.Error(t, store.Append(record("", 0, 0, domain.ExecutionPending)))
}

func TestWALStoreRebuildsIndexOnReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := NewWALStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Append(record("r1", 3, 0, domain.ExecutionPending)))
	require.NoError(t, store.Append(record("r1", 3, 0, domain.ExecutionCommitted)))
	require.NoError(t, store.Append(record("r2", 3, 0, domain.ExecutionFailed)))
	require.NoError(t, store.Close())

	reopened, err := NewWALStore(dir)
	require.NoError(t, err)
	defer reopened.Close()

	rec, ok := reopened.Lookup("r1", 3, 0)
	require.True(t, ok)
	require.Equal(t, domain.ExecutionCommitted, rec.Status,
		"index must hold the latest state per key after recovery")

	rec, ok = reopened.Lookup("r2", 3, 0)
	require.True(t, ok)
	require.Equal(t, domain.ExecutionFailed, rec.Status)
}

func TestWALStoreRecordsAfter(t *testing.T) {
	store, err := NewWALStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Append(record("r1", 1, 0, domain.ExecutionCommitted)))
	first := store.CurrentIndex()
	require.NoError(t, store.Append(record("r2", 1, 0, domain.ExecutionCommitted)))
	require.NoError(t, store.Append(record("r3", 1, 0, domain.ExecutionCommitted)))

	recs, current, err := store.RecordsAfter(first)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	require.Equal(t, "r2", recs[0].RuleID)
	require.Equal(t, "r3", recs[1].RuleID)
	require.Equal(t, store.CurrentIndex(), current)

	recs, _, err = store.RecordsAfter(current)
	require.NoError(t, err)
	require.Empty(t, recs)
}
