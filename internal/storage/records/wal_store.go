// Package records persists the append-only execution log the dispatcher's
// idempotency guarantee rests on.
package records

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"

	"github.com/bitage/bitage/internal/domain"
)

const (
	segmentLimit = 1000
	maxSegments  = 100

	executionKeyPrefix = "exec_"
)

// WALStore is a WAL-backed execution record log. Records are append-only; an
// attempt's latest state is the last entry written for its idempotency key.
type WALStore struct {
	wal *gowal.Wal
	mu  sync.RWMutex
	// byKey holds the latest record per (rule, tick, fillSeq) key, rebuilt
	// from the WAL on open -- the crash recovery mechanism.
	byKey map[string]domain.ExecutionRecord
}

// NewWALStore opens (or creates) the log at dir and rebuilds the key index.
func NewWALStore(dir string) (*WALStore, error) {
	cfg := gowal.Config{
		Dir:              dir,
		Prefix:           "exec_log_",
		SegmentThreshold: segmentLimit,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	}

	wal, err := gowal.NewWAL(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "init execution WAL")
	}

	s := &WALStore{wal: wal, byKey: make(map[string]domain.ExecutionRecord)}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, executionKeyPrefix) {
			continue
		}
		var rec domain.ExecutionRecord
		if err := json.Unmarshal(msg.Value, &rec); err != nil {
			return nil, errors.Wrapf(err, "decode execution record %s", msg.Key)
		}
		s.byKey[rec.Key()] = rec
	}

	return s, nil
}

// Append writes the record; later writes for the same key supersede earlier
// ones in the index while the log keeps the full history.
func (s *WALStore) Append(rec domain.ExecutionRecord) error {
	if s == nil || s.wal == nil {
		return errors.New("execution store is not initialized")
	}
	if rec.RuleID == "" {
		return errors.New("execution record rule id is required")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal execution record")
	}

	key := fmt.Sprintf("%s%s", executionKeyPrefix, rec.Key())

	s.mu.Lock()
	defer s.mu.Unlock()

	nextIndex := s.wal.CurrentIndex() + 1
	if err := s.wal.Write(nextIndex, key, payload); err != nil {
		return errors.Wrap(domain.ErrPersistenceFailure, err.Error())
	}
	s.byKey[rec.Key()] = rec
	return nil
}

// Lookup returns the latest record for the idempotency key.
func (s *WALStore) Lookup(ruleID string, tick uint64, fillSeq int) (domain.ExecutionRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byKey[domain.ExecutionKey(ruleID, tick, fillSeq)]
	return rec, ok
}

// RecordsAfter returns records written after the provided WAL index, for
// streaming consumers.
func (s *WALStore) RecordsAfter(index uint64) ([]domain.ExecutionRecord, uint64, error) {
	if s == nil || s.wal == nil {
		return nil, 0, errors.New("execution store is not initialized")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	current := s.wal.CurrentIndex()
	if current <= index {
		return nil, current, nil
	}

	recs := make([]domain.ExecutionRecord, 0, current-index)
	for idx := index + 1; idx <= current; idx++ {
		key, payload, err := s.wal.Get(idx)
		if err != nil || !strings.HasPrefix(key, executionKeyPrefix) {
			continue
		}
		var rec domain.ExecutionRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return nil, current, errors.Wrap(err, "decode execution record")
		}
		recs = append(recs, rec)
	}

	return recs, current, nil
}

// CurrentIndex returns the latest WAL index stored.
func (s *WALStore) CurrentIndex() uint64 {
	if s == nil || s.wal == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.wal.CurrentIndex()
}

// Close closes the underlying WAL.
func (s *WALStore) Close() error {
	if s == nil || s.wal == nil {
		return errors.New("execution store is not initialized")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.wal.Close()
}
