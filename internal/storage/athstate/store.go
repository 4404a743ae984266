// Package athstate persists all-time-high state per pair so restarts keep the
// running high and the observed max drawdown.
package athstate

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/bitage/bitage/internal/domain"
)

const stateFileName = "athstate.json"

// Store writes the full ATH state map atomically via a temp file rename.
type Store struct {
	path string
}

// NewStore creates a store rooted at dir, creating the directory when needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create ath state dir")
	}
	return &Store{path: filepath.Join(dir, stateFileName)}, nil
}

// Load reads the persisted state map; a missing file yields an empty map.
func (s *Store) Load() (map[string]domain.ATHState, error) {
	payload, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]domain.ATHState{}, nil
		}
		return nil, errors.Wrap(err, "read ath state")
	}
	if len(payload) == 0 {
		return map[string]domain.ATHState{}, nil
	}

	var states map[string]domain.ATHState
	if err := json.Unmarshal(payload, &states); err != nil {
		return nil, errors.Wrap(err, "decode ath state")
	}
	return states, nil
}

// Save writes the state map to disk atomically.
func (s *Store) Save(states map[string]domain.ATHState) error {
	payload, err := json.MarshalIndent(states, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode ath state")
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(err, "write ath state temp file")
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return errors.Wrap(err, "persist ath state")
	}
	return nil
}
