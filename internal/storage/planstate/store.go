// Package planstate persists each plan's mutable execution state so restarts
// resume from the last fully dispatched tick.
package planstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/bitage/bitage/internal/domain"
)

// Store writes one JSON file per plan, atomically via temp file rename.
type Store struct {
	dir string
}

// NewStore creates a plan state store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "create plan state dir")
	}
	return &Store{dir: dir}, nil
}

// Load reads the state for a plan id; a missing file yields (nil, nil) so the
// caller can initialize fresh state.
func (s *Store) Load(planID string) (*domain.PlanState, error) {
	payload, err := os.ReadFile(s.path(planID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "read plan state")
	}
	if len(payload) == 0 {
		return nil, nil
	}

	var state domain.PlanState
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, errors.Wrap(err, "decode plan state")
	}
	return &state, nil
}

// Save writes the state to disk atomically.
func (s *Store) Save(state *domain.PlanState) error {
	if state == nil || state.PlanID == "" {
		return errors.New("plan state with a plan id is required")
	}

	payload, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode plan state")
	}

	path := s.path(state.PlanID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return errors.Wrap(domain.ErrPersistenceFailure, err.Error())
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(domain.ErrPersistenceFailure, err.Error())
	}
	return nil
}

func (s *Store) path(planID string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", sanitize(planID)))
}

func sanitize(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))

	var b strings.Builder
	prevUnderscore := false
	for _, r := range value {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
			prevUnderscore = false
			continue
		}
		if !prevUnderscore {
			b.WriteByte('_')
			prevUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
