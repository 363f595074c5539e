package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/eyedx/eyedx/internal/platform/fsutil"
)

var ErrNoLegacyIntake = errors.New("no intake saved")

// LegacyStore is the single-slot patient_data.json written by the
// intake-only save flow. Each Save replaces the previous intake. It is kept
// apart from the diagnosis record directory on purpose.
type LegacyStore struct {
	path string
	mu   sync.Mutex
}

func NewLegacyStore(path string) *LegacyStore {
	return &LegacyStore{path: path}
}

func (s *LegacyStore) Path() string { return s.path }

func (s *LegacyStore) Save(_ context.Context, p PatientIntake) error {
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode intake: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fsutil.WriteFileAtomic(s.path, raw); err != nil {
		return fmt.Errorf("save intake: %w", err)
	}
	return nil
}

// Load returns ErrNoLegacyIntake when nothing has been saved yet.
func (s *LegacyStore) Load(_ context.Context) (PatientIntake, error) {
	s.mu.Lock()
	raw, err := os.ReadFile(s.path)
	s.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return PatientIntake{}, ErrNoLegacyIntake
	}
	if err != nil {
		return PatientIntake{}, fmt.Errorf("read %s: %w", s.path, err)
	}

	var p PatientIntake
	if err := json.Unmarshal(raw, &p); err != nil {
		return PatientIntake{}, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return p, nil
}
