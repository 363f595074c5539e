package profile

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

type Repository interface {
	Get(ctx context.Context) (*Profile, error)
	Put(ctx context.Context, p *Profile) error
}

type fileRepo struct {
	path string
	mu   sync.Mutex
}

// NewFileRepo keeps the profile in a single JSON file at path.
func NewFileRepo(path string) Repository {
	return &fileRepo{path: path}
}

// Get returns the defaults until a profile has been saved.
func (r *fileRepo) Get(_ context.Context) (*Profile, error) {
	r.mu.Lock()
	raw, err := os.ReadFile(r.path)
	r.mu.Unlock()
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &p, nil
}

func (r *fileRepo) Put(_ context.Context, p *Profile) error {
	raw, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return fsutil.WriteFileAtomic(r.path, raw)
}
