package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/eyedx/eyedx/internal/platform/fsutil"
)

const recordExt = ".json"

// Record ids double as file names: UUIDs for new records, millisecond
// timestamps for documents written by the mobile client.
var recordIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

type fileRecordRepo struct {
	dir string
	mu  sync.RWMutex
}

// NewFileRecordRepo stores one JSON document per record in dir. The
// directory is created on first save.
func NewFileRecordRepo(dir string) RecordRepository {
	return &fileRecordRepo{dir: dir}
}

func (r *fileRecordRepo) path(id string) string {
	return filepath.Join(r.dir, id+recordExt)
}

func (r *fileRecordRepo) List(ctx context.Context) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names, err := r.names()
	if err != nil {
		return nil, err
	}
	records := make([]*Record, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.read(name)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func (r *fileRecordRepo) Get(_ context.Context, id string) (*Record, error) {
	if !recordIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, err := r.read(id + recordExt)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rec, err
}

func (r *fileRecordRepo) Save(_ context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if !recordIDPattern.MatchString(rec.ID) {
		return fmt.Errorf("%w: invalid record id %q", ErrStorage, rec.ID)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode record: %v", ErrStorage, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := fsutil.WriteFileAtomic(r.path(rec.ID), data); err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (r *fileRecordRepo) Delete(_ context.Context, id string) error {
	if !recordIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	err := os.Remove(r.path(id))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

// DeleteByRawText parses every document before touching any, so a store
// that cannot be listed is never modified.
func (r *fileRecordRepo) DeleteByRawText(ctx context.Context, rawText string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	names, err := r.names()
	if err != nil {
		return false, err
	}
	match := ""
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		rec, err := r.read(name)
		if err != nil {
			return false, err
		}
		if match == "" && rec.RawText == rawText {
			match = name
		}
	}
	if match == "" {
		return false, nil
	}
	if err := os.Remove(filepath.Join(r.dir, match)); err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return true, nil
}

// names lists record documents in directory order. A store that has never
// been written to is empty, not an error.
func (r *fileRecordRepo) names() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: list %s: %v", ErrStorage, r.dir, err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}

func (r *fileRecordRepo) read(name string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrStorage, name, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, name, err)
	}
	if rec.ID == "" {
		rec.ID = strings.TrimSuffix(name, recordExt)
	}
	rec.normalize()
	return &rec, nil
}
