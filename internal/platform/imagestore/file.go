package imagestore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
)

var idPattern = regexp.MustCompile(`^[0-9a-f-]{36}$`)

// FileStore writes each image as <id><ext> next to a <id>.meta.json sidecar.
type FileStore struct {
	dir     string
	maxSize int64
	mu      sync.Mutex
}

func NewFileStore(dir string, maxSize int64) *FileStore {
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}
	return &FileStore{dir: dir, maxSize: maxSize}
}

func (s *FileStore) Upload(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	ct, body, err := sniff(content)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}

	meta.ID = uuid.NewString()
	meta.ContentType = ct
	path := filepath.Join(s.dir, meta.ID+AllowedContentTypes[ct])

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(body, s.maxSize+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write image: %w", err)
	}
	if n > s.maxSize {
		return nil, ErrFileTooLarge
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve image path: %w", err)
	}
	meta.Size = n
	meta.Hash = fmt.Sprintf("%x", h.Sum(nil))
	meta.URI = (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String()
	meta.CreatedAt = time.Now().UTC()

	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode image metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return nil, fmt.Errorf("chmod image: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nil, fmt.Errorf("store image: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), raw, 0o600); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("write image metadata: %w", err)
	}

	out := meta
	return &out, nil
}

func (s *FileStore) metaPath(id string) string {
	return filepath.Join(s.dir, id+".meta.json")
}

func (s *FileStore) GetMetadata(_ context.Context, id string) (*Metadata, error) {
	if !idPattern.MatchString(id) {
		return nil, ErrImageNotFound
	}
	raw, err := os.ReadFile(s.metaPath(id))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read image metadata: %w", err)
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode image metadata %s: %w", id, err)
	}
	return &meta, nil
}

func (s *FileStore) Open(ctx context.Context, id string) (io.ReadCloser, *Metadata, error) {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, id+AllowedContentTypes[meta.ContentType]))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, ErrImageNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open image: %w", err)
	}
	return f, meta, nil
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	meta, err := s.GetMetadata(ctx, id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(filepath.Join(s.dir, id+AllowedContentTypes[meta.ContentType])); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete image: %w", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete image metadata: %w", err)
	}
	return nil
}
