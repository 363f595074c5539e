// Package imagestore keeps the eye-surface photographs attached to a diagnosis.
// Images are addressed by a random id and exposed to the rest of the system as
// a file:// URI, the same shape the mobile client's image picker produces.
package imagestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"
)

var (
	ErrImageNotFound      = errors.New("image not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrEmptyFile          = errors.New("file is empty")
)

// DefaultMaxFileSize matches the MAX_IMAGE_BYTES default (10 MiB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// AllowedContentTypes maps accepted MIME types to the extension used on disk.
var AllowedContentTypes = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
}

// Metadata describes a stored image.
type Metadata struct {
	ID          string    `json:"id"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	URI         string    `json:"uri"`
	CreatedAt   time.Time `json:"created_at"`
	CreatedBy   string    `json:"created_by,omitempty"`
}

// Store is implemented by FileStore and MemoryStore.
type Store interface {
	Upload(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	Open(ctx context.Context, id string) (io.ReadCloser, *Metadata, error)
	GetMetadata(ctx context.Context, id string) (*Metadata, error)
	Delete(ctx context.Context, id string) error
}

// sniff reads the head of content to determine its MIME type and returns a
// reader that still yields the full content.
func sniff(content io.Reader) (string, io.Reader, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	if n == 0 {
		return "", nil, ErrEmptyFile
	}
	head = head[:n]
	ct := http.DetectContentType(head)
	if _, ok := AllowedContentTypes[ct]; !ok {
		return ct, nil, ErrInvalidContentType
	}
	return ct, io.MultiReader(bytes.NewReader(head), content), nil
}
