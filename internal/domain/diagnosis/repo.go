package diagnosis

import "context"

// RecordRepository stores diagnosis records. List order is unspecified.
type RecordRepository interface {
	List(ctx context.Context) ([]*Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, r *Record) error
	Delete(ctx context.Context, id string) error
	// DeleteByRawText removes the first record whose raw classifier text
	// equals rawText exactly and reports whether one was found.
	DeleteByRawText(ctx context.Context, rawText string) (bool, error)
}
