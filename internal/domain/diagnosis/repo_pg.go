package diagnosis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eyedx/eyedx/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type recordRepoPG struct{ pool *pgxpool.Pool }

func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const recordCols = `id, patient, raw_text, classification, definitive_diagnosis,
	diagnosis_date, update_date, image_uri`

func (r *recordRepoPG) scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec            Record
		patient        []byte
		classification []byte
		updated        *time.Time
	)
	if err := row.Scan(&rec.ID, &patient, &rec.RawText, &classification, &rec.DefinitiveDiagnosis,
		&rec.CreatedAt, &updated, &rec.ImageURI); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(patient, &rec.Patient); err != nil {
		return nil, fmt.Errorf("%w: record %s patient: %v", ErrParse, rec.ID, err)
	}
	if len(classification) > 0 {
		if err := json.Unmarshal(classification, &rec.Classification); err != nil {
			return nil, fmt.Errorf("%w: record %s classification: %v", ErrParse, rec.ID, err)
		}
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	if updated != nil {
		u := updated.UTC()
		rec.UpdatedAt = &u
	}
	rec.normalize()
	return &rec, nil
}

func (r *recordRepoPG) List(ctx context.Context) ([]*Record, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+recordCols+` FROM diagnosis_records ORDER BY diagnosis_date DESC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	defer rows.Close()

	var items []*Record
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, storageErr(err)
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return items, nil
}

func (r *recordRepoPG) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := r.scanRecord(r.conn(ctx).QueryRow(ctx, `SELECT `+recordCols+` FROM diagnosis_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, storageErr(err)
	}
	return rec, nil
}

func (r *recordRepoPG) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	// timestamptz keeps microseconds; match it so a saved record reads back equal.
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Microsecond)
	if rec.UpdatedAt != nil {
		u := rec.UpdatedAt.UTC().Truncate(time.Microsecond)
		rec.UpdatedAt = &u
	}
	patient, err := json.Marshal(rec.Patient)
	if err != nil {
		return fmt.Errorf("%w: encode patient: %v", ErrStorage, err)
	}
	classification, err := json.Marshal(rec.Classification)
	if err != nil {
		return fmt.Errorf("%w: encode classification: %v", ErrStorage, err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO diagnosis_records (id, patient, raw_text, classification,
			definitive_diagnosis, diagnosis_date, update_date, image_uri)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET patient=$2, raw_text=$3, classification=$4,
			definitive_diagnosis=$5, diagnosis_date=$6, update_date=$7, image_uri=$8`,
		rec.ID, patient, rec.RawText, classification,
		rec.DefinitiveDiagnosis, rec.CreatedAt, rec.UpdatedAt, rec.ImageURI)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return nil
}

func (r *recordRepoPG) Delete(ctx context.Context, id string) error {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM diagnosis_records WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (r *recordRepoPG) DeleteByRawText(ctx context.Context, rawText string) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		DELETE FROM diagnosis_records WHERE id = (
			SELECT id FROM diagnosis_records WHERE md5(raw_text) = md5($1) AND raw_text = $1
			ORDER BY diagnosis_date, id LIMIT 1)`, rawText)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return tag.RowsAffected() > 0, nil
}

func storageErr(err error) error {
	if errors.Is(err, ErrParse) || errors.Is(err, ErrStorage) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
