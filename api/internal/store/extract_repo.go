package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrNotFound = sql.ErrNoRows

// ExtractRepo caches recognized text per (image_hash, engine, model).
type ExtractRepo struct{ DB *sql.DB }

func NewExtractRepo(db *sql.DB) *ExtractRepo { return &ExtractRepo{DB: db} }

// Find returns cached text. Entries older than maxAge (when > 0) count as missing.
func (r *ExtractRepo) Find(ctx context.Context, imageHash, engine, model string, maxAge time.Duration) (string, error) {
	const q = `select text, created_at
	           from extract_cache
	           where image_hash=$1 and engine=$2 and model=$3`
	var (
		text string
		ts   time.Time
	)
	if err := r.DB.QueryRowContext(ctx, q, imageHash, engine, model).Scan(&text, &ts); err != nil {
		return "", err
	}
	if maxAge > 0 && time.Since(ts) > maxAge {
		return "", ErrNotFound
	}
	return text, nil
}

// Upsert stores or refreshes an entry.
func (r *ExtractRepo) Upsert(ctx context.Context, imageHash, engine, model, text string) error {
	const q = `
insert into extract_cache(image_hash, engine, model, text)
values ($1,$2,$3,$4)
on conflict (image_hash, engine, model)
do update set text=excluded.text, created_at=now()`
	_, err := r.DB.ExecContext(ctx, q, imageHash, engine, model, text)
	return err
}

// PurgeOlderThan deletes stale entries so the table does not grow without bound.
func (r *ExtractRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	const q = `delete from extract_cache where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
