package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dharsanguruparan/ReelDrop/internal/model"
	"github.com/dharsanguruparan/ReelDrop/internal/storage"
)

// MediaRepository stores media records in Postgres.
type MediaRepository struct {
	pool *pgxpool.Pool
}

// NewMediaRepository constructs a repository.
func NewMediaRepository(pool *pgxpool.Pool) *MediaRepository {
	return &MediaRepository{pool: pool}
}

// Put upserts rec; every column is replaced on conflict.
func (r *MediaRepository) Put(ctx context.Context, rec *model.MediaRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO media_records (external_id, title, delivery_url, thumbnail_url, size_bytes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (external_id) DO UPDATE SET
			title = EXCLUDED.title,
			delivery_url = EXCLUDED.delivery_url,
			thumbnail_url = EXCLUDED.thumbnail_url,
			size_bytes = EXCLUDED.size_bytes,
			created_at = EXCLUDED.created_at
	`, rec.ExternalID, rec.Title, rec.DeliveryURL, rec.ThumbnailURL, rec.SizeBytes, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert media record: %w", err)
	}
	return nil
}

// Get returns the record for externalID or storage.ErrNotFound.
func (r *MediaRepository) Get(ctx context.Context, externalID string) (*model.MediaRecord, error) {
	var rec model.MediaRecord
	row := r.pool.QueryRow(ctx, `
		SELECT external_id, title, delivery_url, thumbnail_url, size_bytes, created_at
		FROM media_records WHERE external_id=$1
	`, externalID)
	if err := row.Scan(&rec.ExternalID, &rec.Title, &rec.DeliveryURL, &rec.ThumbnailURL, &rec.SizeBytes, &rec.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("select media record: %w", err)
	}
	return &rec, nil
}

// Delete removes the record for externalID.
func (r *MediaRepository) Delete(ctx context.Context, externalID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM media_records WHERE external_id=$1`, externalID); err != nil {
		return fmt.Errorf("delete media record: %w", err)
	}
	return nil
}
