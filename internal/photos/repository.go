package photos

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nestfolio/backend/internal/models"
)

// ErrNotFound is returned when a photo row does not exist.
var ErrNotFound = errors.New("photo not found")

const photoColumns = `id, listing_id, object_key, file_name, content_type, size_bytes, created_at`

// Repository provides listing photo data access backed by Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a photos repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanPhoto(row pgx.Row) (*models.ListingPhoto, error) {
	var p models.ListingPhoto
	err := row.Scan(&p.ID, &p.ListingID, &p.ObjectKey, &p.FileName, &p.ContentType, &p.SizeBytes, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan photo: %w", err)
	}
	return &p, nil
}

// Create records an uploaded photo.
func (r *Repository) Create(ctx context.Context, listingID uuid.UUID, objectKey, fileName, contentType string, sizeBytes int64) (*models.ListingPhoto, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO listing_photos (listing_id, object_key, file_name, content_type, size_bytes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+photoColumns,
		listingID, objectKey, fileName, contentType, sizeBytes)
	p, err := scanPhoto(row)
	if err != nil {
		return nil, fmt.Errorf("create photo: %w", err)
	}
	return p, nil
}

// GetByID fetches one photo row.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.ListingPhoto, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+photoColumns+` FROM listing_photos WHERE id = $1`, id)
	return scanPhoto(row)
}

// ListForListing returns a listing's photos, oldest first.
func (r *Repository) ListForListing(ctx context.Context, listingID uuid.UUID) ([]models.ListingPhoto, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+photoColumns+`
		FROM listing_photos
		WHERE listing_id = $1
		ORDER BY created_at ASC`, listingID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var out []models.ListingPhoto
	for rows.Next() {
		var p models.ListingPhoto
		if err := rows.Scan(&p.ID, &p.ListingID, &p.ObjectKey, &p.FileName, &p.ContentType, &p.SizeBytes, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListKeysForListing returns just the object keys, for cleanup jobs.
func (r *Repository) ListKeysForListing(ctx context.Context, listingID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT object_key FROM listing_photos WHERE listing_id = $1`, listingID)
	if err != nil {
		return nil, fmt.Errorf("list photo keys: %w", err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

// ListKeysForCollection returns the object keys of every photo under a
// collection's listings. Collected before the row cascade so the worker
// can remove the S3 objects afterwards.
func (r *Repository) ListKeysForCollection(ctx context.Context, collectionID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT p.object_key
		FROM listing_photos p
		JOIN listings l ON l.id = p.listing_id
		WHERE l.collection_id = $1`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list collection photo keys: %w", err)
	}
	defer rows.Close()
	return scanKeys(rows)
}

func scanKeys(rows pgx.Rows) ([]string, error) {
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan photo key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Delete removes a photo row.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM listing_photos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
