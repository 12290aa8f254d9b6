package listings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nestfolio/backend/internal/models"
)

// ErrNotFound is returned when a listing does not exist.
var ErrNotFound = errors.New("listing not found")

const listingColumns = `id, collection_id, payload, created_by, created_at, updated_at`

// Repository provides listing data access backed by Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a listings repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var l models.Listing
	err := row.Scan(&l.ID, &l.CollectionID, &l.Payload, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan listing: %w", err)
	}
	return &l, nil
}

// Create inserts a listing into a collection.
func (r *Repository) Create(ctx context.Context, collectionID, createdBy uuid.UUID, payload json.RawMessage) (*models.Listing, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO listings (collection_id, payload, created_by)
		VALUES ($1, $2, $3)
		RETURNING `+listingColumns, collectionID, payload, createdBy)
	l, err := scanListing(row)
	if err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	return l, nil
}

// GetByID fetches one listing.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+listingColumns+` FROM listings WHERE id = $1`, id)
	return scanListing(row)
}

// ListForCollection returns a collection's listings, newest first.
func (r *Repository) ListForCollection(ctx context.Context, collectionID uuid.UUID) ([]models.Listing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+listingColumns+`
		FROM listings
		WHERE collection_id = $1
		ORDER BY created_at DESC`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	var out []models.Listing
	for rows.Next() {
		var l models.Listing
		if err := rows.Scan(&l.ID, &l.CollectionID, &l.Payload, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// CountForCollection returns how many listings a collection holds.
func (r *Repository) CountForCollection(ctx context.Context, collectionID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM listings WHERE collection_id = $1`, collectionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count listings: %w", err)
	}
	return n, nil
}

// UpdatePayload replaces a listing's payload.
func (r *Repository) UpdatePayload(ctx context.Context, id uuid.UUID, payload json.RawMessage) (*models.Listing, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE listings
		SET payload = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+listingColumns, id, payload)
	return scanListing(row)
}

// Delete removes a listing.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM listings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete listing: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
