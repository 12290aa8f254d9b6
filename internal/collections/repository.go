package collections

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nestfolio/backend/internal/models"
)

var (
	// ErrNotFound is returned when a collection does not exist.
	ErrNotFound = errors.New("collection not found")
	// ErrSoleDefault is returned when deleting a user's only default
	// collection with nothing to promote in its place.
	ErrSoleDefault = errors.New("cannot delete the only collection")
)

// DefaultCollectionName is given to the collection created on signup.
const DefaultCollectionName = "My Collection"

const collectionColumns = `id, user_id, organization_id, name, description, is_default, is_public, share_token, created_at, updated_at`

// Repository provides collection data access backed by Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a collections repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func scanCollection(row pgx.Row) (*models.Collection, error) {
	var c models.Collection
	err := row.Scan(&c.ID, &c.UserID, &c.OrganizationID, &c.Name, &c.Description,
		&c.IsDefault, &c.IsPublic, &c.ShareToken, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan collection: %w", err)
	}
	return &c, nil
}

// EnsureDefault creates the signup default collection if the user has no
// default yet. A unique partial index backs the one-default-per-user rule,
// so a concurrent winner is treated as success.
func (r *Repository) EnsureDefault(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO collections (user_id, name, is_default)
		SELECT $1, $2, TRUE
		WHERE NOT EXISTS (
			SELECT 1 FROM collections WHERE user_id = $1 AND is_default
		)`, userID, DefaultCollectionName)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil
		}
		return fmt.Errorf("ensure default collection: %w", err)
	}
	return nil
}

// Create inserts a collection owned by either a user or an organization.
func (r *Repository) Create(ctx context.Context, userID, orgID *uuid.UUID, name, description string) (*models.Collection, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO collections (user_id, organization_id, name, description)
		VALUES ($1, $2, $3, $4)
		RETURNING `+collectionColumns,
		userID, orgID, name, description)
	c, err := scanCollection(row)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return c, nil
}

// GetByID fetches one collection.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+collectionColumns+` FROM collections WHERE id = $1`, id)
	return scanCollection(row)
}

// GetByShareToken fetches a collection by its share token, public or not.
// The caller decides how to treat a revoked (non-public) hit.
func (r *Repository) GetByShareToken(ctx context.Context, token string) (*models.Collection, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+collectionColumns+` FROM collections WHERE share_token = $1`, token)
	return scanCollection(row)
}

// ListForUser returns the caller's personal collections plus every
// collection of an organization they belong to, oldest first.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Collection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT c.id, c.user_id, c.organization_id, c.name, c.description,
		       c.is_default, c.is_public, c.share_token, c.created_at, c.updated_at
		FROM collections c
		LEFT JOIN organization_members m
			ON m.organization_id = c.organization_id AND m.user_id = $1
		WHERE c.user_id = $1 OR m.user_id IS NOT NULL
		ORDER BY c.created_at ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

// ListForOrg returns an organization's collections, oldest first.
func (r *Repository) ListForOrg(ctx context.Context, orgID uuid.UUID) ([]models.Collection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+collectionColumns+`
		FROM collections
		WHERE organization_id = $1
		ORDER BY created_at ASC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list org collections: %w", err)
	}
	defer rows.Close()
	return collectRows(rows)
}

func collectRows(rows pgx.Rows) ([]models.Collection, error) {
	var out []models.Collection
	for rows.Next() {
		var c models.Collection
		if err := rows.Scan(&c.ID, &c.UserID, &c.OrganizationID, &c.Name, &c.Description,
			&c.IsDefault, &c.IsPublic, &c.ShareToken, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountPersonal returns how many personal collections a user owns. Plan
// caps count personal collections only.
func (r *Repository) CountPersonal(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM collections WHERE user_id = $1`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count personal collections: %w", err)
	}
	return n, nil
}

// Update patches name and/or description.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name, description *string) (*models.Collection, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE collections
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+collectionColumns, id, name, description)
	return scanCollection(row)
}

// Delete removes a collection. Deleting a user's default collection
// promotes their oldest remaining personal collection in the same
// transaction; a default with no successor is refused.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete collection: %w", err)
	}
	defer tx.Rollback(ctx)

	var userID *uuid.UUID
	var isDefault bool
	err = tx.QueryRow(ctx, `SELECT user_id, is_default FROM collections WHERE id = $1 FOR UPDATE`, id).
		Scan(&userID, &isDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock collection: %w", err)
	}

	var successor *uuid.UUID
	if userID != nil && isDefault {
		var next uuid.UUID
		err = tx.QueryRow(ctx, `
			SELECT id FROM collections
			WHERE user_id = $1 AND id <> $2
			ORDER BY created_at ASC
			LIMIT 1
			FOR UPDATE`, *userID, id).Scan(&next)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSoleDefault
		}
		if err != nil {
			return fmt.Errorf("find successor collection: %w", err)
		}
		successor = &next
	}

	if _, err := tx.Exec(ctx, `DELETE FROM collections WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	// Promotion runs after the delete so the one-default-per-user index
	// never sees two defaults.
	if successor != nil {
		if _, err := tx.Exec(ctx, `UPDATE collections SET is_default = TRUE, updated_at = NOW() WHERE id = $1`, *successor); err != nil {
			return fmt.Errorf("promote successor collection: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// EnableSharing marks the collection public. An existing token is reused
// so repeated shares hand out the same link; otherwise the supplied token
// is stored.
func (r *Repository) EnableSharing(ctx context.Context, id uuid.UUID, token string) (*models.Collection, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE collections
		SET is_public = TRUE,
		    share_token = COALESCE(share_token, $2),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+collectionColumns, id, token)
	return scanCollection(row)
}

// RevokeSharing flips the collection private. The token row is kept so a
// stale link resolves to a revoked collection rather than an unknown one.
func (r *Repository) RevokeSharing(ctx context.Context, id uuid.UUID) (*models.Collection, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE collections
		SET is_public = FALSE, updated_at = NOW()
		WHERE id = $1
		RETURNING `+collectionColumns, id)
	return scanCollection(row)
}
