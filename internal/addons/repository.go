package addons

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nestfolio/backend/internal/models"
)

var (
	// ErrAddonNotFound is returned when no addon matches the slug.
	ErrAddonNotFound = errors.New("addon not found")
	// ErrGrantNotFound is returned when no grant row matches.
	ErrGrantNotFound = errors.New("addon grant not found")
)

// Repository handles addon catalog and grant persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an addons repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListCatalog returns all addons.
func (r *Repository) ListCatalog(ctx context.Context) ([]models.Addon, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, slug, name, description, price_cents, created_at, updated_at
		 FROM addons ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Addon
	for rows.Next() {
		var a models.Addon
		if err := rows.Scan(&a.ID, &a.Slug, &a.Name, &a.Description, &a.PriceCents, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

// GetAddonBySlug returns an addon by slug.
func (r *Repository) GetAddonBySlug(ctx context.Context, slug string) (*models.Addon, error) {
	var a models.Addon
	err := r.pool.QueryRow(ctx,
		`SELECT id, slug, name, description, price_cents, created_at, updated_at
		 FROM addons WHERE slug = $1`, slug).
		Scan(&a.ID, &a.Slug, &a.Name, &a.Description, &a.PriceCents, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAddonNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func scanGrants(rows pgx.Rows) ([]models.AddonGrant, error) {
	defer rows.Close()
	var list []models.AddonGrant
	for rows.Next() {
		var g models.AddonGrant
		if err := rows.Scan(&g.ID, &g.PrincipalID, &g.AddonID, &g.AddonSlug, &g.Enabled, &g.ExpiresAt, &g.CreatedAt, &g.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

// ListUserGrants returns a user's grants with addon slugs.
func (r *Repository) ListUserGrants(ctx context.Context, userID uuid.UUID) ([]models.AddonGrant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ua.id, ua.user_id, ua.addon_id, a.slug, ua.enabled, ua.expires_at, ua.created_at, ua.updated_at
		 FROM user_addons ua INNER JOIN addons a ON a.id = ua.addon_id
		 WHERE ua.user_id = $1 ORDER BY a.slug`, userID)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// ListOrgGrants returns an organization's grants with addon slugs.
func (r *Repository) ListOrgGrants(ctx context.Context, orgID uuid.UUID) ([]models.AddonGrant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT oa.id, oa.organization_id, oa.addon_id, a.slug, oa.enabled, oa.expires_at, oa.created_at, oa.updated_at
		 FROM organization_addons oa INNER JOIN addons a ON a.id = oa.addon_id
		 WHERE oa.organization_id = $1 ORDER BY a.slug`, orgID)
	if err != nil {
		return nil, err
	}
	return scanGrants(rows)
}

// GetUserGrant returns a user's grant for one addon slug, or ErrGrantNotFound.
func (r *Repository) GetUserGrant(ctx context.Context, userID uuid.UUID, slug string) (*models.AddonGrant, error) {
	var g models.AddonGrant
	err := r.pool.QueryRow(ctx,
		`SELECT ua.id, ua.user_id, ua.addon_id, a.slug, ua.enabled, ua.expires_at, ua.created_at, ua.updated_at
		 FROM user_addons ua INNER JOIN addons a ON a.id = ua.addon_id
		 WHERE ua.user_id = $1 AND a.slug = $2`, userID, slug).
		Scan(&g.ID, &g.PrincipalID, &g.AddonID, &g.AddonSlug, &g.Enabled, &g.ExpiresAt, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GetOrgGrant returns an organization's grant for one addon slug.
func (r *Repository) GetOrgGrant(ctx context.Context, orgID uuid.UUID, slug string) (*models.AddonGrant, error) {
	var g models.AddonGrant
	err := r.pool.QueryRow(ctx,
		`SELECT oa.id, oa.organization_id, oa.addon_id, a.slug, oa.enabled, oa.expires_at, oa.created_at, oa.updated_at
		 FROM organization_addons oa INNER JOIN addons a ON a.id = oa.addon_id
		 WHERE oa.organization_id = $1 AND a.slug = $2`, orgID, slug).
		Scan(&g.ID, &g.PrincipalID, &g.AddonID, &g.AddonSlug, &g.Enabled, &g.ExpiresAt, &g.CreatedAt, &g.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrGrantNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// UpsertUserGrant creates or updates a user's grant for an addon.
func (r *Repository) UpsertUserGrant(ctx context.Context, userID, addonID uuid.UUID, enabled bool, expiresAt *time.Time) (*models.AddonGrant, error) {
	var g models.AddonGrant
	err := r.pool.QueryRow(ctx,
		`INSERT INTO user_addons (user_id, addon_id, enabled, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id, addon_id)
		 DO UPDATE SET enabled = EXCLUDED.enabled, expires_at = EXCLUDED.expires_at, updated_at = NOW()
		 RETURNING id, user_id, addon_id, enabled, expires_at, created_at, updated_at`,
		userID, addonID, enabled, expiresAt).
		Scan(&g.ID, &g.PrincipalID, &g.AddonID, &g.Enabled, &g.ExpiresAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// UpsertOrgGrant creates or updates an organization's grant for an addon.
func (r *Repository) UpsertOrgGrant(ctx context.Context, orgID, addonID uuid.UUID, enabled bool, expiresAt *time.Time) (*models.AddonGrant, error) {
	var g models.AddonGrant
	err := r.pool.QueryRow(ctx,
		`INSERT INTO organization_addons (organization_id, addon_id, enabled, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (organization_id, addon_id)
		 DO UPDATE SET enabled = EXCLUDED.enabled, expires_at = EXCLUDED.expires_at, updated_at = NOW()
		 RETURNING id, organization_id, addon_id, enabled, expires_at, created_at, updated_at`,
		orgID, addonID, enabled, expiresAt).
		Scan(&g.ID, &g.PrincipalID, &g.AddonID, &g.Enabled, &g.ExpiresAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// DeleteOrgGrant removes an organization's grant by addon slug.
func (r *Repository) DeleteOrgGrant(ctx context.Context, orgID uuid.UUID, slug string) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM organization_addons oa
		 USING addons a
		 WHERE oa.addon_id = a.id AND oa.organization_id = $1 AND a.slug = $2`, orgID, slug)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrGrantNotFound
	}
	return nil
}

// ActiveUserSlugs returns slugs of the user's currently active grants.
func (r *Repository) ActiveUserSlugs(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.slug
		 FROM user_addons ua INNER JOIN addons a ON a.id = ua.addon_id
		 WHERE ua.user_id = $1 AND ua.enabled
		   AND (ua.expires_at IS NULL OR ua.expires_at > NOW())
		 ORDER BY a.slug`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var slugs []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		slugs = append(slugs, s)
	}
	return slugs, rows.Err()
}

// ActiveOrgSlugsForUser returns, for every org the user belongs to, the
// slugs of that org's currently active grants.
func (r *Repository) ActiveOrgSlugsForUser(ctx context.Context, userID uuid.UUID) (map[uuid.UUID][]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT oa.organization_id, a.slug
		 FROM organization_members om
		 INNER JOIN organization_addons oa ON oa.organization_id = om.organization_id
		 INNER JOIN addons a ON a.id = oa.addon_id
		 WHERE om.user_id = $1 AND oa.enabled
		   AND (oa.expires_at IS NULL OR oa.expires_at > NOW())
		 ORDER BY a.slug`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID][]string)
	for rows.Next() {
		var orgID uuid.UUID
		var slug string
		if err := rows.Scan(&orgID, &slug); err != nil {
			return nil, err
		}
		out[orgID] = append(out[orgID], slug)
	}
	return out, rows.Err()
}
