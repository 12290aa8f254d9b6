package plans

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

var (
	// ErrNotFound is returned when no plan matches the lookup.
	ErrNotFound = errors.New("plan not found")
)

// Repository handles plan persistence. Plans are seeded by migration;
// there is no write surface.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a plans repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const planColumns = `id, slug, name, price_cents, currency, billing_interval, limits, is_active, created_at, updated_at`

func scanPlan(row pgx.Row) (*models.Plan, error) {
	var p models.Plan
	var limits []byte
	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.PriceCents, &p.Currency, &p.BillingInterval,
		&limits, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &p.Limits); err != nil {
			return nil, fmt.Errorf("decode plan limits: %w", err)
		}
	}
	return &p, nil
}

// ListActive returns the public plan catalog, cheapest first.
func (r *Repository) ListActive(ctx context.Context) ([]models.Plan, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+planColumns+` FROM plans WHERE is_active ORDER BY price_cents ASC, slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

// GetBySlug returns a plan by slug.
func (r *Repository) GetBySlug(ctx context.Context, slug string) (*models.Plan, error) {
	p, err := scanPlan(r.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE slug = $1`, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetByID returns a plan by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Plan, error) {
	p, err := scanPlan(r.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
