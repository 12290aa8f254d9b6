package subscriptions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nestfolio/backend/internal/models"
)

var (
	// ErrNotFound is returned when no subscription matches.
	ErrNotFound = errors.New("subscription not found")
	// ErrNoActive is returned when the user has no current subscription.
	ErrNoActive = errors.New("no active subscription")
)

// Repository handles subscription persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a subscriptions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const subWithPlanColumns = `s.id, s.user_id, s.plan_id, s.status, s.expires_at, s.created_at, s.updated_at,
	p.id, p.slug, p.name, p.price_cents, p.currency, p.billing_interval, p.limits, p.is_active, p.created_at, p.updated_at`

func scanSubWithPlan(row pgx.Row) (*models.Subscription, error) {
	var s models.Subscription
	var p models.Plan
	var status string
	var limits []byte
	err := row.Scan(&s.ID, &s.UserID, &s.PlanID, &status, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt,
		&p.ID, &p.Slug, &p.Name, &p.PriceCents, &p.Currency, &p.BillingInterval, &limits, &p.IsActive, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &p.Limits); err != nil {
			return nil, fmt.Errorf("decode plan limits: %w", err)
		}
	}
	s.Status = models.SubscriptionStatus(status)
	s.Plan = &p
	return &s, nil
}

// ListForUser returns all subscriptions for a user, newest first, plan embedded.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Subscription, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+subWithPlanColumns+`
		 FROM subscriptions s INNER JOIN plans p ON p.id = s.plan_id
		 WHERE s.user_id = $1
		 ORDER BY s.created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Subscription
	for rows.Next() {
		s, err := scanSubWithPlan(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// GetByID returns a subscription with its plan.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Subscription, error) {
	s, err := scanSubWithPlan(r.pool.QueryRow(ctx,
		`SELECT `+subWithPlanColumns+`
		 FROM subscriptions s INNER JOIN plans p ON p.id = s.plan_id
		 WHERE s.id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ActivePlan returns the plan of the user's newest active, unexpired
// subscription. Expiry is evaluated lazily against now; stale active
// rows are simply not returned, never rewritten on the read path.
func (r *Repository) ActivePlan(ctx context.Context, userID uuid.UUID, now time.Time) (*models.Plan, error) {
	s, err := scanSubWithPlan(r.pool.QueryRow(ctx,
		`SELECT `+subWithPlanColumns+`
		 FROM subscriptions s INNER JOIN plans p ON p.id = s.plan_id
		 WHERE s.user_id = $1 AND s.status = 'active'
		   AND (s.expires_at IS NULL OR s.expires_at > $2)
		 ORDER BY s.created_at DESC
		 LIMIT 1`, userID, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoActive
	}
	if err != nil {
		return nil, err
	}
	return s.Plan, nil
}

// Activate makes planID the user's single active subscription: every
// currently active row is expired and the new row inserted in one
// transaction, so no interleaving can leave two active rows.
func (r *Repository) Activate(ctx context.Context, userID, planID uuid.UUID, expiresAt *time.Time) (*models.Subscription, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE subscriptions SET status = 'expired', updated_at = NOW()
		 WHERE user_id = $1 AND status = 'active'`, userID); err != nil {
		return nil, err
	}

	var s models.Subscription
	var status string
	err = tx.QueryRow(ctx,
		`INSERT INTO subscriptions (user_id, plan_id, status, expires_at)
		 VALUES ($1, $2, 'active', $3)
		 RETURNING id, user_id, plan_id, status, expires_at, created_at, updated_at`,
		userID, planID, expiresAt).
		Scan(&s.ID, &s.UserID, &s.PlanID, &status, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.Status = models.SubscriptionStatus(status)

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &s, nil
}

// Update patches status and/or expiry (admin surface).
func (r *Repository) Update(ctx context.Context, id uuid.UUID, status *models.SubscriptionStatus, expiresAt *time.Time, clearExpiry bool) (*models.Subscription, error) {
	const q = `UPDATE subscriptions
		SET status = COALESCE($2, status),
		    expires_at = CASE WHEN $4 THEN NULL ELSE COALESCE($3, expires_at) END,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, user_id, plan_id, status, expires_at, created_at, updated_at`
	var statusArg *string
	if status != nil {
		v := string(*status)
		statusArg = &v
	}
	var s models.Subscription
	var st string
	err := r.pool.QueryRow(ctx, q, id, statusArg, expiresAt, clearExpiry).
		Scan(&s.ID, &s.UserID, &s.PlanID, &st, &s.ExpiresAt, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = models.SubscriptionStatus(st)
	return &s, nil
}

// Delete removes a subscription row (admin surface).
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
