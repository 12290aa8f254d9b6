package organizations

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/nestfolio/backend/internal/models"
)

var (
	// ErrInvitationNotFound is returned when no invitation matches.
	ErrInvitationNotFound = errors.New("invitation not found")
	// ErrInvitationNotPending is returned when acting on a consumed invitation.
	ErrInvitationNotPending = errors.New("invitation is no longer pending")
)

const invitationColumns = `id, organization_id, email, role, token, invited_by, status, expires_at, created_at, updated_at`

func scanInvitation(row pgx.Row) (*models.OrganizationInvitation, error) {
	var inv models.OrganizationInvitation
	var role string
	err := row.Scan(&inv.ID, &inv.OrganizationID, &inv.Email, &role, &inv.Token,
		&inv.InvitedBy, &inv.Status, &inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Role = models.OrgRole(role)
	return &inv, nil
}

// CreateInvitation inserts a pending invitation.
func (r *Repository) CreateInvitation(ctx context.Context, inv *models.OrganizationInvitation) error {
	const q = `INSERT INTO organization_invitations (organization_id, email, role, token, invited_by, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, status, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, inv.OrganizationID, inv.Email, string(inv.Role), inv.Token, inv.InvitedBy, inv.ExpiresAt).
		Scan(&inv.ID, &inv.Status, &inv.CreatedAt, &inv.UpdatedAt)
}

// ListInvitations returns all invitations for an organization, newest first.
func (r *Repository) ListInvitations(ctx context.Context, orgID uuid.UUID) ([]models.OrganizationInvitation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+invitationColumns+` FROM organization_invitations
		 WHERE organization_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.OrganizationInvitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *inv)
	}
	return list, rows.Err()
}

// GetInvitationByToken returns an invitation by its token.
func (r *Repository) GetInvitationByToken(ctx context.Context, token string) (*models.OrganizationInvitation, error) {
	inv, err := scanInvitation(r.pool.QueryRow(ctx,
		`SELECT `+invitationColumns+` FROM organization_invitations WHERE token = $1`, token))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// RevokeInvitation marks a pending invitation revoked.
func (r *Repository) RevokeInvitation(ctx context.Context, orgID, invID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE organization_invitations SET status = 'revoked', updated_at = NOW()
		 WHERE id = $1 AND organization_id = $2 AND status = 'pending'`, invID, orgID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvitationNotFound
	}
	return nil
}

// AcceptInvitation adds the user as a member with the invited role and
// marks the invitation accepted, in one transaction.
func (r *Repository) AcceptInvitation(ctx context.Context, inv *models.OrganizationInvitation, userID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE organization_invitations SET status = 'accepted', updated_at = NOW()
		 WHERE id = $1 AND status = 'pending'`, inv.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvitationNotPending
	}

	tag, err = tx.Exec(ctx,
		`INSERT INTO organization_members (organization_id, user_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (organization_id, user_id) DO NOTHING`,
		inv.OrganizationID, userID, string(inv.Role))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyMember
	}

	return tx.Commit(ctx)
}
