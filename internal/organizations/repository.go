package organizations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nestfolio/backend/internal/models"
)

var (
	// ErrNotFound is returned when the organization does not exist.
	ErrNotFound = errors.New("organization not found")
	// ErrNotMember is returned when the user has no membership in the organization.
	ErrNotMember = errors.New("not a member of this organization")
	// ErrAlreadyMember is returned when adding a user who is already a member.
	ErrAlreadyMember = errors.New("user is already a member")
	// ErrLastOwner is returned when an operation would leave the organization
	// with no owner.
	ErrLastOwner = errors.New("organization must keep at least one owner")
)

// Repository handles organization, membership, and invitation persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an organizations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create creates an organization and its owner membership in one transaction.
func (r *Repository) Create(ctx context.Context, org *models.Organization) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	const insertOrg = `INSERT INTO organizations (name, description, owner_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	if err := tx.QueryRow(ctx, insertOrg, org.Name, org.Description, org.OwnerID).
		Scan(&org.ID, &org.CreatedAt, &org.UpdatedAt); err != nil {
		return err
	}

	const insertMember = `INSERT INTO organization_members (organization_id, user_id, role)
		VALUES ($1, $2, $3)`
	if _, err := tx.Exec(ctx, insertMember, org.ID, org.OwnerID, string(models.OrgRoleOwner)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetByID returns an organization by ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	const q = `SELECT id, name, description, owner_id, created_at, updated_at
		FROM organizations WHERE id = $1`
	var org models.Organization
	err := r.pool.QueryRow(ctx, q, id).
		Scan(&org.ID, &org.Name, &org.Description, &org.OwnerID, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// Update updates name/description. Empty strings keep the current value.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, name, description *string) (*models.Organization, error) {
	const q = `UPDATE organizations
		SET name = COALESCE($2, name),
		    description = COALESCE($3, description),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, owner_id, created_at, updated_at`
	var org models.Organization
	err := r.pool.QueryRow(ctx, q, id, name, description).
		Scan(&org.ID, &org.Name, &org.Description, &org.OwnerID, &org.CreatedAt, &org.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &org, nil
}

// Delete removes the organization. Members, invitations, and org
// collections go with it via FK cascade.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// OrgWithRole is an organization plus the caller's role in it.
type OrgWithRole struct {
	models.Organization
	Role models.OrgRole `json:"role"`
}

// ListForUser returns organizations the user belongs to, with their role.
func (r *Repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]OrgWithRole, error) {
	const q = `SELECT o.id, o.name, o.description, o.owner_id, o.created_at, o.updated_at, om.role
		FROM organizations o
		INNER JOIN organization_members om ON om.organization_id = o.id
		WHERE om.user_id = $1
		ORDER BY o.name`
	rows, err := r.pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []OrgWithRole
	for rows.Next() {
		var o OrgWithRole
		var role string
		if err := rows.Scan(&o.ID, &o.Name, &o.Description, &o.OwnerID, &o.CreatedAt, &o.UpdatedAt, &role); err != nil {
			return nil, err
		}
		o.Role = models.OrgRole(role)
		list = append(list, o)
	}
	return list, rows.Err()
}

// GetMemberRole returns the user's role in the organization.
// Returns ErrNotMember when there is no membership row.
func (r *Repository) GetMemberRole(ctx context.Context, orgID, userID uuid.UUID) (models.OrgRole, error) {
	const q = `SELECT role FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	var role string
	err := r.pool.QueryRow(ctx, q, orgID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotMember
	}
	if err != nil {
		return "", err
	}
	return models.OrgRole(role), nil
}

// Member is an organization member with user details.
type Member struct {
	ID       uuid.UUID      `json:"id"`
	UserID   uuid.UUID      `json:"user_id"`
	Email    string         `json:"email"`
	FullName string         `json:"full_name"`
	Role     models.OrgRole `json:"role"`
	AddedAt  time.Time      `json:"added_at"`
}

// ListMembers returns members of an organization.
func (r *Repository) ListMembers(ctx context.Context, orgID uuid.UUID) ([]Member, error) {
	const q = `SELECT om.id, om.user_id, u.email, u.full_name, om.role, om.created_at
		FROM organization_members om
		INNER JOIN users u ON u.id = om.user_id
		WHERE om.organization_id = $1
		ORDER BY om.created_at ASC`
	rows, err := r.pool.Query(ctx, q, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Member
	for rows.Next() {
		var m Member
		var role string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Email, &m.FullName, &role, &m.AddedAt); err != nil {
			return nil, err
		}
		m.Role = models.OrgRole(role)
		list = append(list, m)
	}
	return list, rows.Err()
}

// AddMember adds a user to an organization with a role.
// Returns ErrAlreadyMember on a duplicate membership.
func (r *Repository) AddMember(ctx context.Context, orgID, userID uuid.UUID, role models.OrgRole) error {
	const q = `INSERT INTO organization_members (organization_id, user_id, role)
		VALUES ($1, $2, $3)`
	_, err := r.pool.Exec(ctx, q, orgID, userID, string(role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrAlreadyMember
		}
		return err
	}
	return nil
}

// ownerCountLocked counts owners with the org's membership rows locked,
// so concurrent demotions cannot both pass the check.
func ownerCountLocked(ctx context.Context, tx pgx.Tx, orgID uuid.UUID) (int, error) {
	if _, err := tx.Exec(ctx,
		`SELECT id FROM organization_members WHERE organization_id = $1 FOR UPDATE`, orgID); err != nil {
		return 0, err
	}
	var n int
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM organization_members WHERE organization_id = $1 AND role = 'owner'`, orgID).Scan(&n)
	return n, err
}

// UpdateMemberRole changes a member's role. Demoting the sole owner
// returns ErrLastOwner; the check and the write share one transaction.
func (r *Repository) UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, newRole models.OrgRole) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT role FROM organization_members WHERE organization_id = $1 AND user_id = $2 FOR UPDATE`,
		orgID, userID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotMember
	}
	if err != nil {
		return err
	}

	if current == string(models.OrgRoleOwner) && newRole != models.OrgRoleOwner {
		owners, err := ownerCountLocked(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE organization_members SET role = $3, updated_at = NOW()
		 WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID, string(newRole)); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RemoveMember deletes a membership. Removing the sole owner returns
// ErrLastOwner. If the removed user is the organizations.owner_id and
// other owners remain, owner_id transfers to the earliest remaining
// owner in the same transaction.
func (r *Repository) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var role string
	err = tx.QueryRow(ctx,
		`SELECT role FROM organization_members WHERE organization_id = $1 AND user_id = $2 FOR UPDATE`,
		orgID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotMember
	}
	if err != nil {
		return err
	}

	if role == string(models.OrgRoleOwner) {
		owners, err := ownerCountLocked(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`,
		orgID, userID); err != nil {
		return err
	}

	// Keep organizations.owner_id pointing at a real owner.
	var headOwnerID uuid.UUID
	err = tx.QueryRow(ctx, `SELECT owner_id FROM organizations WHERE id = $1`, orgID).Scan(&headOwnerID)
	if err != nil {
		return err
	}
	if headOwnerID == userID {
		var nextOwner uuid.UUID
		err = tx.QueryRow(ctx,
			`SELECT user_id FROM organization_members
			 WHERE organization_id = $1 AND role = 'owner'
			 ORDER BY created_at ASC LIMIT 1`, orgID).Scan(&nextOwner)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			`UPDATE organizations SET owner_id = $2, updated_at = NOW() WHERE id = $1`,
			orgID, nextOwner); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}
