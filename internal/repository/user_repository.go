package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicfix/civicfix-api/internal/models"
)

const userColumns = `id, external_id, email, display_name, role, department, active, last_seen, created_at, updated_at`

// UserRepository provides database access for user records synced from the
// auth provider.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID returns a user by identifier.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE id = $1 LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by id: %w", err)
	}
	return &user, nil
}

// FindByExternalID returns a user by provider uid.
func (r *UserRepository) FindByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE external_id = $1 LIMIT 1", userColumns)
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, externalID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find user by external id: %w", err)
	}
	return &user, nil
}

// Upsert creates the user on first sight of the provider uid, or refreshes the
// profile fields on subsequent syncs. Role and department are never changed by
// the sync path; those stay admin-managed.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	const query = `INSERT INTO users (id, external_id, email, display_name, role, department, active, last_seen, created_at, updated_at)
	VALUES (:id, :external_id, :email, :display_name, :role, :department, :active, :last_seen, :created_at, :updated_at)
	ON CONFLICT (external_id) DO UPDATE
	SET email = EXCLUDED.email,
	    display_name = EXCLUDED.display_name,
	    last_seen = EXCLUDED.last_seen,
	    updated_at = EXCLUDED.updated_at
	RETURNING id, role, department, active, created_at`
	rows, err := r.db.NamedQueryContext(ctx, query, user)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	defer rows.Close()
	if rows.Next() {
		if err := rows.Scan(&user.ID, &user.Role, &user.Department, &user.Active, &user.CreatedAt); err != nil {
			return fmt.Errorf("scan upserted user: %w", err)
		}
	}
	return nil
}

// UpdateRole changes a user's role and department assignment.
func (r *UserRepository) UpdateRole(ctx context.Context, id string, role models.UserRole, department *string) error {
	const query = `UPDATE users SET role = $2, department = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, role, department, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check role rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByDepartment returns active government users in a department, used for
// notification fan-out on assignment.
func (r *UserRepository) ListByDepartment(ctx context.Context, department string) ([]models.User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE department = $1 AND role = 'GOVERNMENT' AND active ORDER BY display_name ASC", userColumns)
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, query, department); err != nil {
		return nil, fmt.Errorf("list users by department: %w", err)
	}
	return users, nil
}

// Deactivate performs a soft delete by marking the user inactive.
func (r *UserRepository) Deactivate(ctx context.Context, id string) error {
	const query = `UPDATE users SET active = FALSE, updated_at = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("deactivate user: %w", err)
	}
	return nil
}
