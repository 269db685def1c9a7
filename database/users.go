package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"backoffice/model"
)

const userColumns = `id, email, password_hash, full_name, role, active, created_at, updated_at`

func GetUserByEmail(ctx context.Context, q sqlx.ExtContext, email string) (*model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, q, &u, q.Rebind(`SELECT `+userColumns+` FROM users WHERE email = ?`),
		strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, fmt.Errorf("GetUserByEmail failed: %w", notFound(err))
	}
	return &u, nil
}

func GetUserByID(ctx context.Context, q sqlx.ExtContext, id int64) (*model.User, error) {
	var u model.User
	err := sqlx.GetContext(ctx, q, &u, q.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, fmt.Errorf("GetUserByID (ID: %d) failed: %w", id, notFound(err))
	}
	return &u, nil
}

func CountUsers(ctx context.Context, q sqlx.ExtContext) (int, error) {
	var n int
	if err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM users`); err != nil {
		return 0, fmt.Errorf("CountUsers failed: %w", err)
	}
	return n, nil
}

func CountActiveAdmins(ctx context.Context, q sqlx.ExtContext) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, q, &n, `SELECT COUNT(*) FROM users WHERE role = 'admin' AND active = TRUE`)
	if err != nil {
		return 0, fmt.Errorf("CountActiveAdmins failed: %w", err)
	}
	return n, nil
}

// CreateUser inserts u and fills in its ID and timestamps. The email is stored lower-cased.
func CreateUser(ctx context.Context, q sqlx.ExtContext, u *model.User) error {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.CreatedAt = now()
	u.UpdatedAt = u.CreatedAt
	err := sqlx.GetContext(ctx, q, &u.ID, q.Rebind(`
		INSERT INTO users (email, password_hash, full_name, role, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		u.Email, u.PasswordHash, u.FullName, u.Role, u.Active, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("CreateUser (Email: %s) failed: %w", u.Email, err)
	}
	return nil
}

func ListProfiles(ctx context.Context, q sqlx.ExtContext) ([]model.Profile, error) {
	profiles := []model.Profile{}
	err := sqlx.SelectContext(ctx, q, &profiles,
		`SELECT id, email, full_name, role, active, created_at FROM users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return profiles, nil
}

func UpdateUserRole(ctx context.Context, q sqlx.ExtContext, id int64, role string) error {
	return updateUser(ctx, q, id, `role = ?`, role)
}

func SetUserActive(ctx context.Context, q sqlx.ExtContext, id int64, active bool) error {
	return updateUser(ctx, q, id, `active = ?`, active)
}

func updateUser(ctx context.Context, q sqlx.ExtContext, id int64, set string, value any) error {
	res, err := q.ExecContext(ctx, q.Rebind(`UPDATE users SET `+set+`, updated_at = ? WHERE id = ?`), value, now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user %d: %w", id, err)
	}
	return requireAffected(res, id)
}
