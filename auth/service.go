// Package auth derives sessions and permission shapes from stored users.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"backoffice/apperr"
	"backoffice/database"
	"backoffice/model"
)

const badCredentials = "invalid email or password"

// Session is what the client bootstraps from: its token, who it belongs to,
// and what that user may do.
type Session struct {
	Token       string        `json:"token"`
	ExpiresAt   time.Time     `json:"expiresAt"`
	Profile     model.Profile `json:"profile"`
	Permissions Permissions   `json:"permissions"`
}

type Service struct {
	db     *sqlx.DB
	issuer *Issuer
}

func NewService(db *sqlx.DB, issuer *Issuer) *Service {
	return &Service{db: db, issuer: issuer}
}

func newSession(token string, expires time.Time, u *model.User) *Session {
	return &Session{
		Token:       token,
		ExpiresAt:   expires,
		Profile:     u.Profile(),
		Permissions: PermissionsFor(u.Role),
	}
}

// SignIn checks the credentials and opens a session. Unknown emails, wrong
// passwords and inactive accounts are indistinguishable to the caller.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	u, err := database.GetUserByEmail(ctx, s.db, email)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.Unauthorized(badCredentials)
		}
		return nil, err
	}
	if !CheckPassword(u.PasswordHash, password) || !u.Active {
		return nil, apperr.Unauthorized(badCredentials)
	}

	token, expires, err := s.issuer.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	zap.L().Info("user signed in", zap.Int64("user_id", u.ID), zap.String("role", u.Role))
	return newSession(token, expires, u), nil
}

// Bootstrap verifies token and rebuilds the session from the stored user, so
// role changes and deactivation take effect without a new sign-in.
func (s *Service) Bootstrap(ctx context.Context, token string) (*Session, error) {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return nil, err
	}
	id, _ := claims.UserID()
	u, err := database.GetUserByID(ctx, s.db, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.Unauthorized("invalid token")
		}
		return nil, err
	}
	if !u.Active {
		return nil, apperr.Unauthorized("account is disabled")
	}
	return newSession(token, claims.ExpiresAt.Time, u), nil
}

// SignUp registers a new account and signs it in. The very first account
// becomes admin; every later one starts as viewer.
func (s *Service) SignUp(ctx context.Context, email, password, fullName string) (*Session, error) {
	u, err := s.CreateUser(ctx, email, password, fullName, "")
	if err != nil {
		return nil, err
	}
	token, expires, err := s.issuer.Issue(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return newSession(token, expires, u), nil
}

// SignOut ends a session. Tokens are stateless, so the client discarding its
// token is all there is to it.
func (s *Service) SignOut(ctx context.Context, sess *Session) error {
	if sess != nil {
		zap.L().Info("user signed out", zap.Int64("user_id", sess.Profile.ID))
	}
	return nil
}

// CreateUser validates and stores a user. An empty role means admin for the
// first user and viewer otherwise.
func (s *Service) CreateUser(ctx context.Context, email, password, fullName, role string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		return nil, apperr.Invalid("a valid email is required")
	}
	if role != "" && !ValidRole(role) {
		return nil, apperr.Invalid("unknown role: " + role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := database.GetUserByEmail(ctx, tx, email); err == nil {
		return nil, apperr.Conflict("an account with this email already exists")
	} else if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	if role == "" {
		n, err := database.CountUsers(ctx, tx)
		if err != nil {
			return nil, err
		}
		role = RoleViewer
		if n == 0 {
			role = RoleAdmin
		}
	}

	u := &model.User{
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		Active:       true,
	}
	if err := database.CreateUser(ctx, tx, u); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	zap.L().Info("user created", zap.Int64("user_id", u.ID), zap.String("role", u.Role))
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]model.Profile, error) {
	return database.ListProfiles(ctx, s.db)
}

// SetRole changes a user's role. The last active admin cannot be demoted.
func (s *Service) SetRole(ctx context.Context, id int64, role string) (*model.User, error) {
	if !ValidRole(role) {
		return nil, apperr.Invalid("unknown role: " + role)
	}
	return s.updateUser(ctx, id, func(tx *sqlx.Tx, u *model.User) error {
		if u.Role == RoleAdmin && role != RoleAdmin && u.Active {
			if err := s.ensureOtherAdmin(ctx, tx); err != nil {
				return err
			}
		}
		return database.UpdateUserRole(ctx, tx, id, role)
	})
}

// SetActive enables or disables a user. The last active admin cannot be disabled.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (*model.User, error) {
	return s.updateUser(ctx, id, func(tx *sqlx.Tx, u *model.User) error {
		if !active && u.Active && u.Role == RoleAdmin {
			if err := s.ensureOtherAdmin(ctx, tx); err != nil {
				return err
			}
		}
		return database.SetUserActive(ctx, tx, id, active)
	})
}

func (s *Service) ensureOtherAdmin(ctx context.Context, tx *sqlx.Tx) error {
	n, err := database.CountActiveAdmins(ctx, tx)
	if err != nil {
		return err
	}
	if n <= 1 {
		return apperr.Conflict("cannot remove the last active admin")
	}
	return nil
}

func (s *Service) updateUser(ctx context.Context, id int64, apply func(*sqlx.Tx, *model.User) error) (*model.User, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	u, err := database.GetUserByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return nil, apperr.NotFound("user")
		}
		return nil, err
	}
	if err := apply(tx, u); err != nil {
		return nil, err
	}
	u, err = database.GetUserByID(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return u, nil
}
