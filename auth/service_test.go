package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/apperr"
	"backoffice/dbtest"
)

func newService(t *testing.T) *Service {
	t.Helper()
	return NewService(dbtest.Open(t), NewIssuer(testSecret, time.Hour))
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	e, ok := apperr.As(err)
	require.True(t, ok, "%v", err)
	assert.Equal(t, code, e.Code)
}

func TestSignUpFirstUserIsAdmin(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	first, err := s.SignUp(ctx, "Owner@Example.com", "password1", "Owner")
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, first.Profile.Role)
	assert.Equal(t, "owner@example.com", first.Profile.Email)
	assert.True(t, first.Permissions.Can(ResourceUsers, ActionEdit))
	assert.NotEmpty(t, first.Token)

	second, err := s.SignUp(ctx, "clerk@example.com", "password2", "Clerk")
	require.NoError(t, err)
	assert.Equal(t, RoleViewer, second.Profile.Role)

	_, err = s.SignUp(ctx, "CLERK@example.com", "password3", "")
	requireCode(t, err, "conflict")

	_, err = s.SignUp(ctx, "not-an-email", "password3", "")
	requireCode(t, err, "invalid")
}

func TestSignInFailuresShareMessage(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	u, err := s.CreateUser(ctx, "a@example.com", "password1", "A", RoleStaff)
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, "admin@example.com", "password1", "Admin", RoleAdmin)
	require.NoError(t, err)

	_, err = s.SignIn(ctx, "nobody@example.com", "password1")
	unknown, _ := apperr.As(err)
	_, err = s.SignIn(ctx, "a@example.com", "wrong-password")
	wrong, _ := apperr.As(err)
	require.NotNil(t, unknown)
	require.NotNil(t, wrong)
	assert.Equal(t, unknown.Message, wrong.Message)

	_, err = s.SetActive(ctx, u.ID, false)
	require.NoError(t, err)
	_, err = s.SignIn(ctx, "a@example.com", "password1")
	inactive, _ := apperr.As(err)
	require.NotNil(t, inactive)
	assert.Equal(t, unknown.Message, inactive.Message)
}

func TestBootstrapUsesCurrentRole(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "boss@example.com", "password1", "Boss", RoleAdmin)
	require.NoError(t, err)
	u, err := s.CreateUser(ctx, "emp@example.com", "password1", "Emp", RoleViewer)
	require.NoError(t, err)

	sess, err := s.SignIn(ctx, "emp@example.com", "password1")
	require.NoError(t, err)
	assert.False(t, sess.Permissions.Can(ResourceAccounting, ActionView))

	_, err = s.SetRole(ctx, u.ID, RoleAccountant)
	require.NoError(t, err)

	again, err := s.Bootstrap(ctx, sess.Token)
	require.NoError(t, err)
	assert.Equal(t, RoleAccountant, again.Profile.Role)
	assert.True(t, again.Permissions.Can(ResourceAccounting, ActionCreate))

	_, err = s.SetActive(ctx, u.ID, false)
	require.NoError(t, err)
	_, err = s.Bootstrap(ctx, sess.Token)
	requireCode(t, err, "unauthorized")
}

func TestLastAdminIsProtected(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	admin, err := s.CreateUser(ctx, "root@example.com", "password1", "Root", "")
	require.NoError(t, err)
	require.Equal(t, RoleAdmin, admin.Role)

	_, err = s.SetRole(ctx, admin.ID, RoleManager)
	requireCode(t, err, "conflict")
	_, err = s.SetActive(ctx, admin.ID, false)
	requireCode(t, err, "conflict")

	other, err := s.CreateUser(ctx, "second@example.com", "password1", "Second", RoleAdmin)
	require.NoError(t, err)
	updated, err := s.SetRole(ctx, admin.ID, RoleManager)
	require.NoError(t, err)
	assert.Equal(t, RoleManager, updated.Role)

	_, err = s.SetRole(ctx, other.ID, "owner")
	requireCode(t, err, "invalid")
	_, err = s.SetRole(ctx, 999, RoleViewer)
	requireCode(t, err, "not_found")
}

func TestAuthenticateAndRequire(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	_, err := s.CreateUser(ctx, "staff@example.com", "password1", "S", RoleStaff)
	require.NoError(t, err)
	sess, err := s.SignIn(ctx, "staff@example.com", "password1")
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, SessionFrom(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})
	serve := func(h http.Handler, token string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(s.Authenticate(ok), ""))
	assert.Equal(t, http.StatusUnauthorized, serve(s.Authenticate(ok), "garbage"))
	assert.Equal(t, http.StatusNoContent, serve(s.Authenticate(Guard(ResourceWorks, ActionEdit, ok)), sess.Token))
	assert.Equal(t, http.StatusForbidden, serve(s.Authenticate(Guard(ResourceWorks, ActionDelete, ok)), sess.Token))
	assert.Equal(t, http.StatusUnauthorized, serve(Guard(ResourceWorks, ActionView, ok), ""))
}
