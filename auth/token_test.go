package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backoffice/apperr"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestIssueAndVerify(t *testing.T) {
	iss := NewIssuer(testSecret, time.Hour)
	token, expires, err := iss.Issue(42, "a@b.test", RoleStaff)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, 5*time.Second)

	claims, err := iss.Verify(token)
	require.NoError(t, err)
	id, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.Equal(t, RoleStaff, claims.Role)
	assert.NotEmpty(t, claims.SessionID)
}

func TestVerifyRejects(t *testing.T) {
	iss := NewIssuer(testSecret, time.Hour)
	token, _, err := iss.Issue(1, "a@b.test", RoleAdmin)
	require.NoError(t, err)

	_, err = NewIssuer("another-secret-of-32-characters!", time.Hour).Verify(token)
	e, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "unauthorized", e.Code)

	_, err = iss.Verify("not-a-token")
	assert.Error(t, err)

	expired := NewIssuer(testSecret, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	old, _, err := expired.Issue(1, "a@b.test", RoleAdmin)
	require.NoError(t, err)
	_, err = iss.Verify(old)
	e, ok = apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, "session expired", e.Message)
}

func TestPasswords(t *testing.T) {
	_, err := HashPassword("short")
	assert.Error(t, err)

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
}
