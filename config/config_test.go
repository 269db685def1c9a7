package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backoffice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, 30, cfg.Invoice.DefaultDueDays)
	assert.Equal(t, 12*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := writeFile(t, `
server:
  addr: ":9000"
company:
  name: Acme Plumbing
  currency: eur
auth:
  token_ttl: 2h
`)
	t.Setenv("BACKOFFICE_SERVER_ADDR", ":9100")
	t.Setenv("BACKOFFICE_AUTH_JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9100", cfg.Server.Addr)
	assert.Equal(t, "Acme Plumbing", cfg.Company.Name)
	assert.Equal(t, "EUR", cfg.Company.Currency)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "0123456789abcdef0123", cfg.Auth.JWTSecret)
	assert.Equal(t, cfg, Get())
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "short"
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "a-long-enough-secret"
	assert.NoError(t, cfg.Validate())

	cfg.Company.Currency = "XYZ"
	assert.Error(t, cfg.Validate())
	cfg.Company.Currency = "EUR"

	cfg.Database.Driver = "mysql"
	assert.Error(t, cfg.Validate())
}

func TestSaveSettingsKeepsOtherKeys(t *testing.T) {
	path := writeFile(t, "server:\n  addr: \":9000\"\ncompany:\n  name: Before\n")
	t.Setenv("BACKOFFICE_AUTH_JWT_SECRET", "env-only-secret-0123")
	t.Setenv("BACKOFFICE_DATABASE_DSN", "postgres://secret@db/backoffice")
	_, err := Load(path)
	require.NoError(t, err)

	company := Get().Company
	company.Name = "After"
	invoice := Get().Invoice
	invoice.DefaultDueDays = 14
	saved, err := SaveSettings(company, invoice)
	require.NoError(t, err)
	assert.Equal(t, "After", saved.Company.Name)
	assert.Equal(t, "env-only-secret-0123", Get().Auth.JWTSecret)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(written), "env-only-secret-0123")
	assert.NotContains(t, string(written), "postgres://")
	assert.NotContains(t, string(written), "auth")
	assert.Contains(t, string(written), ":9000")

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "After", reloaded.Company.Name)
	assert.Equal(t, 14, reloaded.Invoice.DefaultDueDays)
	assert.Equal(t, ":9000", reloaded.Server.Addr)
}
