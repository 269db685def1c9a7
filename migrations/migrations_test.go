package migrations

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *sqlx.DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`, name))
	return n == 1
}

func TestUpCreatesSchema(t *testing.T) {
	db := openTemp(t)

	_, _, ok, err := Version(db)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, Up(db))
	for _, table := range []string{"users", "customers", "leads", "staff", "works", "invoices", "invoice_items", "accounts", "vouchers", "voucher_entries", "code_sequences"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	v, dirty, ok, err := Version(db)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, dirty)
	assert.Equal(t, uint(2), v)

	// the shared handle must still be usable
	require.NoError(t, db.Ping())
}

func TestUpIsIdempotent(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, Up(db))
	require.NoError(t, Up(db))
}

func TestDownRemovesLatestStep(t *testing.T) {
	db := openTemp(t)
	require.NoError(t, Up(db))
	require.NoError(t, Down(db))

	assert.False(t, tableExists(t, db, "vouchers"))
	assert.True(t, tableExists(t, db, "invoices"))
}

func TestUnknownDriver(t *testing.T) {
	db := sqlx.NewDb(nil, "mysql")
	assert.Error(t, Up(db))
}
