package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEmail(t *testing.T) {
	assert.NoError(t, Email("email", ""))
	assert.NoError(t, Email("email", "ann@example.com"))
	assert.Error(t, Email("email", "Ann <ann@example.com>"))
	assert.Error(t, Email("email", "not an email"))
}

func TestDate(t *testing.T) {
	assert.NoError(t, Date("due_date", ""))
	assert.NoError(t, Date("due_date", "2026-02-28"))
	assert.Error(t, Date("due_date", "2026-02-30"))
	assert.Error(t, Date("due_date", "28/02/2026"))
}

func TestFirst(t *testing.T) {
	err := First(nil, Required("name", " "), Required("title", ""))
	assert.EqualError(t, err, "invalid: name is required")
}
