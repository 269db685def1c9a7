package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsFindsWrappedError(t *testing.T) {
	err := fmt.Errorf("saving lead: %w", Invalid("name is required"))

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, e.Status)
	assert.Equal(t, "name is required", e.Message)
}

func TestAsTranslatesNotFound(t *testing.T) {
	err := fmt.Errorf("GetLead failed: %w", ErrNotFound)

	e, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusNotFound, e.Status)
}

func TestAsIgnoresPlainErrors(t *testing.T) {
	_, ok := As(errors.New("boom"))
	assert.False(t, ok)
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	base := Invalid("bad")
	withField := base.WithDetails("field", "email")

	assert.Nil(t, base.Details)
	assert.Equal(t, "email", withField.Details["field"])
}

func TestInternalUnwraps(t *testing.T) {
	cause := errors.New("disk full")
	e := Internal("save failed", cause)
	assert.ErrorIs(t, e, cause)
}
