package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	err := FromError(fmt.Errorf("boom"))
	assert.Equal(t, ErrInternal.Code, err.Code)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.EqualError(t, err.Unwrap(), "boom")
}

func TestFromErrorKeepsTypedErrors(t *testing.T) {
	wrapped := fmt.Errorf("lookup: %w", Clone(ErrNotFound, "schedule not found"))
	err := FromError(wrapped)
	assert.Equal(t, "schedule not found", err.Message)
	assert.Equal(t, http.StatusNotFound, err.Status)
}

func TestClonesMatchSentinel(t *testing.T) {
	clone := WithDetails(ErrValidation, "invalid payload", []string{"name"})
	assert.True(t, errors.Is(clone, ErrValidation))
	assert.False(t, errors.Is(clone, ErrConflict))
	assert.Equal(t, []string{"name"}, clone.Details)
	assert.Nil(t, ErrValidation.Details)
}
