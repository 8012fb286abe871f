package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCloneKeepsCodeForIs(t *testing.T) {
	err := Clone(ErrConflict, "request is no longer available")
	wrapped := fmt.Errorf("accept: %w", err)

	assert.True(t, errors.Is(wrapped, ErrConflict))
	assert.False(t, errors.Is(wrapped, ErrInvalidTransition))
	assert.Equal(t, "request is no longer available", FromError(wrapped).Message)
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	appErr := FromError(errors.New("boom"))
	require.NotNil(t, appErr)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
}

func TestBusyIsRetryable(t *testing.T) {
	assert.Equal(t, "RETRYABLE", ErrBusy.Code)
	assert.Equal(t, http.StatusServiceUnavailable, ErrBusy.Status)
	assert.Equal(t, http.StatusUnprocessableEntity, ErrInvalidTransition.Status)
}
