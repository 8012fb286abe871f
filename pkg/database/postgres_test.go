package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsLockTimeout(t *testing.T) {
	wrapped := fmt.Errorf("lock request: %w", &pq.Error{Code: "55P03"})
	assert.True(t, IsLockTimeout(wrapped))
	assert.False(t, IsLockTimeout(&pq.Error{Code: "23505"}))
	assert.False(t, IsLockTimeout(errors.New("plain")))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pq.Error{Code: "55P03"}))
}
