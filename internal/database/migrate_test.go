package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsHaveGooseSections(t *testing.T) {
	entries, err := fs.ReadDir(migrations, migrationsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	for _, entry := range entries {
		raw, err := fs.ReadFile(migrations, migrationsDir+"/"+entry.Name())
		require.NoError(t, err)
		body := string(raw)
		assert.True(t, strings.Contains(body, "-- +goose Up"), entry.Name())
		assert.True(t, strings.Contains(body, "-- +goose Down"), entry.Name())
	}
}

func TestSchemaCarriesUniquenessConstraints(t *testing.T) {
	raw, err := fs.ReadFile(migrations, migrationsDir+"/00001_init.sql")
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "UNIQUE (worker_id, service_request_id)")
	assert.Contains(t, body, "UNIQUE (recipient_id, event, reference_request_id)")
	assert.Contains(t, body, "NUMERIC(9, 6)")
}
