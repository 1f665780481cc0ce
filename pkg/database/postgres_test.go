package database

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/carnet-api/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5433, User: "carnet", Password: "pw", Name: "carnet", SSLMode: "require"})
	assert.Equal(t, "host=db port=5433 user=carnet password=pw dbname=carnet sslmode=require", dsn)
}

func TestMigrationsAreEmbeddedInOrder(t *testing.T) {
	entries, err := fs.ReadDir(migrations, migrationsDir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "00001_create_requests.sql", entries[0].Name())
	assert.Equal(t, "00002_pet_guardian_columns.sql", entries[1].Name())
}
