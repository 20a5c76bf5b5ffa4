package order

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@db:5432/app?sslmode=disable", migrateURL("postgres://u:p@db:5432/app?sslmode=disable"))
	require.Equal(t, "pgx5://db/app", migrateURL("postgresql://db/app"))
	require.Equal(t, "pgx5://db/app", migrateURL("pgx5://db/app"))
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	require.Contains(t, names, "0001_init.up.sql")
	require.Contains(t, names, "0001_init.down.sql")
}
