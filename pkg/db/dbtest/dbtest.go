// Package dbtest opens migrated in-memory sqlite databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/angelmondragon/labstock-backend/pkg/config"
	"github.com/angelmondragon/labstock-backend/pkg/db"
	"github.com/angelmondragon/labstock-backend/pkg/migrate"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// Open returns a client backed by a private in-memory sqlite database
// with every migration applied.
func Open(t testing.TB) *db.Client {
	t.Helper()

	ctx := context.Background()
	dsn := "file:labstock_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	client, err := db.New(ctx, config.DBConfig{Driver: config.DriverSQLite, DSN: dsn}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	sqlDB, err := client.DB().DB()
	require.NoError(t, err)
	require.NoError(t, migrate.Up(ctx, sqlDB, config.DriverSQLite))
	return client
}
