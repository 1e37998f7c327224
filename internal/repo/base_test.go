package repo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	return conn
}

type ctxKey struct{}

func TestBaseDB_BindsContext(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	ctx := context.WithValue(context.Background(), ctxKey{}, "value")
	withCtx := base.DB(ctx)
	require.NotNil(t, withCtx)
	require.NotNil(t, withCtx.Statement)
	assert.Equal(t, ctx, withCtx.Statement.Context)

	//nolint:staticcheck // nil context returns the raw handle
	assert.Same(t, db, base.DB(nil))
}

func TestBaseRebind(t *testing.T) {
	db := newTestDB(t)
	base := NewBase(db)

	assert.Same(t, db, base.Rebind(nil).db)

	tx := db.Session(&gorm.Session{NewDB: true})
	assert.Same(t, tx, base.Rebind(tx).db)
}
