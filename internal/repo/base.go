package repo

import (
	"context"

	"gorm.io/gorm"
)

// Base is embedded by gorm repositories so they can be rebound to a
// transaction without repeating the plumbing.
type Base struct {
	db *gorm.DB
}

func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// DB returns the connection bound to ctx; a nil ctx returns it unbound.
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Rebind returns a Base over tx, or b itself when tx is nil.
func (b Base) Rebind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}
