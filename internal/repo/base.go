package repo

import (
	"context"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"gorm.io/gorm"
)

// Base provides a shared foundation for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(conn *gorm.DB) Base {
	return Base{db: conn}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// Tx runs fn in a transaction on the base connection.
func (b Base) Tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.RunInTx(ctx, b.db, fn)
}

// Postgres reports whether JSONB operators are available.
func (b Base) Postgres() bool {
	return db.IsPostgres(b.db)
}
