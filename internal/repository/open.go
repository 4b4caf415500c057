package repository

import (
	"context"

	"github.com/rongwang/leave-roster-server/internal/config"
)

// Open returns the store selected by cfg along with a function releasing it.
// The PostgreSQL store is migrated before it is returned.
func Open(ctx context.Context, cfg *config.Config) (Repository, func() error, error) {
	if cfg.Database.Store == "memory" {
		return NewMemoryRepository(), func() error { return nil }, nil
	}

	db, err := config.SetupDatabase(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return NewPostgresRepository(db), db.Close, nil
}
