package db

import (
	"context"
	_ "embed"
	"fmt"

	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaSQL string

// ApplySchema creates the tables if they do not exist yet. The schema is
// written to be idempotent, so running it on every startup is safe.
func (db *DB) ApplySchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	db.logger.Info("database schema applied", zap.Int("bytes", len(schemaSQL)))
	return nil
}
