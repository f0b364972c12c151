// Package db provides settings data clearing.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const clearLogPrefix = "db:clear"

// ClearSettings truncates the device settings table. Schema is preserved; only data is removed.
func ClearSettings(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info(fmt.Sprintf("%s - Clearing device settings", clearLogPrefix))

	if _, err := pool.Exec(ctx, `TRUNCATE TABLE device_settings`); err != nil {
		return fmt.Errorf("%s - truncate failed: %w", clearLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Device settings cleared", clearLogPrefix))
	return nil
}
