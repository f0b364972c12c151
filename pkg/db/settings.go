package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/device-facades/pkg/bootstrap"
	"github.com/morezero/device-facades/pkg/platform"
)

const settingsLogPrefix = "db:settings"

// Setting is one row of device_settings.
type Setting struct {
	Name     string
	Value    int
	Modified time.Time
}

// SettingsRepository is a platform.SettingsStore backed by the device_settings table.
type SettingsRepository struct {
	pool *pgxpool.Pool
}

// NewSettingsRepository creates a new SettingsRepository with the given connection pool.
func NewSettingsRepository(pool *pgxpool.Pool) *SettingsRepository {
	return &SettingsRepository{pool: pool}
}

var _ platform.SettingsStore = (*SettingsRepository)(nil)

// GetInt returns the named setting, or platform.ErrSettingNotFound.
func (r *SettingsRepository) GetInt(ctx context.Context, name string) (int, error) {
	slog.Debug(fmt.Sprintf("%s - GetInt name=%s", settingsLogPrefix, name))

	var value int64
	err := r.pool.QueryRow(ctx, `SELECT value FROM device_settings WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, platform.ErrSettingNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%s - failed to read %s: %w", settingsLogPrefix, name, err)
	}
	return int(value), nil
}

// PutInt creates or replaces the named setting.
func (r *SettingsRepository) PutInt(ctx context.Context, name string, value int) error {
	slog.Debug(fmt.Sprintf("%s - PutInt name=%s value=%d", settingsLogPrefix, name, value))

	_, err := r.pool.Exec(ctx,
		`INSERT INTO device_settings (name, value, modified)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, modified = EXCLUDED.modified`,
		name, int64(value), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s - failed to write %s: %w", settingsLogPrefix, name, err)
	}
	return nil
}

// ListSettings returns every stored setting ordered by name.
func (r *SettingsRepository) ListSettings(ctx context.Context) ([]Setting, error) {
	rows, err := r.pool.Query(ctx, `SELECT name, value, modified FROM device_settings ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to list settings: %w", settingsLogPrefix, err)
	}
	defer rows.Close()

	var out []Setting
	for rows.Next() {
		var s Setting
		var value int64
		if err := rows.Scan(&s.Name, &value, &s.Modified); err != nil {
			return nil, fmt.Errorf("%s - failed to scan setting: %w", settingsLogPrefix, err)
		}
		s.Value = int(value)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - failed to iterate settings: %w", settingsLogPrefix, err)
	}
	return out, nil
}

// SeedSettings inserts the profile's settings that are not stored yet. Existing
// values are left untouched. It returns how many rows were inserted.
func SeedSettings(ctx context.Context, pool *pgxpool.Pool, profile *bootstrap.DeviceProfile) (int, error) {
	if profile == nil {
		return 0, nil
	}
	names := make([]string, 0, len(profile.Settings))
	for name := range profile.Settings {
		names = append(names, name)
	}
	sort.Strings(names)

	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, name := range names {
		batch.Queue(
			`INSERT INTO device_settings (name, value, modified) VALUES ($1, $2, $3)
			 ON CONFLICT (name) DO NOTHING`,
			name, int64(profile.Settings[name]), now)
	}

	results := pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for _, name := range names {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("%s - failed to seed %s: %w", settingsLogPrefix, name, err)
		}
		inserted += int(tag.RowsAffected())
	}

	slog.Info(fmt.Sprintf("%s - Seeded %d of %d settings from profile %s", settingsLogPrefix, inserted, len(names), profile.Name))
	return inserted, nil
}
