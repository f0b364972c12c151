package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const migrationsLogPrefix = "db:migrations"

// downMarker separates the up and down halves of a migration file.
const downMarker = "-- +migrate Down"

// Migration is one schema step loaded from <version>_<name>.sql. Down is empty
// when the step cannot be rolled back.
type Migration struct {
	Version string
	Up      string
	Down    string
}

// MigrationState is a migration and when it was applied (zero when pending).
type MigrationState struct {
	Version   string
	AppliedAt time.Time
}

// Applied reports whether the migration has been applied.
func (s MigrationState) Applied() bool {
	return !s.AppliedAt.IsZero()
}

const createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
    version     TEXT PRIMARY KEY,
    applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// parseMigration splits a migration file into its up and down halves.
func parseMigration(version, content string) Migration {
	m := Migration{Version: version}
	up, down, found := strings.Cut(content, downMarker)
	m.Up = strings.TrimSpace(up)
	if found {
		m.Down = strings.TrimSpace(down)
	}
	return m
}

// LoadMigrations reads every .sql file in dir, ordered by file name.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read migration dir %s: %w", migrationsLogPrefix, dir, err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".sql" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s - failed to read %s: %w", migrationsLogPrefix, path, err)
		}
		out = append(out, parseMigration(strings.TrimSuffix(name, ".sql"), string(data)))
	}
	slog.Debug(fmt.Sprintf("%s - Loaded %d migrations from %s", migrationsLogPrefix, len(out), dir))
	return out, nil
}

// pending returns the migrations not yet in applied, keeping their order.
func pending(all []Migration, applied map[string]time.Time) []Migration {
	var out []Migration
	for _, m := range all {
		if _, ok := applied[m.Version]; !ok {
			out = append(out, m)
		}
	}
	return out
}

// appliedMigrations returns the applied versions and when they ran.
func appliedMigrations(ctx context.Context, pool *pgxpool.Pool) (map[string]time.Time, error) {
	if _, err := pool.Exec(ctx, createMigrationsTable); err != nil {
		return nil, fmt.Errorf("%s - failed to create schema_migrations: %w", migrationsLogPrefix, err)
	}
	rows, err := pool.Query(ctx, `SELECT version, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to read schema_migrations: %w", migrationsLogPrefix, err)
	}
	defer rows.Close()

	applied := make(map[string]time.Time)
	for rows.Next() {
		var version string
		var at time.Time
		if err := rows.Scan(&version, &at); err != nil {
			return nil, fmt.Errorf("%s - failed to scan schema_migrations: %w", migrationsLogPrefix, err)
		}
		applied[version] = at
	}
	return applied, rows.Err()
}

// RunMigrations applies the pending migrations in order, each in its own
// transaction. It returns how many were applied.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrations []Migration) (int, error) {
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return 0, err
	}

	todo := pending(migrations, applied)
	for i, m := range todo {
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Up); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version)
			return err
		})
		if err != nil {
			return i, fmt.Errorf("%s - migration %s failed: %w", migrationsLogPrefix, m.Version, err)
		}
		slog.Info(fmt.Sprintf("%s - Applied %s", migrationsLogPrefix, m.Version))
	}

	slog.Info(fmt.Sprintf("%s - Migrations complete (%d applied, %d already present)",
		migrationsLogPrefix, len(todo), len(migrations)-len(todo)))
	return len(todo), nil
}

// MigrationStatus lists every migration in dir with its applied time.
func MigrationStatus(ctx context.Context, pool *pgxpool.Pool, dir string) ([]MigrationState, error) {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return nil, err
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return nil, err
	}
	out := make([]MigrationState, 0, len(migrations))
	for _, m := range migrations {
		out = append(out, MigrationState{Version: m.Version, AppliedAt: applied[m.Version]})
	}
	return out, nil
}

// MigrationDown rolls back the most recently applied migration found in dir and
// returns its version. It fails when that migration has no down section.
func MigrationDown(ctx context.Context, pool *pgxpool.Pool, dir string) (string, error) {
	migrations, err := LoadMigrations(dir)
	if err != nil {
		return "", err
	}
	applied, err := appliedMigrations(ctx, pool)
	if err != nil {
		return "", err
	}

	for i := len(migrations) - 1; i >= 0; i-- {
		m := migrations[i]
		if _, ok := applied[m.Version]; !ok {
			continue
		}
		if m.Down == "" {
			return "", fmt.Errorf("%s - migration %s cannot be rolled back", migrationsLogPrefix, m.Version)
		}
		err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.Down); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
			return err
		})
		if err != nil {
			return "", fmt.Errorf("%s - rollback of %s failed: %w", migrationsLogPrefix, m.Version, err)
		}
		slog.Info(fmt.Sprintf("%s - Rolled back %s", migrationsLogPrefix, m.Version))
		return m.Version, nil
	}
	return "", nil
}
