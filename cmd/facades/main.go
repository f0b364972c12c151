// Package main is the entrypoint for device-facades.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/url"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/device-facades/internal/config"
	"github.com/morezero/device-facades/internal/server"
	"github.com/morezero/device-facades/pkg/bootstrap"
	"github.com/morezero/device-facades/pkg/db"
	"github.com/morezero/device-facades/pkg/registry"
)

const usage = `Usage: facades [command]
       facades serve                 Start the facade server (COMMS, HTTP, RPC dispatch).
       facades procedures [query]    Print the registered procedures as JSON.
       facades migrate up            Run database migrations.
       facades migrate down          Roll back one migration (optional; not all migrations support down).
       facades migrate status        Show migration status.
       facades ensure-db [name]      Create database if missing (default name: facades_test). Uses DATABASE_URL host/user.
       facades seed [profile]        Insert device profile settings that are not stored yet.
       facades clear                 Delete all stored settings; schema is preserved.

Commands:
  serve           (default) Start the facade server.
  procedures      Print procedure descriptors; an optional query filters by name or description.
  migrate up      Run database migrations only.
  migrate down    Roll back last migration (optional).
  migrate status  Show current migration status.
  ensure-db       Create a database on the same host as DATABASE_URL.
  seed            Seed settings from a device profile (default: FACADE_DEVICE_PROFILE or built-in).
  clear           Delete stored settings.

Environment: COMMS_URL, SETTINGS_BACKEND (memory|postgres), DATABASE_URL, MIGRATION_PATH,
FACADE_DEVICE_PROFILE, HTTP_PORT, LOG_LEVEL. See README.
`

func main() {
	args := os.Args[1:]
	cmd := ""
	if len(args) > 0 && args[0] != "" {
		cmd = args[0]
	}

	switch cmd {
	case "migrate":
		if len(args) < 2 {
			log.Fatalf("facades migrate: require subcommand (up, down, status)")
		}
		sub := args[1]
		var err error
		switch sub {
		case "up":
			err = withPool(runMigrateUp)
		case "status":
			err = withPool(runMigrateStatus)
		case "down":
			err = withPool(runMigrateDown)
		default:
			log.Fatalf("facades migrate: unknown subcommand %q (use up, down, status)", sub)
		}
		if err != nil {
			log.Fatalf("facades migrate %s: %v", sub, err)
		}
		return
	case "clear":
		if err := withPool(runClear); err != nil {
			log.Fatalf("facades clear: %v", err)
		}
		return
	case "seed":
		profilePath := ""
		if len(args) > 1 {
			profilePath = args[1]
		}
		err := withPool(func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
			return runSeed(ctx, cfg, pool, profilePath)
		})
		if err != nil {
			log.Fatalf("facades seed: %v", err)
		}
		return
	case "ensure-db":
		dbName := "facades_test"
		if len(args) > 1 && args[1] != "" {
			dbName = args[1]
		}
		if err := runEnsureDB(dbName); err != nil {
			log.Fatalf("facades ensure-db: %v", err)
		}
		return
	case "procedures":
		query := ""
		if len(args) > 1 {
			query = args[1]
		}
		if err := printProcedures(os.Stdout, query); err != nil {
			log.Fatalf("facades procedures: %v", err)
		}
		return
	case "help", "-h", "--help":
		fmt.Print(usage)
		return
	case "serve", "":
		// serve (explicit or default)
		break
	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q.\n%s", cmd, usage)
		os.Exit(1)
	}

	if err := server.Run(); err != nil {
		log.Fatalf("facades: %v", err)
	}
}

// withPool loads DB config, opens a pool and runs fn with it.
func withPool(fn func(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.PoolOpts())
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, cfg, pool)
}

func runMigrateUp(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	migrations, err := db.LoadMigrations(cfg.MigrationPath)
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	n, err := db.RunMigrations(ctx, pool, migrations)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	fmt.Printf("Applied %d migrations.\n", n)
	return nil
}

func runMigrateStatus(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	states, err := db.MigrationStatus(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	printMigrationStatus(os.Stdout, states)
	return nil
}

// printMigrationStatus writes one line per migration: its version and when it was applied.
func printMigrationStatus(w io.Writer, states []db.MigrationState) {
	for _, st := range states {
		applied := "pending"
		if st.Applied() {
			applied = st.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%-40s %s\n", st.Version, applied)
	}
}

func runMigrateDown(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool) error {
	version, err := db.MigrationDown(ctx, pool, cfg.MigrationPath)
	if err != nil {
		return err
	}
	if version == "" {
		fmt.Println("Nothing to roll back.")
		return nil
	}
	fmt.Printf("Rolled back %s.\n", version)
	return nil
}

func runClear(ctx context.Context, _ *config.Config, pool *pgxpool.Pool) error {
	if err := db.ClearSettings(ctx, pool); err != nil {
		return fmt.Errorf("clear settings: %w", err)
	}
	return nil
}

func runSeed(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, profilePath string) error {
	if profilePath == "" {
		profilePath = cfg.DeviceProfile
	}
	profile, err := bootstrap.LoadDeviceProfile(profilePath)
	if err != nil {
		return fmt.Errorf("load device profile: %w", err)
	}
	n, err := db.SeedSettings(ctx, pool, profile)
	if err != nil {
		return fmt.Errorf("seed settings: %w", err)
	}
	fmt.Printf("Seeded %d settings from profile %q.\n", n, profile.Name)
	return nil
}

func runEnsureDB(dbName string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ValidateForDB(); err != nil {
		return err
	}
	targetURL, err := databaseURLFor(cfg.DatabaseURL, dbName)
	if err != nil {
		return err
	}
	if err := db.EnsureDatabase(context.Background(), targetURL); err != nil {
		return err
	}
	fmt.Printf("Database %q is ready.\n", dbName)
	return nil
}

// databaseURLFor replaces the database name in databaseURL, keeping the query (e.g. sslmode).
func databaseURLFor(databaseURL, dbName string) (string, error) {
	u, err := url.Parse(databaseURL)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	u.Path = "/" + dbName
	return u.String(), nil
}

// printProcedures writes the introspection listing of every registered facade.
func printProcedures(w io.Writer, query string) error {
	reg, err := server.BuildRegistry()
	if err != nil {
		return err
	}
	out, err := reg.Describe(&registry.DescribeInput{Query: query})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
