package db

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const migrationsTestPrefix = "db:migrations_test"

func writeMigrationDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if content == "" {
			if err := os.Mkdir(filepath.Join(dir, name), 0o755); err != nil {
				t.Fatalf("%s - mkdir %s: %v", migrationsTestPrefix, name, err)
			}
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("%s - write %s: %v", migrationsTestPrefix, name, err)
		}
	}
	return dir
}

func TestParseMigration(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		wantUp   string
		wantDown string
	}{
		{"up only", "CREATE TABLE a (id INT);\n", "CREATE TABLE a (id INT);", ""},
		{"up and down", "CREATE TABLE a (id INT);\n\n-- +migrate Down\nDROP TABLE a;\n", "CREATE TABLE a (id INT);", "DROP TABLE a;"},
		{"empty down", "ALTER TABLE a ADD b INT;\n-- +migrate Down\n", "ALTER TABLE a ADD b INT;", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := parseMigration("001_a", tt.content)
			if m.Version != "001_a" || m.Up != tt.wantUp || m.Down != tt.wantDown {
				t.Errorf("%s - parseMigration = %+v", migrationsTestPrefix, m)
			}
		})
	}
}

func TestLoadMigrations_OrdersAndFilters(t *testing.T) {
	dir := writeMigrationDir(t, map[string]string{
		"003_index.sql":  "CREATE INDEX i ON a(b);",
		"001_create.sql": "CREATE TABLE a (id INT);\n-- +migrate Down\nDROP TABLE a;",
		"002_column.sql": "ALTER TABLE a ADD b INT;",
		"README.md":      "# not a migration",
		"archive.sql":    "",
	})

	got, err := LoadMigrations(dir)
	if err != nil {
		t.Fatalf("%s - LoadMigrations: %v", migrationsTestPrefix, err)
	}
	var versions []string
	for _, m := range got {
		versions = append(versions, m.Version)
	}
	if strings.Join(versions, ",") != "001_create,002_column,003_index" {
		t.Errorf("%s - versions = %v", migrationsTestPrefix, versions)
	}
	if got[0].Down != "DROP TABLE a;" || got[1].Down != "" {
		t.Errorf("%s - down sections = %q / %q", migrationsTestPrefix, got[0].Down, got[1].Down)
	}
}

func TestLoadMigrations_EmptyAndMissingDir(t *testing.T) {
	got, err := LoadMigrations(t.TempDir())
	if err != nil || len(got) != 0 {
		t.Errorf("%s - empty dir = %v, %v", migrationsTestPrefix, got, err)
	}
	if _, err := LoadMigrations(filepath.Join(t.TempDir(), "nonexistent")); err == nil {
		t.Errorf("%s - expected error for missing dir", migrationsTestPrefix)
	}
}

func TestLoadMigrations_RepositoryMigrations(t *testing.T) {
	got, err := LoadMigrations(filepath.Join("..", "..", "migrations"))
	if err != nil {
		t.Fatalf("%s - LoadMigrations: %v", migrationsTestPrefix, err)
	}
	if len(got) == 0 {
		t.Fatalf("%s - expected at least one migration", migrationsTestPrefix)
	}
	if !strings.Contains(got[0].Up, "device_settings") || !strings.Contains(got[0].Down, "DROP TABLE") {
		t.Errorf("%s - first migration should create and drop device_settings: %+v", migrationsTestPrefix, got[0])
	}
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: "001"}, {Version: "002"}, {Version: "003"}}
	applied := map[string]time.Time{"001": time.Now(), "003": time.Now()}

	got := pending(all, applied)
	if len(got) != 1 || got[0].Version != "002" {
		t.Errorf("%s - pending = %+v, want [002]", migrationsTestPrefix, got)
	}
	if len(pending(all, nil)) != 3 {
		t.Errorf("%s - all migrations should be pending with nothing applied", migrationsTestPrefix)
	}
}

func TestMigrationState_Applied(t *testing.T) {
	if (MigrationState{Version: "001"}).Applied() {
		t.Errorf("%s - zero time should be pending", migrationsTestPrefix)
	}
	if !(MigrationState{Version: "001", AppliedAt: time.Now()}).Applied() {
		t.Errorf("%s - non-zero time should be applied", migrationsTestPrefix)
	}
}
