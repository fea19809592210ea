package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

// Migration represents one forward migration file
type Migration struct {
	Version int
	Name    string
	Up      string
}

// MigrationRunner applies pending forward migrations in version order
type MigrationRunner struct {
	db  *DB
	log *logger.Logger
}

// NewMigrationRunner creates a new migration runner
func NewMigrationRunner(db *DB, log *logger.Logger) *MigrationRunner {
	return &MigrationRunner{
		db:  db,
		log: log,
	}
}

// RunMigrations executes every migration in dir newer than the recorded version
func (m *MigrationRunner) RunMigrations(ctx context.Context, migrations fs.FS, dir string) error {
	if err := m.ensureMigrationTable(ctx); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	all, err := LoadMigrations(migrations, dir)
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	current, err := m.currentVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	applied := 0
	for _, migration := range all {
		if migration.Version <= current {
			continue
		}
		if err := m.apply(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %03d_%s: %w", migration.Version, migration.Name, err)
		}
		applied++
	}

	m.log.WithField("current_version", current).
		WithField("applied", applied).
		Info("database migrations complete")
	return nil
}

func (m *MigrationRunner) ensureMigrationTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`
	_, err := m.db.ExecContext(ctx, query)
	return err
}

func (m *MigrationRunner) currentVersion(ctx context.Context) (int, error) {
	var version sql.NullInt64
	err := m.db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_migrations`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	if !version.Valid {
		return 0, nil
	}
	return int(version.Int64), nil
}

func (m *MigrationRunner) apply(ctx context.Context, migration Migration) error {
	m.log.WithField("version", migration.Version).
		WithField("name", migration.Name).
		Info("applying migration")

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.Up); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	query := `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`
	if _, err := tx.ExecContext(ctx, query, migration.Version, migration.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// LoadMigrations reads NNN_name.up.sql files from dir, sorted by version.
// Other files are ignored.
func LoadMigrations(migrations fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migration directory: %w", err)
	}

	seen := make(map[int]string)
	var result []Migration
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		version, name, ok := parseMigrationFilename(entry.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		content, err := fs.ReadFile(migrations, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		result = append(result, Migration{Version: version, Name: name, Up: string(content)})
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })
	return result, nil
}

func parseMigrationFilename(filename string) (int, string, bool) {
	if !strings.HasSuffix(filename, ".up.sql") {
		return 0, "", false
	}
	base := strings.TrimSuffix(filename, ".up.sql")

	parts := strings.SplitN(base, "_", 2)
	if len(parts) != 2 || parts[1] == "" {
		return 0, "", false
	}

	var version int
	if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil || version <= 0 {
		return 0, "", false
	}
	return version, parts[1], true
}
