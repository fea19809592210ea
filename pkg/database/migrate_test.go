package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victoralfred/kube_provisioner/pkg/logger"
)

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		filename string
		version  int
		name     string
		ok       bool
	}{
		{"001_create_kv_records.up.sql", 1, "create_kv_records", true},
		{"012_add_index.up.sql", 12, "add_index", true},
		{"001_create_kv_records.down.sql", 0, "", false},
		{"create_kv_records.up.sql", 0, "", false},
		{"000_zero.up.sql", 0, "", false},
		{"001_.up.sql", 0, "", false},
		{"README.md", 0, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, ok := parseMigrationFilename(tt.filename)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.version, version)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestLoadMigrations_SortedByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"files/002_second.up.sql":  {Data: []byte("SELECT 2")},
		"files/001_first.up.sql":   {Data: []byte("SELECT 1")},
		"files/001_first.down.sql": {Data: []byte("SELECT -1")},
		"files/notes.txt":          {Data: []byte("ignored")},
	}

	migrations, err := LoadMigrations(fsys, "files")
	require.NoError(t, err)
	require.Len(t, migrations, 2)
	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "first", migrations[0].Name)
	assert.Equal(t, "SELECT 1", migrations[0].Up)
	assert.Equal(t, 2, migrations[1].Version)
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"files/001_a.up.sql": {Data: []byte("SELECT 1")},
		"files/001_b.up.sql": {Data: []byte("SELECT 1")},
	}

	_, err := LoadMigrations(fsys, "files")
	assert.Error(t, err)
}

func TestMigrationRunner_AppliesOnlyPending(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	fsys := fstest.MapFS{
		"files/001_first.up.sql":  {Data: []byte("CREATE TABLE first (id INT)")},
		"files/002_second.up.sql": {Data: []byte("CREATE TABLE second (id INT)")},
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT MAX\(version\) FROM schema_migrations`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(1))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE second`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(2, "second").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runner := NewMigrationRunner(Wrap(sqlDB), logger.Nop())
	require.NoError(t, runner.RunMigrations(context.Background(), fsys, "files"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationRunner_FreshDatabase(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	fsys := fstest.MapFS{
		"files/001_first.up.sql": {Data: []byte("CREATE TABLE first (id INT)")},
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT MAX\(version\)`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE first`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`INSERT INTO schema_migrations`).
		WithArgs(1, "first").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runner := NewMigrationRunner(Wrap(sqlDB), logger.Nop())
	require.NoError(t, runner.RunMigrations(context.Background(), fsys, "files"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrationRunner_FailedMigrationRollsBack(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	fsys := fstest.MapFS{
		"files/001_first.up.sql": {Data: []byte("CREATE TABLE broken")},
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS schema_migrations`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT MAX\(version\)`).
		WillReturnRows(sqlmock.NewRows([]string{"max"}).AddRow(nil))
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TABLE broken`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	runner := NewMigrationRunner(Wrap(sqlDB), logger.Nop())
	err = runner.RunMigrations(context.Background(), fsys, "files")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}
