package db

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var executorTables = []string{
	"schema_migrations",
	"executions",
	"execution_job_nodes",
	"execution_active_references",
	"execution_logs",
}

func TestOpenWithMigrations(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	db, err := OpenWithMigrations(DriverSQLite, dbPath, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer db.Close()

	for _, table := range executorTables {
		var n int
		err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 1, n, "table %s should exist after migrations", table)
	}

	var applied int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, len(executorTables), applied)
}

func TestMigrate(t *testing.T) {
	t.Run("is idempotent", func(t *testing.T) {
		db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, Migrate(db, DriverSQLite, nil))
		require.NoError(t, Migrate(db, DriverSQLite, nil), "running migrations multiple times should be safe")
	})

	t.Run("closed database fails", func(t *testing.T) {
		db, err := Open(DriverSQLite, filepath.Join(t.TempDir(), "test.db"), nil)
		require.NoError(t, err)
		db.Close()

		err = Migrate(db, DriverSQLite, nil)
		require.Error(t, err)
		assert.Contains(t, fmt.Sprintf("%+v", err), "migrate.go")
	})

	t.Run("unknown driver", func(t *testing.T) {
		db, err := Open(DriverSQLite, ":memory:", nil)
		require.NoError(t, err)
		defer db.Close()

		assert.Error(t, Migrate(db, "oracle", nil))
	})

	t.Run("log chunk primary key rejects duplicates", func(t *testing.T) {
		db, err := OpenWithMigrations(DriverSQLite, ":memory:", nil)
		require.NoError(t, err)
		defer db.Close()

		_, err = db.Exec(`INSERT INTO executions (project_id, flow_id, version, status, submit_time, update_time)
			VALUES (1, 'f', 1, 20, 0, 0)`)
		require.NoError(t, err)

		insert := `INSERT INTO execution_logs
			(exec_id, name, attempt, rerun_generation, enc_type, start_byte, end_byte, log, upload_time)
			VALUES (1, '', 0, 0, 1, 0, 10, x'00', 0)`
		_, err = db.Exec(insert)
		require.NoError(t, err)
		_, err = db.Exec(insert)
		require.Error(t, err)
		assert.True(t, IsUniqueViolation(err))
	})
}

func TestEmbeddedMigrationsMatchAcrossDialects(t *testing.T) {
	lite, err := migrations.ReadDir("sqlite/migrations")
	require.NoError(t, err)
	my, err := migrations.ReadDir("mysql/migrations")
	require.NoError(t, err)

	require.Equal(t, len(lite), len(my))
	for i := range lite {
		assert.Equal(t, lite[i].Name(), my[i].Name())
	}
}

func TestSplitStatements(t *testing.T) {
	src := `-- header comment
CREATE TABLE a (
    id INTEGER
);

-- between
CREATE INDEX idx_a ON a(id);
INSERT INTO a VALUES (1)`

	stmts := splitStatements(src)
	require.Len(t, stmts, 3)
	assert.Equal(t, "CREATE TABLE a (\n    id INTEGER\n)", stmts[0])
	assert.Equal(t, "CREATE INDEX idx_a ON a(id)", stmts[1])
	assert.Equal(t, "INSERT INTO a VALUES (1)", stmts[2])
}
