package db

import (
	"database/sql"

	"github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/teranos/flowstate/errors"
)

// Supported database/sql driver names.
const (
	DriverSQLite = "sqlite3"
	DriverMySQL  = "mysql"
)

// SQLiteBusyTimeoutMS is how long SQLite waits on a locked database before
// returning SQLITE_BUSY.
const SQLiteBusyTimeoutMS = 5000

// Open opens a database for the given driver. For SQLite dsn is a file path
// (or ":memory:"); for MySQL it is a go-sql-driver DSN.
// If logger is provided, logs database operations; otherwise operates silently.
func Open(driver, dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	switch driver {
	case DriverSQLite, "":
		return openSQLite(dsn, logger)
	case DriverMySQL:
		return openMySQL(dsn, logger)
	}
	return nil, errors.NewInvalidRequestError("unsupported database driver %q", driver)
}

// OpenWithMigrations opens the database and applies all pending migrations.
func OpenWithMigrations(driver, dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	database, err := Open(driver, dsn, logger)
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}
	if err := Migrate(database, driver, logger); err != nil {
		database.Close()
		return nil, errors.Wrap(err, "migrate database")
	}
	return database, nil
}

func openSQLite(path string, logger *zap.SugaredLogger) (*sql.DB, error) {
	if logger != nil {
		logger.Debugw("Opening database", "driver", DriverSQLite, "path", path)
	}
	database, err := sql.Open(DriverSQLite, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// An in-memory database only exists on the connection that created it
	if path == ":memory:" {
		database.SetMaxOpenConns(1)
	}

	pragmas := []struct {
		stmt string
		what string
	}{
		// Enable WAL mode for concurrent reads during writes
		{"PRAGMA journal_mode = WAL", "enable WAL mode"},
		{"PRAGMA foreign_keys = ON", "enable foreign keys"},
		{"PRAGMA busy_timeout = 5000", "set busy timeout"},
	}
	for _, p := range pragmas {
		if _, err := database.Exec(p.stmt); err != nil {
			database.Close()
			return nil, errors.Wrapf(err, "failed to %s", p.what)
		}
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"driver", DriverSQLite,
			"path", path,
			"wal_mode", true,
			"foreign_keys", true,
		)
	}

	return database, nil
}

// mysqlConfig parses dsn and forces the settings the stores rely on.
func mysqlConfig(dsn string) (*mysql.Config, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse mysql dsn")
	}
	cfg.ParseTime = true
	return cfg, nil
}

func openMySQL(dsn string, logger *zap.SugaredLogger) (*sql.DB, error) {
	cfg, err := mysqlConfig(dsn)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Debugw("Opening database", "driver", DriverMySQL, "address", cfg.Addr, "database", cfg.DBName)
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build mysql connector")
	}
	database := sql.OpenDB(connector)

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, errors.Wrapf(err, "failed to reach mysql at %s", cfg.Addr)
	}

	if logger != nil {
		logger.Infow("Database opened successfully",
			"driver", DriverMySQL,
			"address", cfg.Addr,
			"database", cfg.DBName,
		)
	}

	return database, nil
}
