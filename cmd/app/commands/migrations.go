package commands

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	migratedb "github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/allisson/dormkeys/internal/database"
)

// migrationDirs maps a database driver to its directory under migrations/.
var migrationDirs = map[string]string{
	database.DriverPostgres: "postgresql",
	database.DriverMySQL:    "mysql",
	database.DriverSQLite:   "sqlite",
}

// RunMigrations applies every pending migration from migrationsRoot/<driver dir>
// over an open connection. Returns nil when the schema is already current.
func RunMigrations(logger *slog.Logger, db *sql.DB, driver, migrationsRoot string) error {
	dir, ok := migrationDirs[driver]
	if !ok {
		return fmt.Errorf("failed to create migrate instance: unsupported database driver: %s", driver)
	}

	logger.Info("running database migrations", slog.String("driver", driver))

	var (
		instance migratedb.Driver
		err      error
	)
	switch driver {
	case database.DriverPostgres:
		instance, err = postgres.WithInstance(db, &postgres.Config{})
	case database.DriverMySQL:
		instance, err = mysql.WithInstance(db, &mysql.Config{})
	case database.DriverSQLite:
		instance, err = sqlite.WithInstance(db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to create migrate driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsRoot+"/"+dir, driver, instance)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer closeMigrate(m, logger)

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations completed successfully")
	return nil
}
