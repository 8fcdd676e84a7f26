package database

import (
	"fmt"
	"os"

	"github.com/Gobusters/ectologger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// MigrationLogger adapts ectologger to the migrate logging interface.
type MigrationLogger struct {
	ectologger.Logger
}

func (l MigrationLogger) Verbose() bool {
	return true
}

func (l MigrationLogger) Printf(format string, v ...any) {
	l.Infof(format, v...)
}

// Migrate applies all up migrations from the given folder.
func Migrate(db *sqlx.DB, databaseName, migrationFolder string, logger ectologger.Logger) error {
	if _, err := os.Stat(migrationFolder); err != nil {
		return errors.Wrap(err, fmt.Sprintf("migration folder %s does not exist", migrationFolder))
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		logger.WithError(err).Error("Failed to create migration driver")
		return err
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationFolder, databaseName, driver)
	if err != nil {
		logger.WithError(err).Error("Failed to create migrate instance")
		return err
	}

	m.Log = MigrationLogger{Logger: logger}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		logger.WithError(err).Error("Migration failed")
		return err
	}

	logger.Info("Migrations applied")
	return nil
}
