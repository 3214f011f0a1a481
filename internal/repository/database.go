package repository

import (
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

func init() {
	// sqlx does not know modernc's "sqlite" driver name out of the box.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// NewSQLiteDB opens (or creates) the SQLite database at the given path.
func NewSQLiteDB(path string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Connect("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite allows a single writer. Funneling everything through one
	// connection keeps per-comment operations linearizable and avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	logger.Info("Successfully connected to the database!", zap.String("path", path))
	return db, nil
}

// MigrateDB runs the embedded database migrations.
func MigrateDB(db *sqlx.DB, logger *zap.Logger) error {
	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return err
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "moderation", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	logger.Info("Database migration was run successfully")
	return nil
}
