package storage

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// MigrateUp applies all pending migrations.
func (s *Store) MigrateUp(ctx context.Context) error {
	m, err := s.newMigrate(ctx)
	if err != nil {
		return err
	}
	// m is not closed: that would close s.db as well

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the schema version (0 if nothing is applied).
func (s *Store) MigrateVersion(ctx context.Context) (uint, bool, error) {
	m, err := s.newMigrate(ctx)
	if err != nil {
		return 0, false, err
	}
	version, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (s *Store) newMigrate(ctx context.Context) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("unable to open the embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("unable to initialize the sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize migrations: %w", err)
	}
	m.Log = &migrateLogger{ctx: ctx}
	return m, nil
}

type migrateLogger struct {
	ctx context.Context
}

func (l *migrateLogger) Printf(format string, v ...any) {
	logger.Debugf(l.ctx, "[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool {
	return false
}
