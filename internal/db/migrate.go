package db

import (
	"embed"
	"errors"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	// Registra el driver pgx/v5 para golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/samber/oops"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migrator interface {
	Up() error
	Down() error
	Version() (version uint, dirty bool, err error)
	Close() (source error, database error)
}

// Migrator aplica el esquema embebido en el binario.
type Migrator struct {
	m migrator
}

func NewMigrator(databaseURL string) (*Migrator, error) {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, oops.Code("MIGRATION_SOURCE_FAILED").Wrap(err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", source, MigrateURL(databaseURL))
	if err != nil {
		_ = source.Close()
		return nil, oops.Code("MIGRATION_INIT_FAILED").Wrap(err)
	}
	return &Migrator{m: m}, nil
}

// MigrateURL cambia el esquema postgres:// por pgx5://, que es el que espera el driver.
func MigrateURL(databaseURL string) string {
	if rest, ok := strings.CutPrefix(databaseURL, "postgres://"); ok {
		return "pgx5://" + rest
	}
	if rest, ok := strings.CutPrefix(databaseURL, "postgresql://"); ok {
		return "pgx5://" + rest
	}
	return databaseURL
}

func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_UP_FAILED").Wrap(err)
	}
	return nil
}

func (m *Migrator) Down() error {
	if err := m.m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return oops.Code("MIGRATION_DOWN_FAILED").Wrap(err)
	}
	return nil
}

// Version devuelve 0 cuando todavía no se aplicó ninguna migración.
func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, oops.Code("MIGRATION_VERSION_FAILED").Wrap(err)
	}
	return version, dirty, nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}
