package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"io/fs"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var embeddedMigrations embed.FS

// Migrator applies the embedded schema migrations with goose.
type Migrator struct {
	provider *goose.Provider
	logger   *slog.Logger
}

// NewMigrator prepares a migrator for db using the embedded migration set.
func NewMigrator(db *sql.DB, logger *slog.Logger) (*Migrator, error) {
	fsys, err := fs.Sub(embeddedMigrations, "sql")
	if err != nil {
		return nil, NewMigrationError(0, "", "load", err)
	}
	return newMigrator(db, fsys, logger)
}

func newMigrator(db *sql.DB, fsys fs.FS, logger *slog.Logger) (*Migrator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	provider, err := goose.NewProvider(goose.DialectSQLite3, db, fsys)
	if err != nil {
		if errors.Is(err, goose.ErrNoMigrations) {
			return nil, ErrNoMigrations
		}
		return nil, NewMigrationError(0, "", "load", err)
	}
	return &Migrator{provider: provider, logger: logger.With("component", "migration")}, nil
}

// Up applies every pending migration in version order. Each migration runs
// in its own transaction; a failure stops the run.
func (m *Migrator) Up(ctx context.Context) error {
	_, err := m.Apply(ctx)
	return err
}

// Apply is Up that also reports what ran.
func (m *Migrator) Apply(ctx context.Context) ([]AppliedMigration, error) {
	results, err := m.provider.Up(ctx)

	var partial *goose.PartialError
	if errors.As(err, &partial) && len(results) == 0 {
		results = partial.Applied
	}

	applied := make([]AppliedMigration, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil || res.Error != nil {
			continue
		}
		applied = append(applied, AppliedMigration{
			Version:  res.Source.Version,
			Source:   res.Source.Path,
			Duration: res.Duration,
		})
		m.logger.InfoContext(ctx, "migration applied",
			"version", res.Source.Version,
			"source", res.Source.Path,
			"duration", res.Duration,
		)
	}

	if err != nil {
		if partial != nil && partial.Failed != nil && partial.Failed.Source != nil {
			err = NewMigrationError(partial.Failed.Source.Version, partial.Failed.Source.Path, "up", errors.Join(ErrMigrationFailed, partial.Err))
		} else {
			err = NewMigrationError(0, "", "up", errors.Join(ErrMigrationFailed, err))
		}
		m.logger.ErrorContext(ctx, "migration failed", "error", err)
		return applied, err
	}

	if version, verr := m.provider.GetDBVersion(ctx); verr == nil {
		m.logger.InfoContext(ctx, "schema up to date", "version", version, "applied", len(applied))
	}
	return applied, nil
}

// Status reports the current schema version and every known migration.
func (m *Migrator) Status(ctx context.Context) (MigrationStatus, error) {
	version, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return MigrationStatus{}, NewMigrationError(0, "", "status", err)
	}
	states, err := m.provider.Status(ctx)
	if err != nil {
		return MigrationStatus{}, NewMigrationError(0, "", "status", err)
	}

	status := MigrationStatus{CurrentVersion: version}
	for _, s := range states {
		if s == nil || s.Source == nil {
			continue
		}
		status.Migrations = append(status.Migrations, MigrationState{
			Version:   s.Source.Version,
			Source:    s.Source.Path,
			Applied:   s.State == goose.StateApplied,
			AppliedAt: s.AppliedAt,
		})
	}
	return status, nil
}

// Down rolls back the most recently applied migration.
func (m *Migrator) Down(ctx context.Context) error {
	res, err := m.provider.Down(ctx)
	if err != nil {
		return NewMigrationError(0, "", "down", err)
	}
	if res != nil && res.Source != nil {
		m.logger.InfoContext(ctx, "migration rolled back", "version", res.Source.Version, "source", res.Source.Path)
	}
	return nil
}
