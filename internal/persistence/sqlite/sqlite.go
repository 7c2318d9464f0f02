package sqlite

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/BerniPi/BGBB-IKT/internal/persistence"
	"github.com/BerniPi/BGBB-IKT/internal/persistence/sqlite/migration"
)

// timestampLayout sorts lexically in chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

var (
	_ persistence.UnitOfWork         = (*Storage)(nil)
	_ persistence.HistoryReader      = (*Storage)(nil)
	_ persistence.DeviceReader       = (*Storage)(nil)
	_ persistence.ActivityRepository = (*Storage)(nil)
	_ persistence.Tx                 = (*txStore)(nil)
)

// Storage is the SQLite backed persistence layer.
type Storage struct {
	pool   *ConnectionPool
	mapper *ErrorMapper
	retry  *RetryHelper
	logger *slog.Logger

	queries
}

// Open connects to the database described by config.
func Open(config migration.SQLiteConfig, logger *slog.Logger) (*Storage, error) {
	pool, err := NewConnectionPool(config)
	if err != nil {
		return nil, err
	}
	return NewStorage(pool, logger), nil
}

// OpenPath connects to the database file at path with default settings.
func OpenPath(path string, logger *slog.Logger) (*Storage, error) {
	return Open(migration.DefaultSQLiteConfig(path), logger)
}

// NewStorage builds a Storage on top of an existing pool.
func NewStorage(pool *ConnectionPool, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	mapper := NewErrorMapper()
	return &Storage{
		pool:    pool,
		mapper:  mapper,
		retry:   NewRetryHelper(DefaultRetryConfig()),
		logger:  logger,
		queries: queries{ext: pool.DB(), mapper: mapper},
	}
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}

// Ping checks that the database is reachable.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Migrator returns a schema migrator bound to this storage.
func (s *Storage) Migrator() (*migration.Migrator, error) {
	return migration.NewMigrator(s.pool.DB().DB, s.logger)
}

// Migrate applies all pending schema migrations.
func (s *Storage) Migrate(ctx context.Context) error {
	m, err := s.Migrator()
	if err != nil {
		return err
	}
	return m.Up(ctx)
}

// WithinTx runs fn inside a transaction. Lock conflicts with concurrent
// writers restart the whole transaction.
func (s *Storage) WithinTx(ctx context.Context, fn func(tx persistence.Tx) error) error {
	return s.retry.WithRetry(ctx, func() error {
		return s.pool.WithTransaction(ctx, func(tx *sqlx.Tx) error {
			return fn(&txStore{queries: queries{ext: tx, mapper: s.mapper}})
		})
	})
}

// txStore exposes the repository queries bound to one transaction.
type txStore struct {
	queries
}

// queries holds the SQL shared by transactional and plain access.
type queries struct {
	ext    sqlx.ExtContext
	mapper *ErrorMapper
}

func (q queries) exists(ctx context.Context, query string, args ...any) (bool, error) {
	var found int
	if err := sqlx.GetContext(ctx, q.ext, &found, query, args...); err != nil {
		return false, q.mapper.MapError(err)
	}
	return found == 1, nil
}

func (q queries) execAffectingOne(ctx context.Context, query string, args ...any) error {
	result, err := q.ext.ExecContext(ctx, query, args...)
	if err != nil {
		return q.mapper.MapError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return persistence.ErrNotFound
	}
	return nil
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timestampLayout)
}

func parseTimestamp(value string) time.Time {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullableString(value *string) any {
	if value == nil {
		return nil
	}
	return *value
}
