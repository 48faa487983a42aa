// Package sqlstore implements the relational store on PostgreSQL (through the
// pgx driver) or SQLite (through modernc.org/sqlite), accessed with sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"

	"github.com/okian/booklend/internal/adapters/repository"
	"github.com/okian/booklend/internal/domain/model"
	"github.com/okian/booklend/pkg/logger"
	"github.com/okian/booklend/pkg/metrics"
)

// Dialect selects the SQL flavour and the driver.
type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

const sqliteConstraint = 19

func init() { //nolint:gochecknoinits // sqlx has no default bindvar for this driver name
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Store implements repository.Store over database/sql.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	logger  logger.Logger
}

var _ repository.Store = (*Store)(nil)

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open connects, pings and creates the schema if missing.
//
// SQLite runs on a single connection; units of work are therefore serialized
// and LockBook needs no row lock. The DSN should set _txlock=immediate.
func Open(ctx context.Context, dialect Dialect, dsn string, opts ...Option) (*Store, error) {
	var driver string
	switch dialect {
	case Postgres:
		driver = "pgx"
	case SQLite:
		driver = "sqlite"
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	if dialect == SQLite {
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db, dialect: dialect}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("sqlstore")
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.logger.Info(ctx, "sql store ready", logger.String("dialect", string(dialect)))
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	schema := sqliteSchema
	if s.dialect == Postgres {
		schema = postgresSchema
	}
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// RunInTx runs fn in a database transaction.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) (err error) {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Warn(ctx, "rollback failed", logger.Error(rbErr))
			}
		}
	}()

	if err = fn(ctx, &tx{tx: sqlTx, dialect: s.dialect}); err != nil {
		return err
	}
	if err = sqlTx.Commit(); err != nil {
		return mapErr(err, "commit")
	}
	return nil
}

const overdueQuery = `
SELECT member_id, name, email, overdue_count, "rank" FROM (
	SELECT m.id AS member_id, m.name AS name, m.email AS email,
		COUNT(l.id) AS overdue_count,
		DENSE_RANK() OVER (ORDER BY COUNT(l.id) DESC) AS "rank"
	FROM loans l
	JOIN members m ON m.id = l.member_id
	WHERE l.returned_at IS NULL AND l.due_date < ?
	GROUP BY m.id, m.name, m.email
) ranked
ORDER BY overdue_count DESC, member_id ASC
LIMIT ?`

// OverdueMembers runs the dense-rank aggregation in the database.
func (s *Store) OverdueMembers(ctx context.Context, asOf time.Time, limit int) ([]model.OverdueMember, error) {
	if limit <= 0 {
		return []model.OverdueMember{}, nil
	}
	defer observe("overdue_members", time.Now())

	out := make([]model.OverdueMember, 0)
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(overdueQuery), asOf.UTC(), limit); err != nil {
		return nil, fmt.Errorf("overdue members: %w", err)
	}
	return out, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryQueryLatency(op, metrics.Since(start))
}

// mapErr turns unique and foreign key violations into model.ErrConflict.
func mapErr(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23503") {
		return repository.Conflict(format, args...)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) && liteErr.Code()&0xff == sqliteConstraint {
		return repository.Conflict(format, args...)
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

func recordUpdate(op string, start time.Time) {
	metrics.RecordRepositoryUpdateLatency(op, metrics.Since(start))
}
