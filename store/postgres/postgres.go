// Package postgres is a pgx backed BlacklistStore and ReplayStore.
//
// Every call is wrapped in an OpenTelemetry client span carrying db.system,
// db.operation and a truncated db.statement. Replay records are removed by
// [Store.PruneExpired], driven by store.Pruner.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/tokenguard/store"
)

const tracerName = "github.com/MrEthical07/tokenguard/store/postgres"

// ErrUnavailable wraps every database failure. It matches store.ErrUnavailable.
var ErrUnavailable = fmt.Errorf("postgres %w", store.ErrUnavailable)

// Pool is the subset of the pgx pool API used by Store. It is satisfied by
// *pgxpool.Pool and by pgxmock pools.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

const (
	schemaSQL = `
CREATE TABLE IF NOT EXISTS tokenguard_blacklisted_tokens (
	token_key  TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS tokenguard_blacklisted_users (
	subject    TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS tokenguard_consumed_tokens (
	token_id    TEXT PRIMARY KEY,
	expires_at  TIMESTAMPTZ NOT NULL,
	consumed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tokenguard_consumed_tokens_expires_at_idx
	ON tokenguard_consumed_tokens (expires_at);`

	insertTokenSQL  = `INSERT INTO tokenguard_blacklisted_tokens (token_key) VALUES ($1) ON CONFLICT (token_key) DO NOTHING`
	insertUserSQL   = `INSERT INTO tokenguard_blacklisted_users (subject) VALUES ($1) ON CONFLICT (subject) DO NOTHING`
	deleteTokenSQL  = `DELETE FROM tokenguard_blacklisted_tokens WHERE token_key = $1`
	deleteUserSQL   = `DELETE FROM tokenguard_blacklisted_users WHERE subject = $1`
	existsTokenSQL  = `SELECT EXISTS (SELECT 1 FROM tokenguard_blacklisted_tokens WHERE token_key = $1)`
	existsUserSQL   = `SELECT EXISTS (SELECT 1 FROM tokenguard_blacklisted_users WHERE subject = $1)`
	consumeSQL      = `INSERT INTO tokenguard_consumed_tokens (token_id, expires_at) VALUES ($1, $2) ON CONFLICT (token_id) DO NOTHING`
	pruneExpiredSQL = `DELETE FROM tokenguard_consumed_tokens WHERE expires_at <= $1`
)

// Store implements store.BlacklistStore, store.ReplayStore and
// store.ExpiredPruner on PostgreSQL.
type Store struct {
	pool   Pool
	tracer trace.Tracer
	dbName string
}

// NewFromPool wraps an existing pool. dbName is used for span attributes.
func NewFromPool(pool Pool, dbName string) *Store {
	return &Store{
		pool:   pool,
		tracer: otel.Tracer(tracerName),
		dbName: dbName,
	}
}

// Connect parses dsn, opens a pool with at most maxConns connections and
// verifies connectivity.
func Connect(ctx context.Context, dsn string, maxConns int32) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return NewFromPool(pool, cfg.ConnConfig.Database), nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.exec(ctx, "EnsureSchema", schemaSQL)
	return err
}

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

func (s *Store) AddToken(ctx context.Context, key string) error {
	_, err := s.exec(ctx, "AddToken", insertTokenSQL, key)
	return err
}

func (s *Store) AddUser(ctx context.Context, subject string) error {
	_, err := s.exec(ctx, "AddUser", insertUserSQL, subject)
	return err
}

func (s *Store) RemoveToken(ctx context.Context, key string) error {
	_, err := s.exec(ctx, "RemoveToken", deleteTokenSQL, key)
	return err
}

func (s *Store) RemoveUser(ctx context.Context, subject string) error {
	_, err := s.exec(ctx, "RemoveUser", deleteUserSQL, subject)
	return err
}

func (s *Store) IsTokenBlacklisted(ctx context.Context, key string) (bool, error) {
	return s.exists(ctx, "IsTokenBlacklisted", existsTokenSQL, key)
}

func (s *Store) IsUserBlacklisted(ctx context.Context, subject string) (bool, error) {
	return s.exists(ctx, "IsUserBlacklisted", existsUserSQL, subject)
}

// Consume inserts the token id; the primary key makes exactly one insert win.
func (s *Store) Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	tag, err := s.exec(ctx, "Consume", consumeSQL, tokenID, expiresAt.UTC())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// PruneExpired deletes replay records whose token expired at or before now.
func (s *Store) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.exec(ctx, "PruneExpired", pruneExpiredSQL, now.UTC())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// Ping reports round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	ctx, span := s.startSpan(ctx, "Ping", "")
	start := time.Now()
	err := s.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

// Durable reports true.
func (s *Store) Durable() bool { return true }

func (s *Store) exec(ctx context.Context, op, sql string, args ...any) (pgconn.CommandTag, error) {
	ctx, span := s.startSpan(ctx, op, sql)
	tag, err := s.pool.Exec(ctx, sql, args...)
	finishSpan(span, err)
	if err != nil {
		return tag, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return tag, nil
}

func (s *Store) exists(ctx context.Context, op, sql string, arg string) (bool, error) {
	ctx, span := s.startSpan(ctx, op, sql)
	var ok bool
	err := s.pool.QueryRow(ctx, sql, arg).Scan(&ok)
	finishSpan(span, err)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

func (s *Store) startSpan(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "postgres."+op,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.name", s.dbName),
		attribute.String("db.operation", op),
		attribute.String("db.statement", truncateSQL(sql)),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

const maxStatementLength = 100

func truncateSQL(sql string) string {
	if len(sql) <= maxStatementLength {
		return sql
	}
	return sql[:maxStatementLength] + "..."
}
