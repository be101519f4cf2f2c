// Package sqlite is a modernc.org/sqlite backed BlacklistStore and
// ReplayStore for single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrEthical07/tokenguard/store"

	_ "modernc.org/sqlite"
)

const tracerName = "github.com/MrEthical07/tokenguard/store/sqlite"

// ErrUnavailable wraps every database failure. It matches store.ErrUnavailable.
var ErrUnavailable = fmt.Errorf("sqlite %w", store.ErrUnavailable)

// Store implements store.BlacklistStore, store.ReplayStore and
// store.ExpiredPruner on SQLite.
type Store struct {
	db     *sql.DB
	dsn    string
	tracer trace.Tracer
	now    func() time.Time
}

// Open opens dsn and applies migrations. A single connection serialises
// writers so INSERT OR IGNORE is an atomic check-and-set.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(context.Background(), `PRAGMA busy_timeout = 5000;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:     db,
		dsn:    dsn,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
	if err := s.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: apply migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) AddToken(ctx context.Context, key string) error {
	_, err := s.exec(ctx, "AddToken",
		`INSERT OR IGNORE INTO blacklisted_tokens (token_key, created_at) VALUES (?, ?)`,
		key, s.now().Unix())
	return err
}

func (s *Store) AddUser(ctx context.Context, subject string) error {
	_, err := s.exec(ctx, "AddUser",
		`INSERT OR IGNORE INTO blacklisted_users (subject, created_at) VALUES (?, ?)`,
		subject, s.now().Unix())
	return err
}

func (s *Store) RemoveToken(ctx context.Context, key string) error {
	_, err := s.exec(ctx, "RemoveToken", `DELETE FROM blacklisted_tokens WHERE token_key = ?`, key)
	return err
}

func (s *Store) RemoveUser(ctx context.Context, subject string) error {
	_, err := s.exec(ctx, "RemoveUser", `DELETE FROM blacklisted_users WHERE subject = ?`, subject)
	return err
}

func (s *Store) IsTokenBlacklisted(ctx context.Context, key string) (bool, error) {
	return s.exists(ctx, "IsTokenBlacklisted",
		`SELECT EXISTS (SELECT 1 FROM blacklisted_tokens WHERE token_key = ?)`, key)
}

func (s *Store) IsUserBlacklisted(ctx context.Context, subject string) (bool, error) {
	return s.exists(ctx, "IsUserBlacklisted",
		`SELECT EXISTS (SELECT 1 FROM blacklisted_users WHERE subject = ?)`, subject)
}

// Consume inserts the token id; exactly one insert per id succeeds.
func (s *Store) Consume(ctx context.Context, tokenID string, expiresAt time.Time) (bool, error) {
	res, err := s.exec(ctx, "Consume",
		`INSERT OR IGNORE INTO consumed_tokens (token_id, expires_at, consumed_at) VALUES (?, ?, ?)`,
		tokenID, expiresAt.Unix(), s.now().Unix())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n == 1, nil
}

// PruneExpired deletes replay records whose token expired at or before now.
func (s *Store) PruneExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.exec(ctx, "PruneExpired", `DELETE FROM consumed_tokens WHERE expires_at <= ?`, now.Unix())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n, nil
}

// Ping reports round-trip latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return time.Since(start), nil
}

// Durable reports true unless the database lives in memory.
func (s *Store) Durable() bool {
	return !inMemoryDSN(s.dsn)
}

// inMemoryDSN recognizes ":memory:" paths, the empty (temporary) path and
// the mode=memory and vfs=memdb URI parameters.
func inMemoryDSN(dsn string) bool {
	path, rawQuery, _ := strings.Cut(strings.TrimSpace(dsn), "?")
	path = strings.TrimPrefix(path, "file:")
	if path == "" || path == ":memory:" {
		return true
	}
	if rawQuery == "" {
		return false
	}
	q, err := url.ParseQuery(rawQuery)
	if err != nil {
		// An unparsable URI cannot be shown to be on disk.
		return true
	}
	return strings.EqualFold(q.Get("mode"), "memory") || strings.EqualFold(q.Get("vfs"), "memdb")
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) (sql.Result, error) {
	ctx, span := s.startSpan(ctx, op, query)
	res, err := s.db.ExecContext(ctx, query, args...)
	finishSpan(span, err)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res, nil
}

func (s *Store) exists(ctx context.Context, op, query, arg string) (bool, error) {
	ctx, span := s.startSpan(ctx, op, query)
	var ok bool
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&ok)
	finishSpan(span, err)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return ok, nil
}

func (s *Store) startSpan(ctx context.Context, op, query string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "sqlite."+op, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "sqlite"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", query),
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
