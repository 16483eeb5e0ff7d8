package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"github.com/ehr/patientmgr/internal/platform/telemetry"
)

// MaxAttempts bounds how often a statement is run when the connection
// fails underneath it.
const MaxAttempts = 3

// ErrClosed is returned by every operation on a closed Manager.
var ErrClosed = errors.New("database manager closed")

// Conn is the part of *pgx.Conn the Manager relies on.
type Conn interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Close(ctx context.Context) error
	IsClosed() bool
}

// DialFunc establishes a new connection.
type DialFunc func(ctx context.Context) (Conn, error)

// PgxDialer dials dsn with pgx.Connect.
func PgxDialer(dsn string) DialFunc {
	return func(ctx context.Context) (Conn, error) {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Querier is the statement surface repositories are written against.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args []any, fn func(pgx.Rows) error) error
	QueryRow(ctx context.Context, sql string, args []any, dest ...any) (bool, error)
}

// Manager owns a single database connection. Every statement runs in its
// own transaction; connection-level failures are retried on a fresh
// connection up to MaxAttempts times, statement failures are rolled back
// and returned as *StatementError.
type Manager struct {
	mu      sync.Mutex
	dial    DialFunc
	conn    Conn
	closed  bool
	logger  zerolog.Logger
	metrics *telemetry.Metrics
}

type Option func(*Manager)

// WithMetrics counts attempts and reconnects in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(mgr *Manager) {
		mgr.metrics = m
	}
}

// New returns a Manager that dials lazily on first use.
func New(dial DialFunc, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		dial:   dial,
		logger: logger.With().Str("component", "db").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Open connects to dsn immediately. A failed initial connection is
// returned to the caller.
func Open(ctx context.Context, dsn string, logger zerolog.Logger, opts ...Option) (*Manager, error) {
	m := New(PgxDialer(dsn), logger, opts...)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.acquire(ctx); err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	m.logger.Info().Msg("database connection established")
	return m, nil
}

// Exec runs a statement that produces no rows and commits it.
func (m *Manager) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	var tag pgconn.CommandTag
	err := m.run(ctx, sql, args, func(tx pgx.Tx) error {
		var err error
		tag, err = tx.Exec(ctx, sql, args...)
		return err
	})
	return tag, err
}

// Query runs a statement that produces rows. fn receives the full result
// set once per attempt, so anything it accumulates must be rebuilt on each
// call. The rows are closed after fn returns.
func (m *Manager) Query(ctx context.Context, sql string, args []any, fn func(pgx.Rows) error) error {
	return m.run(ctx, sql, args, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		if err := fn(rows); err != nil {
			return err
		}
		rows.Close()
		return rows.Err()
	})
}

// QueryRow scans the first row produced by sql into dest. It reports false
// when the statement produced no rows.
func (m *Manager) QueryRow(ctx context.Context, sql string, args []any, dest ...any) (bool, error) {
	found := false
	err := m.run(ctx, sql, args, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, sql, args...).Scan(dest...)
		if errors.Is(err, pgx.ErrNoRows) {
			found = false
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// Ping round-trips a trivial statement through the retry loop.
func (m *Manager) Ping(ctx context.Context) error {
	const sql = "SELECT 1"
	return m.run(ctx, sql, nil, func(tx pgx.Tx) error {
		var one int
		return tx.QueryRow(ctx, sql).Scan(&one)
	})
}

// Close releases the connection. Calling it more than once is harmless.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.conn == nil {
		return nil
	}
	err := m.conn.Close(ctx)
	m.conn = nil
	m.logger.Info().Msg("database connection closed")
	return err
}

func (m *Manager) run(ctx context.Context, sql string, args []any, fn func(pgx.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		conn, err := m.acquire(ctx)
		if err == nil {
			err = m.attempt(ctx, conn, fn)
		}
		if err == nil {
			m.metrics.StatementAttempt(telemetry.OutcomeOK)
			return nil
		}

		if ctx.Err() != nil {
			if conn != nil && conn.IsClosed() {
				m.discard(ctx, conn)
			}
			return fmt.Errorf("execute statement: %w", ctx.Err())
		}

		if !isConnectionFailure(err, conn) {
			m.metrics.StatementAttempt(telemetry.OutcomeStatementError)
			m.logger.Error().Err(err).
				Str("statement", sql).
				Interface("params", args).
				Msg("statement failed")
			return &StatementError{SQL: sql, Args: args, Err: err}
		}

		m.metrics.StatementAttempt(telemetry.OutcomeConnectionError)
		m.discard(ctx, conn)
		m.logger.Warn().Err(err).
			Int("attempt", attempt).
			Int("max_attempts", MaxAttempts).
			Msg("database connection failed, reconnecting")
		lastErr = err
	}

	m.logger.Error().Err(lastErr).
		Str("statement", sql).
		Int("attempts", MaxAttempts).
		Msg("giving up on statement")
	return &ConnectionError{Attempts: MaxAttempts, Err: lastErr}
}

// attempt runs fn in a transaction on conn, rolling back when fn fails.
func (m *Manager) attempt(ctx context.Context, conn Conn, fn func(pgx.Tx) error) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			m.logger.Debug().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// acquire returns the live connection, dialing a new one when needed.
// Callers hold m.mu.
func (m *Manager) acquire(ctx context.Context) (Conn, error) {
	if m.conn != nil && !m.conn.IsClosed() {
		return m.conn, nil
	}
	conn, err := m.dial(ctx)
	if err != nil {
		return nil, &dialError{err: err}
	}
	m.conn = conn
	return conn, nil
}

// discard drops conn so the next attempt dials again. Callers hold m.mu.
func (m *Manager) discard(ctx context.Context, conn Conn) {
	if conn == nil {
		return
	}
	if err := conn.Close(ctx); err != nil {
		m.logger.Debug().Err(err).Msg("close broken connection")
	}
	if m.conn == conn {
		m.conn = nil
	}
	m.metrics.Reconnect()
}
