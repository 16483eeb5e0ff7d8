package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrConnectionLost is matched by every error returned after the retry
// budget for connection-level failures is exhausted.
var ErrConnectionLost = errors.New("database connection lost")

// ConnectionError reports a statement abandoned after repeated
// connection-level failures.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrConnectionLost, e.Attempts, e.Err)
}

func (e *ConnectionError) Unwrap() []error {
	return []error{ErrConnectionLost, e.Err}
}

// StatementError reports a statement that the server rejected. It is never
// retried; the transaction it ran in has been rolled back.
type StatementError struct {
	SQL  string
	Args []any
	Err  error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("execute statement: %v", e.Err)
}

func (e *StatementError) Unwrap() error {
	return e.Err
}

// Code returns the SQLSTATE of the underlying server error, if any.
func (e *StatementError) Code() string {
	var pgErr *pgconn.PgError
	if errors.As(e.Err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports whether err carries SQLSTATE 23505.
func IsUniqueViolation(err error) bool {
	return sqlState(err) == "23505"
}

// IsForeignKeyViolation reports whether err carries SQLSTATE 23503.
func IsForeignKeyViolation(err error) bool {
	return sqlState(err) == "23503"
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// dialError marks a failure to establish a connection.
type dialError struct{ err error }

func (e *dialError) Error() string { return "connect: " + e.err.Error() }
func (e *dialError) Unwrap() error { return e.err }

// isConnectionFailure separates failures of the connection itself from
// failures of the statement. conn is the connection the attempt ran on and
// may be nil.
func isConnectionFailure(err error, conn Conn) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var de *dialError
	if errors.As(err, &de) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception; 57P01..57P03 mean the server is
		// shutting down or not accepting connections.
		return strings.HasPrefix(pgErr.Code, "08") ||
			pgErr.Code == "57P01" || pgErr.Code == "57P02" || pgErr.Code == "57P03"
	}

	if conn != nil && conn.IsClosed() {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}
