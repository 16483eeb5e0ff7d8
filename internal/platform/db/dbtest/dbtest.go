// Package dbtest provides in-memory stand-ins for db.Querier and pgx.Rows
// so repositories can be tested without a server.
package dbtest

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call records one statement sent to a Querier.
type Call struct {
	SQL  string
	Args []any
}

// Querier is a scripted db.Querier. Unset hooks succeed with no rows.
type Querier struct {
	ExecFn     func(sql string, args []any) (pgconn.CommandTag, error)
	QueryFn    func(sql string, args []any) (*Rows, error)
	QueryRowFn func(sql string, args []any) ([]any, error)

	Calls []Call
}

func (q *Querier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.Calls = append(q.Calls, Call{SQL: sql, Args: args})
	if q.ExecFn == nil {
		return pgconn.NewCommandTag("UPDATE 1"), nil
	}
	return q.ExecFn(sql, args)
}

func (q *Querier) Query(_ context.Context, sql string, args []any, fn func(pgx.Rows) error) error {
	q.Calls = append(q.Calls, Call{SQL: sql, Args: args})
	rows := NewRows()
	if q.QueryFn != nil {
		var err error
		if rows, err = q.QueryFn(sql, args); err != nil {
			return err
		}
	}
	defer rows.Close()
	if err := fn(rows); err != nil {
		return err
	}
	return rows.Err()
}

// QueryRow scans the values returned by QueryRowFn into dest. A nil slice
// means the statement produced no row.
func (q *Querier) QueryRow(_ context.Context, sql string, args []any, dest ...any) (bool, error) {
	q.Calls = append(q.Calls, Call{SQL: sql, Args: args})
	if q.QueryRowFn == nil {
		return false, nil
	}
	values, err := q.QueryRowFn(sql, args)
	if err != nil {
		return false, err
	}
	if values == nil {
		return false, nil
	}
	if err := scanInto(values, dest); err != nil {
		return false, err
	}
	return true, nil
}

// LastCall returns the most recent statement, or a zero Call.
func (q *Querier) LastCall() Call {
	if len(q.Calls) == 0 {
		return Call{}
	}
	return q.Calls[len(q.Calls)-1]
}

// Rows is an in-memory pgx.Rows.
type Rows struct {
	data   [][]any
	pos    int
	closed bool
	err    error
}

func NewRows(data ...[]any) *Rows {
	return &Rows{data: data, pos: -1}
}

// WithErr makes Err report err once iteration ends.
func (r *Rows) WithErr(err error) *Rows {
	r.err = err
	return r
}

func (r *Rows) Close() { r.closed = true }

func (r *Rows) Err() error { return r.err }

func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.data)))
}

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *Rows) Next() bool {
	if r.closed {
		return false
	}
	r.pos++
	if r.pos >= len(r.data) {
		r.closed = true
		return false
	}
	return true
}

func (r *Rows) Scan(dest ...any) error {
	if r.pos < 0 || r.pos >= len(r.data) {
		return fmt.Errorf("scan called without a current row")
	}
	return scanInto(r.data[r.pos], dest)
}

func (r *Rows) Values() ([]any, error) {
	if r.pos < 0 || r.pos >= len(r.data) {
		return nil, fmt.Errorf("values called without a current row")
	}
	return r.data[r.pos], nil
}

func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Conn() *pgx.Conn { return nil }

func scanInto(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("row has %d values, scan wants %d", len(values), len(dest))
	}
	for i := range dest {
		if err := assign(dest[i], values[i]); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

// assign copies src into the pointer dst, allocating when dst points at a
// pointer and converting between compatible kinds.
func assign(dst, src any) error {
	dv := reflect.ValueOf(dst)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("destination %T is not a non-nil pointer", dst)
	}
	target := dv.Elem()

	if src == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}

	sv := reflect.ValueOf(src)
	switch {
	case sv.Type().AssignableTo(target.Type()):
		target.Set(sv)
	case target.Kind() == reflect.Ptr && sv.Type().AssignableTo(target.Type().Elem()):
		p := reflect.New(target.Type().Elem())
		p.Elem().Set(sv)
		target.Set(p)
	case sv.Type().ConvertibleTo(target.Type()):
		target.Set(sv.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", src, target.Type())
	}
	return nil
}
