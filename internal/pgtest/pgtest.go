// Package pgtest provides a scripted stand-in for db.DBTX so stores can be
// tested without a running Postgres.
package pgtest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Call is one recorded statement.
type Call struct {
	SQL  string
	Args []any
}

// Handler answers a statement with result rows or an error.
type Handler func(sql string, args []any) ([][]any, error)

// DB records every statement and answers through Handler. When Handler is
// nil, queries return no rows and Exec affects none.
type DB struct {
	mu      sync.Mutex
	Calls   []Call
	Handler Handler
	// Affected is reported by Exec when Handler returns no error.
	Affected int64
}

func (d *DB) record(sql string, args []any) ([][]any, error) {
	d.mu.Lock()
	d.Calls = append(d.Calls, Call{SQL: sql, Args: args})
	h := d.Handler
	d.mu.Unlock()
	if h == nil {
		return nil, nil
	}
	return h(sql, args)
}

func (d *DB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if _, err := d.record(sql, args); err != nil {
		return pgconn.CommandTag{}, err
	}
	return pgconn.NewCommandTag(fmt.Sprintf("UPDATE %d", d.Affected)), nil
}

func (d *DB) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	rows, err := d.record(sql, args)
	if err != nil {
		return nil, err
	}
	return &Rows{data: rows}, nil
}

func (d *DB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	rows, err := d.record(sql, args)
	if err != nil {
		return errRow{err}
	}
	if len(rows) == 0 {
		return errRow{pgx.ErrNoRows}
	}
	return valueRow(rows[0])
}

// Matching returns the calls whose SQL contains fragment.
func (d *DB) Matching(fragment string) []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Call
	for _, c := range d.Calls {
		if strings.Contains(c.SQL, fragment) {
			out = append(out, c)
		}
	}
	return out
}

// Begin returns a transaction sharing this DB's script.
func (d *DB) Begin(context.Context) (pgx.Tx, error) {
	return &Tx{DB: d}, nil
}

// Tx is a pgx.Tx whose statements go to the parent DB.
type Tx struct {
	pgx.Tx
	*DB
	Committed  bool
	RolledBack bool
}

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.DB.Exec(ctx, sql, args...)
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.DB.Query(ctx, sql, args...)
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.DB.QueryRow(ctx, sql, args...)
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *Tx) Commit(context.Context) error {
	t.Committed = true
	return nil
}

func (t *Tx) Rollback(context.Context) error {
	if !t.Committed {
		t.RolledBack = true
	}
	return nil
}

type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }

type valueRow []any

func (r valueRow) Scan(dest ...any) error { return assign(r, dest) }

// Rows iterates scripted values.
type Rows struct {
	data [][]any
	pos  int
	cur  []any
}

func (r *Rows) Close()                                       {}
func (r *Rows) Err() error                                   { return nil }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }
func (r *Rows) Values() ([]any, error)                       { return r.cur, nil }

func (r *Rows) Next() bool {
	if r.pos >= len(r.data) {
		return false
	}
	r.cur = r.data[r.pos]
	r.pos++
	return true
}

func (r *Rows) Scan(dest ...any) error { return assign(r.cur, dest) }

// assign copies values into pointers, converting between compatible kinds.
// A nil value zeroes the destination.
func assign(values []any, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("pgtest: %d values for %d destinations", len(values), len(dest))
	}
	for i, d := range dest {
		target := reflect.ValueOf(d)
		if target.Kind() != reflect.Pointer || target.IsNil() {
			return fmt.Errorf("pgtest: destination %d is not a pointer", i)
		}
		elem := target.Elem()
		if values[i] == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		v := reflect.ValueOf(values[i])
		switch {
		case v.Type().AssignableTo(elem.Type()):
			elem.Set(v)
		case v.Type().ConvertibleTo(elem.Type()):
			elem.Set(v.Convert(elem.Type()))
		case elem.Kind() == reflect.Pointer && v.Type().ConvertibleTo(elem.Type().Elem()):
			p := reflect.New(elem.Type().Elem())
			p.Elem().Set(v.Convert(elem.Type().Elem()))
			elem.Set(p)
		default:
			return fmt.Errorf("pgtest: cannot assign %T to %s", values[i], elem.Type())
		}
	}
	return nil
}
