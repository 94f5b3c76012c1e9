package db

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

// --- Mock DBTX ---

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// --- Mock Row ---

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// valueRow scans fixed values into dest, in order.
func valueRow(values ...any) *mockRow {
	return &mockRow{scanFn: func(dest ...any) error { return assignAll(dest, values) }}
}

// --- Mock Rows for Query ---

// mockRows implements pgx.Rows over in-memory rows. Values are assigned to
// destinations of the same type; []byte values are fed to sql.Scanner
// destinations (JSONB columns).
type mockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	return assignAll(dest, r.data[r.idx])
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

func assignAll(dest []any, values []any) error {
	if len(dest) != len(values) {
		return fmt.Errorf("scan: %d destinations for %d values", len(dest), len(values))
	}
	for i := range dest {
		if err := assign(dest[i], values[i]); err != nil {
			return fmt.Errorf("scan column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, value any) error {
	if sc, ok := dest.(sql.Scanner); ok {
		if b, isBytes := value.([]byte); isBytes {
			return sc.Scan(b)
		}
	}
	dv := reflect.ValueOf(dest).Elem()
	if value == nil {
		dv.Set(reflect.Zero(dv.Type()))
		return nil
	}
	vv := reflect.ValueOf(value)
	if !vv.Type().AssignableTo(dv.Type()) {
		return fmt.Errorf("cannot assign %T to %s", value, dv.Type())
	}
	dv.Set(vv)
	return nil
}

// --- Mock transaction ---

// mockTx overrides the pgx.Tx methods repositories use. Calling any other
// method panics on the nil embedded interface.
type mockTx struct {
	pgx.Tx
	mock.Mock
}

func (t *mockTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := t.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (t *mockTx) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := t.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

func (t *mockTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	args := t.Called(ctx, b)
	return args.Get(0).(pgx.BatchResults)
}

func (t *mockTx) Commit(ctx context.Context) error {
	return t.Called(ctx).Error(0)
}

func (t *mockTx) Rollback(ctx context.Context) error {
	return t.Called(ctx).Error(0)
}

// mockPool is a DBTX that can also begin transactions.
type mockPool struct {
	mockDBTX
	tx       *mockTx
	beginErr error
	begins   int
}

func (p *mockPool) Begin(context.Context) (pgx.Tx, error) {
	p.begins++
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.tx, nil
}

// --- Mock batch results ---

type mockBatchResults struct {
	execErrs []error
	execs    int
	closed   bool
}

func (b *mockBatchResults) Exec() (pgconn.CommandTag, error) {
	i := b.execs
	b.execs++
	if i < len(b.execErrs) && b.execErrs[i] != nil {
		return pgconn.CommandTag{}, b.execErrs[i]
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (b *mockBatchResults) Query() (pgx.Rows, error) { return nil, nil }
func (b *mockBatchResults) QueryRow() pgx.Row        { return &mockRow{} }
func (b *mockBatchResults) Close() error {
	b.closed = true
	return nil
}
