package sqlgraph

import (
	"context"
	"errors"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgraph"
	"github.com/syssam/pgraph/dialect"
	dsql "github.com/syssam/pgraph/dialect/sql"
)

func mockConn(t *testing.T) (*dsql.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return dsql.OpenDB(dialect.Postgres, db), mock
}

func TestExecuteInsertGraphOrder(t *testing.T) {
	drv, mock := mockConn(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO customers (email) VALUES ($1) RETURNING id",
	)).WithArgs("ada@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO orders (status,customer_id) VALUES ($1,$2) RETURNING id",
	)).WithArgs("open", 7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO order_items (sku,qty,order_id) VALUES ($1,$2,$3),($4,$5,$6)",
	)).WithArgs("A-1", 1, 42, "B-2", 3, 42).
		WillReturnResult(sqlmock.NewResult(0, 2))

	var afterKey any
	plan, err := NewPlan(NewRecord("orders").Set("status", "open")).
		BelongsTo(BelongsTo{
			Payload: NewRecord("customers").Set("email", "ada@example.com"),
			Column:  "customer_id",
		}).
		Before(SideEffect{Tag: "draft_cleanup", Run: func(context.Context, dialect.ExecQuerier, any) (int64, error) {
			return 3, nil
		}}).
		HasMany([]Row{
			NewRecord("order_items").Set("sku", "A-1").Set("qty", 1),
			NewRecord("order_items").Set("sku", "B-2").Set("qty", 3),
		}, "order_id", ModeInsert).
		After(SideEffect{Tag: "audit", NeedsKey: true, Run: func(_ context.Context, _ dialect.ExecQuerier, key any) (int64, error) {
			afterKey = key
			return 0, nil
		}}).
		Build()
	require.NoError(t, err)

	rep, err := ExecuteInsertGraph(ctx, drv, plan)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	want := []string{
		"graph:belongs_to:customers",
		"graph:before:draft_cleanup",
		"graph:root:orders",
		"graph:has_many:order_items",
		"graph:after:audit",
	}
	if diff := cmp.Diff(want, rep.Tags()); diff != "" {
		t.Errorf("step tags mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, int64(7), rep.Affected)
	assert.Equal(t, int64(42), afterKey)
}

func TestExecuteInsertGraphSkipsParentWhenKeySet(t *testing.T) {
	drv, mock := mockConn(t)

	// The foreign key is pre-populated, so the parent payload is never
	// written even though it is configured.
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO orders (status,customer_id) VALUES ($1,$2)",
	)).WithArgs("open", 9).
		WillReturnResult(sqlmock.NewResult(0, 1))

	plan, err := NewPlan(NewRecord("orders").Set("status", "open").Set("customer_id", 9)).
		BelongsTo(BelongsTo{
			Payload: NewRecord("customers").Set("email", "ada@example.com"),
			Column:  "customer_id",
		}).
		Build()
	require.NoError(t, err)

	rep, err := ExecuteInsertGraph(context.Background(), drv, plan)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"graph:belongs_to:customers", "graph:root:orders"}, rep.Tags())
	assert.Equal(t, int64(1), rep.Affected)
}

func TestExecuteInsertGraphBindsParentValue(t *testing.T) {
	drv, mock := mockConn(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO orders (status,customer_id) VALUES ($1,$2)",
	)).WithArgs("open", 9).
		WillReturnResult(sqlmock.NewResult(0, 1))

	plan, err := NewPlan(NewRecord("orders").Set("status", "open")).
		BelongsTo(BelongsTo{Value: 9, Column: "customer_id", Table: "customers"}).
		Build()
	require.NoError(t, err)

	rep, err := ExecuteInsertGraph(context.Background(), drv, plan)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"graph:belongs_to:customers", "graph:root:orders"}, rep.Tags())
}

type scannedOrder struct {
	ID     string
	Status string
}

func (o scannedOrder) Key() any { return o.ID }

func scanOrder(scan func(dest ...any) error) (scannedOrder, error) {
	var o scannedOrder
	err := scan(&o.ID, &o.Status)
	return o, err
}

func TestExecuteInsertGraphReturningExplicitKeyWins(t *testing.T) {
	drv, mock := mockConn(t)
	input := uuid.MustParse("3e8b0a9e-79c1-4b1c-9f8e-1b2a3c4d5e6f")
	stored := uuid.MustParse("9d1c2b3a-4e5f-6a7b-8c9d-0e1f2a3b4c5d")

	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO orders (id,status) VALUES ($1,$2) RETURNING id, status",
	)).WithArgs(input.String(), "open").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow(stored.String(), "open"))
	// The child binds the explicit input key, not the key the typed result
	// reports.
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO order_items (sku,qty,order_id) VALUES ($1,$2,$3)",
	)).WithArgs("A-1", 1, input.String()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	plan, err := NewPlan(NewRecord("orders").Set("id", input.String()).Set("status", "open")).
		KeyFromInput("id").
		Returning("id", "status").
		HasMany([]Row{NewRecord("order_items").Set("sku", "A-1").Set("qty", 1)}, "order_id", ModeInsert).
		Build()
	require.NoError(t, err)

	rep, err := ExecuteInsertGraphReturning(context.Background(), drv, plan, scanOrder)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.NotNil(t, rep.Root)
	assert.Equal(t, stored.String(), rep.Root.ID)
}

func TestExecuteInsertGraphReturningKeyerFallback(t *testing.T) {
	drv, mock := mockConn(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO orders (status) VALUES ($1) RETURNING id, status",
	)).WithArgs("open").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("ord-1", "open"))
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO order_items (sku,qty,order_id) VALUES ($1,$2,$3)",
	)).WithArgs("A-1", 1, "ord-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	plan, err := NewPlan(NewRecord("orders").Set("status", "open")).
		Returning("id", "status").
		HasMany([]Row{NewRecord("order_items").Set("sku", "A-1").Set("qty", 1)}, "order_id", ModeInsert).
		Build()
	require.NoError(t, err)

	rep, err := ExecuteInsertGraphReturning(context.Background(), drv, plan, scanOrder)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.NotNil(t, rep.Root)
	assert.Equal(t, "ord-1", rep.Root.ID)
}

func TestExecuteInsertGraphReturningMisconfigured(t *testing.T) {
	drv, mock := mockConn(t)
	stats := dsql.NewStatsDriver(drv)

	plan, err := NewPlan(NewRecord("orders").Set("status", "open")).Build()
	require.NoError(t, err)

	// No returning columns on the plan: fail before any statement.
	_, err = ExecuteInsertGraphReturning(context.Background(), stats, plan, scanOrder)
	require.Error(t, err)
	assert.True(t, pgraph.IsValidationError(err))
	assert.Zero(t, stats.QueryStats().Stats().TotalStatements())
	require.NoError(t, mock.ExpectationsWereMet())
}

func scanPlain(scan func(dest ...any) error) (plainResult, error) {
	var r plainResult
	err := scan(&r.ID)
	return r, err
}

func TestExecuteInsertGraphReturningNeedsKeyer(t *testing.T) {
	drv, mock := mockConn(t)
	stats := dsql.NewStatsDriver(drv)

	plan, err := NewPlan(NewRecord("orders").Set("status", "open")).
		Returning("id").
		HasMany([]Row{NewRecord("order_items").Set("sku", "A-1")}, "order_id", ModeInsert).
		Build()
	require.NoError(t, err)

	// The children need the root key, the plan has no explicit key field,
	// and plainResult has no Key accessor: fail before any statement.
	_, err = ExecuteInsertGraphReturning(context.Background(), stats, plan, scanPlain)
	require.Error(t, err)
	assert.True(t, pgraph.IsValidationError(err))
	assert.Contains(t, err.Error(), "key accessor")
	assert.Zero(t, stats.QueryStats().Stats().TotalStatements())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteInsertGraphConstraintError(t *testing.T) {
	drv, mock := mockConn(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO orders (status) VALUES ($1)",
	)).WithArgs("open").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	plan, err := NewPlan(NewRecord("orders").Set("status", "open")).Build()
	require.NoError(t, err)

	_, err = ExecuteInsertGraph(context.Background(), drv, plan)
	require.Error(t, err)
	assert.True(t, pgraph.IsMutationError(err))
	assert.True(t, pgraph.IsConstraintError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteUpdateGraphNotFound(t *testing.T) {
	drv, mock := mockConn(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE orders SET status = $1 WHERE id = $2",
	)).WithArgs("done", 404).
		WillReturnResult(sqlmock.NewResult(0, 0))

	// The child policy must never run when the root does not exist.
	patch, err := NewPatch("orders").
		Set("status", "done").
		HasManyUpdate(ChildUpdate{
			Table: "order_items", Column: "order_id",
			Rel: Clear(), Strategy: StrategyReplace,
		}).
		Build()
	require.NoError(t, err)

	_, err = ExecuteUpdateGraph(context.Background(), drv, patch, 404)
	require.Error(t, err)
	assert.True(t, pgraph.IsNotFound(err))
	assert.True(t, errors.Is(err, pgraph.ErrNotFound))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteUpdateGraphProbesWhenOnlyChildren(t *testing.T) {
	drv, mock := mockConn(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT 1 FROM orders WHERE id = $1 LIMIT 1",
	)).WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(
		"DELETE FROM order_items WHERE order_id = $1",
	)).WithArgs(42).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO order_items (sku,qty,order_id) VALUES ($1,$2,$3)",
	)).WithArgs("A-1", 1, 42).
		WillReturnResult(sqlmock.NewResult(0, 1))

	patch, err := NewPatch("orders").
		HasManyUpdate(ChildUpdate{
			Table: "order_items", Column: "order_id",
			Rel:      SetRows(NewRecord("order_items").Set("sku", "A-1").Set("qty", 1)),
			Strategy: StrategyReplace,
		}).
		Build()
	require.NoError(t, err)

	rep, err := ExecuteUpdateGraph(context.Background(), drv, patch, 42)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	// The probe is not a write step: only the child appears in the report.
	assert.Equal(t, []string{"graph:has_many:order_items"}, rep.Tags())
	assert.Equal(t, int64(3), rep.Affected)
}

func TestExecuteUpdateGraphProbeNotFound(t *testing.T) {
	drv, mock := mockConn(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT 1 FROM orders WHERE id = $1 LIMIT 1",
	)).WithArgs(404).
		WillReturnRows(sqlmock.NewRows([]string{"1"}))

	patch, err := NewPatch("orders").
		HasManyUpdate(ChildUpdate{
			Table: "order_items", Column: "order_id",
			Rel: Clear(), Strategy: StrategyReplace,
		}).
		Build()
	require.NoError(t, err)

	_, err = ExecuteUpdateGraph(context.Background(), drv, patch, 404)
	require.Error(t, err)
	assert.True(t, pgraph.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteUpdateGraphUntouchedSkipsChildren(t *testing.T) {
	drv, mock := mockConn(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE orders SET status = $1 WHERE id = $2",
	)).WithArgs("done", 42).
		WillReturnResult(sqlmock.NewResult(0, 1))

	patch, err := NewPatch("orders").
		Set("status", "done").
		HasManyUpdate(ChildUpdate{
			Table: "order_items", Column: "order_id",
			Rel: Untouched(), Strategy: StrategyReplace,
		}).
		Build()
	require.NoError(t, err)

	rep, err := ExecuteUpdateGraph(context.Background(), drv, patch, 42)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{"graph:root:orders"}, rep.Tags())
	assert.Equal(t, int64(1), rep.Affected)
}

func TestExecuteUpdateGraphReturningRootFields(t *testing.T) {
	drv, mock := mockConn(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"UPDATE orders SET status = $1 WHERE id = $2 RETURNING id, status",
	)).WithArgs("done", "ord-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("ord-1", "done"))

	patch, err := NewPatch("orders").
		Set("status", "done").
		Returning("id", "status").
		Build()
	require.NoError(t, err)

	rep, err := ExecuteUpdateGraphReturning(context.Background(), drv, patch, "ord-1", scanOrder)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.NotNil(t, rep.Root)
	assert.Equal(t, "done", rep.Root.Status)
}

func TestExecuteUpdateGraphReturningReadBack(t *testing.T) {
	drv, mock := mockConn(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT 1 FROM orders WHERE id = $1 LIMIT 1",
	)).WithArgs("ord-1").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO order_items (sku,qty,order_id) VALUES ($1,$2,$3)",
	)).WithArgs("A-1", 1, "ord-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	// No root fields changed: the typed result comes from one final
	// read-back.
	mock.ExpectQuery(regexp.QuoteMeta(
		"SELECT id, status FROM orders WHERE id = $1",
	)).WithArgs("ord-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("ord-1", "open"))

	patch, err := NewPatch("orders").
		Returning("id", "status").
		HasManyUpdate(ChildUpdate{
			Table: "order_items", Column: "order_id",
			Rel:      SetRows(NewRecord("order_items").Set("sku", "A-1").Set("qty", 1)),
			Strategy: StrategyAppend,
		}).
		Build()
	require.NoError(t, err)

	rep, err := ExecuteUpdateGraphReturning(context.Background(), drv, patch, "ord-1", scanOrder)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.NotNil(t, rep.Root)
	assert.Equal(t, "open", rep.Root.Status)
}

func TestExecuteUpdateGraphSideEffectsReceiveKey(t *testing.T) {
	drv, mock := mockConn(t)

	mock.ExpectExec(regexp.QuoteMeta(
		"UPDATE orders SET status = $1 WHERE id = $2",
	)).WithArgs("done", 42).
		WillReturnResult(sqlmock.NewResult(0, 1))

	var beforeKey, afterKey any
	patch, err := NewPatch("orders").
		Before(SideEffect{Tag: "freeze", Run: func(_ context.Context, _ dialect.ExecQuerier, key any) (int64, error) {
			beforeKey = key
			return 0, nil
		}}).
		Set("status", "done").
		After(SideEffect{Tag: "audit", Run: func(_ context.Context, _ dialect.ExecQuerier, key any) (int64, error) {
			afterKey = key
			return 1, nil
		}}).
		Build()
	require.NoError(t, err)

	rep, err := ExecuteUpdateGraph(context.Background(), drv, patch, 42)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, 42, beforeKey)
	assert.Equal(t, 42, afterKey)
	assert.Equal(t, []string{"graph:before:freeze", "graph:root:orders", "graph:after:audit"}, rep.Tags())
}

// fadingRecord carries a conflict target, but its Bind result exposes
// only the Row surface.
type fadingRecord struct{ rec *Record }

func (r fadingRecord) Table() string             { return r.rec.Table() }
func (r fadingRecord) Columns() []string         { return r.rec.Columns() }
func (r fadingRecord) Values() []any             { return r.rec.Values() }
func (r fadingRecord) ConflictColumns() []string { return r.rec.ConflictColumns() }
func (r fadingRecord) Bind(column string, value any) Row {
	return plainRowView{r.rec.Bind(column, value)}
}

type plainRowView struct{ row Row }

func (r plainRowView) Table() string     { return r.row.Table() }
func (r plainRowView) Columns() []string { return r.row.Columns() }
func (r plainRowView) Values() []any     { return r.row.Values() }

func TestExecuteInsertGraphUpsertTargetReadBeforeBind(t *testing.T) {
	drv, mock := mockConn(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"INSERT INTO orders (status) VALUES ($1) RETURNING id",
	)).WithArgs("open").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))
	mock.ExpectExec(regexp.QuoteMeta(
		"INSERT INTO order_items (sku,qty,order_id) VALUES ($1,$2,$3) "+
			"ON CONFLICT (sku) DO UPDATE SET qty = EXCLUDED.qty, order_id = EXCLUDED.order_id",
	)).WithArgs("A-1", 1, 42).
		WillReturnResult(sqlmock.NewResult(0, 1))

	// The bound copy of the child no longer exposes ConflictColumns; the
	// upsert target comes from the payload the plan validated.
	child := fadingRecord{rec: NewRecord("order_items").Set("sku", "A-1").Set("qty", 1).OnConflict("sku")}
	plan, err := NewPlan(NewRecord("orders").Set("status", "open")).
		HasMany([]Row{child}, "order_id", ModeUpsert).
		Build()
	require.NoError(t, err)

	rep, err := ExecuteInsertGraph(context.Background(), drv, plan)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, int64(2), rep.Affected)
}

func TestExecuteInsertGraphRebindWithoutBinder(t *testing.T) {
	drv, mock := mockConn(t)

	root := fadingRecord{rec: NewRecord("orders").Set("status", "open")}
	plan, err := NewPlan(root).
		BelongsTo(BelongsTo{Value: 1, Column: "customer_id", Table: "customers"}).
		BelongsTo(BelongsTo{Value: 2, Column: "store_id", Table: "stores"}).
		Build()
	require.NoError(t, err)

	// The first bind replaces the root with a row that cannot bind again;
	// the second parent step fails with a typed error, and no statement is
	// issued.
	_, err = ExecuteInsertGraph(context.Background(), drv, plan)
	require.Error(t, err)
	assert.True(t, pgraph.IsValidationError(err))
	assert.Contains(t, err.Error(), "cannot receive a foreign key")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteUpdateGraphNilInputs(t *testing.T) {
	drv, _ := mockConn(t)
	patch, err := NewPatch("orders").Set("status", "done").Build()
	require.NoError(t, err)

	_, err = ExecuteUpdateGraph(context.Background(), drv, nil, 1)
	assert.True(t, pgraph.IsValidationError(err))
	_, err = ExecuteUpdateGraph(context.Background(), nil, patch, 1)
	assert.True(t, pgraph.IsValidationError(err))
	_, err = ExecuteUpdateGraph(context.Background(), drv, patch, nil)
	assert.True(t, pgraph.IsValidationError(err))
}
