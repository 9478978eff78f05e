package sqlgraph

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/syssam/pgraph/dialect"
	dsql "github.com/syssam/pgraph/dialect/sql"
)

// placeholder returns the placeholder format for the dialect.
func placeholder(dialectName string) sq.PlaceholderFormat {
	if dialectName == dialect.Postgres {
		return sq.Dollar
	}
	return sq.Question
}

// execAffected executes a statement and returns its affected-row count.
func execAffected(ctx context.Context, conn dialect.ExecQuerier, query string, args []any) (int64, error) {
	var res sql.Result
	if err := conn.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// queryRows executes a query through the dialect client.
func queryRows(ctx context.Context, conn dialect.ExecQuerier, query string, args []any) (*dsql.Rows, error) {
	rows := &dsql.Rows{}
	if err := conn.Query(ctx, query, args, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// insertBuilder builds a multi-row insert for a homogeneous batch,
// optionally with conflict resolution.
func insertBuilder(rows []Row, conflict []string) sq.InsertBuilder {
	ib := sq.Insert(rows[0].Table()).Columns(rows[0].Columns()...)
	for _, r := range rows {
		ib = ib.Values(r.Values()...)
	}
	if len(conflict) > 0 {
		ib = ib.Suffix(onConflictClause(conflict, rows[0].Columns()))
	}
	return ib
}

// onConflictClause renders the conflict-resolution clause for an upsert.
// Every conflicting row must take the DO UPDATE path so that RETURNING
// reports it; DO NOTHING would hide unchanged rows from the diff
// reconciliation and mark them for deletion.
func onConflictClause(conflict, cols []string) string {
	set := make([]string, 0, len(cols))
	for _, c := range cols {
		if !containsColumn(conflict, c) {
			set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
		}
	}
	if len(set) == 0 {
		c := conflict[0]
		set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(conflict, ", "), strings.Join(set, ", "))
}

// upsertConflict reads the conflict target for an upsert-mode write from
// the pre-bind row the plan validated. Bound copies are not required to
// keep the Conflicter capability, so the target is never read after Bind.
func upsertConflict(r Row, mode Mode) ([]string, error) {
	if mode != ModeUpsert {
		return nil, nil
	}
	c, ok := r.(Conflicter)
	if !ok || len(c.ConflictColumns()) == 0 {
		return nil, verr(r.Table(), "missing conflict target for upsert")
	}
	return c.ConflictColumns(), nil
}

// insertRows writes a homogeneous batch with one statement. The batch is
// assumed non-empty and validated; conflict carries the upsert target,
// nil for plain inserts.
func insertRows(ctx context.Context, conn dialect.ExecQuerier, dialectName string, rows []Row, conflict []string) (int64, error) {
	query, args, err := insertBuilder(rows, conflict).
		PlaceholderFormat(placeholder(dialectName)).ToSql()
	if err != nil {
		return 0, err
	}
	return execAffected(ctx, conn, query, args)
}

// insertReturningKey writes one row and reads back its key column.
func insertReturningKey(ctx context.Context, conn dialect.ExecQuerier, dialectName string, row Row, conflict []string, keyColumn string) (any, error) {
	query, args, err := insertBuilder([]Row{row}, conflict).
		Suffix("RETURNING " + keyColumn).
		PlaceholderFormat(placeholder(dialectName)).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := queryRows(ctx, conn, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("sqlgraph: insert into %q returned no key", row.Table())
	}
	var key any
	if err := rows.Scan(&key); err != nil {
		return nil, err
	}
	return key, rows.Err()
}

// deleteScope deletes every row in the table scoped to the foreign key.
func deleteScope(ctx context.Context, conn dialect.ExecQuerier, dialectName, table, fkColumn string, key any) (int64, error) {
	query, args, err := sq.Delete(table).
		Where(sq.Eq{fkColumn: key}).
		PlaceholderFormat(placeholder(dialectName)).ToSql()
	if err != nil {
		return 0, err
	}
	return execAffected(ctx, conn, query, args)
}

// diffRows reconciles the stored child set against the provided one with
// a single combined statement: a CTE upserts the batch and returns the
// key columns of every upserted row, and the outer delete removes every
// existing row in the foreign-key scope whose key-column tuple is not
// among them. The caller resolves the conflict target from the pre-bind
// rows.
//
// The reported count is the number of provided payloads plus the rows the
// reconciliation deleted; no-op updates within the batch are not
// distinguished from true inserts. Stored rows carrying a null key column
// never match the NOT IN comparison; key columns must be non-null.
func diffRows(ctx context.Context, conn dialect.ExecQuerier, ch *childUpdateStep, key any, rows []Row, conflict []string) (int64, error) {
	cols := rows[0].Columns()
	keyList := strings.Join(ch.KeyColumns, ", ")
	ib := sq.Insert(ch.Table).Columns(cols...)
	for _, r := range rows {
		ib = ib.Values(r.Values()...)
	}
	ib = ib.Suffix(onConflictClause(conflict, cols)).Suffix("RETURNING " + keyList)
	insertSQL, insertArgs, err := ib.ToSql()
	if err != nil {
		return 0, err
	}
	query, args, err := sq.Delete(ch.Table).
		Prefix(fmt.Sprintf("WITH upserted AS (%s)", insertSQL), insertArgs...).
		Where(sq.Eq{ch.Column: key}).
		Where(fmt.Sprintf("(%s) NOT IN (SELECT %s FROM upserted)", keyList, keyList)).
		PlaceholderFormat(sq.Dollar).ToSql()
	if err != nil {
		return 0, err
	}
	deleted, err := execAffected(ctx, conn, query, args)
	if err != nil {
		return 0, err
	}
	return int64(len(rows)) + deleted, nil
}

// bindAll binds the foreign key into every row of a batch.
func bindAll(rows []Row, column string, key any) []Row {
	bound := make([]Row, len(rows))
	for i, r := range rows {
		bound[i] = r.(Binder).Bind(column, key)
	}
	return bound
}

// applyChildUpdate runs one explicit child policy and returns its
// affected-row count.
func applyChildUpdate(ctx context.Context, conn dialect.ExecQuerier, dialectName string, ch *childUpdateStep, key any) (int64, error) {
	rows := ch.Rel.Rows()
	switch ch.Strategy {
	case StrategyReplace:
		affected, err := deleteScope(ctx, conn, dialectName, ch.Table, ch.Column, key)
		if err != nil {
			return 0, err
		}
		if len(rows) > 0 {
			if _, err := insertRows(ctx, conn, dialectName, bindAll(rows, ch.Column, key), nil); err != nil {
				return 0, err
			}
			affected += int64(len(rows))
		}
		return affected, nil
	case StrategyAppend:
		// An empty desired set is a true no-op: no statement issued.
		if len(rows) == 0 {
			return 0, nil
		}
		if _, err := insertRows(ctx, conn, dialectName, bindAll(rows, ch.Column, key), nil); err != nil {
			return 0, err
		}
		return int64(len(rows)), nil
	case StrategyUpsert:
		if len(rows) == 0 {
			return 0, nil
		}
		conflict, err := upsertConflict(rows[0], ModeUpsert)
		if err != nil {
			return 0, err
		}
		if _, err := insertRows(ctx, conn, dialectName, bindAll(rows, ch.Column, key), conflict); err != nil {
			return 0, err
		}
		return int64(len(rows)), nil
	case StrategyDiff:
		// An empty desired set behaves like replace with an empty set.
		if len(rows) == 0 {
			return deleteScope(ctx, conn, dialectName, ch.Table, ch.Column, key)
		}
		conflict := ch.diffConflictTarget(rows[0])
		return diffRows(ctx, conn, ch, key, bindAll(rows, ch.Column, key), conflict)
	default:
		return 0, fmt.Errorf("sqlgraph: unknown strategy %d", ch.Strategy)
	}
}

// existsRoot issues the existence probe for the update-graph invariant.
func existsRoot(ctx context.Context, conn dialect.ExecQuerier, patch *Patch, key any) (bool, error) {
	query, args, err := sq.Select("1").From(patch.table).
		Where(sq.Eq{patch.keyColumn: key}).
		Limit(1).
		PlaceholderFormat(placeholder(patch.dialect)).ToSql()
	if err != nil {
		return false, err
	}
	rows, err := queryRows(ctx, conn, query, args)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	if rows.Next() {
		return true, nil
	}
	return false, rows.Err()
}

// updateRoot issues the root update without a returning clause.
func updateRoot(ctx context.Context, conn dialect.ExecQuerier, patch *Patch, key any) (int64, error) {
	ub := sq.Update(patch.table)
	for _, f := range patch.fields {
		ub = ub.Set(f.column, f.value)
	}
	query, args, err := ub.
		Where(sq.Eq{patch.keyColumn: key}).
		PlaceholderFormat(placeholder(patch.dialect)).ToSql()
	if err != nil {
		return 0, err
	}
	return execAffected(ctx, conn, query, args)
}
