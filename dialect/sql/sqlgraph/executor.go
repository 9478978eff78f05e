package sqlgraph

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/syssam/pgraph"
	"github.com/syssam/pgraph/dialect"
)

// ExecuteInsertGraph interprets an insert plan against the given
// transactional client and returns the write report. Steps execute
// strictly in the fixed order: belongs_to, before, root, has_one and
// has_many in declaration order, after. Any step failure aborts the call
// immediately; the caller is expected to roll back the ambient
// transaction, the engine performs no compensating writes.
func ExecuteInsertGraph(ctx context.Context, conn dialect.ExecQuerier, plan *Plan) (*WriteReport[struct{}], error) {
	return executeInsert[struct{}](ctx, conn, plan, nil)
}

// ExecuteInsertGraphReturning is like ExecuteInsertGraph but also scans
// the root row's returning columns into a typed result. The plan must
// carry returning columns. When a later step needs the root key and no
// explicit input field is configured, R must implement Keyer.
func ExecuteInsertGraphReturning[R any](ctx context.Context, conn dialect.ExecQuerier, plan *Plan, scan ScanFunc[R]) (*WriteReport[R], error) {
	if scan == nil {
		return nil, verr("returning", "nil scan function")
	}
	if plan != nil && len(plan.returning) == 0 {
		return nil, verr("returning", "returning columns not configured on the plan")
	}
	return executeInsert(ctx, conn, plan, scan)
}

func executeInsert[R any](ctx context.Context, conn dialect.ExecQuerier, plan *Plan, scan ScanFunc[R]) (*WriteReport[R], error) {
	if plan == nil {
		return nil, verr("plan", "nil plan")
	}
	if conn == nil {
		return nil, verr("client", "nil client")
	}
	rep := &WriteReport[R]{}
	root := plan.root
	needKey := plan.needsRootKey()
	if needKey && plan.keyField == "" && scan != nil && !typeHasKeyer[R]() {
		var zero R
		return nil, verr("returning", "result type %T does not expose a key accessor", zero)
	}

	// 1. Parents, in declaration order. Binding goes through bindRoot so a
	// Bind implementation that returns a capability-stripped row surfaces
	// as a typed error, not a panic, on the next parent step.
	for _, bt := range plan.belongsTo {
		var affected int64
		switch {
		case rowHasValue(root, bt.Column):
			// Pre-populated foreign key: the parent payload is never
			// written.
		case bt.Value != nil:
			r, err := bindRoot(root, bt.Column, bt.Value)
			if err != nil {
				return nil, err
			}
			root = r
		case bt.Payload != nil:
			conflict, err := upsertConflict(bt.Payload, bt.Mode)
			if err != nil {
				return nil, err
			}
			parentKey, err := insertReturningKey(ctx, conn, plan.dialect, bt.Payload, conflict, bt.KeyColumn)
			if err != nil {
				return nil, stepError(kindBelongsTo, bt.tagTable(), err)
			}
			r, err := bindRoot(root, bt.Column, parentKey)
			if err != nil {
				return nil, err
			}
			root = r
			affected = 1
		}
		rep.record(stepTag(kindBelongsTo, bt.tagTable()), affected)
	}

	// 2. Before side effects.
	for _, st := range plan.before {
		n, err := st.Run(ctx, conn, nil)
		if err != nil {
			return nil, stepError(kindBefore, st.Tag, err)
		}
		rep.record(stepTag(kindBefore, st.Tag), n)
	}

	// 3. The root write. The returning fetch is lazy: only a typed result
	// or a later step needing the key triggers it.
	var (
		typed       *R
		fetchedKey  any
		haveFetched bool
	)
	switch {
	case scan != nil:
		r, err := insertReturningScan(ctx, conn, plan, root, scan)
		if err != nil {
			return nil, stepError(kindRoot, root.Table(), err)
		}
		typed = r
		rep.record(stepTag(kindRoot, root.Table()), 1)
	case needKey && plan.keyField == "":
		k, err := insertReturningKey(ctx, conn, plan.dialect, root, nil, plan.keyColumn)
		if err != nil {
			return nil, stepError(kindRoot, root.Table(), err)
		}
		fetchedKey, haveFetched = k, true
		rep.record(stepTag(kindRoot, root.Table()), 1)
	default:
		n, err := insertRows(ctx, conn, plan.dialect, []Row{root}, nil)
		if err != nil {
			return nil, stepError(kindRoot, root.Table(), err)
		}
		rep.record(stepTag(kindRoot, root.Table()), n)
	}

	// 4. Resolve the root key for fan-out.
	var rootKey any
	if needKey {
		k, err := resolveRootKey(plan, root, typed, fetchedKey, haveFetched)
		if err != nil {
			return nil, err
		}
		rootKey = k
	}

	// 5. Children, in declaration order. One report per declared step,
	// not per row; an empty collection issues no statement.
	for i := range plan.children {
		ch := &plan.children[i]
		var affected int64
		if len(ch.rows) > 0 {
			conflict, err := upsertConflict(ch.rows[0], ch.mode)
			if err != nil {
				return nil, err
			}
			if _, err := insertRows(ctx, conn, plan.dialect, bindAll(ch.rows, ch.column, rootKey), conflict); err != nil {
				return nil, stepError(ch.kind, ch.table, err)
			}
			affected = int64(len(ch.rows))
		}
		rep.record(stepTag(ch.kind, ch.table), affected)
	}

	// 6. After side effects.
	for _, st := range plan.after {
		var k any
		if st.NeedsKey {
			k = rootKey
		}
		n, err := st.Run(ctx, conn, k)
		if err != nil {
			return nil, stepError(kindAfter, st.Tag, err)
		}
		rep.record(stepTag(kindAfter, st.Tag), n)
	}
	rep.Root = typed
	return rep, nil
}

// ExecuteUpdateGraph interprets an update patch against the given
// transactional client, scoped to the root row identified by key.
//
// The root-existence invariant holds throughout: a root update matching
// zero rows, or a failed existence probe when the patch carries no
// root-field changes, aborts with NotFoundError before any child policy
// runs.
func ExecuteUpdateGraph(ctx context.Context, conn dialect.ExecQuerier, patch *Patch, key any) (*WriteReport[struct{}], error) {
	return executeUpdate[struct{}](ctx, conn, patch, key, nil)
}

// ExecuteUpdateGraphReturning is like ExecuteUpdateGraph but also
// produces a typed root result: from the returning update when the patch
// carries root-field changes, otherwise from one final read-back after
// the child policies ran.
func ExecuteUpdateGraphReturning[R any](ctx context.Context, conn dialect.ExecQuerier, patch *Patch, key any, scan ScanFunc[R]) (*WriteReport[R], error) {
	if scan == nil {
		return nil, verr("returning", "nil scan function")
	}
	if patch != nil && len(patch.returning) == 0 {
		return nil, verr("returning", "returning columns not configured on the patch")
	}
	return executeUpdate(ctx, conn, patch, key, scan)
}

func executeUpdate[R any](ctx context.Context, conn dialect.ExecQuerier, patch *Patch, key any, scan ScanFunc[R]) (*WriteReport[R], error) {
	if patch == nil {
		return nil, verr("patch", "nil patch")
	}
	if conn == nil {
		return nil, verr("client", "nil client")
	}
	if key == nil {
		return nil, verr("key", "missing root key")
	}
	rep := &WriteReport[R]{}

	for _, st := range patch.before {
		n, err := st.Run(ctx, conn, key)
		if err != nil {
			return nil, stepError(kindBefore, st.Tag, err)
		}
		rep.record(stepTag(kindBefore, st.Tag), n)
	}

	var (
		typed         *R
		returningDone bool
	)
	switch {
	case len(patch.fields) > 0 && scan != nil:
		ub := sq.Update(patch.table)
		for _, f := range patch.fields {
			ub = ub.Set(f.column, f.value)
		}
		query, args, err := ub.
			Where(sq.Eq{patch.keyColumn: key}).
			Suffix("RETURNING " + strings.Join(patch.returning, ", ")).
			PlaceholderFormat(placeholder(patch.dialect)).ToSql()
		if err != nil {
			return nil, stepError(kindRoot, patch.table, err)
		}
		r, err := queryOne(ctx, conn, query, args, scan)
		if err != nil {
			return nil, stepError(kindRoot, patch.table, err)
		}
		if r == nil {
			return nil, pgraph.NewNotFoundErrorWithID(patch.table, key)
		}
		typed, returningDone = r, true
		rep.record(stepTag(kindRoot, patch.table), 1)
	case len(patch.fields) > 0:
		n, err := updateRoot(ctx, conn, patch, key)
		if err != nil {
			return nil, stepError(kindRoot, patch.table, err)
		}
		if n == 0 {
			return nil, pgraph.NewNotFoundErrorWithID(patch.table, key)
		}
		rep.record(stepTag(kindRoot, patch.table), n)
	case patch.hasTouchedChildren():
		// No root-field changes: probe for existence before touching any
		// child. The probe is a check, not a write; it emits no report.
		ok, err := existsRoot(ctx, conn, patch, key)
		if err != nil {
			return nil, pgraph.NewQueryError(patch.table, "exist", err)
		}
		if !ok {
			return nil, pgraph.NewNotFoundErrorWithID(patch.table, key)
		}
	}

	for i := range patch.children {
		ch := &patch.children[i]
		if !ch.Rel.Touched() {
			// Untouched: no statement, no step report.
			continue
		}
		n, err := applyChildUpdate(ctx, conn, patch.dialect, ch, key)
		if err != nil {
			return nil, stepError(ch.kind, ch.Table, err)
		}
		rep.record(stepTag(ch.kind, ch.Table), n)
	}

	if scan != nil && !returningDone {
		query, args, err := sq.Select(patch.returning...).From(patch.table).
			Where(sq.Eq{patch.keyColumn: key}).
			PlaceholderFormat(placeholder(patch.dialect)).ToSql()
		if err != nil {
			return nil, pgraph.NewQueryError(patch.table, "select", err)
		}
		r, err := queryOne(ctx, conn, query, args, scan)
		if err != nil {
			return nil, pgraph.NewQueryError(patch.table, "select", err)
		}
		if r == nil {
			return nil, pgraph.NewNotFoundErrorWithID(patch.table, key)
		}
		typed = r
	}

	for _, st := range patch.after {
		n, err := st.Run(ctx, conn, key)
		if err != nil {
			return nil, stepError(kindAfter, st.Tag, err)
		}
		rep.record(stepTag(kindAfter, st.Tag), n)
	}
	rep.Root = typed
	return rep, nil
}

// insertReturningScan writes the root row and scans its returning columns
// into a typed result.
func insertReturningScan[R any](ctx context.Context, conn dialect.ExecQuerier, plan *Plan, root Row, scan ScanFunc[R]) (*R, error) {
	query, args, err := insertBuilder([]Row{root}, nil).
		Suffix("RETURNING " + strings.Join(plan.returning, ", ")).
		PlaceholderFormat(placeholder(plan.dialect)).ToSql()
	if err != nil {
		return nil, err
	}
	r, err := queryOne(ctx, conn, query, args, scan)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("sqlgraph: insert into %q returned no rows", root.Table())
	}
	return r, nil
}

// queryOne executes a query expected to return at most one row and scans
// it. A nil result without error means no row matched.
func queryOne[R any](ctx context.Context, conn dialect.ExecQuerier, query string, args []any, scan ScanFunc[R]) (*R, error) {
	rows, err := queryRows(ctx, conn, query, args)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, nil
	}
	r, err := scan(rows.Scan)
	if err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &r, nil
}

// bindRoot binds a resolved parent key into the root row. The root may
// already be the result of an earlier Bind, and Bind implementations are
// not obliged to return a row that can bind again, so the capability is
// re-checked here instead of asserted.
func bindRoot(root Row, column string, value any) (Row, error) {
	b, ok := root.(Binder)
	if !ok {
		return nil, verr("root", "root row %T cannot receive a foreign key (missing Bind)", root)
	}
	return b.Bind(column, value), nil
}

// rowHasValue reports whether the row carries a non-nil value for the
// column.
func rowHasValue(r Row, column string) bool {
	v, ok := rowValue(r, column)
	return ok && v != nil
}

// stepError wraps a step failure with its kind and table. The underlying
// error is preserved verbatim through Unwrap; constraint violations are
// additionally marked as ConstraintError.
func stepError(kind, table string, err error) error {
	return pgraph.NewMutationError(table, kind, MaybeConstraint(err))
}
