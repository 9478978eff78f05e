// Package sqlgraph executes multi-table write graphs: a root row together
// with its parents, children, and side effects, written as one ordered
// sequence of SQL statements inside a caller-owned transaction.
//
// A write graph is described declaratively with a PlanBuilder (inserts) or
// a PatchBuilder (updates), validated eagerly by Build, and interpreted
// once by an executor. Steps always run in the same fixed order:
//
//	belongs_to parents -> before effects -> root -> children -> after effects
//
// Payloads participate through small capability interfaces rather than
// struct tags or reflection: Row exposes a table and its column/value
// surface, Binder receives foreign keys, Conflicter carries an upsert
// conflict target, and Keyer exposes the key of a typed result. The
// Record type implements all of them and covers the common case:
//
//	order := sqlgraph.NewRecord("orders").Set("status", "open")
//	item := sqlgraph.NewRecord("order_items").Set("sku", "A-1").Set("qty", 2)
//
//	plan, err := sqlgraph.NewPlan(order).
//		HasMany([]sqlgraph.Row{item}, "order_id", sqlgraph.ModeInsert).
//		Build()
//	if err != nil {
//		return err
//	}
//	rep, err := sqlgraph.ExecuteInsertGraph(ctx, tx, plan)
//
// The engine never opens, commits, or rolls back transactions. Any step
// failure aborts execution immediately with a wrapped error and no
// compensating writes; the caller rolls back. On success the returned
// WriteReport carries one tagged entry per executed step.
//
// # Root keys
//
// Children and keyed after-effects need the root's key. The executor
// resolves it lazily, in precedence order: an explicit input column named
// with KeyFromInput, a key fetched by an internal RETURNING clause, or
// the Keyer accessor of a typed result. Plans whose steps never need the
// key skip resolution entirely.
//
// # Update graphs
//
// An update graph scopes every statement to one existing root row. The
// root must exist: an update matching zero rows, or a failed existence
// probe when the patch only touches children, aborts with a NotFoundError
// before any child statement runs. Child collections are tri-state
// (Untouched, Clear, SetRows) and reconcile under one of four strategies:
// replace, append, upsert, or diff. Diff issues a single combined
// statement that upserts the desired set and deletes every stored row
// outside it; it requires key columns and the Postgres dialect.
package sqlgraph
