// Package pgraph is a PostgreSQL client library built around a
// multi-table write-graph engine.
//
// The engine, in dialect/sql/sqlgraph, performs atomic, dependency-ordered
// writes across a root row and its related parent and child rows as a
// single logical operation, inside a transaction the caller owns. The
// orchestration never reaches into the internals of the row types it
// coordinates: payloads participate through small capability interfaces
// (column surface, key accessor, foreign-key binding, conflict target).
//
// # Packages
//
//   - pgraph: error taxonomy and the WithTx transaction helper.
//   - dialect: Driver, Tx and ExecQuerier contracts.
//   - dialect/sql: database/sql-backed driver, session variables,
//     statistics and debug wrappers.
//   - dialect/sql/sqlgraph: Plan and Patch builders, the graph executor,
//     child synchronization strategies, and constraint-error helpers.
//
// # A minimal insert graph
//
//	plan, err := sqlgraph.NewPlan(
//	    sqlgraph.NewRecord("books").Set("title", "Persuasion"),
//	).
//	    BelongsTo(sqlgraph.BelongsTo{
//	        Payload:   sqlgraph.NewRecord("publishers").Set("name", "Dent"),
//	        Column:    "publisher_id",
//	        KeyColumn: "id",
//	    }).
//	    HasMany([]sqlgraph.Row{
//	        sqlgraph.NewRecord("chapters").Set("num", 1),
//	    }, "book_id", sqlgraph.ModeInsert).
//	    Build()
//	if err != nil {
//	    return err
//	}
//	err = pgraph.WithTx(ctx, drv, func(tx dialect.Tx) error {
//	    _, err := sqlgraph.ExecuteInsertGraph(ctx, tx, plan)
//	    return err
//	})
//
// # Error handling
//
// Failures fall into three groups: validation errors (ValidationError,
// raised before any statement is issued), NotFoundError (the update-graph
// root-existence invariant), and database errors, which are propagated
// verbatim through Unwrap and, when they stem from a constraint
// violation, wrapped in ConstraintError. The IsXxx helpers classify an
// error without unwrapping it by hand.
package pgraph
