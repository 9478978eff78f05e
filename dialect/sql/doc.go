// Package sql provides the database/sql-backed implementation of the
// dialect.Driver and dialect.Tx interfaces, plus driver wrappers for
// statement statistics and debug logging.
//
// # Opening a connection
//
//	import (
//	    "github.com/syssam/pgraph/dialect"
//	    "github.com/syssam/pgraph/dialect/sql"
//
//	    _ "github.com/lib/pq"
//	)
//
//	drv, err := sql.Open(dialect.Postgres, "postgres://...")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
// # Session variables
//
// WithVar attaches a session variable to a context; it is set before every
// statement executed with that context and reset when the connection is
// returned to the pool:
//
//	ctx = sql.WithVar(ctx, "app.tenant_id", tenantID)
//
// Variable names are validated as SQL identifiers and values are escaped
// before interpolation.
//
// # Instrumentation
//
// NewStatsDriver wraps a Driver with atomic query/exec counters and
// slow-query detection; NewDebugDriver logs every statement through
// log/slog. Both wrappers also cover transactions started through them.
package sql
