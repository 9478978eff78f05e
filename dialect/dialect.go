// Package dialect defines the database abstraction consumed by pgraph.
//
// The package is intentionally small: it names the supported dialects and
// declares the Driver, Tx and ExecQuerier contracts that the rest of the
// library is written against. Concrete implementations over database/sql
// live in dialect/sql.
package dialect

import "context"

// Dialect names. Postgres is the primary target of this library; SQLite is
// supported as an embedded database (and is what the test suite runs
// against), and the MySQL name exists only so foreign errors can be
// classified when a caller plugs in their own driver.
const (
	Postgres = "postgres"
	SQLite   = "sqlite"
	MySQL    = "mysql"
)

// ExecQuerier wraps the two basic statement operations. Both Driver and Tx
// satisfy it, which lets library code run the same statements inside or
// outside a transaction.
//
// For Exec, v must be nil or *sql.Result. For Query, v must be
// *dialect/sql.Rows. The args value must be a []any.
type ExecQuerier interface {
	// Exec executes a statement that does not return rows.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a statement that returns rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the minimal interface a database connection must provide.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	Tx(ctx context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Tx is a transactional session. It embeds ExecQuerier so statements issued
// through it run inside the transaction until Commit or Rollback.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// NopTx returns a Tx that executes statements through drv and treats
// Commit and Rollback as no-ops. Useful when an API requires a Tx but the
// caller manages the transaction lifecycle elsewhere.
func NopTx(drv Driver) Tx {
	return nopTx{drv}
}

type nopTx struct {
	Driver
}

func (nopTx) Commit() error   { return nil }
func (nopTx) Rollback() error { return nil }
