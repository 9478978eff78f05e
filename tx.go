package pgraph

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/pgraph/dialect"
)

// WithTx runs fn inside a transaction started on drv. The transaction is
// committed when fn returns nil and rolled back otherwise. If the rollback
// itself fails, the returned error joins the original failure with a
// RollbackError so neither is lost.
//
// A panic inside fn rolls the transaction back and re-panics.
//
//	report, err := pgraph.WithTx2(ctx, drv, func(tx dialect.Tx) (*sqlgraph.WriteReport[struct{}], error) {
//	    return sqlgraph.ExecuteInsertGraph(ctx, tx, plan)
//	})
func WithTx(ctx context.Context, drv dialect.Driver, fn func(tx dialect.Tx) error) error {
	tx, err := drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("pgraph: starting transaction: %w", err)
	}
	defer func() {
		if v := recover(); v != nil {
			_ = tx.Rollback()
			panic(v)
		}
	}()
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			err = errors.Join(err, &RollbackError{Err: rerr})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgraph: committing transaction: %w", err)
	}
	return nil
}

// WithTx2 is like WithTx for functions that also produce a value, such as
// the write-graph executors. The value is discarded when the transaction
// fails to commit.
func WithTx2[T any](ctx context.Context, drv dialect.Driver, fn func(tx dialect.Tx) (T, error)) (T, error) {
	var out T
	err := WithTx(ctx, drv, func(tx dialect.Tx) error {
		v, err := fn(tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}
