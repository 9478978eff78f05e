package sqlgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/pgraph"
)

func TestConstraintClassificationPostgres(t *testing.T) {
	tests := []struct {
		code  pq.ErrorCode
		check func(error) bool
	}{
		{"23505", IsUniqueConstraintError},
		{"23503", IsForeignKeyConstraintError},
		{"23514", IsCheckConstraintError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := &pq.Error{Code: tt.code, Message: "violation"}
			assert.True(t, tt.check(err))
			assert.True(t, IsConstraintError(err))

			// Classification survives wrapping.
			wrapped := fmt.Errorf("exec: %w", err)
			assert.True(t, tt.check(wrapped))
		})
	}
}

func TestConstraintClassificationByMessage(t *testing.T) {
	tests := []struct {
		msg   string
		check func(error) bool
	}{
		{`pq: duplicate key value violates unique constraint "tags_name_key"`, IsUniqueConstraintError},
		{"UNIQUE constraint failed: tags.name", IsUniqueConstraintError},
		{`insert or update on table "order_items" violates foreign key constraint`, IsForeignKeyConstraintError},
		{"FOREIGN KEY constraint failed", IsForeignKeyConstraintError},
		{`new row for relation "orders" violates check constraint "qty_positive"`, IsCheckConstraintError},
		{"CHECK constraint failed: qty_positive", IsCheckConstraintError},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.True(t, tt.check(errors.New(tt.msg)))
		})
	}
}

func TestConstraintClassificationNegative(t *testing.T) {
	assert.False(t, IsConstraintError(nil))
	assert.False(t, IsConstraintError(errors.New("connection refused")))
	assert.False(t, IsUniqueConstraintError(&pq.Error{Code: "42P01", Message: "undefined table"}))
}

func TestMaybeConstraint(t *testing.T) {
	assert.NoError(t, MaybeConstraint(nil))

	plain := errors.New("connection refused")
	assert.Same(t, plain, MaybeConstraint(plain))

	pqErr := &pq.Error{Code: "23505", Message: "duplicate key"}
	wrapped := MaybeConstraint(pqErr)
	require.True(t, pgraph.IsConstraintError(wrapped))
	// The driver error stays reachable through the chain.
	var target *pq.Error
	assert.True(t, errors.As(wrapped, &target))

	// Already classified errors are not wrapped twice.
	assert.Equal(t, wrapped, MaybeConstraint(wrapped))
}
