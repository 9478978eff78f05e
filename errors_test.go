package pgraph

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotFoundError(t *testing.T) {
	err := NewNotFoundError("order")
	assert.Equal(t, "pgraph: order not found", err.Error())
	assert.Equal(t, "order", err.Label())
	assert.Nil(t, err.ID())

	withID := NewNotFoundErrorWithID("order", 42)
	assert.Equal(t, "pgraph: order not found (id=42)", withID.Error())
	assert.Equal(t, 42, withID.ID())

	assert.True(t, errors.Is(withID, ErrNotFound))
	assert.True(t, IsNotFound(withID))
	assert.True(t, IsNotFound(fmt.Errorf("tx: %w", withID)))
	assert.False(t, IsNotFound(nil))
	assert.False(t, IsNotFound(errors.New("other")))
}

func TestValidationError(t *testing.T) {
	err := NewValidationError("order_id", errors.New("missing foreign-key column"))
	assert.Equal(t, `pgraph: validation failed for "order_id": missing foreign-key column`, err.Error())
	assert.True(t, IsValidationError(err))
	assert.True(t, IsValidationError(fmt.Errorf("build: %w", err)))
	assert.False(t, IsValidationError(errors.New("other")))

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "order_id", ve.Name)
}

func TestConstraintError(t *testing.T) {
	cause := errors.New("duplicate key value")
	err := NewConstraintError("duplicate key value", cause)
	assert.Equal(t, "pgraph: constraint failed: duplicate key value", err.Error())
	assert.True(t, IsConstraintError(err))
	assert.True(t, IsConstraintError(fmt.Errorf("insert: %w", err)))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, IsConstraintError(nil))
}

func TestMutationError(t *testing.T) {
	cause := errors.New("broken pipe")
	err := NewMutationError("orders", "has_many", cause)
	assert.Equal(t, "pgraph: has_many orders: broken pipe", err.Error())
	assert.True(t, IsMutationError(err))
	assert.True(t, errors.Is(err, cause))

	var me *MutationError
	require.True(t, errors.As(err, &me))
	assert.Equal(t, "orders", me.Entity)
	assert.Equal(t, "has_many", me.Op)
}

func TestQueryError(t *testing.T) {
	cause := errors.New("timeout")
	err := NewQueryError("orders", "exist", cause)
	assert.Equal(t, "pgraph: querying orders (exist): timeout", err.Error())
	assert.True(t, IsQueryError(err))
	assert.True(t, errors.Is(err, cause))

	bare := NewQueryError("orders", "", cause)
	assert.Equal(t, "pgraph: querying orders: timeout", bare.Error())
}

func TestRollbackError(t *testing.T) {
	cause := errors.New("connection closed")
	err := &RollbackError{Err: cause}
	assert.Equal(t, "pgraph: rollback failed: connection closed", err.Error())
	assert.True(t, errors.Is(err, cause))
}
