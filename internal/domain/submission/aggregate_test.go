package submission

import (
	"context"
	"testing"

	"github.com/example/grocery-storefront/internal/infrastructure/store/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_AcceptAndGet(t *testing.T) {
	service := NewService(mocks.NewMockEventStore())
	ctx := context.Background()
	result := Result{OrderID: "order-1", DeliveryTime: "now", TotalAmount: decimal.NewFromInt(133)}

	_, err := service.Accept(ctx, "attempt-1", "alice", "cart-1", result)
	require.NoError(t, err)

	sub, err := service.Get(ctx, "attempt-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", sub.OwnerID)
	assert.Equal(t, "order-1", sub.Result.OrderID)
	assert.True(t, sub.Result.TotalAmount.Equal(decimal.NewFromInt(133)))
}

func TestService_Accept_Once(t *testing.T) {
	service := NewService(mocks.NewMockEventStore())
	ctx := context.Background()
	_, err := service.Accept(ctx, "attempt-1", "alice", "cart-1", Result{})
	require.NoError(t, err)

	_, err = service.Accept(ctx, "attempt-1", "alice", "cart-1", Result{})

	assert.ErrorIs(t, err, ErrAlreadyAccepted)
}

func TestService_Get_Errors(t *testing.T) {
	service := NewService(mocks.NewMockEventStore())

	_, err := service.Get(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidAttempt)
	_, err = service.Get(context.Background(), "attempt-unknown")
	assert.ErrorIs(t, err, ErrSubmissionNotFound)
}
