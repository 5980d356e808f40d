package cart_test

import (
	"context"
	"testing"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServiceSetAndRemove(t *testing.T) {
	ctx := context.Background()
	svc := &cart.Service{Repo: cart.NewMemoryRepository(), Products: catalogStore()}

	c, err := svc.SetItem(ctx, "u1", "A", 2)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, int64(1000), c.Items[0].PriceCents)

	c, err = svc.SetItem(ctx, "u1", "A", 5)
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)

	_, err = svc.SetItem(ctx, "u1", "B", 1)
	require.NoError(t, err)

	c, err = svc.RemoveItem(ctx, "u1", "A")
	require.NoError(t, err)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "B", c.Items[0].ProductID)

	other, err := svc.Get(ctx, "u2")
	require.NoError(t, err)
	assert.True(t, other.Empty())
}

func TestServiceRejectsBadItems(t *testing.T) {
	ctx := context.Background()
	svc := &cart.Service{Repo: cart.NewMemoryRepository(), Products: catalogStore()}

	_, err := svc.SetItem(ctx, "u1", "A", 0)
	assert.ErrorIs(t, err, cart.ErrInvalidQuantity)

	_, err = svc.SetItem(ctx, "u1", "D", 1)
	assert.ErrorIs(t, err, orders.ErrProductUnavailable)

	_, err = svc.SetItem(ctx, "u1", "nope", 1)
	assert.ErrorIs(t, err, orders.ErrProductUnavailable)
}
