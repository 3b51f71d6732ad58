package service

import (
	"context"
	"testing"

	"storefront/internal/models"
	"storefront/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCartRequiresOwner(t *testing.T) {
	h := newHarness(t)

	_, err := h.carts.GetOrCreate(context.Background(), Owner{})
	assert.ErrorIs(t, err, ErrNoOwner)

	_, err = h.carts.View(context.Background(), Owner{})
	assert.ErrorIs(t, err, ErrNoOwner)
}

func TestGetOrCreateIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	first, err := h.carts.GetOrCreate(ctx, SessionOwner("sess-1"))
	require.NoError(t, err)
	second, err := h.carts.GetOrCreate(ctx, SessionOwner("sess-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	other, err := h.carts.GetOrCreate(ctx, SessionOwner("sess-2"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestAddLineIncrementsAndChecksStock(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	owner := SessionOwner("sess-1")

	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 2))
	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 2))

	view, err := h.carts.View(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, 4, view.Lines[0].Quantity)
	assert.True(t, view.TotalPrice().Equal(decimal.NewFromInt(26000)))

	err = h.carts.AddLine(ctx, owner, sh.tea.ID, 2)
	var insufficient *InsufficientStockError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 6, insufficient.Requested)
	assert.Equal(t, 5, insufficient.Available)

	var verr *ValidationError
	assert.ErrorAs(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 0), &verr)
	assert.ErrorIs(t, h.carts.AddLine(ctx, owner, 9999, 1), ErrNotFound)
}

func TestAddLineRejectsUnavailableProduct(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()

	_, err := h.store.GetDB().Exec("UPDATE products SET is_available = ? WHERE id = ?", false, sh.tea.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, h.carts.AddLine(ctx, SessionOwner("sess-1"), sh.tea.ID, 1), ErrNotFound)
}

func TestUpdateLineToZeroRemovesLine(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	owner := SessionOwner("sess-1")

	require.NoError(t, h.carts.AddLine(ctx, owner, sh.capsules.ID, 1))
	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 1))
	view, err := h.carts.View(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Lines, 2)
	capsules := view.Lines[0].ID

	require.NoError(t, h.carts.UpdateLine(ctx, owner, capsules, 3))
	view, err = h.carts.View(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 4, view.TotalItems())

	var insufficient *InsufficientStockError
	assert.ErrorAs(t, h.carts.UpdateLine(ctx, owner, capsules, 11), &insufficient)

	require.NoError(t, h.carts.UpdateLine(ctx, owner, capsules, 0))
	view, err = h.carts.View(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.Equal(t, sh.tea.ID, view.Lines[0].ProductID)
}

func TestLinesOfAnotherCartAreNotFound(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()

	require.NoError(t, h.carts.AddLine(ctx, SessionOwner("mine"), sh.tea.ID, 1))
	view, err := h.carts.View(ctx, SessionOwner("mine"))
	require.NoError(t, err)
	lineID := view.Lines[0].ID

	assert.ErrorIs(t, h.carts.RemoveLine(ctx, SessionOwner("theirs"), lineID), ErrNotFound)
	assert.ErrorIs(t, h.carts.UpdateLine(ctx, SessionOwner("theirs"), lineID, 2), ErrNotFound)

	require.NoError(t, h.carts.RemoveLine(ctx, SessionOwner("mine"), lineID))
	assert.ErrorIs(t, h.carts.RemoveLine(ctx, SessionOwner("mine"), lineID), ErrNotFound)
}

func TestViewIsCachedAndInvalidatedOnChange(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	owner := SessionOwner("sess-1")

	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 1))
	_, err := h.carts.View(ctx, owner)
	require.NoError(t, err)
	assert.True(t, h.mr.Exists("cart:session:sess-1"))

	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 1))
	assert.False(t, h.mr.Exists("cart:session:sess-1"))

	view, err := h.carts.View(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalItems())
}

func TestCachedViewUsesLivePriceAndStock(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	owner := SessionOwner("sess-1")

	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 2))
	view, err := h.carts.View(ctx, owner)
	require.NoError(t, err)
	assert.True(t, view.TotalPrice().Equal(decimal.NewFromInt(13000)))
	require.True(t, h.mr.Exists("cart:session:sess-1"))

	// another shopper's checkout and a price change leave this owner's cache in place
	_, err = h.store.GetDB().Exec("UPDATE products SET price = ? WHERE id = ?", decimal.NewFromInt(9000), sh.tea.ID)
	require.NoError(t, err)
	require.NoError(t, h.store.SetProductStock(ctx, sh.tea.ID, 0))
	require.True(t, h.mr.Exists("cart:session:sess-1"))

	view, err = h.carts.View(ctx, owner)
	require.NoError(t, err)
	require.Len(t, view.Lines, 1)
	assert.True(t, view.TotalPrice().Equal(decimal.NewFromInt(18000)))
	assert.Equal(t, 0, view.Lines[0].StockQuantity)
}

func TestStaleLoadDoesNotRepopulateCache(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	owner := SessionOwner("sess-1")

	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 1))

	// a view reads the version, then a mutation lands before it writes back
	version, err := h.redis.CartVersion(ctx, owner.Key())
	require.NoError(t, err)
	cart, err := h.carts.GetOrCreate(ctx, owner)
	require.NoError(t, err)
	stale, err := h.store.GetCartLineRefs(ctx, cart.ID)
	require.NoError(t, err)

	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 1))

	stored, err := h.redis.SetCart(ctx, owner.Key(), version, &models.CartContents{Cart: *cart, Lines: stale})
	require.NoError(t, err)
	assert.False(t, stored)

	view, err := h.carts.View(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalItems())
}

func TestViewSurvivesCacheOutage(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	owner := SessionOwner("sess-1")
	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 1))

	h.mr.SetError("LOADING redis is loading the dataset")

	view, err := h.carts.View(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 1, view.TotalItems())
	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 1))
}

func TestMergeCapsAtStock(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")

	require.NoError(t, h.carts.AddLine(ctx, UserOwner(user.ID), sh.tea.ID, 3))
	require.NoError(t, h.carts.AddLine(ctx, SessionOwner("sess-1"), sh.tea.ID, 4))
	require.NoError(t, h.carts.AddLine(ctx, SessionOwner("sess-1"), sh.capsules.ID, 1))

	require.NoError(t, h.carts.Merge(ctx, "sess-1", user.ID))

	view, err := h.carts.View(ctx, UserOwner(user.ID))
	require.NoError(t, err)
	quantities := map[int64]int{}
	for _, l := range view.Lines {
		quantities[l.ProductID] = l.Quantity
	}
	assert.Equal(t, 5, quantities[sh.tea.ID])
	assert.Equal(t, 1, quantities[sh.capsules.ID])

	require.NoError(t, h.carts.Merge(ctx, "sess-1", user.ID))
	require.NoError(t, h.carts.Merge(ctx, "", user.ID))
}
