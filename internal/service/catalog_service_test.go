package service

import (
	"context"
	"fmt"
	"testing"

	"storefront/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomeListsFeaturedAndCategories(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()

	_, err := h.store.GetDB().Exec("UPDATE products SET is_featured = ? WHERE id = ?", true, sh.tea.ID)
	require.NoError(t, err)

	page, err := h.catalog.Home(ctx)
	require.NoError(t, err)
	require.Len(t, page.Featured, 1)
	assert.Equal(t, sh.tea.ID, page.Featured[0].ID)
	require.Len(t, page.Categories, 1)

	storetest.Category(t, h.store, "Skin Care")
	cached, err := h.catalog.Home(ctx)
	require.NoError(t, err)
	assert.Len(t, cached.Categories, 1)

	h.catalog.Purge()
	fresh, err := h.catalog.Home(ctx)
	require.NoError(t, err)
	assert.Len(t, fresh.Categories, 2)
}

func TestProductsFilters(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()

	products, err := h.catalog.Products(ctx, ProductQuery{MaxPrice: "7000"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, sh.tea.ID, products[0].ID)

	products, err = h.catalog.Products(ctx, ProductQuery{Query: "capsules"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, sh.capsules.ID, products[0].ID)

	products, err = h.catalog.Products(ctx, ProductQuery{Sort: "-price"})
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, sh.capsules.ID, products[0].ID)

	var verr *ValidationError
	_, err = h.catalog.Products(ctx, ProductQuery{Sort: "popularity"})
	assert.ErrorAs(t, err, &verr)
	_, err = h.catalog.Products(ctx, ProductQuery{MinPrice: "cheap"})
	assert.ErrorAs(t, err, &verr)
}

func TestSuggestMatchesNameOrShortDescription(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()

	_, err := h.store.GetDB().Exec("UPDATE products SET short_description = ? WHERE id = ?", "Elderberry and zinc", sh.capsules.ID)
	require.NoError(t, err)

	none, err := h.catalog.Suggest(ctx, " e ")
	require.NoError(t, err)
	assert.Empty(t, none)

	byName, err := h.catalog.Suggest(ctx, "blend")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, sh.tea.ID, byName[0].ID)

	byDescription, err := h.catalog.Suggest(ctx, "ZINC")
	require.NoError(t, err)
	require.Len(t, byDescription, 1)
	assert.Equal(t, sh.capsules.ID, byDescription[0].ID)

	wildcard, err := h.catalog.Suggest(ctx, "%%")
	require.NoError(t, err)
	assert.Empty(t, wildcard)
}

func TestSuggestCapsAtTen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := storetest.Category(t, h.store, "Teas")
	for i := 0; i < 12; i++ {
		storetest.Product(t, h.store, c.ID, fmt.Sprintf("Herbal Tea %02d", i), "1000", 1)
	}

	suggestions, err := h.catalog.Suggest(ctx, "herbal")
	require.NoError(t, err)
	assert.Len(t, suggestions, 10)
	assert.Equal(t, "Herbal Tea 00", suggestions[0].Name)
}

func TestProductPageIncludesRelated(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()

	page, err := h.catalog.Product(ctx, sh.tea.Slug)
	require.NoError(t, err)
	assert.Equal(t, sh.tea.ID, page.Product.ID)
	require.Len(t, page.Related, 1)
	assert.Equal(t, sh.capsules.ID, page.Related[0].ID)

	_, err = h.catalog.Product(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	category, err := h.catalog.Category(ctx, sh.category.Slug, "name")
	require.NoError(t, err)
	require.Len(t, category.Products, 2)
	assert.Equal(t, "Energy Blend Tea", category.Products[0].Name)
}

func TestSupportSubmitAcknowledgesAndForwards(t *testing.T) {
	h := newHarness(t)
	support := NewSupportService(h.mailer)

	ticket, err := support.Submit(context.Background(), nil, &SupportRequest{
		Name:    "Jane",
		Email:   "jane@example.com",
		Subject: "Question about product usage",
		Message: "How many capsules per day?",
	})
	require.NoError(t, err)
	assert.Regexp(t, `^JIGSIM-\d{4}-\d{4}$`, ticket.TicketNumber)
	assert.Equal(t, PriorityNormal, ticket.Priority)

	msgs := h.mail.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, []string{"jane@example.com"}, msgs[0].To)
	assert.Equal(t, []string{"shop@example.com"}, msgs[1].To)

	var verr *ValidationError
	_, err = support.Submit(context.Background(), nil, &SupportRequest{Name: "Jane", Email: "jane@example.com", Subject: "x", Message: "y", Priority: "asap"})
	assert.ErrorAs(t, err, &verr)
}
