package service

import (
	"context"
	"testing"

	"storefront/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviewOncePerUserAndProduct(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	reviews := NewReviewService(h.store)
	ada := storetest.User(t, h.store, "ada")

	review, err := reviews.Add(ctx, ada.ID, sh.tea.Slug, &ReviewRequest{Rating: 4, Title: " Calming ", Comment: "Good before bed"})
	require.NoError(t, err)
	assert.NotZero(t, review.ID)
	assert.Equal(t, "Calming", review.Title)
	assert.Equal(t, "ada", review.Username)
	assert.False(t, review.IsVerifiedPurchase)

	_, err = reviews.Add(ctx, ada.ID, sh.tea.Slug, &ReviewRequest{Rating: 1, Title: "Changed my mind", Comment: "No"})
	assert.ErrorIs(t, err, ErrAlreadyReviewed)

	// the same user may still review a different product
	_, err = reviews.Add(ctx, ada.ID, sh.capsules.Slug, &ReviewRequest{Rating: 5, Title: "Great", Comment: "Works"})
	require.NoError(t, err)
}

func TestReviewValidation(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	reviews := NewReviewService(h.store)
	ada := storetest.User(t, h.store, "ada")

	cases := map[string]*ReviewRequest{
		"rating":  {Rating: 0, Title: "t", Comment: "c"},
		"title":   {Rating: 3, Title: "  ", Comment: "c"},
		"comment": {Rating: 3, Title: "t", Comment: ""},
	}
	for field, req := range cases {
		_, err := reviews.Add(ctx, ada.ID, sh.tea.Slug, req)
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, field)
		assert.Equal(t, field, verr.Field)
	}

	_, err := reviews.Add(ctx, ada.ID, "no-such-product", &ReviewRequest{Rating: 3, Title: "t", Comment: "c"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReviewByBuyerIsVerifiedAndAveraged(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	reviews := NewReviewService(h.store)
	buyer := storetest.User(t, h.store, "ada")
	browser := storetest.User(t, h.store, "bob")

	require.NoError(t, h.carts.AddLine(ctx, UserOwner(buyer.ID), sh.tea.ID, 1))
	_, err := h.checkout.Checkout(ctx, buyer.ID, checkoutRequest("Ada"))
	require.NoError(t, err)

	verified, err := reviews.Add(ctx, buyer.ID, sh.tea.Slug, &ReviewRequest{Rating: 5, Title: "Lovely", Comment: "Calming"})
	require.NoError(t, err)
	assert.True(t, verified.IsVerifiedPurchase)
	_, err = reviews.Add(ctx, browser.ID, sh.tea.Slug, &ReviewRequest{Rating: 2, Title: "Meh", Comment: "Too bitter"})
	require.NoError(t, err)

	page, err := reviews.List(ctx, sh.tea.Slug)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Count)
	assert.True(t, page.AverageRating.Equal(decimal.RequireFromString("3.5")), page.AverageRating.String())

	empty, err := reviews.List(ctx, sh.capsules.Slug)
	require.NoError(t, err)
	assert.Empty(t, empty.Reviews)
	assert.True(t, empty.AverageRating.IsZero())
}
