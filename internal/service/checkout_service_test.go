package service

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"sync"
	"testing"

	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/store/storetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var orderNumberPattern = regexp.MustCompile(`^[A-Z0-9]{8}$`)

func TestCheckoutComputesTotalsAndEmptiesCart(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")
	owner := UserOwner(user.ID)

	require.NoError(t, h.carts.AddLine(ctx, owner, sh.capsules.ID, 2))
	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 1))

	req := checkoutRequest("Ada")
	req.ShippingMethodID = &sh.standard.ID
	detail, err := h.checkout.Checkout(ctx, user.ID, req)
	require.NoError(t, err)

	order := detail.Order
	assert.True(t, order.Subtotal.Equal(decimal.NewFromInt(23500)), order.Subtotal.String())
	assert.True(t, order.ShippingCost.Equal(decimal.NewFromInt(2000)))
	assert.True(t, order.TaxAmount.IsZero())
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(25500)), order.TotalAmount.String())
	assert.Equal(t, "Standard Delivery", order.ShippingMethodName)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, order.Billing, order.Shipping)
	assert.Regexp(t, orderNumberPattern, order.OrderNumber)
	require.Len(t, detail.Lines, 2)

	assert.Equal(t, 8, h.stock(t, sh.capsules.ID))
	assert.Equal(t, 4, h.stock(t, sh.tea.ID))

	view, err := h.carts.View(ctx, owner)
	require.NoError(t, err)
	assert.True(t, view.IsEmpty())

	stored, err := h.orders.Get(ctx, order.ID, user.ID, false)
	require.NoError(t, err)
	assert.True(t, stored.Order.TotalAmount.Equal(decimal.NewFromInt(25500)))
	assert.Equal(t, 3, stored.TotalItems())

	msgs := h.mail.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Order Confirmation - #"+order.OrderNumber, msgs[0].Subject)
	assert.Equal(t, []string{user.Email}, msgs[0].To)
}

func TestCheckoutSnapshotsPrices(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")

	require.NoError(t, h.carts.AddLine(ctx, UserOwner(user.ID), sh.capsules.ID, 1))
	detail, err := h.checkout.Checkout(ctx, user.ID, checkoutRequest("Ada"))
	require.NoError(t, err)

	_, err = h.store.GetDB().Exec("UPDATE products SET price = 9999 WHERE id = ?", sh.capsules.ID)
	require.NoError(t, err)

	stored, err := h.orders.Get(ctx, detail.Order.ID, user.ID, false)
	require.NoError(t, err)
	require.Len(t, stored.Lines, 1)
	assert.True(t, stored.Lines[0].ProductPrice.Equal(decimal.NewFromInt(8500)))
	assert.Equal(t, "Immune Boost Capsules", stored.Lines[0].ProductName)
}

func TestCheckoutEmptyCart(t *testing.T) {
	h := newHarness(t)
	user := storetest.User(t, h.store, "ada")

	_, err := h.checkout.Checkout(context.Background(), user.ID, checkoutRequest("Ada"))
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckoutStockConflictLeavesCartAndStock(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")
	owner := UserOwner(user.ID)

	require.NoError(t, h.carts.AddLine(ctx, owner, sh.tea.ID, 3))
	require.NoError(t, h.store.SetProductStock(ctx, sh.tea.ID, 2))

	_, err := h.checkout.Checkout(ctx, user.ID, checkoutRequest("Ada"))
	var conflict *StockConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "Energy Blend Tea", conflict.ProductName)
	assert.Equal(t, 2, conflict.Available)

	orders, err := h.orders.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Equal(t, 2, h.stock(t, sh.tea.ID))

	view, err := h.carts.View(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, 3, view.TotalItems())
	assert.Empty(t, h.mail.Messages())
}

func TestConcurrentCheckoutsForLastUnits(t *testing.T) {
	h := newHarness(t)
	c := storetest.Category(t, h.store, "Teas")
	tea := storetest.Product(t, h.store, c.ID, "Calm Tea", "4000", 2)
	ctx := context.Background()

	buyers := []int64{
		storetest.User(t, h.store, "ada").ID,
		storetest.User(t, h.store, "bola").ID,
	}
	for _, id := range buyers {
		require.NoError(t, h.carts.AddLine(ctx, UserOwner(id), tea.ID, 2))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(buyers))
	for i, id := range buyers {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			_, errs[i] = h.checkout.Checkout(ctx, id, checkoutRequest("Buyer"))
		}(i, id)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		var conflict *StockConflictError
		assert.True(t, errors.As(err, &conflict), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, h.stock(t, tea.ID))
}

func TestCheckoutSucceedsWhenMailTransportFails(t *testing.T) {
	h := newHarnessWithTransport(t, notify.NewMemoryTransport(errors.New("smtp unavailable")))
	sh := h.seedShop(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")

	require.NoError(t, h.carts.AddLine(ctx, UserOwner(user.ID), sh.capsules.ID, 1))
	detail, err := h.checkout.Checkout(ctx, user.ID, checkoutRequest("Ada"))
	require.NoError(t, err)
	assert.NotEmpty(t, detail.Order.OrderNumber)
}

func TestCheckoutRetriesOrderNumberCollision(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	ada := storetest.User(t, h.store, "ada")
	bola := storetest.User(t, h.store, "bola")

	h.checkout.newNumber = func() string { return "AAAA1111" }
	require.NoError(t, h.carts.AddLine(ctx, UserOwner(ada.ID), sh.capsules.ID, 1))
	_, err := h.checkout.Checkout(ctx, ada.ID, checkoutRequest("Ada"))
	require.NoError(t, err)

	numbers := []string{"AAAA1111", "BBBB2222"}
	h.checkout.newNumber = func() string {
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}
	require.NoError(t, h.carts.AddLine(ctx, UserOwner(bola.ID), sh.capsules.ID, 1))
	detail, err := h.checkout.Checkout(ctx, bola.ID, checkoutRequest("Bola"))
	require.NoError(t, err)
	assert.Equal(t, "BBBB2222", detail.Order.OrderNumber)
}

func TestCheckoutGivesUpAfterRepeatedCollisions(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	ada := storetest.User(t, h.store, "ada")
	bola := storetest.User(t, h.store, "bola")

	h.checkout.newNumber = func() string { return "AAAA1111" }
	require.NoError(t, h.carts.AddLine(ctx, UserOwner(ada.ID), sh.capsules.ID, 1))
	_, err := h.checkout.Checkout(ctx, ada.ID, checkoutRequest("Ada"))
	require.NoError(t, err)

	require.NoError(t, h.carts.AddLine(ctx, UserOwner(bola.ID), sh.capsules.ID, 2))
	_, err = h.checkout.Checkout(ctx, bola.ID, checkoutRequest("Bola"))
	assert.ErrorIs(t, err, ErrOrderNumberCollision)

	assert.Equal(t, 9, h.stock(t, sh.capsules.ID))
	view, err := h.carts.View(ctx, UserOwner(bola.ID))
	require.NoError(t, err)
	assert.Equal(t, 2, view.TotalItems())
}

func TestCheckoutIdempotencyKeyReturnsSameOrder(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")

	require.NoError(t, h.carts.AddLine(ctx, UserOwner(user.ID), sh.capsules.ID, 1))
	req := checkoutRequest("Ada")
	req.IdempotencyKey = "submit-1"

	first, err := h.checkout.Checkout(ctx, user.ID, req)
	require.NoError(t, err)
	second, err := h.checkout.Checkout(ctx, user.ID, req)
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	orders, err := h.orders.ListForUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, orders, 1)
}

func TestCheckoutRejectsConcurrentSubmissionOfSameCart(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")

	require.NoError(t, h.carts.AddLine(ctx, UserOwner(user.ID), sh.capsules.ID, 1))
	cart, err := h.carts.GetOrCreate(ctx, UserOwner(user.ID))
	require.NoError(t, err)

	_, ok, err := h.redis.AcquireLock(ctx, "checkout:"+strconv.FormatInt(cart.ID, 10), 0)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.checkout.Checkout(ctx, user.ID, checkoutRequest("Ada"))
	assert.ErrorIs(t, err, ErrCheckoutInProgress)
	assert.Equal(t, 10, h.stock(t, sh.capsules.ID))
}

func TestCheckoutValidation(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")
	require.NoError(t, h.carts.AddLine(ctx, UserOwner(user.ID), sh.capsules.ID, 1))

	req := checkoutRequest("Ada")
	req.PaymentMethod = "crypto"
	_, err := h.checkout.Checkout(ctx, user.ID, req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "payment_method", verr.Field)

	req = checkoutRequest("Ada")
	req.Billing.City = ""
	_, err = h.checkout.Checkout(ctx, user.ID, req)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "billing.city", verr.Field)

	inactive := &models.ShippingMethod{Name: "Retired", Price: decimal.NewFromInt(500), IsActive: false}
	require.NoError(t, h.store.CreateShippingMethod(ctx, inactive))
	req = checkoutRequest("Ada")
	req.ShippingMethodID = &inactive.ID
	_, err = h.checkout.Checkout(ctx, user.ID, req)
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "shipping_method_id", verr.Field)

	assert.Equal(t, 10, h.stock(t, sh.capsules.ID))
}

func TestCheckoutUsesSeparateShippingAddress(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")
	require.NoError(t, h.carts.AddLine(ctx, UserOwner(user.ID), sh.capsules.ID, 1))

	shipping := storetest.Address("Chidi")
	shipping.City = "Abuja"
	req := checkoutRequest("Ada")
	req.UseBillingForShipping = false
	req.Shipping = &shipping

	detail, err := h.checkout.Checkout(ctx, user.ID, req)
	require.NoError(t, err)

	stored, err := h.orders.Get(ctx, detail.Order.ID, user.ID, false)
	require.NoError(t, err)
	assert.Equal(t, "Ada", stored.Order.Billing.FirstName)
	assert.Equal(t, "Chidi", stored.Order.Shipping.FirstName)
	assert.Equal(t, "Abuja", stored.Order.Shipping.City)
}

type flatTax struct{ rate decimal.Decimal }

func (f flatTax) Tax(subtotal decimal.Decimal, _ models.Address) decimal.Decimal {
	return subtotal.Mul(f.rate)
}

func TestCheckoutAppliesTaxPolicy(t *testing.T) {
	h := newHarness(t)
	sh := h.seedShop(t)
	ctx := context.Background()
	user := storetest.User(t, h.store, "ada")
	h.checkout.tax = flatTax{rate: decimal.RequireFromString("0.075")}

	require.NoError(t, h.carts.AddLine(ctx, UserOwner(user.ID), sh.capsules.ID, 2))
	detail, err := h.checkout.Checkout(ctx, user.ID, checkoutRequest("Ada"))
	require.NoError(t, err)

	assert.True(t, detail.Order.TaxAmount.Equal(decimal.NewFromInt(1275)))
	assert.True(t, detail.Order.TotalAmount.Equal(decimal.NewFromInt(18275)))
}

func TestOrderNumbersAreUnique(t *testing.T) {
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		n := NewOrderNumber()
		require.Regexp(t, orderNumberPattern, n)
		seen[n] = struct{}{}
	}
	assert.Len(t, seen, 10000)
}
