package service

import (
	"context"
	"testing"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/store/storetest"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

type harness struct {
	store    *store.Store
	redis    *redisclient.Client
	mr       *miniredis.Miniredis
	mail     *notify.MemoryTransport
	mailer   *notify.Dispatcher
	carts    *CartService
	orders   *OrderService
	checkout *CheckoutService
	users    *UserService
	catalog  *CatalogService
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithTransport(t, notify.NewMemoryTransport(nil))
}

func newHarnessWithTransport(t *testing.T, mail *notify.MemoryTransport) *harness {
	t.Helper()

	s := storetest.New(t)
	mr := miniredis.RunT(t)
	rc := redisclient.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rc.Close() })

	mailer := notify.NewDispatcher(mail, "JigsimurHerbal <shop@example.com>", "https://shop.example.com")
	handler := broker.NewEventHandler()
	NewNotificationHandler(s, mailer).Register(handler)
	events := broker.NewEventPublisher(broker.NewLocalProducer(handler.HandleMessage))

	carts := NewCartService(s, rc)
	orders := NewOrderService(s, events)
	return &harness{
		store:    s,
		redis:    rc,
		mr:       mr,
		mail:     mail,
		mailer:   mailer,
		carts:    carts,
		orders:   orders,
		checkout: NewCheckoutService(s, rc, carts, orders, mailer, events, nil, 0),
		users:    NewUserService(s, carts, NewTokenIssuer("test-secret", time.Hour), NewWelcomeHandler(s, mailer), events),
		catalog:  NewCatalogService(s, time.Minute),
	}
}

// shop seeds one category, two products and a shipping method
type shop struct {
	category *models.Category
	capsules *models.Product
	tea      *models.Product
	standard *models.ShippingMethod
}

func (h *harness) seedShop(t *testing.T) *shop {
	t.Helper()
	c := storetest.Category(t, h.store, "Immune Support")
	return &shop{
		category: c,
		capsules: storetest.Product(t, h.store, c.ID, "Immune Boost Capsules", "8500", 10),
		tea:      storetest.Product(t, h.store, c.ID, "Energy Blend Tea", "6500", 5),
		standard: storetest.ShippingMethod(t, h.store, "Standard Delivery", "2000", 5),
	}
}

func checkoutRequest(firstName string) *CheckoutRequest {
	return &CheckoutRequest{
		Billing:               storetest.Address(firstName),
		UseBillingForShipping: true,
		PaymentMethod:         models.PaymentMethodBankTransfer,
	}
}

func (h *harness) stock(t *testing.T, productID int64) int {
	t.Helper()
	p, err := h.store.GetProductByID(context.Background(), productID)
	require.NoError(t, err)
	return p.StockQuantity
}
