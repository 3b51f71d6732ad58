package store_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *store.Store {
	if testing.Short() {
		t.Skip("Integration test - requires docker")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("storefront"),
		postgres.WithUsername("app"),
		postgres.WithPassword("secret"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := store.NewStore(store.DriverPostgres, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate())
	// a second run is a no-op
	require.NoError(t, s.Migrate())
	return s
}

func TestPostgresConcurrentPlaceOrder(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	cat := &models.Category{Name: "Stress Relief", Slug: "stress-relief", IsActive: true}
	require.NoError(t, s.CreateCategory(ctx, cat))
	p := &models.Product{
		CategoryID: cat.ID, Name: "Ashwagandha Root", Slug: "ashwagandha-root",
		Price: decimal.RequireFromString("29.99"), StockQuantity: 5, IsAvailable: true,
	}
	require.NoError(t, s.CreateProduct(ctx, p))

	const buyers = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < buyers; i++ {
		u := &models.User{Username: uuid.NewString()[:8], Email: uuid.NewString() + "@example.com", PasswordHash: "!"}
		require.NoError(t, s.CreateUser(ctx, u))
		cart, err := s.GetOrCreateUserCart(ctx, u.ID)
		require.NoError(t, err)
		require.NoError(t, s.AddCartLine(ctx, cart.ID, p.ID, 5))
		taken, err := s.GetCartLineRefs(ctx, cart.ID)
		require.NoError(t, err)

		wg.Add(1)
		go func(userID, cartID int64, taken []models.CartLine) {
			defer wg.Done()
			order := newOrder(userID, uuid.NewString()[:8], "149.95")
			lines := []models.OrderLine{{ProductID: p.ID, ProductName: p.Name, ProductPrice: p.Price, Quantity: 5}}
			err := s.PlaceOrder(ctx, order, lines, cartID, taken)

			mu.Lock()
			defer mu.Unlock()
			var conflict *store.StockConflict
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &conflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(u.ID, cart.ID, taken)
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, buyers-1, conflicts)

	product, err := s.GetProductByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, product.StockQuantity)
}

func TestPostgresOrderRoundTrip(t *testing.T) {
	s := setupPostgres(t)
	ctx := context.Background()

	u := &models.User{Username: "ada", Email: "ada@example.com", PasswordHash: "!"}
	require.NoError(t, s.CreateUser(ctx, u))
	cart, err := s.GetOrCreateUserCart(ctx, u.ID)
	require.NoError(t, err)

	order := newOrder(u.ID, "PGRT0001", "25500.00")
	require.NoError(t, s.PlaceOrder(ctx, order, nil, cart.ID, nil))

	_, err = s.UpdateOrderStatus(ctx, order.ID, models.OrderStatusDelivered, &models.OrderTrackingEntry{Description: "Delivered"})
	require.NoError(t, err)

	got, err := s.GetOrderByNumber(ctx, "PGRT0001")
	require.NoError(t, err)
	assert.Equal(t, order.ID, got.ID)
	assert.True(t, got.TotalAmount.Equal(decimal.NewFromInt(25500)))
	assert.Equal(t, models.OrderStatusDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)
	assert.Nil(t, got.ShippedAt)
}
