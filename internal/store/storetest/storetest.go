// Package storetest opens migrated in-memory stores and builds catalog fixtures for tests.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"storefront/internal/models"
	"storefront/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// New returns a migrated store backed by a private in-memory SQLite database
func New(t testing.TB) *store.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		uuid.NewString())
	s, err := store.NewStore(store.DriverSQLite, dsn)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())

	t.Cleanup(func() { s.Close() })
	return s
}

// Category inserts an active category
func Category(t testing.TB, s *store.Store, name string) *models.Category {
	t.Helper()

	c := &models.Category{Name: name, Slug: store.Slugify(name), IsActive: true}
	require.NoError(t, s.CreateCategory(context.Background(), c))
	return c
}

// Product inserts an available product with the given price and stock
func Product(t testing.TB, s *store.Store, categoryID int64, name, price string, stock int) *models.Product {
	t.Helper()

	p := &models.Product{
		CategoryID:    categoryID,
		Name:          name,
		Slug:          store.Slugify(name),
		Description:   name + " description",
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
		IsAvailable:   true,
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

// ShippingMethod inserts an active shipping method
func ShippingMethod(t testing.TB, s *store.Store, name, price string, days int) *models.ShippingMethod {
	t.Helper()

	m := &models.ShippingMethod{Name: name, Price: decimal.RequireFromString(price), EstimatedDays: days, IsActive: true}
	require.NoError(t, s.CreateShippingMethod(context.Background(), m))
	return m
}

// User inserts a shopper account with an unusable password hash
func User(t testing.TB, s *store.Store, username string) *models.User {
	t.Helper()

	u := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "!",
		FirstName:    username,
	}
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

// Address returns a complete postal address
func Address(firstName string) models.Address {
	return models.Address{
		FirstName:    firstName,
		LastName:     "Okafor",
		AddressLine1: "12 Allen Avenue",
		City:         "Ikeja",
		State:        "Lagos",
		PostalCode:   "100001",
		Country:      "Nigeria",
		Phone:        "+2348012345678",
	}
}
