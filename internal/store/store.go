package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

type Store struct {
	db     *sqlx.DB
	driver string
	dsn    string
}

// NewStore creates a new database store
func NewStore(driver, databaseURL string) (*Store, error) {
	db, err := sqlx.Connect(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if driver == DriverSQLite {
		// a single connection serialises writers, sqlite has no row locks
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db, driver: driver, dsn: databaseURL}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// Driver returns the driver name the store was opened with
func (s *Store) Driver() string {
	return s.driver
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

func now() time.Time {
	return time.Now().UTC()
}

// isUniqueViolation detects unique constraint failures for both drivers
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func notFound(err error, what string, key interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %v: %w", what, key, ErrNotFound)
	}
	return err
}

var productFields = []string{
	"id", "category_id", "name", "slug", "description", "short_description", "price",
	"original_price", "stock_quantity", "is_available", "is_featured", "weight", "ingredients",
	"usage_instructions", "benefits", "warnings", "created_at", "updated_at",
}

var productColumns = columns("p", productFields)

// columns renders a select list with every field qualified by alias
func columns(alias string, fields []string) string {
	qualified := make([]string, len(fields))
	for i, f := range fields {
		qualified[i] = alias + "." + f
	}
	return strings.Join(qualified, ", ")
}

// ProductFilter narrows catalog listings
type ProductFilter struct {
	Query        string
	CategorySlug string
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Sort         string
	FeaturedOnly bool
	Limit        int
}

var productSorts = map[string]string{
	"":           "p.created_at DESC, p.id DESC",
	"newest":     "p.created_at DESC, p.id DESC",
	"name":       "p.name ASC",
	"-name":      "p.name DESC",
	"price":      "p.price ASC, p.id ASC",
	"-price":     "p.price DESC, p.id ASC",
	"created_at": "p.created_at ASC, p.id ASC",
}

// ValidProductSort reports whether sort is a recognised ordering key
func ValidProductSort(sort string) bool {
	_, ok := productSorts[sort]
	return ok
}

// GetProductByID retrieves a product by ID
func (s *Store) GetProductByID(ctx context.Context, id int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, s.q("SELECT "+productColumns+" FROM products p WHERE p.id = ?"), id)
	if err != nil {
		return nil, notFound(err, "product", id)
	}
	return &product, nil
}

// GetProductsByIDs returns the products with the given IDs keyed by ID. Unknown IDs are skipped.
func (s *Store) GetProductsByIDs(ctx context.Context, ids []int64) (map[int64]models.Product, error) {
	found := make(map[int64]models.Product, len(ids))
	if len(ids) == 0 {
		return found, nil
	}
	query, args, err := sqlx.In("SELECT "+productColumns+" FROM products p WHERE p.id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}
	for _, p := range products {
		found[p.ID] = p
	}
	return found, nil
}

// GetProductBySlug retrieves an available product by slug
func (s *Store) GetProductBySlug(ctx context.Context, slug string) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product,
		s.q("SELECT "+productColumns+" FROM products p WHERE p.slug = ? AND p.is_available = ?"), slug, true)
	if err != nil {
		return nil, notFound(err, "product", slug)
	}
	return &product, nil
}

// ListProducts returns available products matching the filter
func (s *Store) ListProducts(ctx context.Context, f ProductFilter) ([]models.Product, error) {
	var (
		where = []string{"p.is_available = ?"}
		args  = []interface{}{true}
	)
	if f.Query != "" {
		like := "%" + strings.ToLower(f.Query) + "%"
		where = append(where, "(LOWER(p.name) LIKE ? OR LOWER(p.description) LIKE ? OR LOWER(p.ingredients) LIKE ?)")
		args = append(args, like, like, like)
	}
	if f.CategorySlug != "" {
		where = append(where, "c.slug = ?")
		args = append(args, f.CategorySlug)
	}
	if f.MinPrice != nil {
		where = append(where, "p.price >= ?")
		args = append(args, *f.MinPrice)
	}
	if f.MaxPrice != nil {
		where = append(where, "p.price <= ?")
		args = append(args, *f.MaxPrice)
	}
	if f.FeaturedOnly {
		where = append(where, "p.is_featured = ?")
		args = append(args, true)
	}

	order, ok := productSorts[f.Sort]
	if !ok {
		order = productSorts[""]
	}

	query := "SELECT " + productColumns + " FROM products p JOIN categories c ON c.id = p.category_id WHERE " +
		strings.Join(where, " AND ") + " ORDER BY " + order
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	products := []models.Product{}
	if err := s.db.SelectContext(ctx, &products, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return products, nil
}

// ListRelatedProducts returns other available products of the same category
func (s *Store) ListRelatedProducts(ctx context.Context, product *models.Product, limit int) ([]models.Product, error) {
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, s.q("SELECT "+productColumns+
		" FROM products p WHERE p.category_id = ? AND p.id <> ? AND p.is_available = ? ORDER BY p.created_at DESC, p.id DESC LIMIT ?"),
		product.CategoryID, product.ID, true, limit)
	return products, err
}

// CreateProduct inserts a product and fills in its ID
func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	query := `
		INSERT INTO products (category_id, name, slug, description, short_description, price,
			original_price, stock_quantity, is_available, is_featured, weight, ingredients,
			usage_instructions, benefits, warnings, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`
	err := s.db.GetContext(ctx, &p.ID, s.q(query),
		p.CategoryID, p.Name, p.Slug, p.Description, p.ShortDescription, p.Price,
		p.OriginalPrice, p.StockQuantity, p.IsAvailable, p.IsFeatured, p.Weight, p.Ingredients,
		p.UsageInstructions, p.Benefits, p.Warnings, p.CreatedAt, p.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("product slug %q: %w", p.Slug, ErrDuplicate)
	}
	return err
}

// SetProductStock overwrites the stock level of a product
func (s *Store) SetProductStock(ctx context.Context, productID int64, stock int) error {
	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE products SET stock_quantity = ?, updated_at = ? WHERE id = ?"), stock, now(), productID)
	if err != nil {
		return err
	}
	return expectRow(res, "product", productID)
}

// GetCategories lists active categories by name
func (s *Store) GetCategories(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	err := s.db.SelectContext(ctx, &categories,
		s.q("SELECT * FROM categories WHERE is_active = ? ORDER BY name"), true)
	return categories, err
}

// GetCategoryBySlug retrieves an active category
func (s *Store) GetCategoryBySlug(ctx context.Context, slug string) (*models.Category, error) {
	var c models.Category
	err := s.db.GetContext(ctx, &c, s.q("SELECT * FROM categories WHERE slug = ? AND is_active = ?"), slug, true)
	if err != nil {
		return nil, notFound(err, "category", slug)
	}
	return &c, nil
}

// CreateCategory inserts a category and fills in its ID
func (s *Store) CreateCategory(ctx context.Context, c *models.Category) error {
	ts := now()
	c.CreatedAt, c.UpdatedAt = ts, ts
	err := s.db.GetContext(ctx, &c.ID, s.q(`
		INSERT INTO categories (name, slug, description, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		c.Name, c.Slug, c.Description, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("category slug %q: %w", c.Slug, ErrDuplicate)
	}
	return err
}

// GetShippingMethods lists active shipping methods, cheapest first
func (s *Store) GetShippingMethods(ctx context.Context) ([]models.ShippingMethod, error) {
	methods := []models.ShippingMethod{}
	err := s.db.SelectContext(ctx, &methods,
		s.q("SELECT * FROM shipping_methods WHERE is_active = ? ORDER BY price, id"), true)
	return methods, err
}

// GetShippingMethod retrieves a shipping method regardless of its active flag
func (s *Store) GetShippingMethod(ctx context.Context, id int64) (*models.ShippingMethod, error) {
	var m models.ShippingMethod
	err := s.db.GetContext(ctx, &m, s.q("SELECT * FROM shipping_methods WHERE id = ?"), id)
	if err != nil {
		return nil, notFound(err, "shipping method", id)
	}
	return &m, nil
}

// CreateShippingMethod inserts a shipping method and fills in its ID
func (s *Store) CreateShippingMethod(ctx context.Context, m *models.ShippingMethod) error {
	m.CreatedAt = now()
	return s.db.GetContext(ctx, &m.ID, s.q(`
		INSERT INTO shipping_methods (name, description, price, estimated_days, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
		m.Name, m.Description, m.Price, m.EstimatedDays, m.IsActive, m.CreatedAt)
}

func expectRow(res sql.Result, what string, key interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %v: %w", what, key, ErrNotFound)
	}
	return nil
}
