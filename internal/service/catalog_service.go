package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	featuredLimit    = 8
	relatedLimit     = 4
	suggestionLimit  = 10
	suggestionMinLen = 2
)

// HomePage is the landing page payload
type HomePage struct {
	Featured   []models.Product  `json:"featured"`
	Categories []models.Category `json:"categories"`
}

// ProductPage is a product with related products of its category
type ProductPage struct {
	Product models.Product   `json:"product"`
	Related []models.Product `json:"related"`
}

// CategoryPage is a category with its products
type CategoryPage struct {
	Category models.Category  `json:"category"`
	Products []models.Product `json:"products"`
}

// ProductQuery holds the raw catalog listing parameters
type ProductQuery struct {
	Query    string
	Category string
	MinPrice string
	MaxPrice string
	Sort     string
}

// CatalogService serves read-mostly catalog data, caching reference data briefly
type CatalogService struct {
	store      *store.Store
	home       *expirable.LRU[string, *HomePage]
	categories *expirable.LRU[string, []models.Category]
	shipping   *expirable.LRU[string, []models.ShippingMethod]
}

// NewCatalogService creates a catalog service whose caches expire after ttl
func NewCatalogService(store *store.Store, ttl time.Duration) *CatalogService {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CatalogService{
		store:      store,
		home:       expirable.NewLRU[string, *HomePage](1, nil, ttl),
		categories: expirable.NewLRU[string, []models.Category](1, nil, ttl),
		shipping:   expirable.NewLRU[string, []models.ShippingMethod](1, nil, ttl),
	}
}

// Home returns featured products and active categories, loaded concurrently
func (s *CatalogService) Home(ctx context.Context) (*HomePage, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Home")
	defer span.End()

	if page, ok := s.home.Get("home"); ok {
		return page, nil
	}

	page := &HomePage{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		featured, err := s.store.ListProducts(gctx, store.ProductFilter{FeaturedOnly: true, Limit: featuredLimit})
		page.Featured = featured
		return err
	})
	g.Go(func() error {
		categories, err := s.Categories(gctx)
		page.Categories = categories
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.home.Add("home", page)
	return page, nil
}

// Categories lists active categories
func (s *CatalogService) Categories(ctx context.Context) ([]models.Category, error) {
	if categories, ok := s.categories.Get("all"); ok {
		return categories, nil
	}
	categories, err := s.store.GetCategories(ctx)
	if err != nil {
		return nil, err
	}
	s.categories.Add("all", categories)
	return categories, nil
}

// Category returns an active category with its available products
func (s *CatalogService) Category(ctx context.Context, slug, sort string) (*CategoryPage, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Category")
	defer span.End()

	category, err := s.store.GetCategoryBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if sort != "" && !store.ValidProductSort(sort) {
		return nil, invalid("sort", "unknown sort order")
	}
	products, err := s.store.ListProducts(ctx, store.ProductFilter{CategorySlug: slug, Sort: sort})
	if err != nil {
		return nil, err
	}
	return &CategoryPage{Category: *category, Products: products}, nil
}

// Products lists available products matching the query
func (s *CatalogService) Products(ctx context.Context, q ProductQuery) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Products")
	defer span.End()

	filter := store.ProductFilter{
		Query:        strings.TrimSpace(q.Query),
		CategorySlug: q.Category,
		Sort:         q.Sort,
	}
	if !store.ValidProductSort(q.Sort) {
		return nil, invalid("sort", "unknown sort order")
	}
	var err error
	if filter.MinPrice, err = parsePrice("min_price", q.MinPrice); err != nil {
		return nil, err
	}
	if filter.MaxPrice, err = parsePrice("max_price", q.MaxPrice); err != nil {
		return nil, err
	}
	return s.store.ListProducts(ctx, filter)
}

func parsePrice(field, raw string) (*decimal.Decimal, error) {
	if raw == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil || d.IsNegative() {
		return nil, invalid(field, "must be a non-negative amount")
	}
	return &d, nil
}

// Suggest returns up to ten available products whose name or short description
// contains q. Queries shorter than two characters yield no suggestions.
func (s *CatalogService) Suggest(ctx context.Context, q string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Suggest")
	defer span.End()

	q = strings.TrimSpace(q)
	if utf8.RuneCountInString(q) < suggestionMinLen {
		return []models.Product{}, nil
	}
	return s.store.SuggestProducts(ctx, q, suggestionLimit)
}

// Product returns an available product and related products of its category
func (s *CatalogService) Product(ctx context.Context, slug string) (*ProductPage, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.Product")
	defer span.End()

	product, err := s.store.GetProductBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	related, err := s.store.ListRelatedProducts(ctx, product, relatedLimit)
	if err != nil {
		return nil, err
	}
	return &ProductPage{Product: *product, Related: related}, nil
}

// ShippingMethods lists active shipping methods, cheapest first
func (s *CatalogService) ShippingMethods(ctx context.Context) ([]models.ShippingMethod, error) {
	if methods, ok := s.shipping.Get("active"); ok {
		return methods, nil
	}
	methods, err := s.store.GetShippingMethods(ctx)
	if err != nil {
		return nil, err
	}
	s.shipping.Add("active", methods)
	return methods, nil
}

// Purge drops every cached entry
func (s *CatalogService) Purge() {
	s.home.Purge()
	s.categories.Purge()
	s.shipping.Purge()
}
