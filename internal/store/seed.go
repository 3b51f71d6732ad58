package store

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

//go:embed seed_catalog.json
var seedCatalog []byte

type seedData struct {
	Categories []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	} `json:"categories"`
	Products []struct {
		Name              string           `json:"name"`
		Category          string           `json:"category"`
		Price             decimal.Decimal  `json:"price"`
		OriginalPrice     *decimal.Decimal `json:"original_price"`
		ShortDescription  string           `json:"short_description"`
		Description       string           `json:"description"`
		Ingredients       string           `json:"ingredients"`
		UsageInstructions string           `json:"usage_instructions"`
		Benefits          string           `json:"benefits"`
		Weight            string           `json:"weight"`
		StockQuantity     int              `json:"stock_quantity"`
		IsFeatured        bool             `json:"is_featured"`
	} `json:"products"`
	ShippingMethods []struct {
		Name          string          `json:"name"`
		Description   string          `json:"description"`
		Price         decimal.Decimal `json:"price"`
		EstimatedDays int             `json:"estimated_days"`
	} `json:"shipping_methods"`
}

// SeedStats counts the rows created by SeedCatalog
type SeedStats struct {
	Categories      int
	Products        int
	ShippingMethods int
}

// SeedCatalog loads the sample catalog. Rows that already exist are left untouched,
// so running it twice is harmless.
func (s *Store) SeedCatalog(ctx context.Context) (SeedStats, error) {
	var (
		data  seedData
		stats SeedStats
	)
	if err := json.Unmarshal(seedCatalog, &data); err != nil {
		return stats, fmt.Errorf("failed to decode seed catalog: %w", err)
	}

	categoryIDs := make(map[string]int64, len(data.Categories))
	for _, c := range data.Categories {
		category := &models.Category{Name: c.Name, Slug: Slugify(c.Name), Description: c.Description, IsActive: true}
		err := s.CreateCategory(ctx, category)
		switch {
		case err == nil:
			stats.Categories++
		case errors.Is(err, ErrDuplicate):
			existing, err := s.GetCategoryBySlug(ctx, category.Slug)
			if err != nil {
				return stats, err
			}
			category = existing
		default:
			return stats, err
		}
		categoryIDs[c.Name] = category.ID
	}

	for _, p := range data.Products {
		categoryID, ok := categoryIDs[p.Category]
		if !ok {
			return stats, fmt.Errorf("product %q references unknown category %q", p.Name, p.Category)
		}
		product := &models.Product{
			CategoryID:        categoryID,
			Name:              p.Name,
			Slug:              Slugify(p.Name),
			Description:       p.Description,
			ShortDescription:  p.ShortDescription,
			Price:             p.Price,
			OriginalPrice:     p.OriginalPrice,
			StockQuantity:     p.StockQuantity,
			IsAvailable:       true,
			IsFeatured:        p.IsFeatured,
			Weight:            p.Weight,
			Ingredients:       p.Ingredients,
			UsageInstructions: p.UsageInstructions,
			Benefits:          p.Benefits,
		}
		err := s.CreateProduct(ctx, product)
		switch {
		case err == nil:
			stats.Products++
		case errors.Is(err, ErrDuplicate):
		default:
			return stats, err
		}
	}

	existing, err := s.GetShippingMethods(ctx)
	if err != nil {
		return stats, err
	}
	known := make(map[string]bool, len(existing))
	for _, m := range existing {
		known[m.Name] = true
	}
	for _, m := range data.ShippingMethods {
		if known[m.Name] {
			continue
		}
		method := &models.ShippingMethod{
			Name:          m.Name,
			Description:   m.Description,
			Price:         m.Price,
			EstimatedDays: m.EstimatedDays,
			IsActive:      true,
		}
		if err := s.CreateShippingMethod(ctx, method); err != nil {
			return stats, err
		}
		stats.ShippingMethods++
	}

	return stats, nil
}

// Slugify lowercases name and joins its alphanumeric runs with hyphens
func Slugify(name string) string {
	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		pendingDash = true
	}
	return b.String()
}
