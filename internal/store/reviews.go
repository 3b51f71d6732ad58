package store

import (
	"context"
	"fmt"
	"strings"

	"storefront/internal/models"
)

// CreateReview inserts a review and fills in its ID. A second review of the
// same product by the same user yields ErrDuplicate.
func (s *Store) CreateReview(ctx context.Context, r *models.ProductReview) error {
	ts := now()
	r.CreatedAt, r.UpdatedAt = ts, ts
	err := s.db.GetContext(ctx, &r.ID, s.q(`
		INSERT INTO product_reviews (product_id, user_id, rating, title, comment,
			is_verified_purchase, is_approved, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`),
		r.ProductID, r.UserID, r.Rating, r.Title, r.Comment,
		r.IsVerifiedPurchase, r.IsApproved, r.CreatedAt, r.UpdatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("review of product %d by user %d: %w", r.ProductID, r.UserID, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("failed to insert review: %w", err)
	}
	return nil
}

// ListReviews returns the approved reviews of a product, newest first
func (s *Store) ListReviews(ctx context.Context, productID int64) ([]models.ProductReview, error) {
	reviews := []models.ProductReview{}
	err := s.db.SelectContext(ctx, &reviews, s.q(`
		SELECT r.id, r.product_id, r.user_id, u.username, r.rating, r.title, r.comment,
			r.is_verified_purchase, r.is_approved, r.created_at, r.updated_at
		FROM product_reviews r
		JOIN users u ON u.id = r.user_id
		WHERE r.product_id = ? AND r.is_approved = ?
		ORDER BY r.created_at DESC, r.id DESC`), productID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list reviews: %w", err)
	}
	return reviews, nil
}

// HasPurchased reports whether the user has a non-cancelled order containing the product
func (s *Store) HasPurchased(ctx context.Context, userID, productID int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.q(`
		SELECT COUNT(*) FROM order_lines l
		JOIN orders o ON o.id = l.order_id
		WHERE o.user_id = ? AND l.product_id = ? AND o.status <> ?`),
		userID, productID, models.OrderStatusCancelled)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SuggestProducts returns up to limit available products whose name or short
// description contains query, ignoring case
func (s *Store) SuggestProducts(ctx context.Context, query string, limit int) ([]models.Product, error) {
	like := "%" + escapeLike(query) + "%"
	products := []models.Product{}
	err := s.db.SelectContext(ctx, &products, s.q("SELECT "+productColumns+`
		FROM products p
		WHERE p.is_available = ?
			AND (LOWER(p.name) LIKE LOWER(?) ESCAPE '\' OR LOWER(p.short_description) LIKE LOWER(?) ESCAPE '\')
		ORDER BY p.name, p.id
		LIMIT ?`), true, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest products: %w", err)
	}
	return products, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
