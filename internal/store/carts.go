package store

import (
	"context"
	"fmt"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

// GetOrCreateUserCart returns the cart of a user, creating it on first use
func (s *Store) GetOrCreateUserCart(ctx context.Context, userID int64) (*models.Cart, error) {
	ts := now()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO carts (user_id, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO NOTHING`), userID, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	var cart models.Cart
	if err := s.db.GetContext(ctx, &cart, s.q("SELECT * FROM carts WHERE user_id = ?"), userID); err != nil {
		return nil, notFound(err, "cart for user", userID)
	}
	return &cart, nil
}

// GetOrCreateSessionCart returns the cart of an anonymous session, creating it on first use
func (s *Store) GetOrCreateSessionCart(ctx context.Context, sessionKey string) (*models.Cart, error) {
	ts := now()
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO carts (session_key, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (session_key) DO NOTHING`), sessionKey, ts, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	var cart models.Cart
	if err := s.db.GetContext(ctx, &cart, s.q("SELECT * FROM carts WHERE session_key = ?"), sessionKey); err != nil {
		return nil, notFound(err, "cart for session", sessionKey)
	}
	return &cart, nil
}

// FindSessionCart returns the cart of a session without creating one
func (s *Store) FindSessionCart(ctx context.Context, sessionKey string) (*models.Cart, error) {
	var cart models.Cart
	if err := s.db.GetContext(ctx, &cart, s.q("SELECT * FROM carts WHERE session_key = ?"), sessionKey); err != nil {
		return nil, notFound(err, "cart for session", sessionKey)
	}
	return &cart, nil
}

// DeleteCart removes a cart and, by cascade, its lines
func (s *Store) DeleteCart(ctx context.Context, cartID int64) error {
	_, err := s.db.ExecContext(ctx, s.q("DELETE FROM carts WHERE id = ?"), cartID)
	return err
}

const cartLineViewQuery = `
	SELECT l.id, l.cart_id, l.product_id, l.quantity, l.created_at, l.updated_at,
		p.name AS product_name, p.slug AS product_slug, p.price AS unit_price,
		p.stock_quantity, p.is_available
	FROM cart_lines l
	JOIN products p ON p.id = l.product_id`

// GetCartLines returns the lines of a cart joined with live product data
func (s *Store) GetCartLines(ctx context.Context, cartID int64) ([]models.CartLineView, error) {
	lines := []models.CartLineView{}
	err := s.db.SelectContext(ctx, &lines, s.q(cartLineViewQuery+" WHERE l.cart_id = ? ORDER BY l.created_at, l.id"), cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}
	return lines, nil
}

// GetCartLineRefs returns the lines of a cart without product data
func (s *Store) GetCartLineRefs(ctx context.Context, cartID int64) ([]models.CartLine, error) {
	lines := []models.CartLine{}
	err := s.db.SelectContext(ctx, &lines,
		s.q("SELECT * FROM cart_lines WHERE cart_id = ? ORDER BY created_at, id"), cartID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart lines: %w", err)
	}
	return lines, nil
}

// GetCartLine returns one line of a cart
func (s *Store) GetCartLine(ctx context.Context, cartID, lineID int64) (*models.CartLineView, error) {
	var line models.CartLineView
	err := s.db.GetContext(ctx, &line, s.q(cartLineViewQuery+" WHERE l.cart_id = ? AND l.id = ?"), cartID, lineID)
	if err != nil {
		return nil, notFound(err, "cart line", lineID)
	}
	return &line, nil
}

// GetCartLineByProduct returns the line holding productID, if any
func (s *Store) GetCartLineByProduct(ctx context.Context, cartID, productID int64) (*models.CartLineView, error) {
	var line models.CartLineView
	err := s.db.GetContext(ctx, &line, s.q(cartLineViewQuery+" WHERE l.cart_id = ? AND l.product_id = ?"), cartID, productID)
	if err != nil {
		return nil, notFound(err, "cart line for product", productID)
	}
	return &line, nil
}

// AddCartLine inserts a line or increments the quantity of the existing one
func (s *Store) AddCartLine(ctx context.Context, cartID, productID int64, quantity int) error {
	ts := now()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, s.q(`
			INSERT INTO cart_lines (cart_id, product_id, quantity, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (cart_id, product_id)
			DO UPDATE SET quantity = cart_lines.quantity + excluded.quantity, updated_at = excluded.updated_at`),
			cartID, productID, quantity, ts, ts)
		if err != nil {
			return fmt.Errorf("failed to add cart line: %w", err)
		}
		return s.touchCart(ctx, tx, cartID, ts)
	})
}

// SetCartLineQuantity overwrites the quantity of a line
func (s *Store) SetCartLineQuantity(ctx context.Context, cartID, lineID int64, quantity int) error {
	ts := now()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.q("UPDATE cart_lines SET quantity = ?, updated_at = ? WHERE id = ? AND cart_id = ?"),
			quantity, ts, lineID, cartID)
		if err != nil {
			return fmt.Errorf("failed to update cart line: %w", err)
		}
		if err := expectRow(res, "cart line", lineID); err != nil {
			return err
		}
		return s.touchCart(ctx, tx, cartID, ts)
	})
}

// DeleteCartLine removes a line from a cart
func (s *Store) DeleteCartLine(ctx context.Context, cartID, lineID int64) error {
	ts := now()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, s.q("DELETE FROM cart_lines WHERE id = ? AND cart_id = ?"), lineID, cartID)
		if err != nil {
			return fmt.Errorf("failed to delete cart line: %w", err)
		}
		if err := expectRow(res, "cart line", lineID); err != nil {
			return err
		}
		return s.touchCart(ctx, tx, cartID, ts)
	})
}

// MergeCarts moves every line of the source cart into the target cart,
// summing quantities capped at the available stock, then deletes the source cart.
func (s *Store) MergeCarts(ctx context.Context, sourceCartID, targetCartID int64) error {
	ts := now()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var lines []models.CartLineView
		err := tx.SelectContext(ctx, &lines, s.q(cartLineViewQuery+" WHERE l.cart_id = ? ORDER BY l.id"), sourceCartID)
		if err != nil {
			return fmt.Errorf("failed to load source cart: %w", err)
		}

		for _, line := range lines {
			if !line.IsAvailable || line.StockQuantity <= 0 {
				continue
			}
			var existing int
			err := tx.GetContext(ctx, &existing, s.q(
				"SELECT COALESCE(SUM(quantity), 0) FROM cart_lines WHERE cart_id = ? AND product_id = ?"),
				targetCartID, line.ProductID)
			if err != nil {
				return fmt.Errorf("failed to load target line: %w", err)
			}
			quantity := existing + line.Quantity
			if quantity > line.StockQuantity {
				quantity = line.StockQuantity
			}
			if quantity <= existing {
				continue
			}
			_, err = tx.ExecContext(ctx, s.q(`
				INSERT INTO cart_lines (cart_id, product_id, quantity, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?)
				ON CONFLICT (cart_id, product_id)
				DO UPDATE SET quantity = excluded.quantity, updated_at = excluded.updated_at`),
				targetCartID, line.ProductID, quantity, ts, ts)
			if err != nil {
				return fmt.Errorf("failed to merge cart line: %w", err)
			}
		}

		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM carts WHERE id = ?"), sourceCartID); err != nil {
			return fmt.Errorf("failed to delete source cart: %w", err)
		}
		return s.touchCart(ctx, tx, targetCartID, ts)
	})
}

// ClearCart deletes every line of a cart
func (s *Store) ClearCart(ctx context.Context, cartID int64) error {
	_, err := s.db.ExecContext(ctx, s.q("DELETE FROM cart_lines WHERE cart_id = ?"), cartID)
	return err
}

func (s *Store) touchCart(ctx context.Context, tx *sqlx.Tx, cartID int64, ts time.Time) error {
	_, err := tx.ExecContext(ctx, s.q("UPDATE carts SET updated_at = ? WHERE id = ?"), ts, cartID)
	return err
}

// withTx runs fn in a transaction, committing only when fn succeeds
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
