package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/jmoiron/sqlx"
)

var addressFields = []string{
	"first_name", "last_name", "company", "address_line_1", "address_line_2",
	"city", "state", "postal_code", "country", "phone",
}

// orderColumns maps the flattened billing_/shipping_ columns onto the nested Address structs
var orderColumns = func() string {
	cols := []string{"o.id", "o.user_id", "o.order_number"}
	for _, prefix := range []string{"billing", "shipping"} {
		for _, f := range addressFields {
			cols = append(cols, fmt.Sprintf(`o.%s_%s AS "%s.%s"`, prefix, f, prefix, f))
		}
	}
	cols = append(cols,
		"o.subtotal", "o.shipping_cost", "o.tax_amount", "o.total_amount", "o.status",
		"o.payment_status", "o.payment_method", "o.payment_id", "o.shipping_method_name",
		"o.notes", "o.created_at", "o.updated_at", "o.shipped_at", "o.delivered_at")
	return strings.Join(cols, ", ")
}()

func addressArgs(a models.Address) []interface{} {
	return []interface{}{
		a.FirstName, a.LastName, a.Company, a.AddressLine1, a.AddressLine2,
		a.City, a.State, a.PostalCode, a.Country, a.Phone,
	}
}

func insertOrderQuery() string {
	cols := []string{"id", "user_id", "order_number"}
	for _, prefix := range []string{"billing", "shipping"} {
		for _, f := range addressFields {
			cols = append(cols, prefix+"_"+f)
		}
	}
	cols = append(cols,
		"subtotal", "shipping_cost", "tax_amount", "total_amount", "status", "payment_status",
		"payment_method", "payment_id", "shipping_method_name", "notes", "created_at", "updated_at")
	return "INSERT INTO orders (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ") + ")"
}

var insertOrderSQL = insertOrderQuery()

func (s *Store) forUpdate() string {
	if s.driver == DriverPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// PlaceOrder persists an order with its lines, decrements stock and removes the
// taken cart lines in one transaction. A line whose product no longer has enough
// stock aborts the whole transaction with *StockConflict. A taken cart line that
// was removed or changed since it was read yields ErrCartChanged, and a taken
// order number yields ErrDuplicate. Lines added to the cart meanwhile are kept.
func (s *Store) PlaceOrder(ctx context.Context, order *models.Order, lines []models.OrderLine, cartID int64, taken []models.CartLine) error {
	ts := now()
	order.CreatedAt, order.UpdatedAt = ts, ts

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		args := []interface{}{order.ID, order.UserID, order.OrderNumber}
		args = append(args, addressArgs(order.Billing)...)
		args = append(args, addressArgs(order.Shipping)...)
		args = append(args,
			order.Subtotal, order.ShippingCost, order.TaxAmount, order.TotalAmount,
			order.Status, order.PaymentStatus, order.PaymentMethod, order.PaymentID,
			order.ShippingMethodName, order.Notes, order.CreatedAt, order.UpdatedAt)

		if _, err := tx.ExecContext(ctx, s.q(insertOrderSQL), args...); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("order number %s: %w", order.OrderNumber, ErrDuplicate)
			}
			return fmt.Errorf("failed to insert order: %w", err)
		}

		for i := range lines {
			line := &lines[i]
			line.OrderID = order.ID
			line.CreatedAt = ts
			err := tx.GetContext(ctx, &line.ID, s.q(`
				INSERT INTO order_lines (order_id, product_id, product_name, product_price, quantity, created_at)
				VALUES (?, ?, ?, ?, ?, ?) RETURNING id`),
				line.OrderID, line.ProductID, line.ProductName, line.ProductPrice, line.Quantity, line.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to insert order line: %w", err)
			}
		}

		for _, line := range stockOrder(lines) {
			res, err := tx.ExecContext(ctx, s.q(`
				UPDATE products SET stock_quantity = stock_quantity - ?, updated_at = ?
				WHERE id = ? AND stock_quantity >= ?`),
				line.Quantity, ts, line.ProductID, line.Quantity)
			if err != nil {
				return fmt.Errorf("failed to decrement stock: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				var available int
				if err := tx.GetContext(ctx, &available,
					s.q("SELECT stock_quantity FROM products WHERE id = ?"), line.ProductID); err != nil {
					return notFound(err, "product", line.ProductID)
				}
				return &StockConflict{
					ProductID:   line.ProductID,
					ProductName: line.ProductName,
					Requested:   line.Quantity,
					Available:   available,
				}
			}
		}

		for _, l := range taken {
			res, err := tx.ExecContext(ctx,
				s.q("DELETE FROM cart_lines WHERE id = ? AND cart_id = ? AND quantity = ?"),
				l.ID, cartID, l.Quantity)
			if err != nil {
				return fmt.Errorf("failed to clear cart line: %w", err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return fmt.Errorf("cart line %d: %w", l.ID, ErrCartChanged)
			}
		}
		return s.touchCart(ctx, tx, cartID, ts)
	})
}

// stockOrder returns the lines sorted by product so concurrent orders lock
// product rows in the same sequence
func stockOrder(lines []models.OrderLine) []models.OrderLine {
	sorted := slices.Clone(lines)
	slices.SortStableFunc(sorted, func(a, b models.OrderLine) int {
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	return sorted
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, s.q("SELECT "+orderColumns+" FROM orders o WHERE o.id = ?"), id)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return &order, nil
}

// GetOrderByNumber retrieves an order by its human-readable number
func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, s.q("SELECT "+orderColumns+" FROM orders o WHERE o.order_number = ?"), number)
	if err != nil {
		return nil, notFound(err, "order", number)
	}
	return &order, nil
}

// GetOrdersByUserID retrieves orders for a user, newest first
func (s *Store) GetOrdersByUserID(ctx context.Context, userID int64) ([]models.Order, error) {
	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders, s.q(
		"SELECT "+orderColumns+" FROM orders o WHERE o.user_id = ? ORDER BY o.created_at DESC, o.id"), userID)
	return orders, err
}

// OrderFilter narrows the admin order listing
type OrderFilter struct {
	Status        models.OrderStatus
	PaymentStatus models.PaymentStatus
	Since         *time.Time
	Until         *time.Time
	Limit         int
}

// ListOrders returns orders matching the filter, newest first
func (s *Store) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Status != "" {
		where = append(where, "o.status = ?")
		args = append(args, f.Status)
	}
	if f.PaymentStatus != "" {
		where = append(where, "o.payment_status = ?")
		args = append(args, f.PaymentStatus)
	}
	if f.Since != nil {
		where = append(where, "o.created_at >= ?")
		args = append(args, f.Since.UTC())
	}
	if f.Until != nil {
		where = append(where, "o.created_at < ?")
		args = append(args, f.Until.UTC())
	}

	query := "SELECT " + orderColumns + " FROM orders o"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY o.created_at DESC, o.id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	orders := []models.Order{}
	if err := s.db.SelectContext(ctx, &orders, s.q(query), args...); err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// GetOrderLines retrieves all lines of an order
func (s *Store) GetOrderLines(ctx context.Context, orderID string) ([]models.OrderLine, error) {
	lines := []models.OrderLine{}
	err := s.db.SelectContext(ctx, &lines, s.q("SELECT * FROM order_lines WHERE order_id = ? ORDER BY id"), orderID)
	return lines, err
}

// GetOrderTracking retrieves the tracking history of an order, newest first
func (s *Store) GetOrderTracking(ctx context.Context, orderID string) ([]models.OrderTrackingEntry, error) {
	entries := []models.OrderTrackingEntry{}
	err := s.db.SelectContext(ctx, &entries, s.q(
		"SELECT * FROM order_tracking WHERE order_id = ? ORDER BY created_at DESC, id DESC"), orderID)
	return entries, err
}

// AddTrackingEntry appends a tracking entry to an order
func (s *Store) AddTrackingEntry(ctx context.Context, entry *models.OrderTrackingEntry) error {
	entry.CreatedAt = now()
	err := s.db.GetContext(ctx, &entry.ID, s.q(`
		INSERT INTO order_tracking (order_id, status, description, created_at)
		VALUES (?, ?, ?, ?) RETURNING id`),
		entry.OrderID, entry.Status, entry.Description, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add tracking entry: %w", err)
	}
	return nil
}

// TransitionError reports a status change the order state machine forbids
type TransitionError struct {
	From models.OrderStatus
	To   models.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

// UpdateOrderStatus moves an order to next, stamping shipped_at/delivered_at on first
// entry and optionally appending a tracking entry, all in one transaction.
// It returns the status the order had before the change.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, next models.OrderStatus, tracking *models.OrderTrackingEntry) (models.OrderStatus, error) {
	var previous models.OrderStatus
	ts := now()

	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var order models.Order
		err := tx.GetContext(ctx, &order, s.q("SELECT "+orderColumns+" FROM orders o WHERE o.id = ?"+s.forUpdate()), orderID)
		if err != nil {
			return notFound(err, "order", orderID)
		}
		previous = order.Status

		if !order.Status.CanTransitionTo(next) {
			return &TransitionError{From: order.Status, To: next}
		}

		if order.Status != next {
			sets := []string{"status = ?", "updated_at = ?"}
			args := []interface{}{next, ts}
			if next == models.OrderStatusShipped && order.ShippedAt == nil {
				sets = append(sets, "shipped_at = ?")
				args = append(args, ts)
			}
			if next == models.OrderStatusDelivered && order.DeliveredAt == nil {
				sets = append(sets, "delivered_at = ?")
				args = append(args, ts)
			}
			if next == models.OrderStatusRefunded {
				sets = append(sets, "payment_status = ?")
				args = append(args, models.PaymentStatusRefunded)
			}
			args = append(args, orderID)
			if _, err := tx.ExecContext(ctx, s.q("UPDATE orders SET "+strings.Join(sets, ", ")+" WHERE id = ?"), args...); err != nil {
				return fmt.Errorf("failed to update order status: %w", err)
			}
		}

		if tracking != nil {
			tracking.OrderID = orderID
			tracking.CreatedAt = ts
			if tracking.Status == "" {
				tracking.Status = next
			}
			err := tx.GetContext(ctx, &tracking.ID, s.q(`
				INSERT INTO order_tracking (order_id, status, description, created_at)
				VALUES (?, ?, ?, ?) RETURNING id`),
				tracking.OrderID, tracking.Status, tracking.Description, tracking.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to add tracking entry: %w", err)
			}
		}
		return nil
	})
	return previous, err
}

// UpdatePaymentStatus sets the payment status and optional payment reference.
// It returns the payment status the order had before the change.
func (s *Store) UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus, paymentID string) (models.PaymentStatus, error) {
	var previous models.PaymentStatus
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, &previous, s.q("SELECT payment_status FROM orders WHERE id = ?"+s.forUpdate()), orderID)
		if err != nil {
			return notFound(err, "order", orderID)
		}
		query := "UPDATE orders SET payment_status = ?, updated_at = ? WHERE id = ?"
		args := []interface{}{status, now(), orderID}
		if paymentID != "" {
			query = "UPDATE orders SET payment_status = ?, updated_at = ?, payment_id = ? WHERE id = ?"
			args = []interface{}{status, now(), paymentID, orderID}
		}
		if _, err := tx.ExecContext(ctx, s.q(query), args...); err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		return nil
	})
	return previous, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		s.q("SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = ?)"), eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		s.q("INSERT INTO processed_events (event_id, event_type, processed_at) VALUES (?, ?, ?) ON CONFLICT (event_id) DO NOTHING"),
		eventID, eventType, now())
	return err
}
