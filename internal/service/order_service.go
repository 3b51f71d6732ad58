package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// OrderService handles order business logic after checkout
type OrderService struct {
	store  *store.Store
	events *broker.EventPublisher
	logger *zap.Logger
}

// NewOrderService creates a new order service. events may be nil.
func NewOrderService(store *store.Store, events *broker.EventPublisher) *OrderService {
	return &OrderService{
		store:  store,
		events: events,
		logger: util.GetLogger(),
	}
}

func (s *OrderService) load(ctx context.Context, orderID string) (*models.Order, error) {
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, fmt.Errorf("order %q: %w", orderID, ErrNotFound)
	}
	return s.store.GetOrderByID(ctx, orderID)
}

// Get returns an order with its lines and tracking history. Non-staff
// callers only see their own orders.
func (s *OrderService) Get(ctx context.Context, orderID string, userID int64, staff bool) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Get")
	defer span.End()

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !staff && order.UserID != userID {
		return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}
	return s.detail(ctx, order)
}

func (s *OrderService) detail(ctx context.Context, order *models.Order) (*models.OrderDetail, error) {
	lines, err := s.store.GetOrderLines(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	tracking, err := s.store.GetOrderTracking(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load order tracking: %w", err)
	}
	return &models.OrderDetail{Order: *order, Lines: lines, Tracking: tracking}, nil
}

// ListForUser returns the order history of a user, newest first
func (s *OrderService) ListForUser(ctx context.Context, userID int64) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListForUser")
	defer span.End()

	return s.store.GetOrdersByUserID(ctx, userID)
}

// List returns orders for the back office
func (s *OrderService) List(ctx context.Context, filter store.OrderFilter) ([]models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.List")
	defer span.End()

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, invalid("status", "unknown order status")
	}
	if filter.PaymentStatus != "" && !filter.PaymentStatus.Valid() {
		return nil, invalid("payment_status", "unknown payment status")
	}
	return s.store.ListOrders(ctx, filter)
}

// UpdateStatus moves an order along the fulfilment pipeline. A non-empty
// description is recorded as a tracking entry in the same transaction.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID string, next models.OrderStatus, description string) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdateStatus")
	defer span.End()

	if !next.Valid() {
		return nil, invalid("status", "unknown order status")
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, fmt.Errorf("order %q: %w", orderID, ErrNotFound)
	}

	var tracking *models.OrderTrackingEntry
	if description = strings.TrimSpace(description); description != "" {
		tracking = &models.OrderTrackingEntry{Status: next, Description: description}
	}

	previous, err := s.store.UpdateOrderStatus(ctx, orderID, next, tracking)
	var te *store.TransitionError
	if errors.As(err, &te) {
		return nil, fmt.Errorf("%w: %s", ErrIllegalTransition, te.Error())
	}
	if err != nil {
		return nil, err
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if previous != next {
		util.OrderStatusChangesTotal.WithLabelValues(string(next)).Inc()
		s.logger.Info("Order status changed",
			zap.String("order_number", order.OrderNumber),
			zap.String("from", string(previous)),
			zap.String("to", string(next)))

		if s.events != nil {
			event := &models.OrderStatusChangedEvent{
				BaseEvent:   broker.NewBaseEvent(models.EventTypeOrderStatusChanged),
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				OldStatus:   previous,
				NewStatus:   next,
			}
			if err := s.events.PublishOrderStatusChanged(ctx, event); err != nil {
				s.logger.Error("Failed to publish OrderStatusChanged event", zap.Error(err))
			}
		}
	}

	return s.detail(ctx, order)
}

// UpdatePaymentStatus records a payment outcome independently of fulfilment
func (s *OrderService) UpdatePaymentStatus(ctx context.Context, orderID string, status models.PaymentStatus, paymentID string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.UpdatePaymentStatus")
	defer span.End()

	if !status.Valid() {
		return nil, invalid("payment_status", "unknown payment status")
	}
	if _, err := uuid.Parse(orderID); err != nil {
		return nil, fmt.Errorf("order %q: %w", orderID, ErrNotFound)
	}

	previous, err := s.store.UpdatePaymentStatus(ctx, orderID, status, strings.TrimSpace(paymentID))
	if err != nil {
		return nil, err
	}

	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if previous != status {
		s.logger.Info("Payment status changed",
			zap.String("order_number", order.OrderNumber),
			zap.String("from", string(previous)),
			zap.String("to", string(status)))

		if s.events != nil {
			event := &models.PaymentStatusChangedEvent{
				BaseEvent:   broker.NewBaseEvent(models.EventTypePaymentStatusChanged),
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				OldStatus:   previous,
				NewStatus:   status,
			}
			if err := s.events.PublishPaymentStatusChanged(ctx, event); err != nil {
				s.logger.Error("Failed to publish PaymentStatusChanged event", zap.Error(err))
			}
		}
	}
	return order, nil
}

// AddTracking appends a tracking entry. An empty status records the current one.
func (s *OrderService) AddTracking(ctx context.Context, orderID string, status models.OrderStatus, description string) (*models.OrderTrackingEntry, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AddTracking")
	defer span.End()

	description = strings.TrimSpace(description)
	if description == "" {
		return nil, invalid("description", "is required")
	}
	if status != "" && !status.Valid() {
		return nil, invalid("status", "unknown order status")
	}

	order, err := s.load(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if status == "" {
		status = order.Status
	}

	entry := &models.OrderTrackingEntry{OrderID: order.ID, Status: status, Description: description}
	if err := s.store.AddTrackingEntry(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
