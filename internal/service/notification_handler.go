package service

import (
	"context"
	"fmt"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/store"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// NotificationHandler turns order events into customer and admin emails.
// Each event is handled at most once.
type NotificationHandler struct {
	store  *store.Store
	mailer *notify.Dispatcher
	logger *zap.Logger
}

// NewNotificationHandler creates a notification handler
func NewNotificationHandler(store *store.Store, mailer *notify.Dispatcher) *NotificationHandler {
	return &NotificationHandler{store: store, mailer: mailer, logger: util.GetLogger()}
}

// Register subscribes the handler to the events it reacts to
func (h *NotificationHandler) Register(events *broker.EventHandler) {
	events.OnOrderStatusChanged(h.HandleOrderStatusChanged)
	events.OnPaymentStatusChanged(h.HandlePaymentStatusChanged)
}

// HandleOrderStatusChanged emails the customer when an order ships or is delivered
func (h *NotificationHandler) HandleOrderStatusChanged(ctx context.Context, event *models.OrderStatusChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationHandler.HandleOrderStatusChanged")
	defer span.End()

	if event.NewStatus != models.OrderStatusShipped && event.NewStatus != models.OrderStatusDelivered {
		return nil
	}

	return h.once(ctx, event.BaseEvent, func() error {
		order, lines, customer, err := h.loadOrder(ctx, event.OrderID)
		if err != nil {
			return err
		}

		switch event.NewStatus {
		case models.OrderStatusShipped:
			tracking, err := h.store.GetOrderTracking(ctx, order.ID)
			if err != nil {
				return fmt.Errorf("failed to load tracking: %w", err)
			}
			var latest *models.OrderTrackingEntry
			if len(tracking) > 0 {
				latest = &tracking[0]
			}
			h.mailer.SendOrderShipped(ctx, order, lines, customer, latest)
		case models.OrderStatusDelivered:
			h.mailer.SendOrderDelivered(ctx, order, lines, customer)
		}
		return nil
	})
}

// HandlePaymentStatusChanged tells the admins when a payment completes
func (h *NotificationHandler) HandlePaymentStatusChanged(ctx context.Context, event *models.PaymentStatusChangedEvent) error {
	ctx, span := util.StartSpan(ctx, "NotificationHandler.HandlePaymentStatusChanged")
	defer span.End()

	if event.NewStatus != models.PaymentStatusCompleted {
		return nil
	}

	return h.once(ctx, event.BaseEvent, func() error {
		order, lines, customer, err := h.loadOrder(ctx, event.OrderID)
		if err != nil {
			return err
		}
		h.mailer.SendPaymentReceived(ctx, order, lines, customer)
		return nil
	})
}

func (h *NotificationHandler) once(ctx context.Context, event models.BaseEvent, fn func() error) error {
	processed, err := h.store.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w", err)
	}
	if processed {
		h.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	if err := fn(); err != nil {
		return err
	}

	if err := h.store.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		h.logger.Error("Failed to mark event processed", zap.String("event_id", event.EventID), zap.Error(err))
	}
	return nil
}

func (h *NotificationHandler) loadOrder(ctx context.Context, orderID string) (*models.Order, []models.OrderLine, *models.User, error) {
	order, err := h.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	lines, err := h.store.GetOrderLines(ctx, orderID)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load order lines: %w", err)
	}
	customer, err := h.store.GetUserByID(ctx, order.UserID)
	if err != nil {
		return nil, nil, nil, err
	}
	return order, lines, customer, nil
}
