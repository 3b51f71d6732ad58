package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"storefront/internal/broker"
	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/redisclient"
	"storefront/internal/store"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	orderNumberLength   = 8
	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxOrderNumberTries = 3
	idempotencyTTL      = 24 * time.Hour
)

// NewOrderNumber returns a random order number of 8 uppercase letters and digits
func NewOrderNumber() string {
	var b strings.Builder
	b.Grow(orderNumberLength)
	for i := 0; i < orderNumberLength; i++ {
		b.WriteByte(orderNumberAlphabet[rand.Intn(len(orderNumberAlphabet))])
	}
	return b.String()
}

// TaxPolicy computes the tax owed on an order
type TaxPolicy interface {
	Tax(subtotal decimal.Decimal, shipping models.Address) decimal.Decimal
}

// ZeroTax charges no tax
type ZeroTax struct{}

func (ZeroTax) Tax(decimal.Decimal, models.Address) decimal.Decimal {
	return decimal.Zero
}

// CheckoutRequest carries everything needed to turn a cart into an order
type CheckoutRequest struct {
	Billing               models.Address  `json:"billing"`
	Shipping              *models.Address `json:"shipping,omitempty"`
	UseBillingForShipping bool            `json:"use_billing_for_shipping"`
	ShippingMethodID      *int64          `json:"shipping_method_id,omitempty"`
	PaymentMethod         string          `json:"payment_method" binding:"required"`
	Notes                 string          `json:"notes"`
	IdempotencyKey        string          `json:"idempotency_key,omitempty"`
}

// CheckoutService converts carts into orders
type CheckoutService struct {
	store     *store.Store
	redis     *redisclient.Client
	carts     *CartService
	orders    *OrderService
	mailer    *notify.Dispatcher
	events    *broker.EventPublisher
	tax       TaxPolicy
	lockTTL   time.Duration
	newNumber func() string
	logger    *zap.Logger
}

// NewCheckoutService creates a checkout service. redis and events may be nil.
func NewCheckoutService(
	store *store.Store,
	redis *redisclient.Client,
	carts *CartService,
	orders *OrderService,
	mailer *notify.Dispatcher,
	events *broker.EventPublisher,
	tax TaxPolicy,
	lockTTL time.Duration,
) *CheckoutService {
	if tax == nil {
		tax = ZeroTax{}
	}
	if lockTTL <= 0 {
		lockTTL = 30 * time.Second
	}
	return &CheckoutService{
		store:     store,
		redis:     redis,
		carts:     carts,
		orders:    orders,
		mailer:    mailer,
		events:    events,
		tax:       tax,
		lockTTL:   lockTTL,
		newNumber: NewOrderNumber,
		logger:    util.GetLogger(),
	}
}

// Checkout places an order from the user's cart. Stock is re-validated, prices
// are snapshotted and the cart is emptied in one transaction. The confirmation
// email and the ORDER_PLACED event are sent after commit and never fail the call.
func (s *CheckoutService) Checkout(ctx context.Context, userID int64, req *CheckoutRequest) (*models.OrderDetail, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	idemKey := ""
	if req.IdempotencyKey != "" && s.redis != nil {
		idemKey = fmt.Sprintf("checkout:%d:%s", userID, req.IdempotencyKey)
		orderID, found, err := s.redis.GetIdempotencyKey(ctx, idemKey)
		if err != nil {
			s.logger.Warn("Idempotency lookup failed", zap.Error(err))
		} else if found {
			s.logger.Info("Duplicate checkout request detected",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.String("order_id", orderID))
			return s.orders.Get(ctx, orderID, userID, false)
		}
	}

	shipping, err := s.validate(req)
	if err != nil {
		util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
		return nil, err
	}

	customer, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	cart, err := s.store.GetOrCreateUserCart(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.redis != nil {
		lockKey := "checkout:" + strconv.FormatInt(cart.ID, 10)
		token, ok, err := s.redis.AcquireLock(ctx, lockKey, s.lockTTL)
		switch {
		case err != nil:
			s.logger.Warn("Checkout lock unavailable, continuing without it", zap.Error(err))
		case !ok:
			util.OrdersFailedTotal.WithLabelValues("in_progress").Inc()
			return nil, ErrCheckoutInProgress
		default:
			defer func() {
				if err := s.redis.ReleaseLock(context.WithoutCancel(ctx), lockKey, token); err != nil {
					s.logger.Warn("Failed to release checkout lock", zap.Error(err))
				}
			}()
		}
	}

	lines, err := s.store.GetCartLines(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		util.OrdersFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, ErrEmptyCart
	}

	subtotal := decimal.Zero
	orderLines := make([]models.OrderLine, 0, len(lines))
	taken := make([]models.CartLine, 0, len(lines))
	for _, line := range lines {
		available := line.StockQuantity
		if !line.IsAvailable {
			available = 0
		}
		if line.Quantity > available {
			util.StockConflictsTotal.WithLabelValues("validation").Inc()
			util.OrdersFailedTotal.WithLabelValues("stock_conflict").Inc()
			return nil, &StockConflictError{ProductName: line.ProductName, Requested: line.Quantity, Available: available}
		}
		subtotal = subtotal.Add(line.LineTotal())
		orderLines = append(orderLines, models.OrderLine{
			ProductID:    line.ProductID,
			ProductName:  line.ProductName,
			ProductPrice: line.UnitPrice,
			Quantity:     line.Quantity,
		})
		taken = append(taken, line.CartLine)
	}

	order := &models.Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		Billing:       req.Billing,
		Shipping:      shipping,
		Subtotal:      subtotal,
		ShippingCost:  decimal.Zero,
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		PaymentMethod: req.PaymentMethod,
		Notes:         strings.TrimSpace(req.Notes),
	}

	if req.ShippingMethodID != nil {
		method, err := s.store.GetShippingMethod(ctx, *req.ShippingMethodID)
		if errors.Is(err, store.ErrNotFound) || (err == nil && !method.IsActive) {
			util.OrdersFailedTotal.WithLabelValues("invalid_request").Inc()
			return nil, invalid("shipping_method_id", "is not available")
		}
		if err != nil {
			return nil, err
		}
		order.ShippingCost = method.Price
		order.ShippingMethodName = method.Name
	}

	order.TaxAmount = s.tax.Tax(subtotal, shipping).Round(2)
	order.TotalAmount = order.Subtotal.Add(order.ShippingCost).Add(order.TaxAmount)

	if err := s.place(ctx, order, orderLines, cart.ID, taken); err != nil {
		return nil, err
	}

	util.OrdersPlacedTotal.Inc()
	s.logger.Info("Order placed",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("user_id", userID),
		zap.String("total", order.TotalAmount.StringFixed(2)))

	// the order is committed; a client hanging up must not cancel the follow-up work
	ctx = context.WithoutCancel(ctx)
	s.carts.Invalidate(ctx, UserOwner(userID))

	if idemKey != "" {
		if err := s.redis.SetIdempotencyKey(ctx, idemKey, order.ID, idempotencyTTL); err != nil {
			s.logger.Warn("Failed to record idempotency key", zap.Error(err))
		}
	}

	s.mailer.SendOrderConfirmation(ctx, order, orderLines, customer)
	s.publishPlaced(ctx, order, orderLines)

	return &models.OrderDetail{Order: *order, Lines: orderLines, Tracking: []models.OrderTrackingEntry{}}, nil
}

// place persists the order, retrying with a fresh number when the generated one is taken
func (s *CheckoutService) place(ctx context.Context, order *models.Order, lines []models.OrderLine, cartID int64, taken []models.CartLine) error {
	for attempt := 1; attempt <= maxOrderNumberTries; attempt++ {
		order.OrderNumber = s.newNumber()

		err := s.store.PlaceOrder(ctx, order, lines, cartID, taken)
		if err == nil {
			return nil
		}

		var conflict *store.StockConflict
		switch {
		case errors.Is(err, store.ErrDuplicate):
			util.OrderNumberCollisionsTotal.Inc()
			s.logger.Warn("Order number collision, retrying",
				zap.String("order_number", order.OrderNumber),
				zap.Int("attempt", attempt))
			continue
		case errors.Is(err, store.ErrCartChanged):
			util.OrdersFailedTotal.WithLabelValues("cart_changed").Inc()
			return ErrCartChanged
		case errors.As(err, &conflict):
			util.StockConflictsTotal.WithLabelValues("commit").Inc()
			util.OrdersFailedTotal.WithLabelValues("stock_conflict").Inc()
			return &StockConflictError{
				ProductName: conflict.ProductName,
				Requested:   conflict.Requested,
				Available:   conflict.Available,
			}
		default:
			util.OrdersFailedTotal.WithLabelValues("db_error").Inc()
			return fmt.Errorf("failed to place order: %w", err)
		}
	}

	util.OrdersFailedTotal.WithLabelValues("order_number_collision").Inc()
	return ErrOrderNumberCollision
}

func (s *CheckoutService) validate(req *CheckoutRequest) (models.Address, error) {
	if !models.ValidPaymentMethod(req.PaymentMethod) {
		return models.Address{}, invalid("payment_method", "must be one of paystack, bank_transfer, cash_on_delivery")
	}
	if err := validateAddress("billing", req.Billing); err != nil {
		return models.Address{}, err
	}
	if req.UseBillingForShipping || req.Shipping == nil {
		return req.Billing, nil
	}
	if err := validateAddress("shipping", *req.Shipping); err != nil {
		return models.Address{}, err
	}
	return *req.Shipping, nil
}

func validateAddress(prefix string, a models.Address) error {
	required := []struct {
		field string
		value string
	}{
		{"first_name", a.FirstName},
		{"last_name", a.LastName},
		{"address_line_1", a.AddressLine1},
		{"city", a.City},
		{"state", a.State},
		{"postal_code", a.PostalCode},
		{"country", a.Country},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return invalid(prefix+"."+r.field, "is required")
		}
	}
	return nil
}

func (s *CheckoutService) publishPlaced(ctx context.Context, order *models.Order, lines []models.OrderLine) {
	if s.events == nil {
		return
	}
	items := make([]models.OrderItemData, 0, len(lines))
	for _, l := range lines {
		items = append(items, models.OrderItemData{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.ProductPrice.StringFixed(2),
		})
	}
	event := &models.OrderPlacedEvent{
		BaseEvent:   broker.NewBaseEvent(models.EventTypeOrderPlaced),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		TotalAmount: order.TotalAmount.StringFixed(2),
		Items:       items,
	}
	if err := s.events.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.String("order_id", order.ID),
			zap.Error(err))
	}
}
