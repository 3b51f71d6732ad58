package notify

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
)

// PreviewOrderBuilder assembles a sample order for template previews
type PreviewOrderBuilder struct {
	order    models.Order
	lines    []models.OrderLine
	tracking *models.OrderTrackingEntry
}

func previewTime() time.Time {
	return time.Date(2024, time.March, 14, 10, 30, 0, 0, time.UTC)
}

// NewPreviewOrder starts from a pending bank transfer order with three lines
func NewPreviewOrder() *PreviewOrderBuilder {
	placed := previewTime()
	shipping := models.Address{
		FirstName:    "John",
		LastName:     "Doe",
		AddressLine1: "123 Wellness Street",
		AddressLine2: "Apartment 4B",
		City:         "Lagos",
		State:        "Lagos State",
		PostalCode:   "100001",
		Country:      "Nigeria",
		Phone:        "+234 802 345 6789",
	}
	b := &PreviewOrderBuilder{
		order: models.Order{
			ID:                 "6f1c3c52-8d0e-4b8e-9a57-2f0d6f1b7a10",
			UserID:             1,
			OrderNumber:        "JH2024001234",
			Billing:            shipping,
			Shipping:           shipping,
			ShippingCost:       decimal.NewFromInt(2000),
			TaxAmount:          decimal.Zero,
			Status:             models.OrderStatusPending,
			PaymentStatus:      models.PaymentStatusPending,
			PaymentMethod:      models.PaymentMethodBankTransfer,
			ShippingMethodName: "Standard Delivery",
			CreatedAt:          placed,
			UpdatedAt:          placed,
		},
	}
	b.line(1, "Immune Boost Capsules", 8500, 2)
	b.line(2, "Energy Blend Tea", 6500, 1)
	b.line(3, "Stress Relief Tincture", 10000, 1)
	return b
}

func (b *PreviewOrderBuilder) line(productID int64, name string, price int64, quantity int) {
	b.lines = append(b.lines, models.OrderLine{
		ID:           productID,
		OrderID:      b.order.ID,
		ProductID:    productID,
		ProductName:  name,
		ProductPrice: decimal.NewFromInt(price),
		Quantity:     quantity,
		CreatedAt:    b.order.CreatedAt,
	})
}

// PaymentConfirmed marks the order paid through Paystack
func (b *PreviewOrderBuilder) PaymentConfirmed() *PreviewOrderBuilder {
	b.order.PaymentStatus = models.PaymentStatusCompleted
	b.order.PaymentMethod = models.PaymentMethodPaystack
	b.order.PaymentID = "PSK_preview_0001"
	b.order.Status = models.OrderStatusProcessing
	return b
}

// Shipped moves the order to shipped two days after it was placed
func (b *PreviewOrderBuilder) Shipped() *PreviewOrderBuilder {
	shipped := b.order.CreatedAt.Add(48 * time.Hour)
	b.order.Status = models.OrderStatusShipped
	b.order.ShippedAt = &shipped
	b.tracking = &models.OrderTrackingEntry{
		ID:          1,
		OrderID:     b.order.ID,
		Status:      models.OrderStatusShipped,
		Description: "Package handed to courier in Ikeja",
		CreatedAt:   shipped,
	}
	return b
}

// Delivered moves the order to delivered three days after shipping
func (b *PreviewOrderBuilder) Delivered() *PreviewOrderBuilder {
	if b.order.ShippedAt == nil {
		b.Shipped()
	}
	delivered := b.order.ShippedAt.Add(72 * time.Hour)
	b.order.Status = models.OrderStatusDelivered
	b.order.DeliveredAt = &delivered
	return b
}

// Build computes totals from the lines and returns the order data
func (b *PreviewOrderBuilder) Build() *OrderEmail {
	order := b.order
	order.Subtotal = decimal.Zero
	for _, l := range b.lines {
		order.Subtotal = order.Subtotal.Add(l.LineTotal())
	}
	order.TotalAmount = order.Subtotal.Add(order.ShippingCost).Add(order.TaxAmount)

	lines := make([]models.OrderLine, len(b.lines))
	copy(lines, b.lines)
	return &OrderEmail{
		Order:    order,
		Lines:    lines,
		Customer: PreviewUser(),
		Tracking: b.tracking,
	}
}

// PreviewUser is the sample customer shown in previews
func PreviewUser() models.User {
	return models.User{
		ID:        1,
		Username:  "janesmith",
		Email:     "jane.smith@example.com",
		FirstName: "Jane",
		LastName:  "Smith",
		CreatedAt: previewTime(),
	}
}

// PreviewSupport is the sample support ticket shown in previews
func PreviewSupport() *SupportEmail {
	return &SupportEmail{
		User:         PreviewUser(),
		TicketNumber: "JIGSIM-2024-001",
		Subject:      "Question about product usage",
		Message:      "How many Immune Boost Capsules should I take per day, and can I combine them with the Energy Blend Tea?",
		Priority:     "normal",
		CreatedAt:    previewTime(),
		Response:     "Thanks for reaching out! We recommend two capsules daily with meals. They pair well with one cup of the tea in the morning.",
		Agent:        "Sarah from JigsimurHerbal Support",
		ResponseTime: "2 hours",
	}
}

var previews = map[string]func(siteURL string) interface{}{
	TemplateOrderConfirmation: func(siteURL string) interface{} {
		data := NewPreviewOrder().Build()
		data.Title, data.SiteURL = "Order Confirmation - #"+data.Order.OrderNumber, siteURL
		return data
	},
	TemplatePaymentReceived: func(siteURL string) interface{} {
		data := NewPreviewOrder().PaymentConfirmed().Build()
		data.Title, data.SiteURL = "Payment Received - Order #"+data.Order.OrderNumber, siteURL
		return data
	},
	TemplateOrderShipped: func(siteURL string) interface{} {
		data := NewPreviewOrder().PaymentConfirmed().Shipped().Build()
		data.Title, data.SiteURL = "Your Order #"+data.Order.OrderNumber+" Has Shipped", siteURL
		return data
	},
	TemplateOrderDelivered: func(siteURL string) interface{} {
		data := NewPreviewOrder().PaymentConfirmed().Delivered().Build()
		data.Title, data.SiteURL = "Your Order #"+data.Order.OrderNumber+" Has Been Delivered", siteURL
		return data
	},
	TemplateWelcome: func(siteURL string) interface{} {
		return &UserEmail{Title: "Welcome to JigsimurHerbal, Jane! 🌿", User: PreviewUser(), SiteURL: siteURL}
	},
	TemplateSupportReceived: func(siteURL string) interface{} {
		data := PreviewSupport()
		data.Title, data.SiteURL = "Support Request Received - "+data.TicketNumber, siteURL
		return data
	},
	TemplateSupportResponse: func(siteURL string) interface{} {
		data := PreviewSupport()
		data.Title, data.SiteURL = "Re: "+data.Subject+" ["+data.TicketNumber+"]", siteURL
		return data
	},
}

// PreviewNames lists the templates that can be previewed, sorted
func PreviewNames() []string {
	names := make([]string, 0, len(previews))
	for name := range previews {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ErrUnknownPreview is returned for a preview name that does not exist
var ErrUnknownPreview = errors.New("unknown email preview")

// RenderPreview renders a template with sample data
func (d *Dispatcher) RenderPreview(name string) (string, error) {
	build, ok := previews[name]
	if !ok {
		return "", fmt.Errorf("%s: %w", name, ErrUnknownPreview)
	}
	return d.templates.HTML(name, build(d.siteURL))
}
