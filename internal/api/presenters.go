package api

import (
	"time"

	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/shopspring/decimal"
)

// money renders amounts the way every response does: a string with two fraction digits
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type productResponse struct {
	ID                 int64     `json:"id"`
	CategoryID         int64     `json:"category_id"`
	Name               string    `json:"name"`
	Slug               string    `json:"slug"`
	Description        string    `json:"description"`
	ShortDescription   string    `json:"short_description"`
	Price              string    `json:"price"`
	OriginalPrice      *string   `json:"original_price,omitempty"`
	OnSale             bool      `json:"on_sale"`
	DiscountPercentage int       `json:"discount_percentage"`
	InStock            bool      `json:"in_stock"`
	StockQuantity      int       `json:"stock_quantity"`
	IsFeatured         bool      `json:"is_featured"`
	Weight             string    `json:"weight"`
	Ingredients        string    `json:"ingredients"`
	UsageInstructions  string    `json:"usage_instructions"`
	Benefits           string    `json:"benefits"`
	Warnings           string    `json:"warnings"`
	CreatedAt          time.Time `json:"created_at"`
}

func presentProduct(p models.Product) productResponse {
	resp := productResponse{
		ID:                 p.ID,
		CategoryID:         p.CategoryID,
		Name:               p.Name,
		Slug:               p.Slug,
		Description:        p.Description,
		ShortDescription:   p.ShortDescription,
		Price:              money(p.Price),
		OnSale:             p.IsOnSale(),
		DiscountPercentage: p.DiscountPercentage(),
		InStock:            p.IsInStock(),
		StockQuantity:      p.StockQuantity,
		IsFeatured:         p.IsFeatured,
		Weight:             p.Weight,
		Ingredients:        p.Ingredients,
		UsageInstructions:  p.UsageInstructions,
		Benefits:           p.Benefits,
		Warnings:           p.Warnings,
		CreatedAt:          p.CreatedAt,
	}
	if p.OriginalPrice != nil {
		original := money(*p.OriginalPrice)
		resp.OriginalPrice = &original
	}
	return resp
}

type suggestionResponse struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	URL   string `json:"url"`
	Price string `json:"price"`
}

func presentSuggestions(products []models.Product) []suggestionResponse {
	out := make([]suggestionResponse, len(products))
	for i, p := range products {
		out[i] = suggestionResponse{
			Name:  p.Name,
			Slug:  p.Slug,
			URL:   "/products/" + p.Slug + "/",
			Price: money(p.Price),
		}
	}
	return out
}

func presentProducts(products []models.Product) []productResponse {
	out := make([]productResponse, len(products))
	for i, p := range products {
		out[i] = presentProduct(p)
	}
	return out
}

type shippingMethodResponse struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	Price         string `json:"price"`
	EstimatedDays int    `json:"estimated_days"`
}

func presentShippingMethods(methods []models.ShippingMethod) []shippingMethodResponse {
	out := make([]shippingMethodResponse, len(methods))
	for i, m := range methods {
		out[i] = shippingMethodResponse{
			ID:            m.ID,
			Name:          m.Name,
			Description:   m.Description,
			Price:         money(m.Price),
			EstimatedDays: m.EstimatedDays,
		}
	}
	return out
}

type cartLineResponse struct {
	ID          int64  `json:"id"`
	ProductID   int64  `json:"product_id"`
	ProductName string `json:"product_name"`
	ProductSlug string `json:"product_slug"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	LineTotal   string `json:"line_total"`
	InStock     bool   `json:"in_stock"`
}

type cartResponse struct {
	ID         int64              `json:"id"`
	Lines      []cartLineResponse `json:"lines"`
	TotalItems int                `json:"total_items"`
	TotalPrice string             `json:"total_price"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

func presentCart(view *models.CartView) cartResponse {
	lines := make([]cartLineResponse, len(view.Lines))
	for i, l := range view.Lines {
		lines[i] = cartLineResponse{
			ID:          l.ID,
			ProductID:   l.ProductID,
			ProductName: l.ProductName,
			ProductSlug: l.ProductSlug,
			Quantity:    l.Quantity,
			UnitPrice:   money(l.UnitPrice),
			LineTotal:   money(l.LineTotal()),
			InStock:     l.IsAvailable && l.StockQuantity >= l.Quantity,
		}
	}
	return cartResponse{
		ID:         view.Cart.ID,
		Lines:      lines,
		TotalItems: view.TotalItems(),
		TotalPrice: money(view.TotalPrice()),
		UpdatedAt:  view.Cart.UpdatedAt,
	}
}

type orderResponse struct {
	ID                 string         `json:"id"`
	OrderNumber        string         `json:"order_number"`
	Status             string         `json:"status"`
	StatusDisplay      string         `json:"status_display"`
	PaymentStatus      string         `json:"payment_status"`
	PaymentMethod      string         `json:"payment_method"`
	PaymentID          string         `json:"payment_id,omitempty"`
	Billing            models.Address `json:"billing"`
	Shipping           models.Address `json:"shipping"`
	ShippingMethodName string         `json:"shipping_method_name,omitempty"`
	Subtotal           string         `json:"subtotal"`
	ShippingCost       string         `json:"shipping_cost"`
	TaxAmount          string         `json:"tax_amount"`
	TotalAmount        string         `json:"total_amount"`
	Notes              string         `json:"notes,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	ShippedAt          *time.Time     `json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time     `json:"delivered_at,omitempty"`
}

func presentOrder(o models.Order) orderResponse {
	return orderResponse{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		Status:             string(o.Status),
		StatusDisplay:      o.Status.Display(),
		PaymentStatus:      string(o.PaymentStatus),
		PaymentMethod:      o.PaymentMethod,
		PaymentID:          o.PaymentID,
		Billing:            o.Billing,
		Shipping:           o.Shipping,
		ShippingMethodName: o.ShippingMethodName,
		Subtotal:           money(o.Subtotal),
		ShippingCost:       money(o.ShippingCost),
		TaxAmount:          money(o.TaxAmount),
		TotalAmount:        money(o.TotalAmount),
		Notes:              o.Notes,
		CreatedAt:          o.CreatedAt,
		ShippedAt:          o.ShippedAt,
		DeliveredAt:        o.DeliveredAt,
	}
}

func presentOrders(orders []models.Order) []orderResponse {
	out := make([]orderResponse, len(orders))
	for i, o := range orders {
		out[i] = presentOrder(o)
	}
	return out
}

type orderLineResponse struct {
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	ProductPrice string `json:"product_price"`
	Quantity     int    `json:"quantity"`
	LineTotal    string `json:"line_total"`
}

type orderDetailResponse struct {
	orderResponse
	Lines      []orderLineResponse         `json:"lines"`
	TotalItems int                         `json:"total_items"`
	Tracking   []models.OrderTrackingEntry `json:"tracking"`
}

func presentOrderDetail(d *models.OrderDetail) orderDetailResponse {
	lines := make([]orderLineResponse, len(d.Lines))
	for i, l := range d.Lines {
		lines[i] = orderLineResponse{
			ProductID:    l.ProductID,
			ProductName:  l.ProductName,
			ProductPrice: money(l.ProductPrice),
			Quantity:     l.Quantity,
			LineTotal:    money(l.LineTotal()),
		}
	}
	tracking := d.Tracking
	if tracking == nil {
		tracking = []models.OrderTrackingEntry{}
	}
	return orderDetailResponse{
		orderResponse: presentOrder(d.Order),
		Lines:         lines,
		TotalItems:    d.TotalItems(),
		Tracking:      tracking,
	}
}

type homeResponse struct {
	Featured   []productResponse `json:"featured"`
	Categories []models.Category `json:"categories"`
}

func presentHome(page *service.HomePage) homeResponse {
	return homeResponse{Featured: presentProducts(page.Featured), Categories: page.Categories}
}
