package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products in the catalog
type Category struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Slug        string    `db:"slug" json:"slug"`
	Description string    `db:"description" json:"description"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Product represents a product in the catalog
type Product struct {
	ID                int64            `db:"id" json:"id"`
	CategoryID        int64            `db:"category_id" json:"category_id"`
	Name              string           `db:"name" json:"name"`
	Slug              string           `db:"slug" json:"slug"`
	Description       string           `db:"description" json:"description"`
	ShortDescription  string           `db:"short_description" json:"short_description"`
	Price             decimal.Decimal  `db:"price" json:"price"`
	OriginalPrice     *decimal.Decimal `db:"original_price" json:"original_price,omitempty"`
	StockQuantity     int              `db:"stock_quantity" json:"stock_quantity"`
	IsAvailable       bool             `db:"is_available" json:"is_available"`
	IsFeatured        bool             `db:"is_featured" json:"is_featured"`
	Weight            string           `db:"weight" json:"weight"`
	Ingredients       string           `db:"ingredients" json:"ingredients"`
	UsageInstructions string           `db:"usage_instructions" json:"usage_instructions"`
	Benefits          string           `db:"benefits" json:"benefits"`
	Warnings          string           `db:"warnings" json:"warnings"`
	CreatedAt         time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// IsOnSale reports whether the product is priced below its original price
func (p *Product) IsOnSale() bool {
	return p.OriginalPrice != nil && p.OriginalPrice.GreaterThan(p.Price)
}

// DiscountPercentage returns the whole-number discount off the original price
func (p *Product) DiscountPercentage() int {
	if !p.IsOnSale() {
		return 0
	}
	off := p.OriginalPrice.Sub(p.Price).Div(*p.OriginalPrice).Mul(decimal.NewFromInt(100))
	return int(off.IntPart())
}

// IsInStock reports whether at least one unit can be sold
func (p *Product) IsInStock() bool {
	return p.StockQuantity > 0
}

// ShippingMethod is reference data copied into an order at checkout
type ShippingMethod struct {
	ID            int64           `db:"id" json:"id"`
	Name          string          `db:"name" json:"name"`
	Description   string          `db:"description" json:"description"`
	Price         decimal.Decimal `db:"price" json:"price"`
	EstimatedDays int             `db:"estimated_days" json:"estimated_days"`
	IsActive      bool            `db:"is_active" json:"is_active"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// ProductReview is one user's rating of a product. A user reviews a product at most once.
type ProductReview struct {
	ID                 int64     `db:"id" json:"id"`
	ProductID          int64     `db:"product_id" json:"product_id"`
	UserID             int64     `db:"user_id" json:"-"`
	Username           string    `db:"username" json:"username"`
	Rating             int       `db:"rating" json:"rating"`
	Title              string    `db:"title" json:"title"`
	Comment            string    `db:"comment" json:"comment"`
	IsVerifiedPurchase bool      `db:"is_verified_purchase" json:"is_verified_purchase"`
	IsApproved         bool      `db:"is_approved" json:"-"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// Cart is owned by exactly one of a user or an anonymous session
type Cart struct {
	ID         int64     `db:"id" json:"id"`
	UserID     *int64    `db:"user_id" json:"user_id,omitempty"`
	SessionKey *string   `db:"session_key" json:"-"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// CartLine is one (product, quantity) pair of a cart
type CartLine struct {
	ID        int64     `db:"id" json:"id"`
	CartID    int64     `db:"cart_id" json:"cart_id"`
	ProductID int64     `db:"product_id" json:"product_id"`
	Quantity  int       `db:"quantity" json:"quantity"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// CartContents is a cart with its lines, without catalog data
type CartContents struct {
	Cart  Cart       `json:"cart"`
	Lines []CartLine `json:"lines"`
}

// CartLineView is a cart line joined with the live catalog product
type CartLineView struct {
	CartLine
	ProductName   string          `db:"product_name" json:"product_name"`
	ProductSlug   string          `db:"product_slug" json:"product_slug"`
	UnitPrice     decimal.Decimal `db:"unit_price" json:"unit_price"`
	StockQuantity int             `db:"stock_quantity" json:"stock_quantity"`
	IsAvailable   bool            `db:"is_available" json:"is_available"`
}

// LineTotal is quantity times the live unit price
func (l CartLineView) LineTotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// CartView is a cart with its lines priced from the live catalog
type CartView struct {
	Cart  Cart           `json:"cart"`
	Lines []CartLineView `json:"lines"`
}

// TotalItems is the sum of all line quantities
func (c *CartView) TotalItems() int {
	total := 0
	for _, l := range c.Lines {
		total += l.Quantity
	}
	return total
}

// TotalPrice sums quantity x current price over all lines
func (c *CartView) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.LineTotal())
	}
	return total
}

// IsEmpty reports whether the cart has no lines
func (c *CartView) IsEmpty() bool {
	return len(c.Lines) == 0
}

// Address holds postal fields shared by saved addresses and order snapshots
type Address struct {
	FirstName    string `db:"first_name" json:"first_name" binding:"required"`
	LastName     string `db:"last_name" json:"last_name" binding:"required"`
	Company      string `db:"company" json:"company"`
	AddressLine1 string `db:"address_line_1" json:"address_line_1" binding:"required"`
	AddressLine2 string `db:"address_line_2" json:"address_line_2"`
	City         string `db:"city" json:"city" binding:"required"`
	State        string `db:"state" json:"state" binding:"required"`
	PostalCode   string `db:"postal_code" json:"postal_code" binding:"required"`
	Country      string `db:"country" json:"country" binding:"required"`
	Phone        string `db:"phone" json:"phone"`
}

// OneLine renders the address the way order summaries display it
func (a Address) OneLine() string {
	return a.AddressLine1 + ", " + a.City + ", " + a.State + " " + a.PostalCode
}

// FullName joins first and last name
func (a Address) FullName() string {
	if a.LastName == "" {
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Order is the immutable record of a placed purchase
type Order struct {
	ID                 string          `db:"id" json:"id"`
	UserID             int64           `db:"user_id" json:"user_id"`
	OrderNumber        string          `db:"order_number" json:"order_number"`
	Billing            Address         `db:"billing" json:"billing"`
	Shipping           Address         `db:"shipping" json:"shipping"`
	Subtotal           decimal.Decimal `db:"subtotal" json:"subtotal"`
	ShippingCost       decimal.Decimal `db:"shipping_cost" json:"shipping_cost"`
	TaxAmount          decimal.Decimal `db:"tax_amount" json:"tax_amount"`
	TotalAmount        decimal.Decimal `db:"total_amount" json:"total_amount"`
	Status             OrderStatus     `db:"status" json:"status"`
	PaymentStatus      PaymentStatus   `db:"payment_status" json:"payment_status"`
	PaymentMethod      string          `db:"payment_method" json:"payment_method"`
	PaymentID          string          `db:"payment_id" json:"payment_id"`
	ShippingMethodName string          `db:"shipping_method_name" json:"shipping_method_name"`
	Notes              string          `db:"notes" json:"notes"`
	CreatedAt          time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updated_at"`
	ShippedAt          *time.Time      `db:"shipped_at" json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time      `db:"delivered_at" json:"delivered_at,omitempty"`
}

// OrderLine snapshots product name and price at order time
type OrderLine struct {
	ID           int64           `db:"id" json:"id"`
	OrderID      string          `db:"order_id" json:"order_id"`
	ProductID    int64           `db:"product_id" json:"product_id"`
	ProductName  string          `db:"product_name" json:"product_name"`
	ProductPrice decimal.Decimal `db:"product_price" json:"product_price"`
	Quantity     int             `db:"quantity" json:"quantity"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
}

// LineTotal is quantity times the snapshotted price
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.ProductPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// OrderTrackingEntry is one append-only audit record for an order
type OrderTrackingEntry struct {
	ID          int64       `db:"id" json:"id"`
	OrderID     string      `db:"order_id" json:"order_id"`
	Status      OrderStatus `db:"status" json:"status"`
	Description string      `db:"description" json:"description"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// OrderDetail bundles an order with its lines and tracking history
type OrderDetail struct {
	Order    Order                `json:"order"`
	Lines    []OrderLine          `json:"lines"`
	Tracking []OrderTrackingEntry `json:"tracking"`
}

// TotalItems is the sum of all line quantities
func (d *OrderDetail) TotalItems() int {
	total := 0
	for _, l := range d.Lines {
		total += l.Quantity
	}
	return total
}

// User is a registered shopper or staff member
type User struct {
	ID           int64     `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	IsStaff      bool      `db:"is_staff" json:"is_staff"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// DisplayName prefers the first name over the username
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Username
}

// UserProfile carries optional account details
type UserProfile struct {
	UserID                 int64     `db:"user_id" json:"user_id"`
	PhoneNumber            string    `db:"phone_number" json:"phone_number"`
	Bio                    string    `db:"bio" json:"bio"`
	NewsletterSubscription bool      `db:"newsletter_subscription" json:"newsletter_subscription"`
	OrderUpdates           bool      `db:"order_updates" json:"order_updates"`
	PromotionalOffers      bool      `db:"promotional_offers" json:"promotional_offers"`
	ProductRecommendations bool      `db:"product_recommendations" json:"product_recommendations"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// EmailPreferences are the mail kinds a user opted into
type EmailPreferences struct {
	Newsletter             bool `json:"newsletter"`
	OrderUpdates           bool `json:"order_updates"`
	PromotionalOffers      bool `json:"promotional_offers"`
	ProductRecommendations bool `json:"product_recommendations"`
}

// EmailPreferences returns the opt-ins stored on the profile
func (p *UserProfile) EmailPreferences() EmailPreferences {
	return EmailPreferences{
		Newsletter:             p.NewsletterSubscription,
		OrderUpdates:           p.OrderUpdates,
		PromotionalOffers:      p.PromotionalOffers,
		ProductRecommendations: p.ProductRecommendations,
	}
}

// Address types
const (
	AddressTypeBilling  = "billing"
	AddressTypeShipping = "shipping"
)

// SavedAddress is an address stored on a user account
type SavedAddress struct {
	ID        int64  `db:"id" json:"id"`
	UserID    int64  `db:"user_id" json:"user_id"`
	Type      string `db:"type" json:"type"`
	Address
	IsDefault bool      `db:"is_default" json:"is_default"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Payment methods accepted at checkout
const (
	PaymentMethodPaystack       = "paystack"
	PaymentMethodBankTransfer   = "bank_transfer"
	PaymentMethodCashOnDelivery = "cash_on_delivery"
)

// ValidPaymentMethod reports whether m is an accepted payment method
func ValidPaymentMethod(m string) bool {
	switch m {
	case PaymentMethodPaystack, PaymentMethodBankTransfer, PaymentMethodCashOnDelivery:
		return true
	}
	return false
}

// ProcessedEvent for idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
