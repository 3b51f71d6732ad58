package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html"
	"html/template"
	"regexp"
	"strings"
	"time"

	"storefront/internal/models"

	"github.com/microcosm-cc/bluemonday"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Template names
const (
	TemplateOrderConfirmation = "order_confirmation"
	TemplatePaymentReceived   = "payment_received"
	TemplateOrderShipped      = "order_shipped"
	TemplateOrderDelivered    = "order_delivered"
	TemplateWelcome           = "welcome"
	TemplateSupportReceived   = "support_received"
	TemplateSupportResponse   = "support_response"
)

// OrderEmail is the data behind every order template
type OrderEmail struct {
	Title    string
	Order    models.Order
	Lines    []models.OrderLine
	Customer models.User
	Tracking *models.OrderTrackingEntry
	SiteURL  string
}

// UserEmail is the data behind account templates
type UserEmail struct {
	Title   string
	User    models.User
	SiteURL string
}

// SupportEmail is the data behind support templates
type SupportEmail struct {
	Title        string
	User         models.User
	TicketNumber string
	Subject      string
	Message      string
	Priority     string
	CreatedAt    time.Time
	Response     string
	Agent        string
	ResponseTime string
	SiteURL      string
}

// Renderer turns templates into HTML and plain text bodies
type Renderer struct {
	tmpl   *template.Template
	strict *bluemonday.Policy
}

var funcs = template.FuncMap{
	"naira":         FormatNaira,
	"date":          formatDate,
	"paymentMethod": PaymentMethodDisplay,
}

// NewRenderer parses the embedded templates
func NewRenderer() *Renderer {
	tmpl := template.Must(template.New("emails").Funcs(funcs).ParseFS(templatesFS, "templates/*.html"))
	return &Renderer{tmpl: tmpl, strict: bluemonday.StrictPolicy()}
}

// HTML renders the named template
func (r *Renderer) HTML(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name+".html", data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// Render returns the HTML body and the plain text derived from it
func (r *Renderer) Render(name string, data interface{}) (htmlBody, text string, err error) {
	htmlBody, err = r.HTML(name, data)
	if err != nil {
		return "", "", err
	}
	return htmlBody, r.PlainText(htmlBody), nil
}

var (
	blockEnd   = regexp.MustCompile(`(?i)<br\s*/?>|</(p|div|h[1-6]|li|tr|table|blockquote)>`)
	styleBlock = regexp.MustCompile(`(?is)<(style|title)[^>]*>.*?</(style|title)>`)
	spaces     = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLines = regexp.MustCompile(`\n\s*\n+`)
)

// PlainText strips markup, keeping line breaks at block boundaries
func (r *Renderer) PlainText(htmlBody string) string {
	s := styleBlock.ReplaceAllString(htmlBody, "")
	s = blockEnd.ReplaceAllString(s, "$0\n")
	s = r.strict.Sanitize(s)
	s = html.UnescapeString(s)

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(spaces.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	s = blankLines.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func formatDate(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("January 2, 2006")
	case *time.Time:
		if t == nil {
			return ""
		}
		return t.Format("January 2, 2006")
	}
	return ""
}

// PaymentMethodDisplay returns the customer-facing payment method label
func PaymentMethodDisplay(method string) string {
	switch method {
	case models.PaymentMethodPaystack:
		return "Paystack"
	case models.PaymentMethodBankTransfer:
		return "Bank Transfer"
	case models.PaymentMethodCashOnDelivery:
		return "Cash on Delivery"
	}
	return method
}
