package notify

import (
	"context"
	"fmt"

	"storefront/internal/models"
	"storefront/internal/util"

	"go.uber.org/zap"
)

func (d *Dispatcher) render(ctx context.Context, category Category, name, subject string, data interface{}, recipients []string) {
	htmlBody, text, err := d.templates.Render(name, data)
	if err != nil {
		util.EmailsFailedTotal.WithLabelValues(string(category)).Inc()
		d.logger.Error("Failed to render email",
			zap.String("template", name),
			zap.String("subject", subject),
			zap.Error(err))
		return
	}
	d.Send(ctx, category, subject, text, recipients, htmlBody)
}

// SendOrderConfirmation emails the customer a summary of a new order
func (d *Dispatcher) SendOrderConfirmation(ctx context.Context, order *models.Order, lines []models.OrderLine, customer *models.User) {
	subject := fmt.Sprintf("Order Confirmation - #%s", order.OrderNumber)
	data := &OrderEmail{Title: subject, Order: *order, Lines: lines, Customer: *customer, SiteURL: d.siteURL}
	d.render(ctx, CategoryOrder, TemplateOrderConfirmation, subject, data, []string{customer.Email})
}

// SendPaymentReceived tells the shop admins that an order has been paid
func (d *Dispatcher) SendPaymentReceived(ctx context.Context, order *models.Order, lines []models.OrderLine, customer *models.User) {
	subject := fmt.Sprintf("Payment Received - Order #%s", order.OrderNumber)
	data := &OrderEmail{Title: subject, Order: *order, Lines: lines, Customer: *customer, SiteURL: d.siteURL}
	d.render(ctx, CategoryOrder, TemplatePaymentReceived, subject, data, d.admins)
}

// SendOrderShipped tells the customer their order has left the warehouse
func (d *Dispatcher) SendOrderShipped(ctx context.Context, order *models.Order, lines []models.OrderLine, customer *models.User, tracking *models.OrderTrackingEntry) {
	subject := fmt.Sprintf("Your Order #%s Has Shipped", order.OrderNumber)
	data := &OrderEmail{Title: subject, Order: *order, Lines: lines, Customer: *customer, Tracking: tracking, SiteURL: d.siteURL}
	d.render(ctx, CategoryOrder, TemplateOrderShipped, subject, data, []string{customer.Email})
}

// SendOrderDelivered tells the customer their order arrived
func (d *Dispatcher) SendOrderDelivered(ctx context.Context, order *models.Order, lines []models.OrderLine, customer *models.User) {
	subject := fmt.Sprintf("Your Order #%s Has Been Delivered", order.OrderNumber)
	data := &OrderEmail{Title: subject, Order: *order, Lines: lines, Customer: *customer, SiteURL: d.siteURL}
	d.render(ctx, CategoryOrder, TemplateOrderDelivered, subject, data, []string{customer.Email})
}

// SendWelcome greets a newly registered user
func (d *Dispatcher) SendWelcome(ctx context.Context, user *models.User) {
	subject := fmt.Sprintf("Welcome to JigsimurHerbal, %s! 🌿", user.DisplayName())
	data := &UserEmail{Title: subject, User: *user, SiteURL: d.siteURL}
	d.render(ctx, CategoryNewsletter, TemplateWelcome, subject, data, []string{user.Email})
}

// SendSupportReceived acknowledges a support request to the customer and
// forwards a copy to the admins
func (d *Dispatcher) SendSupportReceived(ctx context.Context, ticket *SupportEmail) {
	data := *ticket
	data.SiteURL = d.siteURL
	data.Title = fmt.Sprintf("Support Request Received - %s", ticket.TicketNumber)
	d.render(ctx, CategorySupport, TemplateSupportReceived, data.Title, &data, []string{ticket.User.Email})

	forward := fmt.Sprintf("[%s] %s (%s)", ticket.TicketNumber, ticket.Subject, ticket.Priority)
	text := fmt.Sprintf("From: %s <%s>\nPriority: %s\n\n%s", ticket.User.DisplayName(), ticket.User.Email, ticket.Priority, ticket.Message)
	d.Send(ctx, CategorySupport, forward, text, d.admins, "")
}

// SendSupportResponse delivers an agent reply to the customer
func (d *Dispatcher) SendSupportResponse(ctx context.Context, ticket *SupportEmail) {
	data := *ticket
	data.SiteURL = d.siteURL
	data.Title = fmt.Sprintf("Re: %s [%s]", ticket.Subject, ticket.TicketNumber)
	d.render(ctx, CategorySupport, TemplateSupportResponse, data.Title, &data, []string{ticket.User.Email})
}
