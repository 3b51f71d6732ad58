// Package notify sends transactional email. Sending is fire-and-forget:
// transport failures are logged and counted, never returned to callers.
package notify

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"storefront/internal/util"

	"go.uber.org/zap"
)

// Category classifies outgoing mail for logging and metrics
type Category string

const (
	CategoryOrder      Category = "order"
	CategorySupport    Category = "support"
	CategorySystem     Category = "system"
	CategoryNewsletter Category = "newsletter"
)

// Message is one outgoing email
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Transport delivers a message
type Transport interface {
	Send(ctx context.Context, msg *Message) error
}

// SendError wraps a transport failure with the message it concerned
type SendError struct {
	Category   Category
	Subject    string
	Recipients []string
	Err        error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send %s email %q to %s: %v", e.Category, e.Subject, strings.Join(e.Recipients, ","), e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// Dispatcher renders and sends categorized mail through one transport
type Dispatcher struct {
	transport Transport
	from      string
	admins    []string
	siteURL   string
	templates *Renderer
	timeout   time.Duration
	logger    *zap.Logger
}

const defaultSendTimeout = 30 * time.Second

// NewDispatcher creates a dispatcher sending from the given address. Admin
// notifications go to the address part of from.
func NewDispatcher(transport Transport, from, siteURL string) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		from:      from,
		admins:    []string{AdminAddress(from)},
		siteURL:   strings.TrimRight(siteURL, "/"),
		templates: NewRenderer(),
		timeout:   defaultSendTimeout,
		logger:    util.GetLogger(),
	}
}

// SetSendTimeout bounds how long one send may take
func (d *Dispatcher) SetSendTimeout(timeout time.Duration) {
	if timeout > 0 {
		d.timeout = timeout
	}
}

// Renderer exposes the template renderer used by the dispatcher
func (d *Dispatcher) Renderer() *Renderer {
	return d.templates
}

// SiteURL is the storefront base URL linked from emails
func (d *Dispatcher) SiteURL() string {
	return d.siteURL
}

// Send delivers a message. Failures are logged and counted, never returned.
// Mail reports work that already happened, so cancelling ctx does not abort
// the send; only the send timeout does.
func (d *Dispatcher) Send(ctx context.Context, category Category, subject, text string, recipients []string, html string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	ctx, span := util.StartSpan(ctx, "Dispatcher.Send")
	defer span.End()

	if err := d.send(ctx, category, subject, text, recipients, html); err != nil {
		util.EmailsFailedTotal.WithLabelValues(string(category)).Inc()
		span.RecordError(err)
		d.logger.Error("Failed to send email",
			zap.String("category", string(category)),
			zap.String("subject", subject),
			zap.Strings("recipients", recipients),
			zap.Error(err))
		return
	}

	util.EmailsSentTotal.WithLabelValues(string(category)).Inc()
	d.logger.Info("Email sent",
		zap.String("category", string(category)),
		zap.String("subject", subject),
		zap.Int("recipients", len(recipients)))
}

func (d *Dispatcher) send(ctx context.Context, category Category, subject, text string, recipients []string, html string) error {
	var to []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			to = append(to, r)
		}
	}
	if len(to) == 0 {
		return &SendError{Category: category, Subject: subject, Recipients: recipients, Err: fmt.Errorf("no recipients")}
	}

	msg := &Message{From: d.from, To: to, Subject: subject, Text: text, HTML: html}
	if err := d.transport.Send(ctx, msg); err != nil {
		return &SendError{Category: category, Subject: subject, Recipients: to, Err: err}
	}
	return nil
}

// AdminAddress extracts the bare address from "Name <addr>"; other input is returned trimmed
func AdminAddress(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return addr.Address
	}
	return strings.TrimSpace(from)
}
