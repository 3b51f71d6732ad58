package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"storefront/internal/util"

	"github.com/sony/gobreaker/v2"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// SMTPConfig holds mail server settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Timeout  time.Duration
}

// SMTPTransport sends mail over SMTP behind a circuit breaker so an unreachable
// server fails fast instead of stalling every checkout
type SMTPTransport struct {
	cfg     SMTPConfig
	breaker *gobreaker.CircuitBreaker[struct{}]
}

// NewSMTPTransport creates an SMTP transport
func NewSMTPTransport(cfg SMTPConfig) *SMTPTransport {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	logger := util.GetLogger()
	breaker := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &SMTPTransport{cfg: cfg, breaker: breaker}
}

// Send delivers msg through the configured SMTP server
func (t *SMTPTransport) Send(ctx context.Context, msg *Message) error {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return fmt.Errorf("invalid from address: %w", err)
	}
	if err := m.To(msg.To...); err != nil {
		return fmt.Errorf("invalid recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}

	_, err := t.breaker.Execute(func() (struct{}, error) {
		client, err := t.client()
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, client.DialAndSendWithContext(ctx, m)
	})
	return err
}

func (t *SMTPTransport) client() (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithPort(t.cfg.Port),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
		mail.WithTimeout(t.cfg.Timeout),
	}
	if t.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(t.cfg.Username),
			mail.WithPassword(t.cfg.Password))
	}
	client, err := mail.NewClient(t.cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}
	return client, nil
}

// LogTransport writes messages to the log instead of sending them
type LogTransport struct {
	logger *zap.Logger
}

// NewLogTransport creates a transport for environments without SMTP
func NewLogTransport() *LogTransport {
	return &LogTransport{logger: util.GetLogger()}
}

// Send logs the message
func (t *LogTransport) Send(_ context.Context, msg *Message) error {
	t.logger.Info("Email (not sent, SMTP disabled)",
		zap.String("from", msg.From),
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("text", msg.Text))
	return nil
}

// MemoryTransport records messages in memory
type MemoryTransport struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

// NewMemoryTransport creates a recording transport; a non-nil err makes every send fail
func NewMemoryTransport(err error) *MemoryTransport {
	return &MemoryTransport{err: err}
}

// Send records msg, or fails with the configured error or a done context
func (t *MemoryTransport) Send(ctx context.Context, msg *Message) error {
	if t.err != nil {
		return t.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, *msg)
	return nil
}

// Messages returns a copy of everything sent so far
func (t *MemoryTransport) Messages() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	return out
}
