package service

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/util"

	"go.uber.org/zap"
)

// Support priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// SupportRequest is a customer message to the support team
type SupportRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Subject  string `json:"subject" binding:"required"`
	Message  string `json:"message" binding:"required"`
	Priority string `json:"priority"`
}

// SupportReply is an agent response to a ticket
type SupportReply struct {
	Name         string `json:"name"`
	Email        string `json:"email" binding:"required"`
	TicketNumber string `json:"ticket_number" binding:"required"`
	Subject      string `json:"subject" binding:"required"`
	Response     string `json:"response" binding:"required"`
	Agent        string `json:"agent"`
	ResponseTime string `json:"response_time"`
}

// SupportTicket acknowledges a submitted request
type SupportTicket struct {
	TicketNumber string    `json:"ticket_number"`
	Priority     string    `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
}

// SupportService relays support conversations by email
type SupportService struct {
	mailer *notify.Dispatcher
	logger *zap.Logger
}

// NewSupportService creates a support service
func NewSupportService(mailer *notify.Dispatcher) *SupportService {
	return &SupportService{mailer: mailer, logger: util.GetLogger()}
}

// NewTicketNumber returns a ticket number such as JIGSIM-2024-0042
func NewTicketNumber(now time.Time) string {
	return fmt.Sprintf("JIGSIM-%d-%04d", now.Year(), rand.Intn(10000))
}

// Submit acknowledges a request to the customer and forwards it to the admins.
// A signed-in user's account details take precedence over the request fields.
func (s *SupportService) Submit(ctx context.Context, user *models.User, req *SupportRequest) (*SupportTicket, error) {
	ctx, span := util.StartSpan(ctx, "SupportService.Submit")
	defer span.End()

	customer := models.User{FirstName: strings.TrimSpace(req.Name)}
	if user != nil {
		customer = *user
	} else {
		email, err := normalizeEmail(req.Email)
		if err != nil {
			return nil, err
		}
		customer.Email = email
		if customer.FirstName == "" {
			return nil, invalid("name", "is required")
		}
	}

	priority := strings.ToLower(strings.TrimSpace(req.Priority))
	switch priority {
	case "":
		priority = PriorityNormal
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
	default:
		return nil, invalid("priority", "must be low, normal, high or urgent")
	}
	if strings.TrimSpace(req.Subject) == "" {
		return nil, invalid("subject", "is required")
	}
	if strings.TrimSpace(req.Message) == "" {
		return nil, invalid("message", "is required")
	}

	now := time.Now().UTC()
	ticket := &SupportTicket{TicketNumber: NewTicketNumber(now), Priority: priority, CreatedAt: now}

	s.mailer.SendSupportReceived(ctx, &notify.SupportEmail{
		User:         customer,
		TicketNumber: ticket.TicketNumber,
		Subject:      strings.TrimSpace(req.Subject),
		Message:      strings.TrimSpace(req.Message),
		Priority:     priority,
		CreatedAt:    now,
	})

	s.logger.Info("Support request received",
		zap.String("ticket", ticket.TicketNumber),
		zap.String("priority", priority))
	return ticket, nil
}

// Reply sends an agent response to the customer
func (s *SupportService) Reply(ctx context.Context, req *SupportReply) error {
	ctx, span := util.StartSpan(ctx, "SupportService.Reply")
	defer span.End()

	email, err := normalizeEmail(req.Email)
	if err != nil {
		return err
	}
	agent := strings.TrimSpace(req.Agent)
	if agent == "" {
		agent = "JigsimurHerbal Support"
	}

	s.mailer.SendSupportResponse(ctx, &notify.SupportEmail{
		User:         models.User{FirstName: strings.TrimSpace(req.Name), Email: email},
		TicketNumber: req.TicketNumber,
		Subject:      req.Subject,
		Response:     req.Response,
		Agent:        agent,
		ResponseTime: req.ResponseTime,
		CreatedAt:    time.Now().UTC(),
	})
	return nil
}
