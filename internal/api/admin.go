package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/models"
	"storefront/internal/notify"
	"storefront/internal/service"
	"storefront/internal/store"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type updateStatusRequest struct {
	Status      models.OrderStatus `json:"status" binding:"required"`
	Description string             `json:"description"`
}

type updatePaymentRequest struct {
	PaymentStatus models.PaymentStatus `json:"payment_status" binding:"required"`
	PaymentID     string               `json:"payment_id"`
}

type addTrackingRequest struct {
	Status      models.OrderStatus `json:"status"`
	Description string             `json:"description" binding:"required"`
}

// orderFilter reads status, payment_status, since, until (YYYY-MM-DD) and limit
func orderFilter(c *gin.Context) (store.OrderFilter, error) {
	filter := store.OrderFilter{
		Status:        models.OrderStatus(c.Query("status")),
		PaymentStatus: models.PaymentStatus(c.Query("payment_status")),
	}
	since, err := dayParam(c, "since")
	if err != nil {
		return filter, err
	}
	until, err := dayParam(c, "until")
	if err != nil {
		return filter, err
	}
	if until != nil {
		end := until.Add(24*time.Hour - time.Nanosecond)
		until = &end
	}
	filter.Since, filter.Until = since, until

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return filter, &service.ValidationError{Field: "limit", Message: "must be a positive number"}
		}
		filter.Limit = limit
	}
	return filter, nil
}

func dayParam(c *gin.Context, name string) (*time.Time, error) {
	raw := c.Query(name)
	if raw == "" {
		return nil, nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, &service.ValidationError{Field: name, Message: "must be a date like 2024-01-31"}
	}
	return &day, nil
}

func (h *Handler) adminListOrders(c *gin.Context) {
	filter, err := orderFilter(c)
	if err != nil {
		respondError(c, err, "Invalid filter")
		return
	}
	orders, err := h.orders.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Failed to list orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": presentOrders(orders)})
}

// exportOrders streams the filtered orders as a spreadsheet download
func (h *Handler) exportOrders(c *gin.Context) {
	filter, err := orderFilter(c)
	if err != nil {
		respondError(c, err, "Invalid filter")
		return
	}

	var buf bytes.Buffer
	if err := h.orders.Export(c.Request.Context(), filter, &buf); err != nil {
		respondError(c, err, "Failed to export orders")
		return
	}

	filename := fmt.Sprintf("orders-%s.xlsx", time.Now().UTC().Format("20060102-150405"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) updateOrderStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	detail, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status, req.Description)
	if err != nil {
		respondError(c, err, "Failed to update order status")
		return
	}
	c.JSON(http.StatusOK, presentOrderDetail(detail))
}

func (h *Handler) updatePaymentStatus(c *gin.Context) {
	var req updatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.orders.UpdatePaymentStatus(c.Request.Context(), c.Param("id"), req.PaymentStatus, req.PaymentID)
	if err != nil {
		respondError(c, err, "Failed to update payment status")
		return
	}
	c.JSON(http.StatusOK, presentOrder(*order))
}

func (h *Handler) addTracking(c *gin.Context) {
	var req addTrackingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	entry, err := h.orders.AddTracking(c.Request.Context(), c.Param("id"), req.Status, req.Description)
	if err != nil {
		respondError(c, err, "Failed to add tracking entry")
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) listEmailPreviews(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"previews": notify.PreviewNames()})
}

// emailPreview renders a template with sample data for visual checks
func (h *Handler) emailPreview(c *gin.Context) {
	html, err := h.mailer.RenderPreview(c.Param("name"))
	if err != nil {
		respondError(c, err, "Failed to render preview")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (h *Handler) replySupport(c *gin.Context) {
	var req service.SupportReply
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.support.Reply(c.Request.Context(), &req); err != nil {
		respondError(c, err, "Failed to send support reply")
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "sent", "ticket_number": req.TicketNumber})
}
