package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

// placeOrder checks out the caller's cart. The Idempotency-Key header is
// honoured when the body does not carry a key.
func (h *Handler) placeOrder(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	detail, err := h.checkout.Checkout(c.Request.Context(), claimsFrom(c).UserID, &req)
	if err != nil {
		respondError(c, err, "Failed to place order")
		return
	}
	c.JSON(http.StatusCreated, presentOrderDetail(detail))
}

func (h *Handler) listMyOrders(c *gin.Context) {
	orders, err := h.orders.ListForUser(c.Request.Context(), claimsFrom(c).UserID)
	if err != nil {
		respondError(c, err, "Failed to list orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": presentOrders(orders)})
}

// getOrder handles order retrieval. Staff may read any order.
func (h *Handler) getOrder(c *gin.Context) {
	claims := claimsFrom(c)
	detail, err := h.orders.Get(c.Request.Context(), c.Param("id"), claims.UserID, claims.Staff)
	if err != nil {
		respondError(c, err, "Failed to get order")
		return
	}
	c.JSON(http.StatusOK, presentOrderDetail(detail))
}
