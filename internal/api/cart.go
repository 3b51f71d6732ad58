package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type addCartItemRequest struct {
	ProductID int64 `json:"product_id" binding:"required"`
	Quantity  int   `json:"quantity"`
}

type updateCartItemRequest struct {
	Quantity *int `json:"quantity" binding:"required"`
}

// newSession issues a key identifying an anonymous cart
func (h *Handler) newSession(c *gin.Context) {
	c.JSON(http.StatusCreated, gin.H{"session_key": uuid.NewString()})
}

func (h *Handler) getCart(c *gin.Context) {
	view, err := h.carts.View(c.Request.Context(), owner(c))
	if err != nil {
		respondError(c, err, "Failed to load cart")
		return
	}
	c.JSON(http.StatusOK, presentCart(view))
}

func (h *Handler) addCartItem(c *gin.Context) {
	var req addCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	who := owner(c)
	if err := h.carts.AddLine(c.Request.Context(), who, req.ProductID, req.Quantity); err != nil {
		respondError(c, err, "Failed to add to cart")
		return
	}
	h.respondCart(c, http.StatusCreated)
}

func (h *Handler) updateCartItem(c *gin.Context) {
	lineID, ok := idParam(c)
	if !ok {
		return
	}
	var req updateCartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.carts.UpdateLine(c.Request.Context(), owner(c), lineID, *req.Quantity); err != nil {
		respondError(c, err, "Failed to update cart")
		return
	}
	h.respondCart(c, http.StatusOK)
}

func (h *Handler) removeCartItem(c *gin.Context) {
	lineID, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.carts.RemoveLine(c.Request.Context(), owner(c), lineID); err != nil {
		respondError(c, err, "Failed to remove from cart")
		return
	}
	h.respondCart(c, http.StatusOK)
}

func (h *Handler) respondCart(c *gin.Context, status int) {
	view, err := h.carts.View(c.Request.Context(), owner(c))
	if err != nil {
		respondError(c, err, "Failed to load cart")
		return
	}
	c.JSON(status, presentCart(view))
}

// idParam parses the :id path parameter, answering 400 when it is not a number
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id", "details": c.Param("id")})
		return 0, false
	}
	return id, true
}
