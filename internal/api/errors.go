package api

import (
	"errors"
	"net/http"

	"storefront/internal/notify"
	"storefront/internal/service"
	"storefront/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// respondError maps service errors onto HTTP responses. Unknown errors are
// logged and reported as 500 with fallback as the message; their text never
// reaches the client.
func respondError(c *gin.Context, err error, fallback string) {
	var (
		validation   *service.ValidationError
		insufficient *service.InsufficientStockError
		conflict     *service.StockConflictError
	)

	switch {
	case errors.As(err, &validation):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"field":   validation.Field,
			"details": validation.Message,
		})
	case errors.As(err, &insufficient):
		c.JSON(http.StatusConflict, gin.H{
			"error":     insufficient.Error(),
			"available": insufficient.Available,
		})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":     conflict.Error(),
			"available": conflict.Available,
		})
	case errors.Is(err, service.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Your cart is empty"})
	case errors.Is(err, service.ErrNoOwner):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing session", "details": "send X-Session-Key or sign in"})
	case errors.Is(err, service.ErrNotFound), errors.Is(err, notify.ErrUnknownPreview):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, service.ErrIllegalTransition):
		c.JSON(http.StatusConflict, gin.H{"error": "Illegal status transition", "details": err.Error()})
	case errors.Is(err, service.ErrCheckoutInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "Checkout already in progress"})
	case errors.Is(err, service.ErrCartChanged):
		c.JSON(http.StatusConflict, gin.H{"error": "Your cart changed during checkout, please review it and try again"})
	case errors.Is(err, service.ErrOrderNumberCollision):
		c.Header("Retry-After", "1")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Could not place order, please try again"})
	case errors.Is(err, service.ErrEmailTaken), errors.Is(err, service.ErrUsernameTaken),
		errors.Is(err, service.ErrAlreadyReviewed):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials), errors.Is(err, service.ErrInvalidToken):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	default:
		util.GetLogger().Error(fallback,
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
