package api

import (
	"context"
	"net/http"
	"time"

	"storefront/internal/notify"
	"storefront/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency checked by the readiness endpoint
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services bundles what the HTTP layer calls into
type Services struct {
	Catalog  *service.CatalogService
	Carts    *service.CartService
	Checkout *service.CheckoutService
	Orders   *service.OrderService
	Users    *service.UserService
	Support  *service.SupportService
	Reviews  *service.ReviewService
	Mailer   *notify.Dispatcher
}

// Handler contains HTTP handlers
type Handler struct {
	catalog        *service.CatalogService
	carts          *service.CartService
	checkout       *service.CheckoutService
	orders         *service.OrderService
	users          *service.UserService
	support        *service.SupportService
	reviews        *service.ReviewService
	mailer         *notify.Dispatcher
	readiness      map[string]Pinger
	allowedOrigins []string
}

// NewHandler creates a new HTTP handler. readiness names the dependencies
// /ready pings.
func NewHandler(svc Services, readiness map[string]Pinger, allowedOrigins []string) *Handler {
	return &Handler{
		catalog:        svc.Catalog,
		carts:          svc.Carts,
		checkout:       svc.Checkout,
		orders:         svc.Orders,
		users:          svc.Users,
		support:        svc.Support,
		reviews:        svc.Reviews,
		mailer:         svc.Mailer,
		readiness:      readiness,
		allowedOrigins: allowedOrigins,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())
	if len(h.allowedOrigins) > 0 {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = h.allowedOrigins
		corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization", sessionHeader, "Idempotency-Key")
		corsConfig.ExposeHeaders = []string{"Content-Disposition"}
		router.Use(cors.New(corsConfig))
	}

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	v1.Use(h.identify())
	{
		v1.GET("/products", h.listProducts)
		v1.GET("/products/featured", h.home)
		v1.GET("/products/suggestions", h.suggestProducts)
		v1.GET("/products/:slug", h.getProduct)
		v1.GET("/products/:slug/reviews", h.listReviews)
		v1.POST("/products/:slug/reviews", requireUser(), h.addReview)
		v1.GET("/categories", h.listCategories)
		v1.GET("/categories/:slug", h.getCategory)
		v1.GET("/shipping-methods", h.listShippingMethods)

		v1.POST("/session", h.newSession)
		v1.GET("/cart", h.getCart)
		v1.POST("/cart/items", h.addCartItem)
		v1.PATCH("/cart/items/:id", h.updateCartItem)
		v1.DELETE("/cart/items/:id", h.removeCartItem)

		v1.POST("/auth/register", h.register)
		v1.POST("/auth/login", h.login)

		v1.POST("/support", h.submitSupport)
	}

	account := v1.Group("")
	account.Use(requireUser())
	{
		account.POST("/checkout", h.placeOrder)
		account.GET("/orders", h.listMyOrders)
		account.GET("/orders/:id", h.getOrder)

		account.GET("/me", h.getProfile)
		account.PUT("/me", h.updateProfile)
		account.POST("/me/newsletter", h.subscribeNewsletter)
		account.DELETE("/me/newsletter", h.unsubscribeNewsletter)
		account.GET("/me/email-preferences", h.getEmailPreferences)
		account.PUT("/me/email-preferences", h.updateEmailPreferences)
		account.GET("/me/addresses", h.listAddresses)
		account.POST("/me/addresses", h.createAddress)
		account.GET("/me/addresses/:id", h.getAddress)
		account.PUT("/me/addresses/:id", h.updateAddress)
		account.DELETE("/me/addresses/:id", h.deleteAddress)
	}

	admin := v1.Group("/admin")
	admin.Use(requireStaff())
	{
		admin.GET("/orders", h.adminListOrders)
		admin.GET("/orders/export", h.exportOrders)
		admin.PATCH("/orders/:id/status", h.updateOrderStatus)
		admin.PATCH("/orders/:id/payment", h.updatePaymentStatus)
		admin.POST("/orders/:id/tracking", h.addTracking)
		admin.GET("/email-previews", h.listEmailPreviews)
		admin.GET("/email-previews/:name", h.emailPreview)
		admin.POST("/support/reply", h.replySupport)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck pings every dependency and reports the ones that failed
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.readiness {
		if err := dep.Ping(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"failed": failed,
			"time":   time.Now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}
