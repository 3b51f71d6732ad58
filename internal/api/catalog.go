package api

import (
	"net/http"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listProducts(c *gin.Context) {
	products, err := h.catalog.Products(c.Request.Context(), service.ProductQuery{
		Query:    c.Query("q"),
		Category: c.Query("category"),
		MinPrice: c.Query("min_price"),
		MaxPrice: c.Query("max_price"),
		Sort:     c.Query("sort"),
	})
	if err != nil {
		respondError(c, err, "Failed to list products")
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": presentProducts(products)})
}

func (h *Handler) home(c *gin.Context) {
	page, err := h.catalog.Home(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to load featured products")
		return
	}
	c.JSON(http.StatusOK, presentHome(page))
}

func (h *Handler) getProduct(c *gin.Context) {
	page, err := h.catalog.Product(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err, "Failed to get product")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"product": presentProduct(page.Product),
		"related": presentProducts(page.Related),
	})
}

func (h *Handler) listCategories(c *gin.Context) {
	categories, err := h.catalog.Categories(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to list categories")
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func (h *Handler) getCategory(c *gin.Context) {
	page, err := h.catalog.Category(c.Request.Context(), c.Param("slug"), c.Query("sort"))
	if err != nil {
		respondError(c, err, "Failed to get category")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"category": page.Category,
		"products": presentProducts(page.Products),
	})
}

func (h *Handler) listShippingMethods(c *gin.Context) {
	methods, err := h.catalog.ShippingMethods(c.Request.Context())
	if err != nil {
		respondError(c, err, "Failed to list shipping methods")
		return
	}
	c.JSON(http.StatusOK, gin.H{"shipping_methods": presentShippingMethods(methods)})
}

func (h *Handler) suggestProducts(c *gin.Context) {
	products, err := h.catalog.Suggest(c.Request.Context(), c.Query("q"))
	if err != nil {
		respondError(c, err, "Failed to suggest products")
		return
	}
	c.JSON(http.StatusOK, gin.H{"suggestions": presentSuggestions(products)})
}

func (h *Handler) listReviews(c *gin.Context) {
	page, err := h.reviews.List(c.Request.Context(), c.Param("slug"))
	if err != nil {
		respondError(c, err, "Failed to list reviews")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reviews":        page.Reviews,
		"count":          page.Count,
		"average_rating": page.AverageRating.StringFixed(1),
	})
}

func (h *Handler) addReview(c *gin.Context) {
	var req service.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	review, err := h.reviews.Add(c.Request.Context(), claimsFrom(c).UserID, c.Param("slug"), &req)
	if err != nil {
		respondError(c, err, "Failed to add review")
		return
	}
	c.JSON(http.StatusCreated, review)
}
