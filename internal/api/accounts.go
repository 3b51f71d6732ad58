package api

import (
	"net/http"
	"strings"

	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
)

func (h *Handler) register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.SessionKey = strings.TrimSpace(c.GetHeader(sessionHeader))

	result, err := h.users.Register(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to register")
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.SessionKey = strings.TrimSpace(c.GetHeader(sessionHeader))

	result, err := h.users.Login(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err, "Failed to log in")
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) getProfile(c *gin.Context) {
	profile, err := h.users.Profile(c.Request.Context(), claimsFrom(c).UserID)
	if err != nil {
		respondError(c, err, "Failed to load profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) updateProfile(c *gin.Context) {
	var req service.UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	profile, err := h.users.UpdateProfile(c.Request.Context(), claimsFrom(c).UserID, &req)
	if err != nil {
		respondError(c, err, "Failed to update profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) subscribeNewsletter(c *gin.Context) {
	h.setNewsletter(c, true)
}

func (h *Handler) unsubscribeNewsletter(c *gin.Context) {
	h.setNewsletter(c, false)
}

func (h *Handler) setNewsletter(c *gin.Context, subscribed bool) {
	prefs, err := h.users.SetNewsletter(c.Request.Context(), claimsFrom(c).UserID, subscribed)
	if err != nil {
		respondError(c, err, "Failed to update newsletter subscription")
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) getEmailPreferences(c *gin.Context) {
	prefs, err := h.users.EmailPreferences(c.Request.Context(), claimsFrom(c).UserID)
	if err != nil {
		respondError(c, err, "Failed to load email preferences")
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) updateEmailPreferences(c *gin.Context) {
	var req service.EmailPreferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	prefs, err := h.users.UpdateEmailPreferences(c.Request.Context(), claimsFrom(c).UserID, &req)
	if err != nil {
		respondError(c, err, "Failed to update email preferences")
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (h *Handler) listAddresses(c *gin.Context) {
	addresses, err := h.users.Addresses(c.Request.Context(), claimsFrom(c).UserID)
	if err != nil {
		respondError(c, err, "Failed to list addresses")
		return
	}
	c.JSON(http.StatusOK, gin.H{"addresses": addresses})
}

func (h *Handler) getAddress(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	addr, err := h.users.Address(c.Request.Context(), claimsFrom(c).UserID, id)
	if err != nil {
		respondError(c, err, "Failed to get address")
		return
	}
	c.JSON(http.StatusOK, addr)
}

func (h *Handler) createAddress(c *gin.Context) {
	var addr models.SavedAddress
	if err := c.ShouldBindJSON(&addr); err != nil {
		badRequest(c, err)
		return
	}
	addr.ID = 0

	if err := h.users.SaveAddress(c.Request.Context(), claimsFrom(c).UserID, &addr); err != nil {
		respondError(c, err, "Failed to save address")
		return
	}
	c.JSON(http.StatusCreated, addr)
}

func (h *Handler) updateAddress(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var addr models.SavedAddress
	if err := c.ShouldBindJSON(&addr); err != nil {
		badRequest(c, err)
		return
	}
	addr.ID = id

	if err := h.users.SaveAddress(c.Request.Context(), claimsFrom(c).UserID, &addr); err != nil {
		respondError(c, err, "Failed to save address")
		return
	}
	c.JSON(http.StatusOK, addr)
}

func (h *Handler) deleteAddress(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.users.DeleteAddress(c.Request.Context(), claimsFrom(c).UserID, id); err != nil {
		respondError(c, err, "Failed to delete address")
		return
	}
	c.Status(http.StatusNoContent)
}

// submitSupport accepts requests from shoppers and anonymous visitors alike
func (h *Handler) submitSupport(c *gin.Context) {
	var req service.SupportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var user *models.User
	if claims := claimsFrom(c); claims != nil {
		profile, err := h.users.Profile(c.Request.Context(), claims.UserID)
		if err != nil {
			respondError(c, err, "Failed to load profile")
			return
		}
		user = &profile.User
	}

	ticket, err := h.support.Submit(c.Request.Context(), user, &req)
	if err != nil {
		respondError(c, err, "Failed to submit support request")
		return
	}
	c.JSON(http.StatusCreated, ticket)
}
