package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, err error) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/checkout", nil)
	respondError(c, err, "Failed to place order")
	return w
}

func TestUnmappedErrorHidesDetails(t *testing.T) {
	w := respond(t, errors.New(`pq: relation "orders" does not exist`))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Failed to place order", body["error"])
	assert.NotContains(t, body, "details")
	assert.NotContains(t, w.Body.String(), "relation")
}

func TestOrderNumberCollisionIsRetryable(t *testing.T) {
	w := respond(t, fmt.Errorf("checkout: %w", service.ErrOrderNumberCollision))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.NotContains(t, decode(t, w), "details")
}

func TestCartChangedIsConflict(t *testing.T) {
	w := respond(t, fmt.Errorf("cart line 4: %w", service.ErrCartChanged))

	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, decode(t, w)["error"], "cart changed")
}
