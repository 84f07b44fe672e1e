package webhook

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eonpro/ops-api/internal/model"
	paymentService "github.com/eonpro/ops-api/internal/service/payment"
	"github.com/eonpro/ops-api/pkg/httputil"
)

type Handler struct {
	service *paymentService.Service
}

func NewHandler(service *paymentService.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the webhook endpoints. Stripe authenticates via
// payload, not bearer tokens, so these live outside the auth wall.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/stripe", h.Stripe)
}

func (h *Handler) Stripe(c *gin.Context) {
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		httputil.BadRequest(c, "failed to read body")
		return
	}

	var req model.StripeWebhookRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		httputil.BadRequest(c, "invalid webhook payload")
		return
	}
	if req.ID == "" || req.Type == "" {
		httputil.BadRequest(c, "missing event id or type")
		return
	}

	stored, err := h.service.HandleWebhook(c.Request.Context(), &req, raw)
	if err != nil {
		httputil.Error(c, err)
		return
	}

	// Stripe retries anything that is not a 2xx.
	c.JSON(http.StatusOK, gin.H{"received": true, "stored": stored})
}
