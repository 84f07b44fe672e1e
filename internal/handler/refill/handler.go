package refill

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/middleware"
	"github.com/eonpro/ops-api/internal/model"
	refillService "github.com/eonpro/ops-api/internal/service/refill"
	"github.com/eonpro/ops-api/pkg/httputil"
)

type Handler struct {
	service *refillService.Service
}

func NewHandler(service *refillService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	refills := r.Group("/admin/refill-queue")
	{
		refills.POST("", h.Create)
		refills.GET("", h.List)
		refills.GET("/:id", h.Get)
		refills.GET("/:id/series", h.GetSeries)

		refills.POST("/:id/verify-payment", h.VerifyPayment)
		refills.POST("/:id/approve", h.Approve)
		refills.POST("/:id/queue-provider", h.QueueProvider)
		refills.POST("/:id/prescribe", h.Prescribe)
		refills.POST("/:id/reject", h.Reject)
		refills.POST("/:id/cancel", h.Cancel)
		refills.POST("/:id/hold", h.Hold)
		refills.POST("/:id/fulfill", h.Fulfill)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateRefillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	refills, err := h.service.Create(c.Request.Context(), middleware.ClinicIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.Created(c, refills)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid refill id")
		return
	}

	refill, err := h.service.Get(c.Request.Context(), middleware.ClinicIDFromContext(c), id)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, refill)
}

func (h *Handler) GetSeries(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid refill id")
		return
	}

	series, err := h.service.GetSeries(c.Request.Context(), middleware.ClinicIDFromContext(c), id)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, series)
}

func (h *Handler) List(c *gin.Context) {
	filters := &model.RefillFilters{
		ClinicID: middleware.ClinicIDFromContext(c),
		Status:   model.RefillStatus(c.Query("status")),
	}
	if p := c.Query("patient_id"); p != "" {
		patientID, err := uuid.Parse(p)
		if err != nil {
			httputil.BadRequest(c, "invalid patient_id")
			return
		}
		filters.PatientID = patientID
	}

	refills, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, refills)
}

func (h *Handler) VerifyPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid refill id")
		return
	}

	var req model.VerifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	result, err := h.service.VerifyPayment(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, result)
}

func (h *Handler) Approve(c *gin.Context) {
	h.transition(c, h.service.Approve)
}

func (h *Handler) QueueProvider(c *gin.Context) {
	h.transition(c, h.service.QueueProvider)
}

func (h *Handler) Prescribe(c *gin.Context) {
	h.transition(c, h.service.Prescribe)
}

func (h *Handler) Cancel(c *gin.Context) {
	h.transition(c, h.service.Cancel)
}

func (h *Handler) Fulfill(c *gin.Context) {
	h.transition(c, h.service.Fulfill)
}

func (h *Handler) Reject(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid refill id")
		return
	}

	var req model.RejectRefillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	refill, err := h.service.Reject(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c), req.Reason)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, refill)
}

func (h *Handler) Hold(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid refill id")
		return
	}

	var req model.HoldRefillRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	refill, err := h.service.Hold(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c), req.Reason)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, refill)
}

func (h *Handler) transition(c *gin.Context, fn func(ctx context.Context, clinicID, id, actorID uuid.UUID) (*model.Refill, error)) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid refill id")
		return
	}

	refill, err := fn(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c))
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, refill)
}
