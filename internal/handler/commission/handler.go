package commission

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/middleware"
	"github.com/eonpro/ops-api/internal/model"
	commissionService "github.com/eonpro/ops-api/internal/service/commission"
	"github.com/eonpro/ops-api/pkg/httputil"
)

type Handler struct {
	service *commissionService.Service
}

func NewHandler(service *commissionService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	plans := r.Group("/commission-plans")
	{
		plans.POST("", h.CreatePlan)
		plans.POST("/:id/tiers", h.CreateTier)
	}

	r.POST("/promotions", h.CreatePromotion)

	affiliates := r.Group("/affiliates")
	{
		affiliates.POST("", h.CreateAffiliate)
		affiliates.GET("/:id", h.GetAffiliate)
		affiliates.POST("/:id/payouts", h.CreatePayout)
	}

	r.POST("/conversions", h.RecordConversion)

	events := r.Group("/commission-events")
	{
		events.GET("", h.ListEvents)
		events.GET("/:id", h.GetEvent)
		events.POST("/:id/hold", h.HoldEvent)
		events.POST("/:id/release", h.ReleaseEvent)
		events.POST("/:id/void", h.VoidEvent)
	}

	payouts := r.Group("/payouts")
	{
		payouts.GET("", h.ListPayouts)
		payouts.GET("/:id", h.GetPayout)
		payouts.POST("/:id/settle", h.SettlePayout)
	}

	fraud := r.Group("/fraud-alerts")
	{
		fraud.POST("", h.CreateFraudAlert)
		fraud.GET("", h.ListFraudAlerts)
		fraud.POST("/:id/resolve", h.ResolveFraudAlert)
	}
}

func (h *Handler) CreatePlan(c *gin.Context) {
	var plan model.CommissionPlan
	if err := c.ShouldBindJSON(&plan); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}
	clinicID := middleware.ClinicIDFromContext(c)
	plan.ClinicID = &clinicID

	if err := h.service.CreatePlan(c.Request.Context(), &plan); err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.Created(c, plan)
}

func (h *Handler) CreateTier(c *gin.Context) {
	planID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid plan id")
		return
	}

	var tier model.CommissionTier
	if err := c.ShouldBindJSON(&tier); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}
	tier.PlanID = planID

	if err := h.service.CreateTier(c.Request.Context(), &tier); err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.Created(c, tier)
}

func (h *Handler) CreatePromotion(c *gin.Context) {
	var promo model.Promotion
	if err := c.ShouldBindJSON(&promo); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}
	clinicID := middleware.ClinicIDFromContext(c)
	promo.ClinicID = &clinicID

	if err := h.service.CreatePromotion(c.Request.Context(), &promo); err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.Created(c, promo)
}

func (h *Handler) CreateAffiliate(c *gin.Context) {
	var req model.CreateAffiliateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}
	affiliate := model.Affiliate{
		ClinicID:    middleware.ClinicIDFromContext(c),
		Name:        req.Name,
		Email:       req.Email,
		RefCode:     req.RefCode,
		PlanID:      req.PlanID,
		Attribution: req.Attribution,
	}

	if err := h.service.CreateAffiliate(c.Request.Context(), &affiliate); err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.Created(c, affiliate)
}

func (h *Handler) GetAffiliate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid affiliate id")
		return
	}

	affiliate, err := h.service.GetAffiliate(c.Request.Context(), middleware.ClinicIDFromContext(c), id)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, affiliate)
}

func (h *Handler) RecordConversion(c *gin.Context) {
	var req model.RecordConversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	event, err := h.service.RecordConversion(c.Request.Context(), middleware.ClinicIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.Created(c, event)
}

func (h *Handler) ListEvents(c *gin.Context) {
	filters := &model.CommissionEventFilters{
		ClinicID: middleware.ClinicIDFromContext(c),
		Status:   model.CommissionEventStatus(c.Query("status")),
		OrderID:  c.Query("order_id"),
	}
	if a := c.Query("affiliate_id"); a != "" {
		affiliateID, err := uuid.Parse(a)
		if err != nil {
			httputil.BadRequest(c, "invalid affiliate_id")
			return
		}
		filters.AffiliateID = affiliateID
	}

	events, err := h.service.ListEvents(c.Request.Context(), filters)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, events)
}

func (h *Handler) GetEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid event id")
		return
	}

	event, err := h.service.GetEvent(c.Request.Context(), middleware.ClinicIDFromContext(c), id)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, event)
}

type reasonRequest struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) HoldEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid event id")
		return
	}

	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	event, err := h.service.HoldEvent(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c), req.Reason)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, event)
}

func (h *Handler) ReleaseEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid event id")
		return
	}

	event, err := h.service.ReleaseEvent(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c))
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, event)
}

func (h *Handler) VoidEvent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid event id")
		return
	}

	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	event, err := h.service.VoidEvent(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c), req.Reason)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, event)
}

func (h *Handler) CreatePayout(c *gin.Context) {
	affiliateID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid affiliate id")
		return
	}

	payout, err := h.service.CreatePayout(c.Request.Context(),
		middleware.ClinicIDFromContext(c), affiliateID, middleware.UserIDFromContext(c))
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.Created(c, payout)
}

func (h *Handler) SettlePayout(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid payout id")
		return
	}

	var req model.SettlePayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	payout, err := h.service.SettlePayout(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, payout)
}

func (h *Handler) GetPayout(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid payout id")
		return
	}

	payout, err := h.service.GetPayout(c.Request.Context(), middleware.ClinicIDFromContext(c), id)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, payout)
}

func (h *Handler) ListPayouts(c *gin.Context) {
	payouts, err := h.service.ListPayouts(c.Request.Context(), middleware.ClinicIDFromContext(c))
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, payouts)
}

func (h *Handler) CreateFraudAlert(c *gin.Context) {
	var req model.CreateFraudAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	alert, err := h.service.CreateFraudAlert(c.Request.Context(),
		middleware.ClinicIDFromContext(c), middleware.UserIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.Created(c, alert)
}

func (h *Handler) ResolveFraudAlert(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid alert id")
		return
	}

	var req model.ResolveFraudAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	alert, err := h.service.ResolveFraudAlert(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, alert)
}

func (h *Handler) ListFraudAlerts(c *gin.Context) {
	alerts, err := h.service.ListFraudAlerts(c.Request.Context(),
		middleware.ClinicIDFromContext(c), model.FraudAlertStatus(c.Query("status")))
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, alerts)
}
