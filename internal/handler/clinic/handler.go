package clinic

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/middleware"
	"github.com/eonpro/ops-api/internal/model"
	clinicService "github.com/eonpro/ops-api/internal/service/clinic"
	"github.com/eonpro/ops-api/pkg/httputil"
)

type Handler struct {
	service *clinicService.Service
}

func NewHandler(service *clinicService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	clinics := r.Group("/clinics")
	{
		clinics.POST("", h.Create)
		clinics.GET("", h.List)
		clinics.GET("/:id", h.Get)
		clinics.GET("/:id/config", h.GetConfig)
		clinics.PUT("/:id/config", h.UpdateConfig)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateClinicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	clinic, err := h.service.Create(c.Request.Context(), middleware.UserIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.Created(c, clinic)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid clinic id")
		return
	}

	clinic, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, clinic)
}

func (h *Handler) List(c *gin.Context) {
	clinics, err := h.service.List(c.Request.Context())
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, clinics)
}

func (h *Handler) GetConfig(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid clinic id")
		return
	}

	cfg, err := h.service.GetConfig(c.Request.Context(), id)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, cfg)
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid clinic id")
		return
	}

	var cfg model.ClinicConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}
	cfg.ClinicID = id

	updated, err := h.service.UpdateConfig(c.Request.Context(), middleware.UserIDFromContext(c), &cfg)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, updated)
}
