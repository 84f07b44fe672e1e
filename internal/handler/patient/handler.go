package patient

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/middleware"
	"github.com/eonpro/ops-api/internal/model"
	patientService "github.com/eonpro/ops-api/internal/service/patient"
	"github.com/eonpro/ops-api/pkg/httputil"
)

type Handler struct {
	service *patientService.Service
}

func NewHandler(service *patientService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.Create)
		patients.GET("", h.List)
		patients.GET("/:id", h.Get)
		patients.PUT("/:id", h.Update)
		patients.DELETE("/:id", h.Delete)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	patient, err := h.service.Create(c.Request.Context(),
		middleware.UserIDFromContext(c), middleware.ClinicIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.Created(c, patient)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid patient id")
		return
	}

	patient, err := h.service.Get(c.Request.Context(), middleware.ClinicIDFromContext(c), id)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, patient)
}

func (h *Handler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid patient id")
		return
	}

	var req model.UpdatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	patient, err := h.service.Update(c.Request.Context(),
		middleware.UserIDFromContext(c), middleware.ClinicIDFromContext(c), id, &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, patient)
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid patient id")
		return
	}

	if err := h.service.Delete(c.Request.Context(),
		middleware.UserIDFromContext(c), middleware.ClinicIDFromContext(c), id); err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, gin.H{"deleted": true})
}

func (h *Handler) List(c *gin.Context) {
	filters := &model.PatientFilters{
		ClinicID:   middleware.ClinicIDFromContext(c),
		Status:     model.PatientStatus(c.Query("status")),
		SearchTerm: c.Query("q"),
	}

	patients, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, patients)
}
