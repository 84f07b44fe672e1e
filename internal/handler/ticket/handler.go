package ticket

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eonpro/ops-api/internal/middleware"
	"github.com/eonpro/ops-api/internal/model"
	ticketService "github.com/eonpro/ops-api/internal/service/ticket"
	"github.com/eonpro/ops-api/pkg/httputil"
)

type Handler struct {
	service *ticketService.Service
}

func NewHandler(service *ticketService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	tickets := r.Group("/tickets")
	{
		tickets.POST("", h.Create)
		tickets.GET("", h.List)
		tickets.GET("/:id", h.Get)
		tickets.GET("/:id/sla", h.GetSLA)
		tickets.GET("/:id/activities", h.ListActivities)

		tickets.POST("/:id/assign", h.Assign)
		tickets.POST("/:id/escalate", h.Escalate)
		tickets.POST("/:id/comments", h.Comment)
		tickets.PUT("/:id/status", h.UpdateStatus)
	}

	policies := r.Group("/sla-policies")
	{
		policies.PUT("", h.UpsertPolicy)
		policies.GET("", h.ListPolicies)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	ticket, err := h.service.Create(c.Request.Context(),
		middleware.ClinicIDFromContext(c), middleware.UserIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.Created(c, ticket)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid ticket id")
		return
	}

	ticket, err := h.service.Get(c.Request.Context(), middleware.ClinicIDFromContext(c), id)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, ticket)
}

func (h *Handler) GetSLA(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid ticket id")
		return
	}

	sla, err := h.service.GetSLA(c.Request.Context(), middleware.ClinicIDFromContext(c), id)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, sla)
}

func (h *Handler) List(c *gin.Context) {
	filters := &model.TicketFilters{
		ClinicID: middleware.ClinicIDFromContext(c),
		Status:   model.TicketStatus(c.Query("status")),
		Priority: model.TicketPriority(c.Query("priority")),
		Category: c.Query("category"),
	}
	if a := c.Query("assignee_id"); a != "" {
		assigneeID, err := uuid.Parse(a)
		if err != nil {
			httputil.BadRequest(c, "invalid assignee_id")
			return
		}
		filters.AssigneeID = assigneeID
	}

	tickets, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, tickets)
}

func (h *Handler) ListActivities(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid ticket id")
		return
	}

	activities, err := h.service.ListActivities(c.Request.Context(), middleware.ClinicIDFromContext(c), id)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, activities)
}

func (h *Handler) Assign(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid ticket id")
		return
	}

	var req model.AssignTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	ticket, err := h.service.Assign(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, ticket)
}

func (h *Handler) Escalate(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid ticket id")
		return
	}

	var req model.EscalateTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	ticket, err := h.service.Escalate(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, ticket)
}

func (h *Handler) Comment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid ticket id")
		return
	}

	var req model.CommentTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	ticket, err := h.service.Comment(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, ticket)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.BadRequest(c, "invalid ticket id")
		return
	}

	var req model.UpdateTicketStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	ticket, err := h.service.UpdateStatus(c.Request.Context(),
		middleware.ClinicIDFromContext(c), id, middleware.UserIDFromContext(c), &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, ticket)
}

func (h *Handler) UpsertPolicy(c *gin.Context) {
	var req model.UpsertSLAPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	clinicID := middleware.ClinicIDFromContext(c)
	policy, err := h.service.UpsertPolicy(c.Request.Context(), &clinicID, &req)
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, policy)
}

func (h *Handler) ListPolicies(c *gin.Context) {
	policies, err := h.service.ListPolicies(c.Request.Context(), middleware.ClinicIDFromContext(c))
	if err != nil {
		httputil.Error(c, err)
		return
	}
	httputil.OK(c, policies)
}
