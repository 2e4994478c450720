package handler

import (
	"net/http"

	"geounity/internal/model"
	"geounity/internal/service"

	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	svc *service.ProjectService
}

func NewProjectHandler(svc *service.ProjectService) *ProjectHandler {
	return &ProjectHandler{svc: svc}
}

type resourceReq struct {
	Type        model.ResourceType `json:"type" binding:"required"`
	Description string             `json:"description" binding:"max=500"`
	Quantity    *float64           `json:"quantity" binding:"omitempty,gte=0"`
	Unit        string             `json:"unit" binding:"max=32"`
}

type stepReq struct {
	Title       string           `json:"title" binding:"required,max=100"`
	Description string           `json:"description" binding:"max=1000"`
	Order       int              `json:"order" binding:"gte=0"`
	Status      model.StepStatus `json:"status"`
	Resources   []resourceReq    `json:"resources" binding:"omitempty,dive"`
}

type projectCreateReq struct {
	scopeReq
	Title       string              `json:"title" binding:"required,max=100"`
	Description string              `json:"description" binding:"max=5000"`
	Status      model.ProjectStatus `json:"status"`
	GoalAmount  *float64            `json:"goal_amount" binding:"omitempty,gt=0"`
	IsAnonymous bool                `json:"is_anonymous"`
	Steps       []stepReq           `json:"steps" binding:"omitempty,dive"`
}

type projectUpdateReq struct {
	Title       *string              `json:"title" binding:"omitempty,max=100"`
	Description *string              `json:"description" binding:"omitempty,max=5000"`
	Status      *model.ProjectStatus `json:"status"`
	GoalAmount  *float64             `json:"goal_amount" binding:"omitempty,gt=0"`
	IsAnonymous *bool                `json:"is_anonymous"`
	Tags        *[]string            `json:"tags"`
}

type commitmentReq struct {
	Type        model.CommitmentType `json:"type" binding:"required"`
	Description string               `json:"description" binding:"max=500"`
	Quantity    *float64             `json:"quantity" binding:"omitempty,gte=0"`
	Unit        string               `json:"unit" binding:"max=32"`
	StepID      *uint64              `json:"step_id"`
}

type donationReq struct {
	Amount  float64 `json:"amount" binding:"required"`
	Message string  `json:"message" binding:"max=500"`
}

func (h *ProjectHandler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), contentQuery(c), actor(c))
	reply(c, res, err)
}

func (h *ProjectHandler) Create(c *gin.Context) {
	var req projectCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	steps := make([]service.StepCreate, 0, len(req.Steps))
	for _, s := range req.Steps {
		resources := make([]service.ResourceCreate, 0, len(s.Resources))
		for _, r := range s.Resources {
			resources = append(resources, service.ResourceCreate{Type: r.Type, Description: r.Description, Quantity: r.Quantity, Unit: r.Unit})
		}
		steps = append(steps, service.StepCreate{
			Title:       s.Title,
			Description: s.Description,
			Order:       s.Order,
			Status:      s.Status,
			Resources:   resources,
		})
	}
	p, err := h.svc.Create(c.Request.Context(), actor(c), service.ProjectCreate{
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		GoalAmount:   req.GoalAmount,
		IsAnonymous:  req.IsAnonymous,
		Scope:        req.input(),
		CommunityIDs: req.CommunityIDs,
		Tags:         req.Tags,
		Steps:        steps,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *ProjectHandler) Get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"), actor(c))
	reply(c, p, err)
}

func (h *ProjectHandler) Update(c *gin.Context) {
	var req projectUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.Update(c.Request.Context(), c.Param("id"), actor(c), service.ProjectUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		GoalAmount:  req.GoalAmount,
		IsAnonymous: req.IsAnonymous,
		Tags:        req.Tags,
	})
	reply(c, p, err)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProjectHandler) Commit(c *gin.Context) {
	var req commitmentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cm, err := h.svc.Commit(c.Request.Context(), c.Param("id"), actor(c), service.CommitmentInput{
		Type:        req.Type,
		Description: req.Description,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
		StepID:      req.StepID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cm)
}

// Donate leaves the amount check to the service so a zero or negative amount reads as a validation error.
func (h *ProjectHandler) Donate(c *gin.Context) {
	var req donationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.Donate(c.Request.Context(), c.Param("id"), actor(c), req.Amount, req.Message)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}
