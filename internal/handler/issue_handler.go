package handler

import (
	"net/http"

	"geounity/internal/model"
	"geounity/internal/service"

	"github.com/gin-gonic/gin"
)

type IssueHandler struct {
	svc *service.IssueService
}

func NewIssueHandler(svc *service.IssueService) *IssueHandler {
	return &IssueHandler{svc: svc}
}

type issueCreateReq struct {
	scopeReq
	Title               string   `json:"title" binding:"required,max=200"`
	Description         string   `json:"description" binding:"max=5000"`
	LocationDescription string   `json:"location_description" binding:"max=255"`
	Latitude            *float64 `json:"latitude" binding:"omitempty,latitude"`
	Longitude           *float64 `json:"longitude" binding:"omitempty,longitude"`
	CategoryID          *uint64  `json:"category_id"`
	OrganizationID      *uint64  `json:"organization_id"`
	IsAnonymous         bool     `json:"is_anonymous"`
	Images              []string `json:"images" binding:"omitempty,dive,url"`
}

type issueUpdateReq struct {
	Title               *string            `json:"title" binding:"omitempty,max=200"`
	Description         *string            `json:"description" binding:"omitempty,max=5000"`
	Status              *model.IssueStatus `json:"status"`
	LocationDescription *string            `json:"location_description"`
	Latitude            *float64           `json:"latitude" binding:"omitempty,latitude"`
	Longitude           *float64           `json:"longitude" binding:"omitempty,longitude"`
	CategoryID          *uint64            `json:"category_id"`
	OrganizationID      *uint64            `json:"organization_id"`
	IsAnonymous         *bool              `json:"is_anonymous"`
	Images              *[]string          `json:"images"`
	Tags                *[]string          `json:"tags"`
}

type issueProgressReq struct {
	Content        string             `json:"content" binding:"required,max=2000"`
	NewStatus      *model.IssueStatus `json:"new_status"`
	OrganizationID *uint64            `json:"organization_id"`
}

type categoryReq struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=500"`
}

func (h *IssueHandler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), service.IssueQuery{
		ContentQuery:   contentQuery(c),
		CategoryID:     uintQuery(c, "category_id"),
		OrganizationID: uintQuery(c, "organization_id"),
	}, actor(c))
	reply(c, res, err)
}

func (h *IssueHandler) Create(c *gin.Context) {
	var req issueCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	is, err := h.svc.Create(c.Request.Context(), actor(c), service.IssueCreate{
		Title:               req.Title,
		Description:         req.Description,
		Scope:               req.input(),
		LocationDescription: req.LocationDescription,
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
		CategoryID:          req.CategoryID,
		OrganizationID:      req.OrganizationID,
		IsAnonymous:         req.IsAnonymous,
		Images:              req.Images,
		CommunityIDs:        req.CommunityIDs,
		Tags:                req.Tags,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, is)
}

func (h *IssueHandler) Get(c *gin.Context) {
	is, err := h.svc.Get(c.Request.Context(), c.Param("id"), actor(c))
	reply(c, is, err)
}

func (h *IssueHandler) Update(c *gin.Context) {
	var req issueUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	is, err := h.svc.Update(c.Request.Context(), c.Param("id"), actor(c), service.IssueUpdate{
		Title:               req.Title,
		Description:         req.Description,
		Status:              req.Status,
		LocationDescription: req.LocationDescription,
		Latitude:            req.Latitude,
		Longitude:           req.Longitude,
		CategoryID:          req.CategoryID,
		OrganizationID:      req.OrganizationID,
		IsAnonymous:         req.IsAnonymous,
		Images:              req.Images,
		Tags:                req.Tags,
	})
	reply(c, is, err)
}

func (h *IssueHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *IssueHandler) ToggleSupport(c *gin.Context) {
	res, err := h.svc.ToggleSupport(c.Request.Context(), c.Param("id"), actor(c))
	reply(c, res, err)
}

func (h *IssueHandler) AddUpdate(c *gin.Context) {
	var req issueProgressReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.svc.AddUpdate(c.Request.Context(), c.Param("id"), actor(c), service.IssueProgress{
		Content:        req.Content,
		NewStatus:      req.NewStatus,
		OrganizationID: req.OrganizationID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *IssueHandler) Categories(c *gin.Context) {
	list, err := h.svc.Categories(c.Request.Context())
	reply(c, list, err)
}

func (h *IssueHandler) CreateCategory(c *gin.Context) {
	var req categoryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cat, err := h.svc.CreateCategory(c.Request.Context(), actor(c), req.Name, req.Description)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}
