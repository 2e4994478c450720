package handler

import (
	"net/http"

	"geounity/internal/model"
	"geounity/internal/service"

	"github.com/gin-gonic/gin"
)

type DebateHandler struct {
	svc *service.DebateService
}

func NewDebateHandler(svc *service.DebateService) *DebateHandler {
	return &DebateHandler{svc: svc}
}

type pointOfViewReq struct {
	Name        string `json:"name" binding:"max=100"`
	CommunityID uint64 `json:"community_id" binding:"required"`
}

type debateCreateReq struct {
	scopeReq
	Title        string             `json:"title" binding:"required,min=5,max=100"`
	Description  string             `json:"description" binding:"max=10000"`
	Status       model.DebateStatus `json:"status"`
	Language     string             `json:"language" binding:"omitempty,oneof=en es fr"`
	Public       *bool              `json:"public"`
	IsAnonymous  bool               `json:"is_anonymous"`
	Images       []string           `json:"images" binding:"omitempty,dive,url"`
	PointsOfView []pointOfViewReq   `json:"points_of_view" binding:"omitempty,dive"`
}

type debateUpdateReq struct {
	Title       *string             `json:"title" binding:"omitempty,min=5,max=100"`
	Description *string             `json:"description" binding:"omitempty,max=10000"`
	Status      *model.DebateStatus `json:"status"`
	Language    *string             `json:"language" binding:"omitempty,oneof=en es fr"`
	Public      *bool               `json:"public"`
	IsAnonymous *bool               `json:"is_anonymous"`
	Images      *[]string           `json:"images"`
	Tags        *[]string           `json:"tags"`
}

type opinionReq struct {
	CommunityID uint64 `json:"community_id" binding:"required"`
	Content     string `json:"content" binding:"required,max=1000"`
}

type opinionVoteReq struct {
	Value *int `json:"value" binding:"required,oneof=-1 0 1"`
}

type moderationReq struct {
	Approve *bool  `json:"approve" binding:"required"`
	Notes   string `json:"notes" binding:"max=1000"`
}

func (h *DebateHandler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), contentQuery(c), actor(c))
	reply(c, res, err)
}

func (h *DebateHandler) Create(c *gin.Context) {
	var req debateCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	povs := make([]service.PointOfViewInput, 0, len(req.PointsOfView))
	for _, p := range req.PointsOfView {
		povs = append(povs, service.PointOfViewInput{Name: p.Name, CommunityID: p.CommunityID})
	}
	d, err := h.svc.Create(c.Request.Context(), actor(c), service.DebateCreate{
		Title:        req.Title,
		Description:  req.Description,
		Status:       req.Status,
		Language:     req.Language,
		Public:       req.Public,
		IsAnonymous:  req.IsAnonymous,
		Images:       req.Images,
		Scope:        req.input(),
		CommunityIDs: req.CommunityIDs,
		Tags:         req.Tags,
		PointsOfView: povs,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *DebateHandler) Get(c *gin.Context) {
	d, err := h.svc.Get(c.Request.Context(), c.Param("id"), actor(c))
	reply(c, d, err)
}

func (h *DebateHandler) Update(c *gin.Context) {
	var req debateUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.svc.Update(c.Request.Context(), c.Param("id"), actor(c), service.DebateUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		Language:    req.Language,
		Public:      req.Public,
		IsAnonymous: req.IsAnonymous,
		Images:      req.Images,
		Tags:        req.Tags,
	})
	reply(c, d, err)
}

// Delete is soft; the debate disappears from every read.
func (h *DebateHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DebateHandler) AddOpinion(c *gin.Context) {
	var req opinionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	op, err := h.svc.AddOpinion(c.Request.Context(), c.Param("id"), actor(c), service.OpinionInput{
		CommunityID: req.CommunityID,
		Content:     req.Content,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, op)
}

func (h *DebateHandler) VoteOpinion(c *gin.Context) {
	id, valid := idParam(c, "opinion_id")
	if !valid {
		return
	}
	var req opinionVoteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	op, err := h.svc.VoteOpinion(c.Request.Context(), id, actor(c), *req.Value)
	reply(c, op, err)
}

func (h *DebateHandler) Moderate(c *gin.Context) {
	var req moderationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	d, err := h.svc.Moderate(c.Request.Context(), c.Param("id"), actor(c), *req.Approve, req.Notes)
	reply(c, d, err)
}
