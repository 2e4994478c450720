package handler

import (
	"net/http"
	"time"

	"geounity/internal/model"
	"geounity/internal/service"

	"github.com/gin-gonic/gin"
)

type PollHandler struct {
	svc *service.PollService
}

func NewPollHandler(svc *service.PollService) *PollHandler {
	return &PollHandler{svc: svc}
}

type pollCreateReq struct {
	scopeReq
	Title       string           `json:"title" binding:"required,max=100"`
	Description string           `json:"description" binding:"max=500"`
	Type        model.PollType   `json:"type" binding:"required"`
	IsAnonymous *bool            `json:"is_anonymous"`
	EndsAt      *time.Time       `json:"ends_at"`
	Status      model.PollStatus `json:"status"`
	Options     []string         `json:"options" binding:"required,min=2,dive,required,max=150"`
}

type pollUpdateReq struct {
	Title       *string           `json:"title" binding:"omitempty,max=100"`
	Description *string           `json:"description" binding:"omitempty,max=500"`
	Status      *model.PollStatus `json:"status"`
	EndsAt      *time.Time        `json:"ends_at"`
	IsAnonymous *bool             `json:"is_anonymous"`
	Tags        *[]string         `json:"tags"`
}

type voteReq struct {
	OptionIDs []uint64 `json:"option_ids" binding:"required,min=1"`
}

type reactReq struct {
	Reaction model.ReactionType `json:"reaction" binding:"required,oneof=LIKE DISLIKE"`
}

func (h *PollHandler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), contentQuery(c), actor(c))
	reply(c, res, err)
}

func (h *PollHandler) Create(c *gin.Context) {
	var req pollCreateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.Create(c.Request.Context(), actor(c), service.PollCreate{
		Title:        req.Title,
		Description:  req.Description,
		Type:         req.Type,
		IsAnonymous:  req.IsAnonymous,
		EndsAt:       req.EndsAt,
		Status:       req.Status,
		Scope:        req.input(),
		CommunityIDs: req.CommunityIDs,
		Tags:         req.Tags,
		Options:      req.Options,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// Get accepts an id or a slug.
func (h *PollHandler) Get(c *gin.Context) {
	p, err := h.svc.Get(c.Request.Context(), c.Param("id"), actor(c))
	reply(c, p, err)
}

func (h *PollHandler) Update(c *gin.Context) {
	var req pollUpdateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.Update(c.Request.Context(), c.Param("id"), actor(c), service.PollUpdate{
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		EndsAt:      req.EndsAt,
		IsAnonymous: req.IsAnonymous,
		Tags:        req.Tags,
	})
	reply(c, p, err)
}

func (h *PollHandler) Delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("id"), actor(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *PollHandler) Vote(c *gin.Context) {
	var req voteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	p, err := h.svc.Vote(c.Request.Context(), c.Param("id"), actor(c), req.OptionIDs)
	reply(c, p, err)
}

func (h *PollHandler) Unvote(c *gin.Context) {
	p, err := h.svc.Unvote(c.Request.Context(), c.Param("id"), actor(c))
	reply(c, p, err)
}

func (h *PollHandler) React(c *gin.Context) {
	var req reactReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.React(c.Request.Context(), c.Param("id"), actor(c), req.Reaction)
	reply(c, res, err)
}
