package handler

import (
	"net/http"
	"strings"

	"geounity/internal/model"
	"geounity/internal/service"

	"github.com/gin-gonic/gin"
)

type CommunityHandler struct {
	svc *service.CommunityService
}

func NewCommunityHandler(svc *service.CommunityService) *CommunityHandler {
	return &CommunityHandler{svc: svc}
}

type visibilityReq struct {
	IsPublic *bool `json:"is_public" binding:"required"`
}

type communityRequestReq struct {
	Name        string  `json:"name" binding:"required,community_name"`
	Description string  `json:"description" binding:"max=500"`
	ParentID    *uint64 `json:"parent_id"`
}

type reviewReq struct {
	Approve *bool  `json:"approve" binding:"required"`
	Notes   string `json:"notes" binding:"max=1000"`
}

func (h *CommunityHandler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), service.CommunityListQuery{
		Level:    model.CommunityLevel(strings.ToUpper(c.Query("level"))),
		ParentID: optUintQuery(c, "parent_id"),
		Search:   c.Query("search"),
		Page:     pageQuery(c),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Search resolves level + place names to one community.
func (h *CommunityHandler) Search(c *gin.Context) {
	comm, err := h.svc.SearchCommunity(c.Request.Context(), service.CommunitySearch{
		Level:     model.CommunityLevel(strings.ToUpper(c.Query("level"))),
		Country:   c.Query("country"),
		Region:    c.Query("region"),
		Subregion: c.Query("subregion"),
		Local:     c.Query("local"),
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, comm)
}

func (h *CommunityHandler) Get(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	comm, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, comm)
}

func (h *CommunityHandler) Children(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	list, err := h.svc.Children(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *CommunityHandler) Ancestors(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	list, err := h.svc.Ancestors(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *CommunityHandler) Members(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	res, err := h.svc.Members(c.Request.Context(), id, actor(c), pageQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *CommunityHandler) Join(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	created, err := h.svc.Join(c.Request.Context(), id, actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	if !created {
		c.JSON(http.StatusOK, gin.H{"msg": "already a member"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"msg": "joined"})
}

func (h *CommunityHandler) Leave(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	if err := h.svc.Leave(c.Request.Context(), id, actor(c)); err != nil {
		fail(c, err)
		return
	}
	replyOK(c)
}

func (h *CommunityHandler) UpdateVisibility(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req visibilityReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.UpdateVisibility(c.Request.Context(), id, actor(c), *req.IsPublic); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_public": *req.IsPublic})
}

func (h *CommunityHandler) MyCommunities(c *gin.Context) {
	list, err := h.svc.MyCommunities(c.Request.Context(), actor(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *CommunityHandler) CreateRequest(c *gin.Context) {
	var req communityRequestReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := h.svc.RequestCommunity(c.Request.Context(), actor(c), service.CommunityRequestInput{
		Name:        req.Name,
		Description: req.Description,
		ParentID:    req.ParentID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, r)
}

func (h *CommunityHandler) ListRequests(c *gin.Context) {
	status := model.RequestStatus(strings.ToUpper(c.Query("status")))
	res, err := h.svc.ListRequests(c.Request.Context(), actor(c), status, pageQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *CommunityHandler) ReviewRequest(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req reviewReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	r, err := h.svc.ReviewRequest(c.Request.Context(), actor(c), id, *req.Approve, req.Notes)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
