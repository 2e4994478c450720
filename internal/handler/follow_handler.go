package handler

import (
	"strconv"

	"geounity/internal/service"

	"github.com/gin-gonic/gin"
)

type FollowHandler struct {
	svc *service.FollowService
}

func NewFollowHandler(svc *service.FollowService) *FollowHandler {
	return &FollowHandler{svc: svc}
}

type followReq struct {
	Username string `json:"username" binding:"required"`
	Action   string `json:"action" binding:"required,oneof=follow unfollow"`
}

func (h *FollowHandler) Follow(c *gin.Context) {
	var req followReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.SetFollow(c.Request.Context(), actor(c), req.Username, req.Action == "follow")
	reply(c, res, err)
}

func cursorQuery(c *gin.Context) (uint64, int) {
	cursor, _ := strconv.ParseUint(c.Query("cursor"), 10, 64)
	limit, _ := strconv.Atoi(c.Query("limit"))
	return cursor, limit
}

func (h *FollowHandler) ListFollowings(c *gin.Context) {
	cursor, limit := cursorQuery(c)
	page, err := h.svc.ListFollowings(c.Request.Context(), c.Param("username"), cursor, limit)
	reply(c, page, err)
}

func (h *FollowHandler) ListFollowers(c *gin.Context) {
	cursor, limit := cursorQuery(c)
	page, err := h.svc.ListFollowers(c.Request.Context(), c.Param("username"), cursor, limit)
	reply(c, page, err)
}

func (h *FollowHandler) Relation(c *gin.Context) {
	following, err := h.svc.IsFollowing(c.Request.Context(), actor(c), c.Param("username"))
	reply(c, gin.H{"following": following}, err)
}
