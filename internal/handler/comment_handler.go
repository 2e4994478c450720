package handler

import (
	"net/http"

	"geounity/internal/model"
	"geounity/internal/service"

	"github.com/gin-gonic/gin"
)

// CommentHandler serves the comment threads of all four aggregates.
type CommentHandler struct {
	svc *service.CommentService
}

func NewCommentHandler(svc *service.CommentService) *CommentHandler {
	return &CommentHandler{svc: svc}
}

type commentReq struct {
	Content string `json:"content" binding:"required,max=2000"`
}

func (h *CommentHandler) List(kind model.ContentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := h.svc.List(c.Request.Context(), kind, c.Param("id"), pageQuery(c))
		reply(c, res, err)
	}
}

func (h *CommentHandler) Add(kind model.ContentKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req commentReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
		cm, err := h.svc.Add(c.Request.Context(), kind, c.Param("id"), actor(c), req.Content)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusCreated, cm)
	}
}

func (h *CommentHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id, actor(c)); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
