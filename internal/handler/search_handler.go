package handler

import (
	"net/http"
	"strings"

	"geounity/internal/model"
	"geounity/internal/search"

	"github.com/gin-gonic/gin"
)

type SearchHandler struct {
	svc *search.Service
}

func NewSearchHandler(svc *search.Service) *SearchHandler {
	return &SearchHandler{svc: svc}
}

func (h *SearchHandler) Search(c *gin.Context) {
	text := strings.TrimSpace(c.Query("q"))
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "q is required"})
		return
	}
	kind := model.ContentKind(strings.ToLower(c.Query("kind")))
	switch kind {
	case "", model.KindPoll, model.KindDebate, model.KindIssue, model.KindProject:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid kind"})
		return
	}
	page := pageQuery(c)
	res, err := h.svc.Search(c.Request.Context(), search.Query{
		Text:   text,
		Kind:   kind,
		Offset: page.Offset(),
		Limit:  page.Size,
	})
	reply(c, res, err)
}
