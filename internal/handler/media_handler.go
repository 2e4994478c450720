package handler

import (
	"net/http"

	"geounity/internal/service"
	"geounity/internal/storage"

	"github.com/gin-gonic/gin"
)

type MediaHandler struct {
	svc *service.MediaService
}

func NewMediaHandler(svc *service.MediaService) *MediaHandler {
	return &MediaHandler{svc: svc}
}

// Upload accepts one multipart "file" field.
func (h *MediaHandler) Upload(c *gin.Context) {
	// leave room for the multipart envelope around the file itself
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, storage.MaxImageSize+1<<20)
	fh, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, err)
		return
	}
	defer f.Close()

	up, err := h.svc.UploadImage(c.Request.Context(), actor(c), f, fh.Size)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, up)
}
