package handler

import (
	"net/http"
	"strings"

	"geounity/internal/model"
	"geounity/internal/service"

	"github.com/gin-gonic/gin"
)

type ReportHandler struct {
	svc *service.ReportService
}

func NewReportHandler(svc *service.ReportService) *ReportHandler {
	return &ReportHandler{svc: svc}
}

type reportReq struct {
	Type    model.ReportType   `json:"type" binding:"required"`
	Reason  model.ReportReason `json:"reason" binding:"required"`
	ItemID  uint64             `json:"item_id" binding:"required"`
	Details string             `json:"details"`
}

type reportStatusReq struct {
	Status          model.ReportStatus `json:"status" binding:"required"`
	ResolutionNotes string             `json:"resolution_notes"`
}

func (h *ReportHandler) Create(c *gin.Context) {
	var req reportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	rep, err := h.svc.Create(c.Request.Context(), actor(c), service.ReportCreate{
		Type:    model.ReportType(strings.ToUpper(string(req.Type))),
		Reason:  model.ReportReason(strings.ToUpper(string(req.Reason))),
		ItemID:  req.ItemID,
		Details: req.Details,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, rep)
}

func (h *ReportHandler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), actor(c), service.ReportQuery{
		Status: model.ReportStatus(strings.ToUpper(c.Query("status"))),
		Type:   model.ReportType(strings.ToUpper(c.Query("type"))),
		Page:   pageQuery(c),
	})
	reply(c, res, err)
}

func (h *ReportHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	rep, err := h.svc.Get(c.Request.Context(), actor(c), id)
	reply(c, rep, err)
}

func (h *ReportHandler) UpdateStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req reportStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	status := model.ReportStatus(strings.ToUpper(string(req.Status)))
	rep, err := h.svc.UpdateStatus(c.Request.Context(), actor(c), id, status, req.ResolutionNotes)
	reply(c, rep, err)
}
