package handler

import (
	"net/http"
	"strings"

	"geounity/internal/model"
	"geounity/internal/service"

	"github.com/gin-gonic/gin"
)

type OrganizationHandler struct {
	svc *service.OrganizationService
}

func NewOrganizationHandler(svc *service.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{svc: svc}
}

type organizationReq struct {
	Name         string                  `json:"name" binding:"required"`
	Description  string                  `json:"description"`
	Level        model.OrganizationLevel `json:"level" binding:"required"`
	ParentID     *uint64                 `json:"parent_id"`
	CommunityID  *uint64                 `json:"community_id"`
	RegionID     *uint64                 `json:"region_id"`
	SubregionID  *uint64                 `json:"subregion_id"`
	LocalityID   *uint64                 `json:"locality_id"`
	ContactEmail string                  `json:"contact_email"`
	ContactPhone string                  `json:"contact_phone"`
	Website      string                  `json:"website"`
}

type organizationPatchReq struct {
	Name         *string                  `json:"name"`
	Description  *string                  `json:"description"`
	Level        *model.OrganizationLevel `json:"level"`
	ParentID     *uint64                  `json:"parent_id"`
	CommunityID  *uint64                  `json:"community_id"`
	RegionID     *uint64                  `json:"region_id"`
	SubregionID  *uint64                  `json:"subregion_id"`
	LocalityID   *uint64                  `json:"locality_id"`
	ContactEmail *string                  `json:"contact_email"`
	ContactPhone *string                  `json:"contact_phone"`
	Website      *string                  `json:"website"`
}

func (h *OrganizationHandler) List(c *gin.Context) {
	res, err := h.svc.List(c.Request.Context(), service.OrganizationQuery{
		Level:       model.OrganizationLevel(strings.ToUpper(c.Query("level"))),
		ParentID:    optUintQuery(c, "parent_id"),
		CommunityID: uintQuery(c, "community_id"),
		RegionID:    uintQuery(c, "region_id"),
		SubregionID: uintQuery(c, "subregion_id"),
		LocalityID:  uintQuery(c, "locality_id"),
		Search:      c.Query("search"),
		Page:        pageQuery(c),
	})
	reply(c, res, err)
}

func (h *OrganizationHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	o, err := h.svc.Get(c.Request.Context(), id)
	reply(c, o, err)
}

func (h *OrganizationHandler) Create(c *gin.Context) {
	var req organizationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.svc.Create(c.Request.Context(), actor(c), service.OrganizationInput{
		Name:         req.Name,
		Description:  req.Description,
		Level:        model.OrganizationLevel(strings.ToUpper(string(req.Level))),
		ParentID:     req.ParentID,
		CommunityID:  req.CommunityID,
		RegionID:     req.RegionID,
		SubregionID:  req.SubregionID,
		LocalityID:   req.LocalityID,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Website:      req.Website,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, o)
}

func (h *OrganizationHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req organizationPatchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	o, err := h.svc.Update(c.Request.Context(), actor(c), id, service.OrganizationUpdate{
		Name:         req.Name,
		Description:  req.Description,
		Level:        req.Level,
		ParentID:     req.ParentID,
		CommunityID:  req.CommunityID,
		RegionID:     req.RegionID,
		SubregionID:  req.SubregionID,
		LocalityID:   req.LocalityID,
		ContactEmail: req.ContactEmail,
		ContactPhone: req.ContactPhone,
		Website:      req.Website,
	})
	reply(c, o, err)
}

func (h *OrganizationHandler) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), actor(c), id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
