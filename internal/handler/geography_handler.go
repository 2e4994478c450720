package handler

import (
	"net/http"

	"geounity/internal/service"

	"github.com/gin-gonic/gin"
)

type GeographyHandler struct {
	svc *service.GeographyService
}

func NewGeographyHandler(svc *service.GeographyService) *GeographyHandler {
	return &GeographyHandler{svc: svc}
}

// reply writes v or the error.
func reply[T any](c *gin.Context, v T, err error) {
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *GeographyHandler) Continents(c *gin.Context) {
	list, err := h.svc.ListContinents(c.Request.Context())
	reply(c, list, err)
}

func (h *GeographyHandler) Countries(c *gin.Context) {
	list, err := h.svc.ListCountries(c.Request.Context(), optUintQuery(c, "continent_id"))
	reply(c, list, err)
}

// Country accepts a name, cca2 or cca3.
func (h *GeographyHandler) Country(c *gin.Context) {
	country, err := h.svc.GetCountry(c.Request.Context(), c.Param("name"))
	reply(c, country, err)
}

func (h *GeographyHandler) CountryRegions(c *gin.Context) {
	list, err := h.svc.ListCountryRegions(c.Request.Context(), c.Param("name"))
	reply(c, list, err)
}

func (h *GeographyHandler) Region(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	region, err := h.svc.GetRegion(c.Request.Context(), id)
	reply(c, region, err)
}

func (h *GeographyHandler) RegionSubregions(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	list, err := h.svc.ListRegionSubregions(c.Request.Context(), id, c.Query("name"))
	reply(c, list, err)
}

func (h *GeographyHandler) Subregion(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	sub, err := h.svc.GetSubregion(c.Request.Context(), id)
	reply(c, sub, err)
}

func (h *GeographyHandler) SubregionLocalities(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	list, err := h.svc.ListSubregionLocalities(c.Request.Context(), id, c.Query("name"))
	reply(c, list, err)
}
