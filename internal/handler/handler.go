// Package handler maps HTTP requests onto the services.
package handler

import (
	"net/http"
	"strconv"
	"strings"
	"sync"

	"geounity/internal/logging"
	"geounity/internal/middleware"
	"geounity/internal/model"
	"geounity/internal/pkg"
	"geounity/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var registerOnce sync.Once

// RegisterValidators adds the username and community_name binding tags to gin's validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return service.ValidUsername(fl.Field().String())
		})
		_ = v.RegisterValidation("community_name", func(fl validator.FieldLevel) bool {
			return service.ValidCommunityName(strings.TrimSpace(fl.Field().String()))
		})
	})
}

// fail writes err as {"msg"}. Errors without a kind are logged and hidden.
func fail(c *gin.Context, err error) {
	status := pkg.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		logging.Ctx(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		_ = c.Error(err)
		c.JSON(status, gin.H{"msg": "internal server error"})
		return
	}
	c.JSON(status, gin.H{"msg": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params: " + err.Error()})
}

func actor(c *gin.Context) *model.User {
	return middleware.CurrentUser(c)
}

// idParam parses a numeric path parameter and answers 400 when it is not one.
func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid " + name})
		return 0, false
	}
	return id, true
}

func pageQuery(c *gin.Context) pkg.Page {
	page, _ := strconv.Atoi(c.Query("page"))
	size, _ := strconv.Atoi(c.Query("size"))
	return pkg.NewPage(page, size)
}

func uintQuery(c *gin.Context, name string) uint64 {
	v, _ := strconv.ParseUint(c.Query(name), 10, 64)
	return v
}

func optUintQuery(c *gin.Context, name string) *uint64 {
	raw, ok := c.GetQuery(name)
	if !ok {
		return nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &v
}

func replyOK(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"msg": "ok"})
}

// scopeReq is the geographic targeting shared by every content create request.
type scopeReq struct {
	Scope        model.Scope `json:"scope" binding:"required"`
	CountryCodes []string    `json:"country_codes"`
	CountryCode  string      `json:"country_code"`
	RegionID     uint64      `json:"region_id"`
	SubregionID  uint64      `json:"subregion_id"`
	LocalityID   uint64      `json:"locality_id"`
	CommunityIDs []uint64    `json:"community_ids"`
	Tags         []string    `json:"tags" binding:"omitempty,max=20,dive,max=50"`
}

func (r scopeReq) input() service.ScopeInput {
	return service.ScopeInput{
		Scope:        r.Scope,
		CountryCodes: r.CountryCodes,
		CountryCode:  r.CountryCode,
		RegionID:     r.RegionID,
		SubregionID:  r.SubregionID,
		LocalityID:   r.LocalityID,
	}
}

// contentQuery reads the list filters shared by the four aggregates.
func contentQuery(c *gin.Context) service.ContentQuery {
	return service.ContentQuery{
		Geo: service.GeoFilter{
			CommunityID: uintQuery(c, "community_id"),
			CountryCode: c.Query("country_code"),
			RegionID:    uintQuery(c, "region_id"),
			SubregionID: uintQuery(c, "subregion_id"),
			LocalityID:  uintQuery(c, "locality_id"),
		},
		Scope:     model.Scope(strings.ToUpper(c.Query("scope"))),
		Status:    strings.ToUpper(c.Query("status")),
		Tag:       c.Query("tag"),
		Search:    c.Query("search"),
		CreatorID: uintQuery(c, "creator_id"),
		Page:      pageQuery(c),
	}
}
