package handler

import (
	"net/http"

	"geounity/internal/service"

	"github.com/gin-gonic/gin"
)

type UserHandler struct {
	svc *service.UserService
}

func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

type registerReq struct {
	Username string `json:"username" binding:"required,username"`
	Email    string `json:"email" binding:"required,email,max=128"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type loginReq struct {
	// Login is a username or an email.
	Login    string `json:"login" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type changePasswordReq struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8,max=72"`
}

type usernameReq struct {
	Username string `json:"username" binding:"required,username"`
}

type profileReq struct {
	Name    *string `json:"name"`
	Image   *string `json:"image"`
	Cover   *string `json:"cover"`
	Bio     *string `json:"bio"`
	Country *string `json:"country"`
	Website *string `json:"website"`
	Gender  *string `json:"gender"`
}

func (h *UserHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.svc.Register(c.Request.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, u)
}

func (h *UserHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.Login(c.Request.Context(), req.Login, req.Password)
	reply(c, res, err)
}

func (h *UserHandler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), actor(c)); err != nil {
		fail(c, err)
		return
	}
	replyOK(c)
}

func (h *UserHandler) Refresh(c *gin.Context) {
	var req refreshReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	pair, err := h.svc.Refresh(c.Request.Context(), req.RefreshToken)
	reply(c, pair, err)
}

func (h *UserHandler) Me(c *gin.Context) {
	u, err := h.svc.Me(c.Request.Context(), actor(c))
	reply(c, u, err)
}

func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req profileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.svc.UpdateMe(c.Request.Context(), actor(c), service.UserUpdate{
		Name:    req.Name,
		Image:   req.Image,
		Cover:   req.Cover,
		Bio:     req.Bio,
		Country: req.Country,
		Website: req.Website,
		Gender:  req.Gender,
	})
	reply(c, u, err)
}

func (h *UserHandler) UpdateUsername(c *gin.Context) {
	var req usernameReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.svc.UpdateUsername(c.Request.Context(), actor(c), req.Username)
	reply(c, u, err)
}

// ChangePassword ends the current session; the client logs in again.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req changePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.svc.ChangePassword(c.Request.Context(), actor(c), req.OldPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "password changed"})
}

func (h *UserHandler) Profile(c *gin.Context) {
	p, err := h.svc.GetByUsername(c.Request.Context(), c.Param("username"), actor(c))
	reply(c, p, err)
}
