// README: Registration, login, and the caller's own profile.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"carpool/internal/modules/identity"
	"carpool/internal/types"
)

type IdentityService interface {
	Register(ctx context.Context, cmd identity.RegisterCommand) (*identity.Session, error)
	Login(ctx context.Context, email, password string) (*identity.Session, error)
	Get(ctx context.Context, id types.ID) (*identity.User, error)
	SwitchMode(ctx context.Context, cmd identity.SwitchModeCommand) (*identity.User, error)
}

type UserHandler struct {
	base
	users IdentityService
}

func NewUserHandler(users IdentityService, opts Options) *UserHandler {
	return &UserHandler{base: newBase(opts), users: users}
}

type registerReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name" binding:"required"`
	Phone    string `json:"phone"`
}

// Register handles POST /auth/register.
func (h *UserHandler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Email, password and name are required")
		return
	}
	session, err := h.users.Register(c.Request.Context(), identity.RegisterCommand{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, session)
}

type loginReq struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login handles POST /auth/login.
func (h *UserHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Email and password are required")
		return
	}
	session, err := h.users.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, session)
}

// Me handles GET /users/me.
func (h *UserHandler) Me(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), caller(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, u)
}

type switchModeReq struct {
	Mode    identity.Mode     `json:"mode" binding:"required"`
	Vehicle *identity.Vehicle `json:"vehicle"`
}

// SwitchMode handles PUT /users/me/mode.
func (h *UserHandler) SwitchMode(c *gin.Context) {
	var req switchModeReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "Mode is required")
		return
	}
	u, err := h.users.SwitchMode(c.Request.Context(), identity.SwitchModeCommand{
		UserID:  caller(c),
		Mode:    req.Mode,
		Vehicle: req.Vehicle,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, u)
}

// Profile handles GET /users/:userId and exposes only the public projection.
func (h *UserHandler) Profile(c *gin.Context) {
	u, err := h.users.Get(c.Request.Context(), param(c, "userId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	writeJSON(c, http.StatusOK, u.Public())
}
