package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"flowdesk/internal/service"
)

const messageLoggedIn = "Login successful"

// AuthHandler expone los flujos de credenciales.
type AuthHandler struct {
	responder
	creds *service.CredentialService
}

// NewAuthHandler crea el handler; exposeDetail habilita el detalle interno de
// errores fuera de producción.
func NewAuthHandler(logger *zap.Logger, creds *service.CredentialService, exposeDetail bool) *AuthHandler {
	return &AuthHandler{
		responder: newResponder(logger, exposeDetail),
		creds:     creds,
	}
}

// Register maneja POST /auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		FirstName string `json:"firstName"`
		LastName  string `json:"lastName"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailure(c, err)
		return
	}

	profile, err := h.creds.Register(c.Request.Context(), service.NewAccount{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusCreated, service.MessageRegistered, gin.H{"user": profile})
}

// Login maneja POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailure(c, err)
		return
	}

	result, err := h.creds.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, messageLoggedIn, result)
}

// VerifyEmail maneja GET /auth/verify-email?token=.
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	if err := h.creds.VerifyEmail(c.Request.Context(), c.Query("token")); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, service.MessageEmailVerified, nil)
}

// ResendVerification maneja POST /auth/resend-verification.
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailure(c, err)
		return
	}

	message, err := h.creds.ResendVerification(c.Request.Context(), req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, message, nil)
}

// ForgotPassword maneja POST /auth/forgot-password.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailure(c, err)
		return
	}

	message, err := h.creds.ForgotPassword(c.Request.Context(), req.Email)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, message, nil)
}

// ResetPassword maneja POST /auth/reset-password.
func (h *AuthHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Token       string `json:"token" binding:"required"`
		NewPassword string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailure(c, err)
		return
	}

	if err := h.creds.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, service.MessagePasswordReset, nil)
}

// RefreshToken maneja POST /auth/refresh.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailure(c, err)
		return
	}

	tokens, err := h.creds.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "", gin.H{"tokens": tokens})
}

// Logout maneja POST /auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refreshToken" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailure(c, err)
		return
	}

	if err := h.creds.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, service.MessageLoggedOut, nil)
}

// Me maneja GET /auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		h.fail(c, errUnauthorized())
		return
	}
	h.ok(c, http.StatusOK, "", gin.H{"user": user.Profile()})
}

// UpdateProfile maneja PATCH /auth/me.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		h.fail(c, errUnauthorized())
		return
	}
	var req struct {
		FirstName string `json:"firstName" binding:"required"`
		LastName  string `json:"lastName" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailure(c, err)
		return
	}

	profile, err := h.creds.UpdateProfile(c.Request.Context(), user.ID, service.ProfileUpdate{
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, service.MessageProfileUpdated, gin.H{"user": profile})
}

// ChangePassword maneja POST /auth/change-password.
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user, ok := CurrentUser(c)
	if !ok {
		h.fail(c, errUnauthorized())
		return
	}
	var req struct {
		CurrentPassword string `json:"currentPassword" binding:"required"`
		NewPassword     string `json:"newPassword" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindFailure(c, err)
		return
	}

	if err := h.creds.ChangePassword(c.Request.Context(), user, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, service.MessagePasswordChanged, nil)
}

// GetUser maneja GET /users/:id.
func (h *AuthHandler) GetUser(c *gin.Context) {
	profile, err := h.creds.GetUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	h.ok(c, http.StatusOK, "", gin.H{"user": profile})
}
