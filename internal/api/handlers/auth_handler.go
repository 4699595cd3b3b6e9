package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Wikid82/bastion/internal/api/middleware"
	"github.com/Wikid82/bastion/internal/config"
	"github.com/Wikid82/bastion/internal/services"
)

// ResetMailer delivers password reset tokens out of band.
type ResetMailer interface {
	IsConfigured() bool
	SendPasswordReset(email, token string) error
}

type AuthHandler struct {
	authService *services.AuthService
	cfg         config.Config
	mailer      ResetMailer
}

// NewAuthHandler builds the auth endpoints. mailer may be nil.
func NewAuthHandler(authService *services.AuthService, cfg config.Config, mailer ResetMailer) *AuthHandler {
	return &AuthHandler{authService: authService, cfg: cfg, mailer: mailer}
}

func (h *AuthHandler) canMail() bool {
	return h.mailer != nil && h.mailer.IsConfigured()
}

// setSecureCookie sets an HttpOnly, SameSite=Strict cookie. Secure is set in
// production only so local http runs can still log in.
func (h *AuthHandler) setSecureCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(name, value, maxAge, "/", "", h.cfg.IsProduction(), true)
}

// writeAuthError maps service errors onto status codes. Rate limiting is
// surfaced with Retry-After; everything unexpected is a 500 without detail.
func writeAuthError(c *gin.Context, err error) {
	var rl *services.RateLimitError
	switch {
	case errors.As(err, &rl):
		c.Header("Retry-After", strconv.Itoa(rl.RetryAfterSeconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error":       "too many attempts",
			"retry_after": rl.RetryAfterSeconds,
		})
	case errors.Is(err, services.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
	case errors.Is(err, services.ErrAccountDisabled):
		c.JSON(http.StatusForbidden, gin.H{"error": "Account disabled"})
	case errors.Is(err, services.ErrEmailTaken):
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
	case errors.Is(err, services.ErrInvalidResetToken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid or expired reset token"})
	case errors.Is(err, services.ErrUserNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
	default:
		middleware.GetRequestLogger(c).WithError(err).Error("auth request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.Login(req.Email, req.Password, middleware.EventContext(c))
	if err != nil {
		writeAuthError(c, err)
		return
	}

	h.setSecureCookie(c, middleware.AuthCookieName, token, int(h.cfg.TokenTTL.Seconds()))
	c.JSON(http.StatusOK, gin.H{"token": token})
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
	Name     string `json:"name" binding:"required"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.authService.Register(req.Email, req.Password, req.Name)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

func (h *AuthHandler) Logout(c *gin.Context) {
	h.authService.Logout(middleware.GetClaims(c), middleware.EventContext(c))
	h.setSecureCookie(c, middleware.AuthCookieName, "", -1)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

func (h *AuthHandler) Me(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}
	u, err := h.authService.GetUserByID(claims.UserID)
	if err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":    u.ID,
		"uuid":       u.UUID,
		"role":       u.Role,
		"name":       u.Name,
		"email":      u.Email,
		"last_login": u.LastLogin,
		"expires_at": claims.ExpiresAt,
	})
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

func (h *AuthHandler) ChangePassword(c *gin.Context) {
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	if err := h.authService.ChangePassword(claims.UserID, req.OldPassword, req.NewPassword, middleware.EventContext(c)); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}

type PasswordResetRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// RequestPasswordReset always answers 202 for well-formed requests so the
// response does not reveal whether an account exists. With SMTP configured the
// token is mailed in the background; otherwise it is echoed back outside
// production only.
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.authService.RequestPasswordReset(req.Email, middleware.EventContext(c))
	if err != nil {
		writeAuthError(c, err)
		return
	}

	resp := gin.H{"message": "If the account exists, a reset token has been issued"}
	switch {
	case token == "":
	case h.canMail():
		log := middleware.GetRequestLogger(c)
		go func(email string) {
			if err := h.mailer.SendPasswordReset(email, token); err != nil {
				log.WithError(err).Error("password reset email failed")
			}
		}(req.Email)
	case !h.cfg.IsProduction():
		resp["reset_token"] = token
	}
	c.JSON(http.StatusAccepted, resp)
}

type CompletePasswordResetRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required,min=8"`
}

func (h *AuthHandler) CompletePasswordReset(c *gin.Context) {
	var req CompletePasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.authService.CompletePasswordReset(req.Email, req.Token, req.NewPassword, middleware.EventContext(c)); err != nil {
		writeAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password has been reset"})
}
