package services

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Wikid82/bastion/internal/config"
	"github.com/Wikid82/bastion/internal/logger"
	"github.com/Wikid82/bastion/internal/models"
	"github.com/Wikid82/bastion/internal/ratelimit"
	"github.com/Wikid82/bastion/internal/securitylog"
	"github.com/Wikid82/bastion/internal/version"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account disabled")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidToken       = errors.New("invalid token")
	ErrInvalidResetToken  = errors.New("invalid or expired reset token")
	ErrUserNotFound       = errors.New("user not found")
	ErrRateLimited        = errors.New("too many attempts")
)

// resetTokenTTL bounds how long an emailed reset token stays valid.
const resetTokenTTL = time.Hour

// RateLimitError reports a request refused by a limiter. It matches
// ErrRateLimited with errors.Is.
type RateLimitError struct {
	Limiter           string
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts, retry in %d seconds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// Claims are carried by session tokens. RegisteredClaims.ID identifies the session.
type Claims struct {
	UserID uint   `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// AuthService authenticates users. Every credential check passes through a
// limiter first and every outcome is reported to the security event logger.
type AuthService struct {
	db       *gorm.DB
	cfg      config.Config
	limiters *ratelimit.Set
	events   *securitylog.Logger
	now      func() time.Time
}

// NewAuthService wires the service. limiters must not be nil; events may be.
func NewAuthService(db *gorm.DB, cfg config.Config, limiters *ratelimit.Set, events *securitylog.Logger) *AuthService {
	return &AuthService{db: db, cfg: cfg, limiters: limiters, events: events, now: time.Now}
}

// Events exposes the security event logger so HTTP middleware reports
// through the same pipeline.
func (s *AuthService) Events() *securitylog.Logger {
	if s == nil {
		return nil
	}
	return s.events
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account. The first account becomes an admin.
func (s *AuthService) Register(email, password, name string) (*models.User, error) {
	email = normalizeEmail(email)

	var count int64
	if err := s.db.Model(&models.User{}).Count(&count).Error; err != nil {
		return nil, err
	}
	var existing int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		return nil, err
	}
	if existing > 0 {
		return nil, ErrEmailTaken
	}

	role := models.RoleUser
	if count == 0 {
		role = models.RoleAdmin
	}

	user := &models.User{
		UUID:    uuid.NewString(),
		Email:   email,
		Name:    name,
		Role:    role,
		Enabled: true,
	}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}
	if err := s.db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// Login verifies credentials and returns a signed session token. A blocked
// identifier is refused with *RateLimitError before the password is checked.
func (s *AuthService) Login(email, password string, ec securitylog.EventContext) (string, error) {
	email = normalizeEmail(email)
	src := ec.SourceAddress

	res := s.limiters.Login.Attempt(email, ratelimit.ActionLogin)
	if res.Blocked {
		s.events.LogRateLimitExceeded(email, ratelimit.ActionLogin, src)
		if res.Triggered {
			s.events.LogAccountLocked(email, src, res.RetryAfterSeconds)
		}
		return "", &RateLimitError{Limiter: ratelimit.NameLogin, RetryAfterSeconds: res.RetryAfterSeconds}
	}

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.events.LogLoginAttempt(email, false, src, map[string]any{
				"reason":             "unknown_account",
				"remaining_attempts": res.RemainingAttempts,
			})
			return "", ErrInvalidCredentials
		}
		return "", err
	}

	if !user.CheckPassword(password) {
		if err := s.db.Model(&user).UpdateColumn("failed_login_attempts", gorm.Expr("failed_login_attempts + ?", 1)).Error; err != nil {
			logger.Log().WithError(err).WithField("user_id", user.ID).Warn("failed to record failed login")
		}
		s.events.LogLoginAttempt(email, false, src, map[string]any{
			"reason":             "bad_password",
			"remaining_attempts": res.RemainingAttempts,
		})
		return "", ErrInvalidCredentials
	}
	if !user.Enabled {
		s.events.LogLoginAttempt(email, false, src, map[string]any{"reason": "disabled"})
		return "", ErrAccountDisabled
	}

	s.limiters.Login.Reset(email, ratelimit.ActionLogin)
	now := s.now()
	if err := s.db.Model(&user).Updates(map[string]any{
		"failed_login_attempts": 0,
		"last_login":            now,
	}).Error; err != nil {
		return "", err
	}

	token, err := s.issueToken(&user, now)
	if err != nil {
		return "", err
	}
	s.events.LogLoginAttempt(email, true, src, map[string]any{"user_id": user.ID})
	return token, nil
}

func (s *AuthService) issueToken(user *models.User, now time.Time) (string, error) {
	claims := Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.UUID,
			Issuer:    strings.ToLower(version.Name),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// ValidateToken checks the signature and expiry of a session token.
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(strings.ToLower(version.Name)),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

// GetUserByID loads a user.
func (s *AuthService) GetUserByID(id uint) (*models.User, error) {
	var user models.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// ChangePassword replaces the password after verifying the current one.
func (s *AuthService) ChangePassword(userID uint, oldPassword, newPassword string, ec securitylog.EventContext) error {
	user, err := s.GetUserByID(userID)
	if err != nil {
		return err
	}
	if !user.CheckPassword(oldPassword) {
		s.events.LogDataModification(user.Email, "password", map[string]any{"failed": true, "reason": "bad_password"}, ec)
		return ErrInvalidCredentials
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	if err := s.db.Model(user).Update("password_hash", user.PasswordHash).Error; err != nil {
		return err
	}
	s.events.LogDataModification(user.Email, "password", nil, ec)
	return nil
}

// Logout records the end of a session. Tokens are stateless and simply expire.
func (s *AuthService) Logout(claims *Claims, ec securitylog.EventContext) {
	if claims == nil {
		return
	}
	actor := claims.Subject
	if user, err := s.GetUserByID(claims.UserID); err == nil {
		actor = user.Email
	}
	s.events.LogLogout(actor, claims.ID, ec.SourceAddress)
}

// RequestPasswordReset issues a reset token for email. Unknown addresses
// return an empty token and no error so callers cannot enumerate accounts.
func (s *AuthService) RequestPasswordReset(email string, ec securitylog.EventContext) (string, error) {
	email = normalizeEmail(email)
	src := ec.SourceAddress

	res := s.limiters.PasswordReset.Attempt(email, ratelimit.ActionPasswordReset)
	if res.Blocked {
		s.events.LogRateLimitExceeded(email, ratelimit.ActionPasswordReset, src)
		return "", &RateLimitError{Limiter: ratelimit.NamePasswordReset, RetryAfterSeconds: res.RetryAfterSeconds}
	}

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.events.LogPasswordResetRequested(email, src, false)
			return "", nil
		}
		return "", err
	}

	token, err := randomToken()
	if err != nil {
		return "", err
	}
	if err := user.SetResetToken(token, s.now().Add(resetTokenTTL)); err != nil {
		return "", err
	}
	if err := s.db.Model(&user).Updates(map[string]any{
		"reset_token_hash":    user.ResetTokenHash,
		"reset_token_expires": user.ResetTokenExpires,
	}).Error; err != nil {
		return "", err
	}
	s.events.LogPasswordResetRequested(email, src, true)
	return token, nil
}

// CompletePasswordReset sets a new password when token matches an unexpired request.
func (s *AuthService) CompletePasswordReset(email, token, newPassword string, ec securitylog.EventContext) error {
	email = normalizeEmail(email)

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if !user.CheckResetToken(token, s.now()) {
		s.events.LogSuspiciousActivity("Invalid password reset token presented",
			securitylog.EventContext{ActorID: email, SourceAddress: ec.SourceAddress, Endpoint: ec.Endpoint, Method: ec.Method},
			map[string]any{"failed": true})
		return ErrInvalidResetToken
	}
	if err := user.SetPassword(newPassword); err != nil {
		return err
	}
	user.ClearResetToken()
	if err := s.db.Model(&user).Select("password_hash", "reset_token_hash", "reset_token_expires", "failed_login_attempts").
		Updates(map[string]any{
			"password_hash":         user.PasswordHash,
			"reset_token_hash":      "",
			"reset_token_expires":   nil,
			"failed_login_attempts": 0,
		}).Error; err != nil {
		return err
	}
	s.limiters.Login.Reset(email, ratelimit.ActionLogin)
	s.events.LogPasswordResetCompleted(email, ec.SourceAddress)
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
