package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Roles a user can hold.
const (
	RoleAdmin  = "admin"
	RoleUser   = "user"
	RoleViewer = "viewer"
)

// User represents an account that can authenticate against the API.
type User struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	UUID                string     `json:"uuid" gorm:"uniqueIndex"`
	Email               string     `json:"email" gorm:"uniqueIndex"`
	PasswordHash        string     `json:"-"` // Never serialize password hash
	Name                string     `json:"name"`
	Role                string     `json:"role" gorm:"default:'user'"` // "admin", "user", "viewer"
	Enabled             bool       `json:"enabled" gorm:"default:true"`
	FailedLoginAttempts int        `json:"-" gorm:"default:0"`
	LastLogin           *time.Time `json:"last_login,omitempty"`

	// Password reset: only a bcrypt hash of the emailed token is kept.
	ResetTokenHash    string     `json:"-"`
	ResetTokenExpires *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SetPassword hashes and sets the user's password.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares the provided password with the stored hash.
func (u *User) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password))
	return err == nil
}

// SetResetToken stores the hash of token and when it stops being valid.
func (u *User) SetResetToken(token string, expires time.Time) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.ResetTokenHash = string(hash)
	u.ResetTokenExpires = &expires
	return nil
}

// CheckResetToken reports whether token matches an unexpired reset request.
func (u *User) CheckResetToken(token string, now time.Time) bool {
	if u.ResetTokenHash == "" || u.ResetTokenExpires == nil || !now.Before(*u.ResetTokenExpires) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.ResetTokenHash), []byte(token)) == nil
}

// ClearResetToken invalidates any outstanding reset request.
func (u *User) ClearResetToken() {
	u.ResetTokenHash = ""
	u.ResetTokenExpires = nil
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
