package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUser_SetPassword(t *testing.T) {
	u := &User{}
	err := u.SetPassword("password123")
	assert.NoError(t, err)
	assert.NotEmpty(t, u.PasswordHash)
	assert.NotEqual(t, "password123", u.PasswordHash)
}

func TestUser_CheckPassword(t *testing.T) {
	u := &User{}
	_ = u.SetPassword("password123")

	assert.True(t, u.CheckPassword("password123"))
	assert.False(t, u.CheckPassword("wrongpassword"))
}

func TestUser_ResetToken(t *testing.T) {
	now := time.Now()
	u := &User{}
	assert.False(t, u.CheckResetToken("anything", now))

	require.NoError(t, u.SetResetToken("tok-123", now.Add(time.Hour)))
	assert.NotEqual(t, "tok-123", u.ResetTokenHash)
	assert.True(t, u.CheckResetToken("tok-123", now))
	assert.False(t, u.CheckResetToken("tok-124", now))
	assert.False(t, u.CheckResetToken("tok-123", now.Add(time.Hour)))

	u.ClearResetToken()
	assert.False(t, u.CheckResetToken("tok-123", now))
}

func TestUser_IsAdmin(t *testing.T) {
	assert.True(t, (&User{Role: RoleAdmin}).IsAdmin())
	assert.False(t, (&User{Role: RoleUser}).IsAdmin())
}
