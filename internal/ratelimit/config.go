package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned when a limiter is constructed with settings
// that would make it fail open or closed.
var ErrInvalidConfig = errors.New("invalid rate limiter config")

// Limiter names used by the composition root and the admin API.
const (
	NameLogin         = "login"
	NameAPI           = "api"
	NamePasswordReset = "password_reset"
)

// Actions recorded alongside identifiers. The same identifier may be counted
// independently for different actions on one limiter.
const (
	ActionLogin         = "login"
	ActionAPI           = "api"
	ActionPasswordReset = "password_reset"
)

// Config describes one limiter use-case.
type Config struct {
	// Window is how long attempts are counted before the counter may restart.
	Window time.Duration `yaml:"window" json:"window"`
	// MaxAttempts is the number of attempts allowed per window; the next one blocks.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	// BlockDuration is how long a key stays blocked once it exceeds MaxAttempts.
	BlockDuration time.Duration `yaml:"block_duration" json:"block_duration"`
}

// Validate rejects non-positive attempt budgets and durations.
func (c Config) Validate() error {
	switch {
	case c.MaxAttempts <= 0:
		return fmt.Errorf("%w: max attempts must be positive, got %d", ErrInvalidConfig, c.MaxAttempts)
	case c.Window <= 0:
		return fmt.Errorf("%w: window must be positive, got %s", ErrInvalidConfig, c.Window)
	case c.BlockDuration <= 0:
		return fmt.Errorf("%w: block duration must be positive, got %s", ErrInvalidConfig, c.BlockDuration)
	}
	return nil
}

// LoginConfig is a tight window with a short budget and a long block.
func LoginConfig() Config {
	return Config{Window: 15 * time.Minute, MaxAttempts: 5, BlockDuration: 30 * time.Minute}
}

// APIConfig is a short window with a high budget and a short block.
func APIConfig() Config {
	return Config{Window: time.Minute, MaxAttempts: 100, BlockDuration: 5 * time.Minute}
}

// PasswordResetConfig is a long window with a very low budget.
func PasswordResetConfig() Config {
	return Config{Window: time.Hour, MaxAttempts: 3, BlockDuration: time.Hour}
}

// LimitsConfig groups the named limiter configurations.
type LimitsConfig struct {
	Login         Config `yaml:"login" json:"login"`
	API           Config `yaml:"api" json:"api"`
	PasswordReset Config `yaml:"password_reset" json:"password_reset"`
}

// DefaultLimits returns the conventional login, API and password-reset presets.
func DefaultLimits() LimitsConfig {
	return LimitsConfig{
		Login:         LoginConfig(),
		API:           APIConfig(),
		PasswordReset: PasswordResetConfig(),
	}
}

// Validate checks every limiter and names the offending one.
func (l LimitsConfig) Validate() error {
	for name, cfg := range map[string]Config{
		NameLogin:         l.Login,
		NameAPI:           l.API,
		NamePasswordReset: l.PasswordReset,
	} {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("%s limiter: %w", name, err)
		}
	}
	return nil
}
