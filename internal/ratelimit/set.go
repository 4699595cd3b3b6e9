package ratelimit

import "fmt"

// Set holds the named limiter instances of one process. Instances never share state.
type Set struct {
	Login         *RateLimiter
	API           *RateLimiter
	PasswordReset *RateLimiter
}

// NewSet builds the login, API and password-reset limiters. The same options
// are applied to each.
func NewSet(limits LimitsConfig, opts ...Option) (*Set, error) {
	login, err := New(NameLogin, limits.Login, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s limiter: %w", NameLogin, err)
	}
	api, err := New(NameAPI, limits.API, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s limiter: %w", NameAPI, err)
	}
	reset, err := New(NamePasswordReset, limits.PasswordReset, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s limiter: %w", NamePasswordReset, err)
	}
	return &Set{Login: login, API: api, PasswordReset: reset}, nil
}

// All returns the limiters in a stable order.
func (s *Set) All() []*RateLimiter {
	return []*RateLimiter{s.Login, s.API, s.PasswordReset}
}

// ByName looks a limiter up by its name.
func (s *Set) ByName(name string) (*RateLimiter, bool) {
	for _, rl := range s.All() {
		if rl != nil && rl.Name() == name {
			return rl, true
		}
	}
	return nil, false
}

// Cleanup sweeps every limiter and reports removals per limiter name.
func (s *Set) Cleanup() map[string]int {
	out := make(map[string]int, 3)
	for _, rl := range s.All() {
		if rl == nil {
			continue
		}
		out[rl.Name()] = rl.Cleanup()
	}
	return out
}
