package ratelimit

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"

	"github.com/Wikid82/bastion/internal/logger"
	"github.com/Wikid82/bastion/internal/metrics"
)

const defaultShards = 32

type key struct {
	identifier string
	action     string
}

// Entry is the state tracked for one (identifier, action) pair.
type Entry struct {
	Count        int       `json:"count"`
	WindowStart  time.Time `json:"window_start"`
	BlockedUntil time.Time `json:"blocked_until,omitempty"`
}

func (e *Entry) blockedAt(now time.Time) bool {
	return e.BlockedUntil.After(now)
}

func (e *Entry) windowElapsed(now time.Time, window time.Duration) bool {
	return !now.Before(e.WindowStart.Add(window))
}

// Result is the outcome of a single Attempt. Blocking is a value, not an error.
type Result struct {
	Allowed           bool `json:"allowed"`
	Blocked           bool `json:"blocked"`
	RemainingAttempts int  `json:"remaining_attempts"`
	RetryAfterSeconds int  `json:"retry_after_seconds,omitempty"`
	// Triggered is set only on the attempt that started the block.
	Triggered bool `json:"-"`
}

type shard struct {
	mu        sync.Mutex
	entries   map[key]*Entry
	lastSweep time.Time
}

// RateLimiter counts attempts per (identifier, action) inside a window and
// blocks keys that exceed the budget. State is split across shards; all
// mutations of one key happen under its shard lock.
type RateLimiter struct {
	name       string
	cfg        Config
	shards     []*shard
	shardCount int
	now        func() time.Time
	log        *logrus.Entry

	attempts atomic.Int64
	rejected atomic.Int64
	blocks   atomic.Int64
	cleanups atomic.Int64
	removed  atomic.Int64
}

// Option configures a RateLimiter.
type Option func(*RateLimiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(rl *RateLimiter) {
		if now != nil {
			rl.now = now
		}
	}
}

// WithShards sets the number of lock shards.
func WithShards(n int) Option {
	return func(rl *RateLimiter) {
		if n > 0 {
			rl.shardCount = n
		}
	}
}

// WithLogger sets the entry used for block and cleanup messages.
func WithLogger(entry *logrus.Entry) Option {
	return func(rl *RateLimiter) {
		if entry != nil {
			rl.log = entry
		}
	}
}

// New validates cfg and returns an empty limiter.
func New(name string, cfg Config, opts ...Option) (*RateLimiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	rl := &RateLimiter{
		name:       name,
		cfg:        cfg,
		shardCount: defaultShards,
		now:        time.Now,
		log:        logger.Component("ratelimit"),
	}
	for _, opt := range opts {
		opt(rl)
	}
	rl.log = rl.log.WithField("limiter", name)
	rl.shards = make([]*shard, rl.shardCount)
	for i := range rl.shards {
		rl.shards[i] = &shard{entries: make(map[key]*Entry)}
	}
	return rl, nil
}

// Name returns the limiter's name.
func (rl *RateLimiter) Name() string { return rl.name }

// Config returns the limiter's configuration.
func (rl *RateLimiter) Config() Config { return rl.cfg }

func (rl *RateLimiter) shardFor(k key) *shard {
	h := xxhash.Sum64String(k.action + "\x00" + k.identifier)
	return rl.shards[h%uint64(len(rl.shards))]
}

// Attempt registers one attempt for the key and reports whether it may proceed.
// Attempts made while the key is blocked are not counted and do not extend the block.
func (rl *RateLimiter) Attempt(identifier, action string) Result {
	now := rl.now()
	k := key{identifier: identifier, action: action}
	s := rl.shardFor(k)

	s.mu.Lock()
	rl.maybeSweepLocked(s, now)
	res, count := rl.attemptLocked(s, k, now)
	s.mu.Unlock()

	rl.attempts.Add(1)
	switch {
	case res.Triggered:
		rl.blocks.Add(1)
		rl.rejected.Add(1)
		metrics.ObserveRateLimitAttempt(rl.name, "triggered")
		rl.log.WithFields(logrus.Fields{
			"action":      action,
			"count":       count,
			"retry_after": res.RetryAfterSeconds,
		}).Warn("rate limit exceeded, key blocked")
	case res.Blocked:
		rl.rejected.Add(1)
		metrics.ObserveRateLimitAttempt(rl.name, "blocked")
	default:
		metrics.ObserveRateLimitAttempt(rl.name, "allowed")
	}
	return res
}

func (rl *RateLimiter) attemptLocked(s *shard, k key, now time.Time) (Result, int) {
	e, ok := s.entries[k]
	if ok && e.blockedAt(now) {
		return Result{Blocked: true, RetryAfterSeconds: ceilSeconds(e.BlockedUntil.Sub(now))}, e.Count
	}
	if !ok || e.windowElapsed(now, rl.cfg.Window) {
		e = &Entry{WindowStart: now}
		s.entries[k] = e
	}
	e.Count++
	if e.Count > rl.cfg.MaxAttempts {
		e.BlockedUntil = now.Add(rl.cfg.BlockDuration)
		return Result{
			Blocked:           true,
			Triggered:         true,
			RetryAfterSeconds: ceilSeconds(rl.cfg.BlockDuration),
		}, e.Count
	}
	return Result{Allowed: true, RemainingAttempts: rl.cfg.MaxAttempts - e.Count}, e.Count
}

// IsBlocked reports whether the key is blocked right now.
func (rl *RateLimiter) IsBlocked(identifier, action string) bool {
	now := rl.now()
	k := key{identifier: identifier, action: action}
	s := rl.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	return ok && e.blockedAt(now)
}

// RemainingBlockSeconds returns the whole seconds, rounded up, until the key
// unblocks, or 0 when it is not blocked.
func (rl *RateLimiter) RemainingBlockSeconds(identifier, action string) int {
	now := rl.now()
	k := key{identifier: identifier, action: action}
	s := rl.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	if !ok {
		return 0
	}
	return ceilSeconds(e.BlockedUntil.Sub(now))
}

// Reset forgets the key, clearing both its count and any block.
func (rl *RateLimiter) Reset(identifier, action string) {
	k := key{identifier: identifier, action: action}
	s := rl.shardFor(k)
	s.mu.Lock()
	delete(s.entries, k)
	s.mu.Unlock()
}

// Peek returns a copy of the key's entry without modifying it.
func (rl *RateLimiter) Peek(identifier, action string) (Entry, bool) {
	k := key{identifier: identifier, action: action}
	s := rl.shardFor(k)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[k]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Cleanup removes every entry whose window and block have both elapsed and
// returns how many were removed. Stale entries that survive are reinitialised
// by the next Attempt, so Cleanup only bounds memory.
func (rl *RateLimiter) Cleanup() int {
	now := rl.now()
	removed := 0
	for _, s := range rl.shards {
		s.mu.Lock()
		removed += rl.sweepLocked(s, now)
		s.mu.Unlock()
	}
	rl.cleanups.Add(1)
	rl.removed.Add(int64(removed))
	metrics.SetRateLimitEntries(rl.name, rl.Len())
	if removed > 0 {
		rl.log.WithFields(logrus.Fields{
			"removed":   removed,
			"remaining": rl.Len(),
		}).Debug("rate limiter cleanup completed")
	}
	return removed
}

// maybeSweepLocked sweeps the shard at most once per window.
func (rl *RateLimiter) maybeSweepLocked(s *shard, now time.Time) {
	if now.Sub(s.lastSweep) < rl.cfg.Window {
		return
	}
	rl.removed.Add(int64(rl.sweepLocked(s, now)))
}

func (rl *RateLimiter) sweepLocked(s *shard, now time.Time) int {
	n := 0
	for k, e := range s.entries {
		if e.windowElapsed(now, rl.cfg.Window) && !e.blockedAt(now) {
			delete(s.entries, k)
			n++
		}
	}
	s.lastSweep = now
	return n
}

// Len returns the number of tracked keys.
func (rl *RateLimiter) Len() int {
	n := 0
	for _, s := range rl.shards {
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

// Stats holds limiter statistics for monitoring.
type Stats struct {
	Name          string `json:"name"`
	MaxAttempts   int    `json:"max_attempts"`
	Window        string `json:"window"`
	BlockDuration string `json:"block_duration"`
	Entries       int    `json:"entries"`
	BlockedKeys   int    `json:"blocked_keys"`
	Attempts      int64  `json:"attempts"`
	Rejected      int64  `json:"rejected"`
	Blocks        int64  `json:"blocks"`
	Cleanups      int64  `json:"cleanups"`
	Removed       int64  `json:"removed"`
}

// Stats returns a snapshot of the limiter's counters.
func (rl *RateLimiter) Stats() Stats {
	now := rl.now()
	st := Stats{
		Name:          rl.name,
		MaxAttempts:   rl.cfg.MaxAttempts,
		Window:        rl.cfg.Window.String(),
		BlockDuration: rl.cfg.BlockDuration.String(),
		Attempts:      rl.attempts.Load(),
		Rejected:      rl.rejected.Load(),
		Blocks:        rl.blocks.Load(),
		Cleanups:      rl.cleanups.Load(),
		Removed:       rl.removed.Load(),
	}
	for _, s := range rl.shards {
		s.mu.Lock()
		st.Entries += len(s.entries)
		for _, e := range s.entries {
			if e.blockedAt(now) {
				st.BlockedKeys++
			}
		}
		s.mu.Unlock()
	}
	return st
}

// ceilSeconds rounds d up to whole seconds; never negative.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
