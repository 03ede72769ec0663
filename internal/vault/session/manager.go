// Package session holds the process-wide table of per-user vault sessions:
// locked/unlocked status, derived key material, the last-activity clock, and
// any in-progress capture flow. Sessions are ephemeral by design: they never
// survive a restart, and key material exists only while a session is
// unlocked.
//
// Concurrency model: the table lock is held only for record lookup; every
// mutation of one user's session runs under that record's own mutex, so
// operations for the same user are serialized while unrelated users never
// contend.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/quiksafe/quiksafebot/internal/common"
	"github.com/quiksafe/quiksafebot/internal/logging"
	"github.com/quiksafe/quiksafebot/internal/vault/flow"
)

// Status is the lifecycle state of one user's session.
type Status int

const (
	// Unauthenticated means no session record exists; the user has never
	// logged in since process start, or has logged out.
	Unauthenticated Status = iota
	// Locked means the user authenticated before but the key material has
	// been dropped; a correct master password re-unlocks.
	Locked
	// Unlocked means key material is present and usable.
	Unlocked
)

// Session is one user's in-memory state. Invariant: Key is non-nil exactly
// when Status == Unlocked. Flow is non-nil only while a capture dialog is
// in progress and is discarded whenever the session locks.
type Session struct {
	Status       Status
	Key          []byte
	LastActivity time.Time
	Failures     int
	Flow         *flow.State
}

// Touch records activity at the given instant.
func (s *Session) Touch(now time.Time) { s.LastActivity = now }

// Lock wipes and drops the key material, discards any in-progress flow,
// and transitions to Locked.
func (s *Session) Lock() {
	common.WipeByteArray(s.Key)
	s.Key = nil
	s.Flow = nil
	if s.Status == Unlocked {
		s.Status = Locked
	}
}

// Unlock stores a copy of the key material and transitions to Unlocked.
func (s *Session) Unlock(key []byte, now time.Time) {
	s.Lock()
	s.Key = append([]byte(nil), key...)
	s.Status = Unlocked
	s.LastActivity = now
}

type record struct {
	mu sync.Mutex
	s  Session
}

// Manager owns the session table and the auto-lock policy.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*record

	autoLock time.Duration
	now      func() time.Time
	logger   logging.Logger
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock replaces the time source; tests use it to simulate idle time.
// The default, time.Now, carries a monotonic reading, so staleness
// comparisons are immune to wall-clock jumps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a session table with the given auto-lock threshold.
func NewManager(autoLock time.Duration, logger logging.Logger, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[int64]*record),
		autoLock: autoLock,
		now:      time.Now,
		logger:   logger.With("module", "session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Now returns the manager's current time. Callbacks passed to Update use it
// so that tests observe a single consistent clock.
func (m *Manager) Now() time.Time { return m.now() }

// Update runs fn with exclusive access to the user's session, creating the
// record on first touch. Before fn runs, the auto-lock policy is applied
// lazily: a session idle past the threshold is locked and its flow
// discarded, so fn always observes post-policy state.
func (m *Manager) Update(chatID int64, fn func(s *Session) error) error {
	rec := m.record(chatID)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	m.applyAutoLock(chatID, &rec.s)
	return fn(&rec.s)
}

// IsUnlockedAndFresh reports whether the user's session is unlocked and
// within the auto-lock threshold. An idle session is locked as a side
// effect before false is returned.
func (m *Manager) IsUnlockedAndFresh(chatID int64) bool {
	fresh := false
	_ = m.Update(chatID, func(s *Session) error {
		fresh = s.Status == Unlocked
		return nil
	})
	return fresh
}

// Touch updates the user's last-activity clock.
func (m *Manager) Touch(chatID int64) {
	_ = m.Update(chatID, func(s *Session) error {
		if s.Status == Unlocked {
			s.Touch(m.now())
		}
		return nil
	})
}

// Lock drops the user's key material and discards any in-progress flow.
func (m *Manager) Lock(chatID int64) {
	_ = m.Update(chatID, func(s *Session) error {
		s.Lock()
		return nil
	})
}

// Logout evicts the session record entirely, forcing a full re-login.
func (m *Manager) Logout(chatID int64) {
	m.mu.Lock()
	rec, ok := m.sessions[chatID]
	if ok {
		delete(m.sessions, chatID)
	}
	m.mu.Unlock()

	if ok {
		rec.mu.Lock()
		rec.s.Lock()
		rec.mu.Unlock()
	}
}

// RecordFailure increments the user's authentication failure counter and
// returns the new value. The counter is monotonic for the lifetime of the
// session record; lockout enforcement is a policy layered on top.
func (m *Manager) RecordFailure(chatID int64) int {
	failures := 0
	_ = m.Update(chatID, func(s *Session) error {
		s.Failures++
		failures = s.Failures
		return nil
	})
	return failures
}

// Sweep proactively locks idle sessions at the given interval until the
// context is cancelled. This bounds how long key material of abandoned
// sessions stays in memory; the lazy check in Update remains the source of
// truth, and both use the same threshold.
func (m *Manager) Sweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	for _, id := range ids {
		_ = m.Update(id, func(s *Session) error { return nil })
	}
}

func (m *Manager) record(chatID int64) *record {
	m.mu.RLock()
	rec, ok := m.sessions[chatID]
	m.mu.RUnlock()
	if ok {
		return rec
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok = m.sessions[chatID]; ok {
		return rec
	}
	rec = &record{}
	m.sessions[chatID] = rec
	return rec
}

func (m *Manager) applyAutoLock(chatID int64, s *Session) {
	if s.Status != Unlocked {
		return
	}
	if m.now().Sub(s.LastActivity) < m.autoLock {
		return
	}
	s.Lock()
	m.logger.Info(context.Background(), "session auto-locked", "chat_id", chatID)
}
