package uistate

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CookieName is the session cookie used by the server-rendered UI.
const CookieName = "outlay_session"

// Store keeps per-session presentation state for the UI: which user the
// session belongs to and whether the settings modal is open. Nothing in
// here survives a restart on purpose; it is UI state, not data.
type Store struct {
	mu           sync.Mutex
	sessions     map[string]*session
	ttl          time.Duration
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type session struct {
	userID       uuid.UUID
	settingsOpen bool
	expiresAt    time.Time
}

// NewStore creates a session store whose entries expire after ttl of
// inactivity. A non-positive ttl falls back to 30 minutes.
func NewStore(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	s := &Store{
		sessions:    make(map[string]*session),
		ttl:         ttl,
		stopCleanup: make(chan struct{}),
	}
	go s.startCleanup()
	return s
}

// Create opens a new session for the user and returns its id. The
// settings modal always starts closed.
func (s *Store) Create(userID uuid.UUID) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	id := hex.EncodeToString(buf)

	s.mu.Lock()
	s.sessions[id] = &session{
		userID:    userID,
		expiresAt: time.Now().Add(s.ttl),
	}
	s.mu.Unlock()
	return id, nil
}

// Resolve maps a session id to its user and slides the expiry forward.
func (s *Store) Resolve(id string) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok {
		return uuid.Nil, false
	}
	sess.expiresAt = time.Now().Add(s.ttl)
	return sess.userID, true
}

// Delete removes a session, e.g. on logout.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// SettingsOpen reports whether the session's settings modal is open.
// Unknown or expired sessions read as closed.
func (s *Store) SettingsOpen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	return ok && sess.settingsOpen
}

// OpenSettings marks the settings modal open. Opening an already open
// modal is a no-op.
func (s *Store) OpenSettings(id string) {
	s.setSettings(id, true)
}

// CloseSettings marks the settings modal closed. Closing an already
// closed modal is a no-op.
func (s *Store) CloseSettings(id string) {
	s.setSettings(id, false)
}

// ToggleSettings flips the modal state and returns the resulting state.
func (s *Store) ToggleSettings(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.live(id)
	if !ok {
		return false
	}
	sess.settingsOpen = !sess.settingsOpen
	return sess.settingsOpen
}

func (s *Store) setSettings(id string, open bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.live(id); ok {
		sess.settingsOpen = open
	}
}

// live returns the session only if it has not expired. Callers hold the
// lock.
func (s *Store) live(id string) (*session, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if time.Now().After(sess.expiresAt) {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

// ActiveSessions returns the number of tracked sessions, expired ones
// included until the next sweep.
func (s *Store) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// startCleanup runs periodic cleanup to remove expired sessions
func (s *Store) startCleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanupExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *Store) cleanupExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, sess := range s.sessions {
		if now.After(sess.expiresAt) {
			delete(s.sessions, id)
		}
	}
}

// Stop gracefully shuts down the cleanup goroutine
func (s *Store) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.stopCleanup)
	})
}
