package preference

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/embedpref/internal/notify"
	"go.uber.org/zap"
)

// Session is one visitor's mounted form and its pending toasts.
type Session struct {
	ID    string
	Form  *Form
	Flash *notify.Flash

	lastSeen time.Time
}

// Sessions tracks mounted forms by visitor id.
type Sessions struct {
	settings Settings
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessions(s Settings, logger *zap.Logger) *Sessions {
	return &Sessions{
		settings: s,
		logger:   logger,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Get returns the session for id and marks it active.
func (s *Sessions) Get(id string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		sess.lastSeen = s.now()
	}
	return sess, ok
}

// Mount creates a session with a fresh form.
func (s *Sessions) Mount() *Session {
	flash := notify.NewFlash()
	sess := &Session{
		ID:       uuid.New().String(),
		Form:     NewForm(s.settings, flash, s.logger),
		Flash:    flash,
		lastSeen: s.now(),
	}
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return sess
}

// Sweep unmounts sessions idle longer than maxIdle and returns how many.
func (s *Sessions) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	var stale []*Session
	for id, sess := range s.sessions {
		if sess.lastSeen.Before(cutoff) {
			stale = append(stale, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range stale {
		sess.Form.Unmount()
	}
	if len(stale) > 0 {
		s.logger.Debug("swept idle sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sessions) Run(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(maxIdle)
		}
	}
}

// Close unmounts every session.
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.Form.Unmount()
		delete(s.sessions, id)
	}
}
