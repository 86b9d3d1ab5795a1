package session

import (
	"context"
	"sync"

	"github.com/pixelhotel/messenger/internal/config"
	"github.com/pixelhotel/messenger/internal/usecase"
)

// Manager tracks the live delivery session per signed-in user so the
// feed consumer can route push events, and tears sessions down cleanly.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	baseCtx  context.Context

	conf      *config.Config
	messenger usecase.MessengerUsecase
	tracker   usecase.PresenceTracker
}

func NewManager(conf *config.Config, messenger usecase.MessengerUsecase, tracker usecase.PresenceTracker) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		baseCtx:   context.Background(),
		conf:      conf,
		messenger: messenger,
		tracker:   tracker,
	}
}

// Attach returns the user's live session, starting one if needed. The
// session runs until Detach or Shutdown.
func (m *Manager) Attach(userID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[userID]; ok {
		return s
	}

	s := newSession(userID, m.conf, m.messenger, m.tracker)
	sessionCtx, cancel := context.WithCancel(m.baseCtx)
	s.cancel = cancel
	m.sessions[userID] = s
	go func() {
		s.run(sessionCtx)
		m.mu.Lock()
		if m.sessions[userID] == s {
			delete(m.sessions, userID)
		}
		m.mu.Unlock()
	}()
	return s
}

// Detach cancels the user's session if one is live.
func (m *Manager) Detach(userID string) {
	m.mu.Lock()
	s, ok := m.sessions[userID]
	m.mu.Unlock()
	if ok {
		s.cancel()
		<-s.done
	}
}

// Get returns the live session for userID, if any.
func (m *Manager) Get(userID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	return s, ok
}

// Shutdown cancels every live session.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.cancel()
		<-s.done
	}
}
