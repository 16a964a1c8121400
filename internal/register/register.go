// Package register keeps one in-progress receipt per signed-in user.
package register

import (
	"sync"

	"jewelpos/backend/internal/receipt"
)

type session struct {
	mu      sync.Mutex
	receipt *receipt.Receipt
}

type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session
}

func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*session)}
}

// With runs fn against the user's receipt while holding that receipt's lock.
// Calls for different users run in parallel.
func (m *Manager) With(userID string, fn func(r *receipt.Receipt) error) error {
	s := m.session(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.receipt)
}

// Drop forgets the user's receipt.
func (m *Manager) Drop(userID string) {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) session(userID string) *session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		s = &session{receipt: receipt.New()}
		m.sessions[userID] = s
	}
	return s
}
