package flow

import (
	"context"
	"sync"

	"bookline/models"
)

// MemorySessionStore backs tests and local development.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[int64]*models.BookingSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[int64]*models.BookingSession)}
}

func (s *MemorySessionStore) Get(_ context.Context, chatID int64) (*models.BookingSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[chatID]
	if !ok {
		return nil, ErrSessionExpired
	}
	cp := *session
	return &cp, nil
}

func (s *MemorySessionStore) Save(_ context.Context, session *models.BookingSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ChatID] = &cp
	return nil
}

func (s *MemorySessionStore) Delete(_ context.Context, chatID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, chatID)
	return nil
}
