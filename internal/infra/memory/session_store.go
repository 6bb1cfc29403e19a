package memory

import (
	"sync"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionRepository.
type SessionStore struct {
	opts     []app.SessionOption
	mu       sync.RWMutex
	sessions map[string]*app.Session
}

// NewSessionStore builds a store; opts are applied to every session it creates.
func NewSessionStore(opts ...app.SessionOption) *SessionStore {
	return &SessionStore{
		opts:     opts,
		sessions: make(map[string]*app.Session),
	}
}

func (s *SessionStore) GetOrCreate(quiz domain.Quiz) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if session, ok := s.sessions[quiz.ID]; ok {
		return session
	}
	session := app.NewSession(quiz, s.opts...)
	s.sessions[quiz.ID] = session
	return session
}

func (s *SessionStore) Get(quizID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[quizID]
	return session, ok
}

func (s *SessionStore) Delete(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, quizID)
}
