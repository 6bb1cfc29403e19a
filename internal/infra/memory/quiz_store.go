package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

// QuizStore is an in-memory implementation of app.QuizRepository, used when
// no Postgres is configured and throughout the unit tests. Updates apply a
// merge patch under the store mutex, so writes to a single quiz document are
// serialized.
type QuizStore struct {
	rnd *rand.Rand

	mu      sync.RWMutex
	quizzes map[string]domain.Quiz
	byCode  map[string]string
}

func NewQuizStore() *QuizStore {
	return &QuizStore{
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		quizzes: make(map[string]domain.Quiz),
		byCode:  make(map[string]string),
	}
}

func (s *QuizStore) Create(_ context.Context, quiz domain.Quiz) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if quiz.ID == "" {
		quiz.ID = fmt.Sprintf("quiz-%08x", s.rnd.Uint32())
	}
	s.quizzes[quiz.ID] = quiz
	if quiz.JoinCode != "" {
		s.byCode[quiz.JoinCode] = quiz.ID
	}
	return quiz.ID, nil
}

func (s *QuizStore) Get(_ context.Context, quizID string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (s *QuizStore) GetByCode(_ context.Context, code string) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	quizID, ok := s.byCode[code]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return s.quizzes[quizID], nil
}

func (s *QuizStore) ListForAdmin(_ context.Context, email string) ([]domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Quiz
	for _, quiz := range s.quizzes {
		if quiz.Creator == email || quiz.SharedWithEmail(email) {
			out = append(out, quiz)
		}
	}
	return out, nil
}

func (s *QuizStore) Update(_ context.Context, quizID string, patch domain.QuizPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	patch.Apply(&quiz)
	s.quizzes[quizID] = quiz
	return nil
}

func (s *QuizStore) Delete(_ context.Context, quizID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	quiz, ok := s.quizzes[quizID]
	if !ok {
		return domain.ErrQuizNotFound
	}
	delete(s.byCode, quiz.JoinCode)
	delete(s.quizzes, quizID)
	return nil
}
