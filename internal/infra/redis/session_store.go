package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"livequiz-service/internal/app"
	"livequiz-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.SessionRepository.
// Sessions stay in-process to reuse the session's broadcast logic; Redis
// carries a live projection of each session so other instances (or an
// operator's redis-cli) can observe quiz state and totals:
//   - quiz:{id}:state  hash of status / currentQuestion / questionStartedAt
//   - quiz:{id}:scores hash of email -> total, maintained with HINCRBY so
//     concurrent submissions never lose updates
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
	opts   []app.SessionOption

	mu       sync.RWMutex
	sessions map[string]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration, opts ...app.SessionOption) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
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

	quizID := quiz.ID
	opts := append(append([]app.SessionOption(nil), s.opts...),
		app.WithMirror(func(snap app.SessionSnapshot) { s.mirrorState(quizID, snap) }),
		app.WithScoreMirror(func(email string, delta int) { s.incrScore(quizID, email, delta) }),
	)
	session := app.NewSession(quiz, opts...)
	s.sessions[quizID] = session
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
	_ = s.client.Del(context.Background(), s.stateKey(quizID), s.scoresKey(quizID)).Err()
}

// mirrorState projects the lifecycle fields after every mutation. Writes are
// best-effort: the in-process session stays authoritative and the next
// mutation rewrites the same keys.
func (s *SessionStore) mirrorState(quizID string, snap app.SessionSnapshot) {
	ctx := context.Background()
	fields := map[string]interface{}{
		"status":          string(snap.Quiz.Status),
		"currentQuestion": strconv.Itoa(snap.Quiz.CurrentQuestion),
		"totalQuestions":  strconv.Itoa(snap.Quiz.TotalQuestions),
	}
	if snap.Quiz.QuestionStartedAt != nil {
		fields["questionStartedAt"] = snap.Quiz.QuestionStartedAt.UTC().Format(time.RFC3339Nano)
	} else {
		fields["questionStartedAt"] = ""
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.stateKey(quizID), fields)
	if snap.Quiz.Status == domain.StatusWaiting {
		// Fresh lobby (start or restart): any mirrored totals are stale.
		pipe.Del(ctx, s.scoresKey(quizID))
	}
	if s.ttl > 0 {
		pipe.Expire(ctx, s.stateKey(quizID), s.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (s *SessionStore) incrScore(quizID, email string, delta int) {
	ctx := context.Background()
	pipe := s.client.Pipeline()
	pipe.HIncrBy(ctx, s.scoresKey(quizID), email, int64(delta))
	if s.ttl > 0 {
		pipe.Expire(ctx, s.scoresKey(quizID), s.ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (s *SessionStore) stateKey(quizID string) string {
	return "quiz:" + quizID + ":state"
}

func (s *SessionStore) scoresKey(quizID string) string {
	return "quiz:" + quizID + ":scores"
}
