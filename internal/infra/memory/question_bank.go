package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"livequiz-service/internal/domain"
)

// QuestionLoader fetches question content from a backing store.
type QuestionLoader interface {
	LoadQuestions(ctx context.Context, quizID string) ([]domain.Question, error)
}

// QuestionWriter persists a full ordered question list.
type QuestionWriter interface {
	SaveQuestions(ctx context.Context, quizID string, questions []domain.Question) error
}

// QuestionStore combines both sides of question persistence.
type QuestionStore interface {
	QuestionLoader
	QuestionWriter
}

// QuestionBank caches question lists with TTL to avoid repeated store hits
// while a quiz is live. Loads are deduplicated with singleflight and cache
// expirations are jittered so entries do not expire in lockstep.
type QuestionBank struct {
	store QuestionStore
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu    sync.RWMutex
	cache map[string]cachedQuestions
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewQuestionBank(store QuestionStore, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		store: store,
		ttl:   ttl,
		clock: time.Now,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
		cache: make(map[string]cachedQuestions),
	}
}

func (b *QuestionBank) Questions(ctx context.Context, quizID string) ([]domain.Question, error) {
	now := b.clock()

	b.mu.RLock()
	if entry, ok := b.cache[quizID]; ok && entry.expiresAt.After(now) {
		b.mu.RUnlock()
		return entry.questions, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do(quizID, func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if entry, ok := b.cache[quizID]; ok && entry.expiresAt.After(now) {
			b.mu.RUnlock()
			return entry.questions, nil
		}
		b.mu.RUnlock()

		questions, err := b.store.LoadQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.cache[quizID] = cachedQuestions{
			questions: questions,
			expiresAt: now.Add(b.ttlWithJitter()),
		}
		b.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Replace writes through to the store and refreshes the cache entry so draft
// edits are visible immediately.
func (b *QuestionBank) Replace(ctx context.Context, quizID string, questions []domain.Question) error {
	if err := b.store.SaveQuestions(ctx, quizID, questions); err != nil {
		return err
	}
	b.mu.Lock()
	b.cache[quizID] = cachedQuestions{
		questions: questions,
		expiresAt: b.clock().Add(b.ttlWithJitter()),
	}
	b.mu.Unlock()
	return nil
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

// MapQuestionStore is a mutex-guarded in-memory QuestionStore, useful for
// tests, demos, and running without Postgres.
type MapQuestionStore struct {
	mu        sync.RWMutex
	questions map[string][]domain.Question
}

func NewMapQuestionStore() *MapQuestionStore {
	return &MapQuestionStore{questions: make(map[string][]domain.Question)}
}

func (s *MapQuestionStore) LoadQuestions(_ context.Context, quizID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	questions, ok := s.questions[quizID]
	if !ok {
		return []domain.Question{}, nil
	}
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	return out, nil
}

func (s *MapQuestionStore) SaveQuestions(_ context.Context, quizID string, questions []domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]domain.Question, len(questions))
	copy(stored, questions)
	s.questions[quizID] = stored
	return nil
}
