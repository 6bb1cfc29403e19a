package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
)

// QuestionBank caches question lists in Redis (one hash per quiz, keyed by
// position) and falls back to the backing store on a miss. Questions are
// stored as: HSET quiz:{quizID}:questions {position} {questionJSON}
type QuestionBank struct {
	client *redis.Client
	store  memory.QuestionStore
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewQuestionBank(client *redis.Client, store memory.QuestionStore, ttl time.Duration) *QuestionBank {
	return &QuestionBank{
		client: client,
		store:  store,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (b *QuestionBank) Questions(ctx context.Context, quizID string) ([]domain.Question, error) {
	key := b.key(quizID)

	cached, err := b.client.HGetAll(ctx, key).Result()
	if err == nil && len(cached) > 0 {
		if questions, ok := decodeQuestions(cached); ok {
			return questions, nil
		}
	}

	result, err, _ := b.sf.Do(quizID, func() (interface{}, error) {
		// Re-check the cache in case another goroutine filled it.
		cached, err := b.client.HGetAll(ctx, key).Result()
		if err == nil && len(cached) > 0 {
			if questions, ok := decodeQuestions(cached); ok {
				return questions, nil
			}
		}

		questions, err := b.store.LoadQuestions(ctx, quizID)
		if err != nil {
			return nil, err
		}
		b.fill(ctx, quizID, questions)
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

// Replace writes through to the backing store and rebuilds the cache hash.
func (b *QuestionBank) Replace(ctx context.Context, quizID string, questions []domain.Question) error {
	if err := b.store.SaveQuestions(ctx, quizID, questions); err != nil {
		return err
	}
	_ = b.client.Del(ctx, b.key(quizID)).Err()
	b.fill(ctx, quizID, questions)
	return nil
}

func (b *QuestionBank) fill(ctx context.Context, quizID string, questions []domain.Question) {
	if len(questions) == 0 {
		return
	}
	key := b.key(quizID)
	pipe := b.client.Pipeline()
	for _, q := range questions {
		raw, err := json.Marshal(q)
		if err != nil {
			continue
		}
		pipe.HSet(ctx, key, strconv.Itoa(q.Position), raw)
	}
	if ttl := b.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	_, _ = pipe.Exec(ctx)
}

func (b *QuestionBank) key(quizID string) string {
	return "quiz:" + quizID + ":questions"
}

func (b *QuestionBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}

func decodeQuestions(cached map[string]string) ([]domain.Question, bool) {
	questions := make([]domain.Question, 0, len(cached))
	for _, raw := range cached {
		var q domain.Question
		if err := json.Unmarshal([]byte(raw), &q); err != nil {
			return nil, false
		}
		questions = append(questions, q)
	}
	sort.Slice(questions, func(i, j int) bool {
		return questions[i].Position < questions[j].Position
	})
	return questions, true
}
