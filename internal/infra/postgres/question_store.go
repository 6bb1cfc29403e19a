package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"livequiz-service/internal/domain"
)

// QuestionStore persists the ordered question list of a quiz as one JSONB row.
type QuestionStore struct {
	pool *pgxpool.Pool
}

func NewQuestionStore(pool *pgxpool.Pool) *QuestionStore {
	return &QuestionStore{pool: pool}
}

func (s *QuestionStore) LoadQuestions(ctx context.Context, quizID string) ([]domain.Question, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM quiz_questions WHERE quiz_id=$1`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return []domain.Question{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: load questions: %v", domain.ErrSyncUnavailable, err)
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return questions, nil
}

func (s *QuestionStore) SaveQuestions(ctx context.Context, quizID string, questions []domain.Question) error {
	data, err := json.Marshal(questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quiz_questions (quiz_id, data) VALUES ($1, $2)
		 ON CONFLICT (quiz_id) DO UPDATE SET data = EXCLUDED.data`,
		quizID, data)
	if err != nil {
		return fmt.Errorf("%w: save questions: %v", domain.ErrSyncUnavailable, err)
	}
	return nil
}
