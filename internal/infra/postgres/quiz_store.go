package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"livequiz-service/internal/domain"
)

// QuizStore persists quiz documents as JSONB rows. Updates run inside a
// row-locking transaction, so merge patches to the same document are
// serialized by the database.
type QuizStore struct {
	pool *pgxpool.Pool
}

func NewQuizStore(pool *pgxpool.Pool) *QuizStore {
	return &QuizStore{pool: pool}
}

func (s *QuizStore) Create(ctx context.Context, quiz domain.Quiz) (string, error) {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	data, err := json.Marshal(quiz)
	if err != nil {
		return "", fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO quizzes (id, code, data) VALUES ($1, $2, $3)`,
		quiz.ID, quiz.JoinCode, data)
	if err != nil {
		return "", fmt.Errorf("%w: insert quiz: %v", domain.ErrSyncUnavailable, err)
	}
	return quiz.ID, nil
}

func (s *QuizStore) Get(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.selectQuiz(ctx, `SELECT data FROM quizzes WHERE id=$1`, quizID)
}

func (s *QuizStore) GetByCode(ctx context.Context, code string) (domain.Quiz, error) {
	return s.selectQuiz(ctx, `SELECT data FROM quizzes WHERE code=$1`, code)
}

func (s *QuizStore) selectQuiz(ctx context.Context, query, arg string) (domain.Quiz, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, query, arg).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("%w: load quiz: %v", domain.ErrSyncUnavailable, err)
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz: %w", err)
	}
	if !quiz.Status.Valid() {
		return domain.Quiz{}, fmt.Errorf("quiz %s has unknown status %q", quiz.ID, quiz.Status)
	}
	return quiz, nil
}

func (s *QuizStore) ListForAdmin(ctx context.Context, email string) ([]domain.Quiz, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM quizzes WHERE data->>'creator' = $1 OR data->'sharedWith' ? $1`, email)
	if err != nil {
		return nil, fmt.Errorf("%w: list quizzes: %v", domain.ErrSyncUnavailable, err)
	}
	defer rows.Close()

	var quizzes []domain.Quiz
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan quiz: %w", err)
		}
		var quiz domain.Quiz
		if err := json.Unmarshal(raw, &quiz); err != nil {
			return nil, fmt.Errorf("unmarshal quiz: %w", err)
		}
		quizzes = append(quizzes, quiz)
	}
	return quizzes, rows.Err()
}

func (s *QuizStore) Update(ctx context.Context, quizID string, patch domain.QuizPatch) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("%w: begin update: %v", domain.ErrSyncUnavailable, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []byte
	err = tx.QueryRow(ctx, `SELECT data FROM quizzes WHERE id=$1 FOR UPDATE`, quizID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrQuizNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: lock quiz: %v", domain.ErrSyncUnavailable, err)
	}

	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		return fmt.Errorf("unmarshal quiz: %w", err)
	}
	patch.Apply(&quiz)

	data, err := json.Marshal(quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE quizzes SET data=$2 WHERE id=$1`, quizID, data); err != nil {
		return fmt.Errorf("%w: update quiz: %v", domain.ErrSyncUnavailable, err)
	}
	return tx.Commit(ctx)
}

func (s *QuizStore) Delete(ctx context.Context, quizID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quizzes WHERE id=$1`, quizID)
	if err != nil {
		return fmt.Errorf("%w: delete quiz: %v", domain.ErrSyncUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQuizNotFound
	}
	return nil
}
