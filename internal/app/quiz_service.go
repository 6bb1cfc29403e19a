package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"livequiz-service/internal/access"
	"livequiz-service/internal/domain"
)

// QuizRepository is the external store boundary for quiz documents. Update
// uses merge semantics: only non-nil patch fields change.
type QuizRepository interface {
	Create(ctx context.Context, quiz domain.Quiz) (string, error)
	Get(ctx context.Context, quizID string) (domain.Quiz, error)
	GetByCode(ctx context.Context, code string) (domain.Quiz, error)
	ListForAdmin(ctx context.Context, email string) ([]domain.Quiz, error)
	Update(ctx context.Context, quizID string, patch domain.QuizPatch) error
	Delete(ctx context.Context, quizID string) error
}

// QuestionBank serves quiz content, typically through a TTL cache over a
// persistent loader. Replace swaps the full ordered question list and is only
// called while the quiz is still in draft.
type QuestionBank interface {
	Questions(ctx context.Context, quizID string) ([]domain.Question, error)
	Replace(ctx context.Context, quizID string, questions []domain.Question) error
}

// SessionRepository abstracts how live sessions are stored (in-memory,
// Redis-mirrored, etc).
type SessionRepository interface {
	GetOrCreate(quiz domain.Quiz) *Session
	Get(quizID string) (*Session, bool)
	Delete(quizID string)
}

// QuizService contains the live-quiz use cases: organizer lifecycle control,
// participant joins, answer scoring, and leaderboard subscriptions.
type QuizService struct {
	quizzes  QuizRepository
	bank     QuestionBank
	sessions SessionRepository
	policy   *access.Policy
	log      *zap.Logger
	now      func() time.Time
}

// ServiceOption customizes a QuizService at construction time.
type ServiceOption func(*QuizService)

// WithServerClock injects a deterministic server clock, used by tests.
func WithServerClock(now func() time.Time) ServiceOption {
	return func(s *QuizService) { s.now = now }
}

func NewQuizService(quizzes QuizRepository, bank QuestionBank, sessions SessionRepository, policy *access.Policy, log *zap.Logger, opts ...ServiceOption) *QuizService {
	s := &QuizService{
		quizzes:  quizzes,
		bank:     bank,
		sessions: sessions,
		policy:   policy,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the size of a human-enterable join code.
const CodeLength = 6

// CreateQuiz registers a new draft quiz with a freshly generated join code.
func (s *QuizService) CreateQuiz(ctx context.Context, creator, title string, secondsPerQuestion int) (domain.Quiz, error) {
	if !s.policy.IsAdmin(creator) {
		return domain.Quiz{}, &access.DeniedError{Reason: access.ReasonNotAdmin}
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.Quiz{}, fmt.Errorf("quiz title is required")
	}
	if secondsPerQuestion < domain.MinSecondsPerQuestion || secondsPerQuestion > domain.MaxSecondsPerQuestion {
		return domain.Quiz{}, fmt.Errorf("seconds per question must be between %d and %d", domain.MinSecondsPerQuestion, domain.MaxSecondsPerQuestion)
	}

	code, err := s.newJoinCode(ctx)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz := domain.Quiz{
		Title:              title,
		JoinCode:           code,
		SecondsPerQuestion: secondsPerQuestion,
		Status:             domain.StatusDraft,
		CurrentQuestion:    domain.NoQuestion,
		Creator:            normalizeEmail(creator),
		CreatedAt:          s.now(),
	}
	id, err := s.quizzes.Create(ctx, quiz)
	if err != nil {
		return domain.Quiz{}, err
	}
	quiz.ID = id
	s.log.Info("quiz created", zap.String("quizId", id), zap.String("code", code), zap.String("creator", quiz.Creator))
	return quiz, nil
}

// newJoinCode draws codes until one is unused. GetByCode returning
// ErrQuizNotFound is the success path here.
func (s *QuizService) newJoinCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 16; attempt++ {
		buf := make([]byte, CodeLength)
		for i := range buf {
			buf[i] = codeAlphabet[rand.Intn(len(codeAlphabet))]
		}
		code := string(buf)

		_, err := s.quizzes.GetByCode(ctx, code)
		if errors.Is(err, domain.ErrQuizNotFound) {
			return code, nil
		}
		if err != nil {
			return "", fmt.Errorf("check join code: %w", err)
		}
	}
	return "", fmt.Errorf("could not generate a unique join code")
}

// Quiz returns the quiz document an organizer may administer.
func (s *QuizService) Quiz(ctx context.Context, actor, quizID string) (domain.Quiz, error) {
	quiz, err := s.currentQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if err := s.policy.Administer(quiz, actor).Err(); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

// MyQuizzes lists quizzes the actor created or was shared on.
func (s *QuizService) MyQuizzes(ctx context.Context, actor string) ([]domain.Quiz, error) {
	if !s.policy.IsAdmin(actor) {
		return nil, &access.DeniedError{Reason: access.ReasonNotAdmin}
	}
	return s.quizzes.ListForAdmin(ctx, normalizeEmail(actor))
}

// Questions returns the full question list, correct answers included; it is
// an administer-level view.
func (s *QuizService) Questions(ctx context.Context, actor, quizID string) ([]domain.Question, error) {
	if _, err := s.Quiz(ctx, actor, quizID); err != nil {
		return nil, err
	}
	return s.bank.Questions(ctx, quizID)
}

// AddQuestion appends a question to a draft quiz.
func (s *QuizService) AddQuestion(ctx context.Context, actor, quizID, text string, options []string, correct int) error {
	return s.editQuestions(ctx, actor, quizID, func(questions []domain.Question) ([]domain.Question, error) {
		q := domain.Question{QuizID: quizID, Position: len(questions), Text: text, Options: options, Correct: correct}
		if err := validateQuestion(q); err != nil {
			return nil, err
		}
		return append(questions, q), nil
	})
}

// UpdateQuestion replaces the question at position in a draft quiz.
func (s *QuizService) UpdateQuestion(ctx context.Context, actor, quizID string, position int, text string, options []string, correct int) error {
	return s.editQuestions(ctx, actor, quizID, func(questions []domain.Question) ([]domain.Question, error) {
		if position < 0 || position >= len(questions) {
			return nil, domain.ErrQuestionNotFound
		}
		q := domain.Question{QuizID: quizID, Position: position, Text: text, Options: options, Correct: correct}
		if err := validateQuestion(q); err != nil {
			return nil, err
		}
		questions[position] = q
		return questions, nil
	})
}

// DeleteQuestion removes the question at position from a draft quiz and
// renumbers the remainder.
func (s *QuizService) DeleteQuestion(ctx context.Context, actor, quizID string, position int) error {
	return s.editQuestions(ctx, actor, quizID, func(questions []domain.Question) ([]domain.Question, error) {
		if position < 0 || position >= len(questions) {
			return nil, domain.ErrQuestionNotFound
		}
		questions = append(questions[:position], questions[position+1:]...)
		for i := range questions {
			questions[i].Position = i
		}
		return questions, nil
	})
}

// editQuestions gates draft-only content edits and keeps TotalQuestions in
// step with the stored list. Question content is frozen once the quiz leaves
// draft so already-broadcast questions and scored answers stay consistent.
func (s *QuizService) editQuestions(ctx context.Context, actor, quizID string, edit func([]domain.Question) ([]domain.Question, error)) error {
	quiz, err := s.Quiz(ctx, actor, quizID)
	if err != nil {
		return err
	}
	if quiz.Status != domain.StatusDraft {
		return domain.ErrQuizLocked
	}

	questions, err := s.bank.Questions(ctx, quizID)
	if err != nil && !errors.Is(err, domain.ErrQuizNotFound) {
		return err
	}
	questions, err = edit(questions)
	if err != nil {
		return err
	}
	if err := s.bank.Replace(ctx, quizID, questions); err != nil {
		return err
	}
	total := len(questions)
	return s.quizzes.Update(ctx, quizID, domain.QuizPatch{TotalQuestions: &total})
}

func validateQuestion(q domain.Question) error {
	if strings.TrimSpace(q.Text) == "" {
		return fmt.Errorf("question text is required")
	}
	if len(q.Options) != domain.OptionCount {
		return fmt.Errorf("question needs exactly %d options", domain.OptionCount)
	}
	for _, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return fmt.Errorf("question options must not be empty")
		}
	}
	if q.Correct < 0 || q.Correct >= domain.OptionCount {
		return fmt.Errorf("correct answer index out of range")
	}
	return nil
}

// SetDuration changes the per-question window of a draft quiz.
func (s *QuizService) SetDuration(ctx context.Context, actor, quizID string, seconds int) error {
	quiz, err := s.Quiz(ctx, actor, quizID)
	if err != nil {
		return err
	}
	if quiz.Status != domain.StatusDraft {
		return domain.ErrQuizLocked
	}
	if seconds < domain.MinSecondsPerQuestion || seconds > domain.MaxSecondsPerQuestion {
		return fmt.Errorf("seconds per question must be between %d and %d", domain.MinSecondsPerQuestion, domain.MaxSecondsPerQuestion)
	}
	return s.quizzes.Update(ctx, quizID, domain.QuizPatch{SecondsPerQuestion: &seconds})
}

// SetRestriction toggles the allowed-identity gate for joining.
func (s *QuizService) SetRestriction(ctx context.Context, actor, quizID string, restricted bool, allowed []string) error {
	if _, err := s.Quiz(ctx, actor, quizID); err != nil {
		return err
	}
	normalized := make([]string, 0, len(allowed))
	for _, e := range allowed {
		if e = normalizeEmail(e); e != "" {
			normalized = append(normalized, e)
		}
	}
	return s.quizzes.Update(ctx, quizID, domain.QuizPatch{Restricted: &restricted, AllowedEmails: &normalized})
}

// Share adds target as a co-organizer.
func (s *QuizService) Share(ctx context.Context, actor, quizID, target string) error {
	quiz, err := s.currentQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if err := s.policy.Share(quiz, actor, target).Err(); err != nil {
		return err
	}
	shared := append(append([]string(nil), quiz.SharedWith...), normalizeEmail(target))
	return s.quizzes.Update(ctx, quizID, domain.QuizPatch{SharedWith: &shared})
}

// Unshare removes target from the co-organizer list.
func (s *QuizService) Unshare(ctx context.Context, actor, quizID, target string) error {
	quiz, err := s.currentQuiz(ctx, quizID)
	if err != nil {
		return err
	}
	if err := s.policy.Unshare(quiz, actor).Err(); err != nil {
		return err
	}
	target = normalizeEmail(target)
	shared := make([]string, 0, len(quiz.SharedWith))
	for _, e := range quiz.SharedWith {
		if e != target {
			shared = append(shared, e)
		}
	}
	return s.quizzes.Update(ctx, quizID, domain.QuizPatch{SharedWith: &shared})
}

// Start opens the lobby: draft -> waiting.
func (s *QuizService) Start(ctx context.Context, actor, quizID string) error {
	quiz, err := s.Quiz(ctx, actor, quizID)
	if err != nil {
		return err
	}
	session := s.sessions.GetOrCreate(quiz)
	snap, err := session.Start()
	if err != nil {
		return err
	}
	s.persistState(ctx, snap.Quiz)
	s.log.Info("quiz started", zap.String("quizId", quizID), zap.String("actor", actor))
	return nil
}

// Advance activates the next question, or ends the quiz when none remain.
// fromIndex is the question index the organizer last observed; see
// Session.Advance for the duplicate-click guard.
func (s *QuizService) Advance(ctx context.Context, actor, quizID string, fromIndex int) (bool, error) {
	session, err := s.adminSession(ctx, actor, quizID)
	if err != nil {
		return false, err
	}
	snap, hasMore, err := session.Advance(fromIndex)
	if err != nil {
		return false, err
	}
	s.persistState(ctx, snap.Quiz)
	return hasMore, nil
}

// End interrupts a live quiz immediately.
func (s *QuizService) End(ctx context.Context, actor, quizID string) error {
	session, err := s.adminSession(ctx, actor, quizID)
	if err != nil {
		return err
	}
	snap, err := session.End()
	if err != nil {
		return err
	}
	s.persistState(ctx, snap.Quiz)
	s.log.Info("quiz ended early", zap.String("quizId", quizID), zap.String("actor", actor))
	return nil
}

// Restart reopens an ended quiz as a fresh lobby with zeroed scores.
func (s *QuizService) Restart(ctx context.Context, actor, quizID string) error {
	session, err := s.adminSession(ctx, actor, quizID)
	if err != nil {
		return err
	}
	snap, err := session.Restart()
	if err != nil {
		return err
	}
	s.persistState(ctx, snap.Quiz)
	s.log.Info("quiz restarted", zap.String("quizId", quizID), zap.String("actor", actor))
	return nil
}

// DeleteQuiz removes the quiz document and tears down any live session.
func (s *QuizService) DeleteQuiz(ctx context.Context, actor, quizID string) error {
	quiz, err := s.quizzes.Get(ctx, quizID)
	if err != nil {
		return err
	}
	if err := s.policy.Administer(quiz, actor).Err(); err != nil {
		return err
	}
	if session, ok := s.sessions.Get(quizID); ok {
		session.Close()
		s.sessions.Delete(quizID)
	}
	return s.quizzes.Delete(ctx, quizID)
}

// LookupByCode resolves a join code for the pre-join screen.
func (s *QuizService) LookupByCode(ctx context.Context, code string) (domain.Quiz, error) {
	quiz, err := s.quizzes.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(code)))
	if err != nil {
		return domain.Quiz{}, err
	}
	return s.currentQuiz(ctx, quiz.ID)
}

// Join upserts a participant into the quiz identified by its join code.
// Joining is keyed by identity: a reconnect refreshes the profile and keeps
// the existing score and answer log.
func (s *QuizService) Join(ctx context.Context, code, email, displayName, photoURL string) (SessionSnapshot, error) {
	quiz, err := s.LookupByCode(ctx, code)
	if err != nil {
		return SessionSnapshot{}, err
	}
	if err := s.policy.Join(quiz, email).Err(); err != nil {
		return SessionSnapshot{}, err
	}
	if !quiz.Status.Joinable() {
		return SessionSnapshot{}, domain.ErrQuizNotJoinable
	}
	session := s.sessions.GetOrCreate(quiz)
	return session.Join(normalizeEmail(email), displayName, photoURL), nil
}

// SubmitAnswer scores one answer. The submission timestamp is stamped with
// the server clock on receipt; a client-reported "time's up" is never
// trusted.
func (s *QuizService) SubmitAnswer(ctx context.Context, quizID, email string, questionIndex, option int) (domain.AnswerResult, error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return domain.AnswerResult{}, domain.ErrSessionNotFound
	}
	question, err := s.questionAt(ctx, quizID, questionIndex)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	sub := domain.AnswerSubmission{
		Question:    questionIndex,
		Option:      option,
		SubmittedAt: s.now(),
	}
	return session.Submit(question, normalizeEmail(email), sub)
}

// ActiveQuestion returns the currently broadcast question, or
// ErrQuestionNotFound while no question is active.
func (s *QuizService) ActiveQuestion(ctx context.Context, quizID string) (domain.Question, error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return domain.Question{}, domain.ErrSessionNotFound
	}
	quiz := session.Quiz()
	if quiz.Status != domain.StatusLive || quiz.CurrentQuestion < 0 {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return s.questionAt(ctx, quizID, quiz.CurrentQuestion)
}

// Leaderboard returns the current ranking for a running quiz.
func (s *QuizService) Leaderboard(ctx context.Context, quizID string) (domain.Leaderboard, error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return domain.Leaderboard{}, domain.ErrSessionNotFound
	}
	return domain.Leaderboard{
		QuizID:    quizID,
		Entries:   domain.Rank(session.Participants()),
		UpdatedAt: s.now(),
	}, nil
}

// Subscribe returns a snapshot stream for a running quiz. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, quizID string) (<-chan SessionSnapshot, func(), error) {
	session, ok := s.sessions.Get(quizID)
	if !ok {
		return nil, nil, domain.ErrSessionNotFound
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// adminSession resolves the live session for an administer-level action,
// reviving it from the stored quiz document after a process restart.
func (s *QuizService) adminSession(ctx context.Context, actor, quizID string) (*Session, error) {
	quiz, err := s.quizzes.Get(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if err := s.policy.Administer(quiz, actor).Err(); err != nil {
		return nil, err
	}
	if session, ok := s.sessions.Get(quizID); ok {
		return session, nil
	}
	return s.sessions.GetOrCreate(quiz), nil
}

// currentQuiz returns the freshest view of a quiz: the live session copy when
// one exists, otherwise the stored document.
func (s *QuizService) currentQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz, err := s.quizzes.Get(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if session, ok := s.sessions.Get(quizID); ok {
		live := session.Quiz()
		// Ownership and restriction fields stay authoritative in the store.
		live.SharedWith = quiz.SharedWith
		live.Restricted = quiz.Restricted
		live.AllowedEmails = quiz.AllowedEmails
		return live, nil
	}
	return quiz, nil
}

func (s *QuizService) questionAt(ctx context.Context, quizID string, position int) (domain.Question, error) {
	questions, err := s.bank.Questions(ctx, quizID)
	if err != nil {
		return domain.Question{}, err
	}
	if position < 0 || position >= len(questions) {
		return domain.Question{}, domain.ErrQuestionNotFound
	}
	return questions[position], nil
}

// persistState mirrors the session's lifecycle fields into the quiz store so
// the durable copy converges. The session remains authoritative while the
// process lives; a failed write is logged and retried implicitly by the next
// transition.
func (s *QuizService) persistState(ctx context.Context, quiz domain.Quiz) {
	startedAt := quiz.QuestionStartedAt
	patch := domain.QuizPatch{
		Status:            &quiz.Status,
		CurrentQuestion:   &quiz.CurrentQuestion,
		QuestionStartedAt: &startedAt,
	}
	if err := s.quizzes.Update(ctx, quiz.ID, patch); err != nil {
		s.log.Warn("quiz state sync lagging", zap.String("quizId", quiz.ID), zap.Error(err))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
