package app

import (
	"sync"
	"time"

	"livequiz-service/internal/domain"
)

// SessionSnapshot is what subscribers observe: the quiz document driving the
// shared countdown plus the derived leaderboard.
type SessionSnapshot struct {
	Quiz        domain.Quiz        `json:"quiz"`
	Leaderboard domain.Leaderboard `json:"leaderboard"`
}

// SessionOption customizes a Session at construction time.
type SessionOption func(*Session)

// WithClock injects a deterministic clock, used by tests.
func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) { s.now = now }
}

// WithScoring overrides the default scoring rules.
func WithScoring(rules ScoringRules) SessionOption {
	return func(s *Session) { s.rules = rules }
}

// WithMirror registers a write-through hook invoked after every mutation,
// outside the session lock. Infrastructure layers use it to mirror live state
// into an external store.
func WithMirror(mirror func(SessionSnapshot)) SessionOption {
	return func(s *Session) { s.mirror = mirror }
}

// WithScoreMirror registers an increment hook invoked once per scored answer
// with the awarded delta. Stores map it onto their atomic increment primitive
// so mirrored totals converge without lost updates; the answer-log check
// upstream guarantees the hook fires at most once per (participant, question).
func WithScoreMirror(mirror func(email string, delta int)) SessionOption {
	return func(s *Session) { s.scoreMirror = mirror }
}

// Session owns the live state of one quiz: the quiz document, every
// participant record, and the subscriber set. All mutations happen under a
// single mutex, so writes to the quiz document are linearized; participant
// records are only ever touched by their own submissions, so the lock is the
// sole cross-participant coordination point.
type Session struct {
	now         func() time.Time
	rules       ScoringRules
	mirror      func(SessionSnapshot)
	scoreMirror func(email string, delta int)

	mu           sync.RWMutex
	quiz         domain.Quiz
	participants map[string]*domain.Participant
	subscribers  map[chan SessionSnapshot]struct{}
}

// NewSession seeds a session from a quiz document.
func NewSession(quiz domain.Quiz, opts ...SessionOption) *Session {
	s := &Session{
		now:          time.Now,
		rules:        DefaultScoringRules(),
		quiz:         quiz,
		participants: make(map[string]*domain.Participant),
		subscribers:  make(map[chan SessionSnapshot]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Quiz returns a copy of the current quiz document.
func (s *Session) Quiz() domain.Quiz {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.quiz
}

// Participants returns a copy of every participant record.
func (s *Session) Participants() []domain.Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.participantsLocked()
}

// IsEmpty reports whether nobody has joined yet.
func (s *Session) IsEmpty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants) == 0
}

// Join upserts a participant keyed by email. A reconnecting identity gets its
// profile refreshed while score, join order, and answer log are preserved, so
// retried joins can never duplicate a record or reset progress.
func (s *Session) Join(email, displayName, photoURL string) SessionSnapshot {
	s.mu.Lock()
	if participant, ok := s.participants[email]; ok {
		participant.DisplayName = displayName
		participant.PhotoURL = photoURL
	} else {
		s.participants[email] = &domain.Participant{
			Email:       email,
			DisplayName: displayName,
			PhotoURL:    photoURL,
			JoinedAt:    s.now(),
			Answers:     make(map[int]domain.AnswerRecord),
		}
	}
	snap := s.broadcastLocked()
	s.mu.Unlock()

	s.notifyMirror(snap)
	return snap
}

// Start moves the quiz from draft to the waiting lobby.
func (s *Session) Start() (SessionSnapshot, error) {
	return s.transition(func() error {
		if err := s.quiz.CheckStart(); err != nil {
			return err
		}
		s.quiz.Status = domain.StatusWaiting
		s.quiz.CurrentQuestion = domain.NoQuestion
		s.quiz.QuestionStartedAt = nil
		return nil
	})
}

// Advance activates the next question or ends the quiz when none remain.
// fromIndex is the question index the organizer observed; if the quiz has
// already moved past it the call fails with ErrStaleAdvance, so a duplicated
// click can never skip a question. The start timestamp is stamped with the
// session clock, never a client clock: every participant derives the same
// deadline from it.
func (s *Session) Advance(fromIndex int) (SessionSnapshot, bool, error) {
	hasMore := false
	snap, err := s.transition(func() error {
		if err := s.quiz.CheckAdvance(); err != nil {
			return err
		}
		if s.quiz.Status == domain.StatusWaiting && len(s.participants) == 0 {
			return domain.ErrNoParticipants
		}
		if fromIndex != s.quiz.CurrentQuestion {
			return domain.ErrStaleAdvance
		}
		if s.quiz.CurrentQuestion+1 < s.quiz.TotalQuestions {
			startedAt := s.now()
			s.quiz.CurrentQuestion++
			s.quiz.QuestionStartedAt = &startedAt
			s.quiz.Status = domain.StatusLive
			hasMore = true
		} else {
			s.quiz.Status = domain.StatusEnded
			s.quiz.QuestionStartedAt = nil
		}
		return nil
	})
	return snap, hasMore, err
}

// End interrupts a live quiz immediately, abandoning remaining questions.
func (s *Session) End() (SessionSnapshot, error) {
	return s.transition(func() error {
		if err := s.quiz.CheckEnd(); err != nil {
			return err
		}
		s.quiz.Status = domain.StatusEnded
		s.quiz.QuestionStartedAt = nil
		return nil
	})
}

// Restart reopens an ended quiz as a fresh lobby: every score and answer log
// is cleared while identities and join order survive.
func (s *Session) Restart() (SessionSnapshot, error) {
	return s.transition(func() error {
		if err := s.quiz.CheckRestart(); err != nil {
			return err
		}
		s.quiz.Status = domain.StatusWaiting
		s.quiz.CurrentQuestion = domain.NoQuestion
		s.quiz.QuestionStartedAt = nil
		for _, participant := range s.participants {
			participant.Score = 0
			participant.Answers = make(map[int]domain.AnswerRecord)
		}
		return nil
	})
}

// Submit scores one answer for one participant. The answer-log append and the
// score increment happen together under the lock, so a retried delivery of
// the same logical submission observes the log entry and reports
// ErrAlreadyAnswered instead of double-scoring.
func (s *Session) Submit(question domain.Question, email string, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	s.mu.Lock()
	participant, ok := s.participants[email]
	if !ok {
		s.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrParticipantNotFound
	}

	record, correct, err := scoreSubmission(s.quiz, question, participant, sub, s.rules)
	if err != nil {
		s.mu.Unlock()
		return domain.AnswerResult{}, err
	}

	participant.Answers[sub.Question] = record
	participant.Score += record.Awarded
	result := domain.AnswerResult{
		Question:   sub.Question,
		Correct:    correct,
		Awarded:    record.Awarded,
		TotalScore: participant.Score,
	}
	snap := s.broadcastLocked()
	s.mu.Unlock()

	if s.scoreMirror != nil && record.Awarded != 0 {
		s.scoreMirror(email, record.Awarded)
	}
	s.notifyMirror(snap)
	return result, nil
}

// Subscribe registers a snapshot stream. The current state is delivered
// immediately; the caller must invoke the returned cancel function on
// teardown to avoid leaks and duplicate delivery.
func (s *Session) Subscribe() (<-chan SessionSnapshot, func()) {
	ch := make(chan SessionSnapshot, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// Close drops every subscriber; used when the quiz is deleted.
func (s *Session) Close() {
	s.mu.Lock()
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
	s.mu.Unlock()
}

func (s *Session) transition(mutate func() error) (SessionSnapshot, error) {
	s.mu.Lock()
	if err := mutate(); err != nil {
		s.mu.Unlock()
		return SessionSnapshot{}, err
	}
	snap := s.broadcastLocked()
	s.mu.Unlock()

	s.notifyMirror(snap)
	return snap, nil
}

func (s *Session) notifyMirror(snap SessionSnapshot) {
	if s.mirror != nil {
		s.mirror(snap)
	}
}

func (s *Session) broadcastLocked() SessionSnapshot {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
			// Drop the oldest queued snapshot so a slow client never
			// blocks the broadcast; only the latest state matters.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
	return snap
}

func (s *Session) snapshotLocked() SessionSnapshot {
	return SessionSnapshot{
		Quiz: s.quiz,
		Leaderboard: domain.Leaderboard{
			QuizID:    s.quiz.ID,
			Entries:   domain.Rank(s.participantsLocked()),
			UpdatedAt: s.now(),
		},
	}
}

func (s *Session) participantsLocked() []domain.Participant {
	participants := make([]domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, *p)
	}
	return participants
}
