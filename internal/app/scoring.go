package app

import (
	"time"

	"livequiz-service/internal/domain"
)

// ScoringRules hold the tunable parameters of the answer scoring formula.
// A correct answer is worth BasePoints plus a speed bonus that decays
// linearly from MaxSpeedBonus at the instant the question starts to zero at
// the end of the answer window. Incorrect answers always score zero.
type ScoringRules struct {
	BasePoints    int
	MaxSpeedBonus int
	// Grace absorbs network latency: submissions arriving up to Grace after
	// the window still score (with zero bonus) instead of being rejected.
	Grace time.Duration
}

// DefaultScoringRules are the production defaults; config can override them.
func DefaultScoringRules() ScoringRules {
	return ScoringRules{
		BasePoints:    100,
		MaxSpeedBonus: 100,
		Grace:         time.Second,
	}
}

// Award computes the points for a correct answer submitted elapsed time into
// a window of the given length.
func (r ScoringRules) Award(elapsed, window time.Duration) int {
	if window <= 0 {
		return r.BasePoints
	}
	remaining := window - elapsed
	if remaining < 0 {
		remaining = 0
	}
	bonus := int((time.Duration(r.MaxSpeedBonus)*remaining + window/2) / window)
	return r.BasePoints + bonus
}

// scoreSubmission validates a submission against the live quiz state and the
// participant's answer log, and returns the log entry to record. Validation
// order matters: a repeated submission must report ErrAlreadyAnswered before
// any other check so retried deliveries are idempotent no-ops.
func scoreSubmission(quiz domain.Quiz, question domain.Question, participant *domain.Participant, sub domain.AnswerSubmission, rules ScoringRules) (domain.AnswerRecord, bool, error) {
	if participant.HasAnswered(sub.Question) {
		return domain.AnswerRecord{}, false, domain.ErrAlreadyAnswered
	}
	if quiz.Status != domain.StatusLive ||
		sub.Question != quiz.CurrentQuestion ||
		sub.Question != question.Position ||
		sub.Option < 0 || sub.Option >= domain.OptionCount ||
		quiz.QuestionStartedAt == nil ||
		sub.SubmittedAt.Before(*quiz.QuestionStartedAt) {
		return domain.AnswerRecord{}, false, domain.ErrInvalidSubmission
	}

	window := quiz.QuestionDuration()
	elapsed := sub.SubmittedAt.Sub(*quiz.QuestionStartedAt)
	if elapsed > window+rules.Grace {
		return domain.AnswerRecord{}, false, domain.ErrTooLate
	}

	record := domain.AnswerRecord{Option: sub.Option, SubmittedAt: sub.SubmittedAt}
	correct := sub.Option == question.Correct
	if correct {
		record.Awarded = rules.Award(elapsed, window)
	}
	return record, correct, nil
}
