package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrQuizNotFound indicates the quiz document could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrSessionNotFound is returned when a live session has not been started.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrQuizNotJoinable rejects joining a quiz that is not in its lobby or live.
	ErrQuizNotJoinable = errors.New("quiz is not open to join")
	// ErrQuestionNotFound indicates a question position outside the quiz.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrParticipantNotFound is returned when an identity acts before joining.
	ErrParticipantNotFound = errors.New("participant not found in quiz")
	// ErrNoQuestions rejects starting a quiz with an empty question list.
	ErrNoQuestions = errors.New("quiz has no questions")
	// ErrNoParticipants rejects the first advance before anyone has joined.
	ErrNoParticipants = errors.New("quiz has no participants")
	// ErrQuizLocked rejects content edits once the quiz has left draft.
	ErrQuizLocked = errors.New("quiz is no longer editable")
	// ErrStaleAdvance rejects an advance whose observed question index no
	// longer matches the quiz, e.g. a double-clicked organizer button.
	ErrStaleAdvance = errors.New("quiz advanced concurrently")

	// ErrAlreadyAnswered is the at-most-once outcome for a repeated submission.
	ErrAlreadyAnswered = errors.New("question already answered")
	// ErrTooLate is returned when a submission arrives after the answer window.
	ErrTooLate = errors.New("answer window has closed")
	// ErrInvalidSubmission covers submissions for the wrong question, a closed
	// quiz, an out-of-range option, or a timestamp before the question started.
	ErrInvalidSubmission = errors.New("invalid submission")

	// ErrSyncUnavailable wraps external store failures; the same call can be
	// retried safely because every store operation is idempotent.
	ErrSyncUnavailable = errors.New("sync store unavailable")
)

// StateTransitionError reports an illegal lifecycle move, naming the attempted
// action and the status it was attempted from.
type StateTransitionError struct {
	Current Status
	Action  Action
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s a %s quiz", e.Action, e.Current)
}

// IsStateTransition reports whether err is a StateTransitionError.
func IsStateTransition(err error) bool {
	var ste *StateTransitionError
	return errors.As(err, &ste)
}
