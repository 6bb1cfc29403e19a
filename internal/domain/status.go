package domain

// Status is the lifecycle state of a quiz.
type Status string

const (
	// StatusDraft is the editable state; questions may still change.
	StatusDraft Status = "draft"
	// StatusWaiting is the lobby: participants may join, no question is active.
	StatusWaiting Status = "waiting"
	// StatusLive means a question is currently active.
	StatusLive Status = "live"
	// StatusEnded is terminal until an explicit restart.
	StatusEnded Status = "ended"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusWaiting, StatusLive, StatusEnded:
		return true
	}
	return false
}

// Joinable reports whether participants may enter the quiz in this state.
// Draft quizzes are invisible to participants and ended quizzes are closed.
func (s Status) Joinable() bool {
	return s == StatusWaiting || s == StatusLive
}

// Action names an organizer-initiated lifecycle move, used in transition errors.
type Action string

const (
	ActionStart   Action = "start"
	ActionAdvance Action = "advance"
	ActionEnd     Action = "end"
	ActionRestart Action = "restart"
)

// checkTransition validates an attempted lifecycle action against the current
// status. Illegal moves return a *StateTransitionError; they never no-op
// silently, so a stale organizer view surfaces instead of corrupting state.
func checkTransition(current Status, action Action) error {
	ok := false
	switch action {
	case ActionStart:
		ok = current == StatusDraft
	case ActionAdvance:
		ok = current == StatusWaiting || current == StatusLive
	case ActionEnd:
		ok = current == StatusLive
	case ActionRestart:
		ok = current == StatusEnded
	}
	if !ok {
		return &StateTransitionError{Current: current, Action: action}
	}
	return nil
}

// CheckStart validates draft -> waiting.
func (q Quiz) CheckStart() error {
	if err := checkTransition(q.Status, ActionStart); err != nil {
		return err
	}
	if q.TotalQuestions < 1 {
		return ErrNoQuestions
	}
	return nil
}

// CheckAdvance validates the next advance from the current status.
func (q Quiz) CheckAdvance() error {
	return checkTransition(q.Status, ActionAdvance)
}

// CheckEnd validates an explicit "end now" while live.
func (q Quiz) CheckEnd() error {
	return checkTransition(q.Status, ActionEnd)
}

// CheckRestart validates ended -> waiting.
func (q Quiz) CheckRestart() error {
	return checkTransition(q.Status, ActionRestart)
}
