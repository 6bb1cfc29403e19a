package domain

import (
	"errors"
	"testing"
)

func TestLifecycleChecks(t *testing.T) {
	quiz := Quiz{Status: StatusDraft, TotalQuestions: 3}

	if err := quiz.CheckStart(); err != nil {
		t.Fatalf("draft quiz with questions should start: %v", err)
	}
	if err := quiz.CheckAdvance(); err == nil {
		t.Fatalf("advancing a draft quiz must fail")
	}
	if err := quiz.CheckRestart(); err == nil {
		t.Fatalf("restarting a draft quiz must fail")
	}

	quiz.Status = StatusLive
	if err := quiz.CheckStart(); err == nil {
		t.Fatalf("starting a live quiz must fail")
	}
	if err := quiz.CheckEnd(); err != nil {
		t.Fatalf("ending a live quiz should pass: %v", err)
	}

	quiz.Status = StatusEnded
	if err := quiz.CheckRestart(); err != nil {
		t.Fatalf("restarting an ended quiz should pass: %v", err)
	}
}

func TestCheckStartRequiresQuestions(t *testing.T) {
	quiz := Quiz{Status: StatusDraft}
	if err := quiz.CheckStart(); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}

func TestStateTransitionErrorNamesStates(t *testing.T) {
	quiz := Quiz{Status: StatusWaiting}
	err := quiz.CheckRestart()

	var ste *StateTransitionError
	if !errors.As(err, &ste) {
		t.Fatalf("expected StateTransitionError, got %v", err)
	}
	if ste.Current != StatusWaiting || ste.Action != ActionRestart {
		t.Fatalf("error should name the attempted move, got %+v", ste)
	}
	if !IsStateTransition(err) {
		t.Fatalf("IsStateTransition should report true")
	}
}

func TestJoinable(t *testing.T) {
	if StatusDraft.Joinable() || StatusEnded.Joinable() {
		t.Fatalf("draft/ended must not be joinable")
	}
	if !StatusWaiting.Joinable() || !StatusLive.Joinable() {
		t.Fatalf("waiting/live must be joinable")
	}
}
