package access

import (
	"testing"

	"livequiz-service/internal/domain"
)

func testPolicy() *Policy {
	return NewPolicy([]string{"creator@x.com", "cohost@x.com", "other@x.com"}, "master@x.com")
}

func TestAdminister(t *testing.T) {
	policy := testPolicy()
	quiz := domain.Quiz{Creator: "creator@x.com", SharedWith: []string{"cohost@x.com"}}

	cases := []struct {
		email   string
		allowed bool
	}{
		{"creator@x.com", true},
		{"CREATOR@X.COM", true}, // emails compare case-insensitively
		{"cohost@x.com", true},
		{"master@x.com", true},
		{"other@x.com", false},    // admin, but not an owner
		{"stranger@x.com", false}, // not an admin at all
	}
	for _, tc := range cases {
		d := policy.Administer(quiz, tc.email)
		if d.Allowed != tc.allowed {
			t.Fatalf("Administer(%s): expected allowed=%v, got %+v", tc.email, tc.allowed, d)
		}
	}
}

func TestJoinRestricted(t *testing.T) {
	policy := testPolicy()
	quiz := domain.Quiz{Restricted: true, AllowedEmails: []string{"a@x.com"}}

	if d := policy.Join(quiz, "a@x.com"); !d.Allowed {
		t.Fatalf("allowed identity should join: %+v", d)
	}
	if d := policy.Join(quiz, "b@x.com"); d.Allowed || d.Reason != ReasonNotInvited {
		t.Fatalf("uninvited identity should be denied with reason, got %+v", d)
	}

	quiz.Restricted = false
	if d := policy.Join(quiz, "b@x.com"); !d.Allowed {
		t.Fatalf("unrestricted quiz should admit anyone: %+v", d)
	}
}

func TestShareRules(t *testing.T) {
	policy := testPolicy()
	quiz := domain.Quiz{Creator: "creator@x.com", SharedWith: []string{"cohost@x.com"}}

	if d := policy.Share(quiz, "creator@x.com", "other@x.com"); !d.Allowed {
		t.Fatalf("creator should share with an admin: %+v", d)
	}
	if d := policy.Share(quiz, "creator@x.com", "creator@x.com"); d.Reason != ReasonTargetCreator {
		t.Fatalf("sharing with the creator must be rejected, got %+v", d)
	}
	if d := policy.Share(quiz, "creator@x.com", "stranger@x.com"); d.Reason != ReasonTargetNotAdmin {
		t.Fatalf("sharing with a non-admin must be rejected, got %+v", d)
	}
	if d := policy.Share(quiz, "creator@x.com", "cohost@x.com"); d.Reason != ReasonAlreadyShared {
		t.Fatalf("duplicate share must be rejected, got %+v", d)
	}
	if d := policy.Share(quiz, "other@x.com", "cohost@x.com"); d.Reason != ReasonNotOwner {
		t.Fatalf("non-owner cannot share, got %+v", d)
	}
}

func TestDecisionErr(t *testing.T) {
	policy := testPolicy()
	quiz := domain.Quiz{Creator: "creator@x.com"}

	if err := policy.Administer(quiz, "creator@x.com").Err(); err != nil {
		t.Fatalf("allowed decision should convert to nil error, got %v", err)
	}
	err := policy.Administer(quiz, "stranger@x.com").Err()
	denied, ok := err.(*DeniedError)
	if !ok {
		t.Fatalf("expected DeniedError, got %v", err)
	}
	if denied.Reason != ReasonNotAdmin {
		t.Fatalf("unexpected reason: %s", denied.Reason)
	}
}
