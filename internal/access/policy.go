// Package access decides whether an identity may administer or join a quiz.
// Identities are opaque verified email strings supplied per call; the policy
// never performs authentication itself.
package access

import (
	"strings"

	"livequiz-service/internal/domain"
)

// Reason explains an authorization decision. Denials are normal outcomes of
// well-formed requests, not errors.
type Reason string

const (
	ReasonAllowed        Reason = "allowed"
	ReasonNotAdmin       Reason = "identity is not a registered admin"
	ReasonNotOwner       Reason = "identity does not own or share this quiz"
	ReasonNotInvited     Reason = "identity is not on the allowed list"
	ReasonTargetCreator  Reason = "cannot share a quiz with its creator"
	ReasonTargetNotAdmin Reason = "share target is not a registered admin"
	ReasonAlreadyShared  Reason = "quiz is already shared with this identity"
)

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

func allow() Decision        { return Decision{Allowed: true, Reason: ReasonAllowed} }
func deny(r Reason) Decision { return Decision{Allowed: false, Reason: r} }

// Err converts a denial into an error for callers that propagate outcomes
// through error returns. Allowed decisions convert to nil.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &DeniedError{Reason: d.Reason}
}

// DeniedError is the error form of a denied decision. It is user-visible and
// never worth retrying.
type DeniedError struct {
	Reason Reason
}

func (e *DeniedError) Error() string {
	return "authorization denied: " + string(e.Reason)
}

// Policy evaluates admin and join rules against an injected admin whitelist.
// The whitelist is configuration, never a hidden global, so tests and
// per-environment deployments can supply their own sets.
type Policy struct {
	admins map[string]struct{}
	master string
}

// NewPolicy builds a policy from the configured admin emails and the master
// admin identity. Emails are compared case-insensitively.
func NewPolicy(adminEmails []string, masterAdmin string) *Policy {
	admins := make(map[string]struct{}, len(adminEmails)+1)
	for _, e := range adminEmails {
		admins[normalize(e)] = struct{}{}
	}
	master := normalize(masterAdmin)
	if master != "" {
		admins[master] = struct{}{}
	}
	return &Policy{admins: admins, master: master}
}

// IsAdmin reports whether email is in the configured admin set.
func (p *Policy) IsAdmin(email string) bool {
	_, ok := p.admins[normalize(email)]
	return ok
}

// Administer decides whether email may control the quiz's lifecycle: the
// identity must be the creator, a shared co-organizer, or the master admin,
// and must be a registered admin.
func (p *Policy) Administer(quiz domain.Quiz, email string) Decision {
	email = normalize(email)
	if !p.IsAdmin(email) {
		return deny(ReasonNotAdmin)
	}
	if email == normalize(quiz.Creator) || email == p.master || quiz.SharedWithEmail(email) {
		return allow()
	}
	return deny(ReasonNotOwner)
}

// Join decides whether email may enter the quiz as a participant.
func (p *Policy) Join(quiz domain.Quiz, email string) Decision {
	if quiz.AllowsEmail(normalize(email)) {
		return allow()
	}
	return deny(ReasonNotInvited)
}

// Share decides whether actor may add target as a co-organizer. Sharing is an
// administer-level action; the creator cannot be a share target and neither
// can an identity outside the admin set.
func (p *Policy) Share(quiz domain.Quiz, actor, target string) Decision {
	if d := p.Administer(quiz, actor); !d.Allowed {
		return d
	}
	target = normalize(target)
	if target == normalize(quiz.Creator) {
		return deny(ReasonTargetCreator)
	}
	if !p.IsAdmin(target) {
		return deny(ReasonTargetNotAdmin)
	}
	if quiz.SharedWithEmail(target) {
		return deny(ReasonAlreadyShared)
	}
	return allow()
}

// Unshare decides whether actor may remove a co-organizer entry.
func (p *Policy) Unshare(quiz domain.Quiz, actor string) Decision {
	return p.Administer(quiz, actor)
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
