// Package guard decides whether a caller may see a role-gated dashboard and,
// when not, where they should be sent instead.
package guard

import (
	"github.com/upb/academy-hub/authstate"
	"github.com/upb/academy-hub/models"
)

// LoginPath is where unauthenticated callers are sent
const LoginPath = "/login"

// Outcome is the kind of guard decision
type Outcome string

const (
	OutcomeLoading         Outcome = "loading"
	OutcomeUnauthenticated Outcome = "unauthenticated"
	OutcomeWrongRole       Outcome = "wrong-role"
	OutcomeAuthorized      Outcome = "authorized"
)

// Decision is the result of evaluating a guard. Redirect is set for the
// unauthenticated and wrong-role outcomes.
type Decision struct {
	Outcome  Outcome `json:"outcome"`
	Redirect string  `json:"redirect,omitempty"`
}

// IsRedirect reports whether the decision sends the caller elsewhere
func (d Decision) IsRedirect() bool {
	return d.Redirect != ""
}

// Evaluate decides what a page requiring role should do for the given auth state
func Evaluate(state authstate.State, required models.Role) Decision {
	if state.Loading {
		return Decision{Outcome: OutcomeLoading}
	}
	if state.User == nil {
		return Decision{Outcome: OutcomeUnauthenticated, Redirect: LoginPath}
	}

	var role models.Role
	if state.Profile != nil {
		role = state.Profile.Role
	}
	return EvaluateRole(role, required)
}

// EvaluateRole decides for an authenticated caller whose role is already resolved.
// An empty or unknown role redirects to the login page.
func EvaluateRole(role, required models.Role) Decision {
	if role.IsValid() && role == required {
		return Decision{Outcome: OutcomeAuthorized}
	}

	home := role.HomePath()
	if home == "" {
		home = LoginPath
	}
	return Decision{Outcome: OutcomeWrongRole, Redirect: home}
}

// Stabilizer smooths a stream of decisions. Authorized and loading decisions
// are committed as soon as they are observed; a redirect is committed only
// after two consecutive observations agree on it.
type Stabilizer struct {
	committed Decision
	pending   *Decision
}

// NewStabilizer creates a Stabilizer that starts out loading
func NewStabilizer() *Stabilizer {
	return &Stabilizer{committed: Decision{Outcome: OutcomeLoading}}
}

// Observe feeds the next evaluation and returns the committed decision and
// whether it changed.
func (s *Stabilizer) Observe(d Decision) (Decision, bool) {
	if !d.IsRedirect() {
		s.pending = nil
		return s.commit(d)
	}

	if s.pending != nil && *s.pending == d {
		s.pending = nil
		return s.commit(d)
	}
	s.pending = &d
	return s.committed, false
}

// Committed returns the current committed decision
func (s *Stabilizer) Committed() Decision {
	return s.committed
}

func (s *Stabilizer) commit(d Decision) (Decision, bool) {
	changed := s.committed != d
	s.committed = d
	return d, changed
}
