package guard

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/academy-hub/auth"
	"github.com/upb/academy-hub/authstate"
	"github.com/upb/academy-hub/identity"
	"github.com/upb/academy-hub/middleware"
	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/repositories"
	"go.uber.org/zap"
)

func profile(role models.Role) *models.Profile {
	return models.NewProfile("uid-1", "user@example.com", "", role)
}

var signedIn = &authstate.User{UID: "uid-1", Email: "user@example.com"}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name     string
		state    authstate.State
		required models.Role
		want     Decision
	}{
		{
			name:     "loading",
			state:    authstate.State{Loading: true},
			required: models.RoleOwner,
			want:     Decision{Outcome: OutcomeLoading},
		},
		{
			name:     "loading with user",
			state:    authstate.State{User: signedIn, Loading: true},
			required: models.RoleOwner,
			want:     Decision{Outcome: OutcomeLoading},
		},
		{
			name:     "signed out",
			state:    authstate.State{},
			required: models.RoleOwner,
			want:     Decision{Outcome: OutcomeUnauthenticated, Redirect: "/login"},
		},
		{
			name:     "owner guard with coach profile",
			state:    authstate.State{User: signedIn, Profile: profile(models.RoleCoach)},
			required: models.RoleOwner,
			want:     Decision{Outcome: OutcomeWrongRole, Redirect: "/coach/dashboard"},
		},
		{
			name:     "coach guard with super-admin profile",
			state:    authstate.State{User: signedIn, Profile: profile(models.RoleSuperAdmin)},
			required: models.RoleCoach,
			want:     Decision{Outcome: OutcomeWrongRole, Redirect: "/super-admin/dashboard"},
		},
		{
			name:     "missing profile",
			state:    authstate.State{User: signedIn},
			required: models.RoleCoach,
			want:     Decision{Outcome: OutcomeWrongRole, Redirect: "/login"},
		},
		{
			name:     "unknown role",
			state:    authstate.State{User: signedIn, Profile: profile("student")},
			required: models.RoleCoach,
			want:     Decision{Outcome: OutcomeWrongRole, Redirect: "/login"},
		},
		{
			name:     "authorized",
			state:    authstate.State{User: signedIn, Profile: profile(models.RoleOwner)},
			required: models.RoleOwner,
			want:     Decision{Outcome: OutcomeAuthorized},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Evaluate(tt.state, tt.required))
		})
	}
}

func TestEvaluateRole_EmptyRequiredNeverAuthorizes(t *testing.T) {
	d := EvaluateRole("", "")
	assert.Equal(t, OutcomeWrongRole, d.Outcome)
	assert.Equal(t, LoginPath, d.Redirect)
}

func TestStabilizer(t *testing.T) {
	toCoach := Decision{Outcome: OutcomeWrongRole, Redirect: "/coach/dashboard"}
	toLogin := Decision{Outcome: OutcomeUnauthenticated, Redirect: "/login"}
	authorized := Decision{Outcome: OutcomeAuthorized}

	t.Run("redirect needs two agreeing evaluations", func(t *testing.T) {
		s := NewStabilizer()

		d, changed := s.Observe(toCoach)
		assert.False(t, changed)
		assert.Equal(t, OutcomeLoading, d.Outcome)

		d, changed = s.Observe(toCoach)
		assert.True(t, changed)
		assert.Equal(t, toCoach, d)
	})

	t.Run("flapping never redirects", func(t *testing.T) {
		s := NewStabilizer()
		for i := 0; i < 5; i++ {
			d, _ := s.Observe(toCoach)
			assert.False(t, d.IsRedirect())
			d, _ = s.Observe(authorized)
			assert.Equal(t, authorized, d)
		}
	})

	t.Run("alternating redirect targets never commit", func(t *testing.T) {
		s := NewStabilizer()
		for i := 0; i < 3; i++ {
			s.Observe(toCoach)
			s.Observe(toLogin)
		}
		assert.Equal(t, OutcomeLoading, s.Committed().Outcome)
	})

	t.Run("authorized commits immediately", func(t *testing.T) {
		s := NewStabilizer()
		d, changed := s.Observe(authorized)
		assert.True(t, changed)
		assert.Equal(t, authorized, d)

		_, changed = s.Observe(authorized)
		assert.False(t, changed)
	})

	t.Run("loading resets pending redirect", func(t *testing.T) {
		s := NewStabilizer()
		s.Observe(toLogin)
		s.Observe(Decision{Outcome: OutcomeLoading})
		d, changed := s.Observe(toLogin)
		assert.False(t, changed)
		assert.Equal(t, OutcomeLoading, d.Outcome)
	})
}

func TestShellFor(t *testing.T) {
	for _, role := range models.Roles() {
		shell, ok := ShellFor(role)
		require.True(t, ok, role)
		assert.Equal(t, role, shell.Role)
		require.NotEmpty(t, shell.Sidebar)
		assert.Equal(t, role.HomePath(), shell.Sidebar[0].Path)
	}

	_, ok := ShellFor("student")
	assert.False(t, ok)
}

type staticVerifier struct {
	claims *identity.ParsedClaims
	err    error
}

func (s staticVerifier) VerifySessionCookie(context.Context, string) (*identity.ParsedClaims, error) {
	return s.claims, s.err
}

type profileMap map[string]*models.Profile

func (p profileMap) GetByUID(_ context.Context, uid string) (*models.Profile, error) {
	if pr, ok := p[uid]; ok {
		return pr, nil
	}
	return nil, fmt.Errorf("%s: %w", uid, repositories.ErrNotFound)
}

func TestGuardMiddleware(t *testing.T) {
	serve := func(verifier staticVerifier, profiles profileMap, required models.Role, withCookie bool) *httptest.ResponseRecorder {
		g := New(auth.NewAuthenticator(verifier, profiles, zap.NewNop()), nil, zap.NewNop())
		handler := g.Require(required)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := middleware.GetPrincipalFromContext(r.Context())
			require.NotNil(t, principal)
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, required.HomePath(), nil)
		if withCookie {
			req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "session"})
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("no session redirects to login", func(t *testing.T) {
		w := serve(staticVerifier{}, profileMap{}, models.RoleOwner, false)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})

	t.Run("expired session redirects to login", func(t *testing.T) {
		w := serve(staticVerifier{err: identity.ErrTokenExpired}, profileMap{}, models.RoleOwner, true)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})

	t.Run("coach profile on owner dashboard", func(t *testing.T) {
		verifier := staticVerifier{claims: &identity.ParsedClaims{Subject: "uid-1"}}
		w := serve(verifier, profileMap{"uid-1": profile(models.RoleCoach)}, models.RoleOwner, true)
		assert.Equal(t, http.StatusFound, w.Code)
		assert.Equal(t, "/coach/dashboard", w.Header().Get("Location"))
	})

	t.Run("authorized", func(t *testing.T) {
		verifier := staticVerifier{claims: &identity.ParsedClaims{Subject: "uid-1", Role: models.RoleOwner}}
		w := serve(verifier, profileMap{}, models.RoleOwner, true)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}
