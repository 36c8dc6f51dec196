package guard

import (
	"errors"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/academy-hub/auth"
	"github.com/upb/academy-hub/internal/observability"
	"github.com/upb/academy-hub/middleware"
	"github.com/upb/academy-hub/models"
	"go.uber.org/zap"
)

// Guard applies the dashboard decision table to server-rendered routes
type Guard struct {
	authn   *auth.Authenticator
	metrics *observability.Metrics
	logger  *zap.Logger
}

// New creates a Guard
func New(authn *auth.Authenticator, metrics *observability.Metrics, logger *zap.Logger) *Guard {
	return &Guard{
		authn:   authn,
		metrics: metrics,
		logger:  logger,
	}
}

// Require redirects callers that may not see a dashboard requiring role:
// no or invalid session goes to /login, another role goes to its own home.
func (g *Guard) Require(required models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := g.authn.Authenticate(r)

			var d Decision
			if err != nil {
				if !errors.Is(err, auth.ErrNoSession) {
					g.logger.Debug("dashboard session rejected",
						zap.String("request_id", chimw.GetReqID(r.Context())),
						zap.Error(err))
				}
				d = Decision{Outcome: OutcomeUnauthenticated, Redirect: LoginPath}
			} else {
				d = EvaluateRole(principal.Role, required)
			}
			g.metrics.GuardDecision(string(required), string(d.Outcome))

			if d.IsRedirect() {
				http.Redirect(w, r, d.Redirect, http.StatusFound)
				return
			}
			next.ServeHTTP(w, r.WithContext(middleware.WithPrincipal(r.Context(), principal)))
		})
	}
}
