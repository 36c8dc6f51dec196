package middleware

import (
	"errors"
	"fmt"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/academy-hub/auth"
	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/services/audit"
	"github.com/upb/academy-hub/utils"
	"go.uber.org/zap"
)

// NotAuthenticatedMessage is returned to callers without a valid session
const NotAuthenticatedMessage = "Not authenticated."

// AccessAuditor records denied access attempts
type AccessAuditor interface {
	LogAccessDenied(uid string, role models.Role, path string, meta audit.RequestMeta) error
}

// AuthMiddleware guards API routes with the session cookie
type AuthMiddleware struct {
	authn   *auth.Authenticator
	auditor AccessAuditor
	logger  *zap.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware
func NewAuthMiddleware(authn *auth.Authenticator, auditor AccessAuditor, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		authn:   authn,
		auditor: auditor,
		logger:  logger,
	}
}

// RequireSession rejects requests without a valid session with
// 401 {success:false, message:"Not authenticated."}
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := chimw.GetReqID(r.Context())

		principal, err := m.authn.Authenticate(r)
		if err != nil {
			if errors.Is(err, auth.ErrNoSession) {
				m.logger.Debug("missing session cookie", zap.String("request_id", requestID))
			} else {
				m.logger.Warn("session verification failed",
					zap.String("request_id", requestID),
					zap.Error(err))
			}
			_ = utils.WriteResult(w, http.StatusUnauthorized, NotAuthenticatedMessage)
			return
		}

		m.logger.Debug("authentication successful",
			zap.String("request_id", requestID),
			zap.String("uid", principal.UID()),
			zap.String("role", string(principal.Role)),
			zap.String("role_source", string(principal.RoleSource)))

		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principal)))
	})
}

// RequireRole is a middleware that requires a specific role.
// It must run after RequireSession.
func (m *AuthMiddleware) RequireRole(role models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := chimw.GetReqID(r.Context())

			principal := GetPrincipalFromContext(r.Context())
			if principal == nil {
				m.logger.Error("principal not found in context", zap.String("request_id", requestID))
				_ = utils.WriteResult(w, http.StatusUnauthorized, NotAuthenticatedMessage)
				return
			}

			if !principal.HasRole(role) {
				m.logger.Warn("insufficient permissions",
					zap.String("request_id", requestID),
					zap.String("uid", principal.UID()),
					zap.String("required_role", string(role)),
					zap.String("role", string(principal.Role)))
				if m.auditor != nil {
					if err := m.auditor.LogAccessDenied(principal.UID(), principal.Role, r.URL.Path, audit.MetaFromRequest(r)); err != nil {
						m.logger.Warn("failed to queue access-denied audit event", zap.Error(err))
					}
				}
				_ = utils.WriteResult(w, http.StatusForbidden, fmt.Sprintf("Forbidden: %s role required.", role))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
