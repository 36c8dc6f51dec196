package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/upb/academy-hub/identity"
	"github.com/upb/academy-hub/internal/observability"
	"github.com/upb/academy-hub/models"
	"github.com/upb/academy-hub/repositories"
	"github.com/upb/academy-hub/services/audit"
	"github.com/upb/academy-hub/services/ratelimit"
	"github.com/upb/academy-hub/utils"
	"go.uber.org/zap"
)

// SessionProvider exchanges identity tokens for session cookies
type SessionProvider interface {
	SessionVerifier
	LocalMode() bool
	PublicJWKS() identity.JWKS
	VerifyIDToken(ctx context.Context, idToken string) (*identity.ParsedClaims, error)
	CreateSessionCookie(ctx context.Context, claims *identity.ParsedClaims, role models.Role, expiresIn time.Duration) (string, error)
	SignInWithPassword(ctx context.Context, profile *models.Profile, password string) (string, time.Time, error)
}

// ProfileStore is the profile access needed by the session endpoints
type ProfileStore interface {
	ProfileLookup
	GetByEmail(ctx context.Context, email string) (*models.Profile, error)
}

// AuditLogger records session events
type AuditLogger interface {
	LogLogin(uid string, succeeded bool, meta audit.RequestMeta, reason string) error
	LogLogout(uid string, meta audit.RequestMeta) error
}

// SignInThrottle limits failed password sign-ins
type SignInThrottle interface {
	Check(ctx context.Context, keys ...string) (*ratelimit.Result, error)
	RecordFailure(ctx context.Context, keys ...string) error
	Reset(ctx context.Context, key string) error
}

// LoginRequest is the body of POST /api/login
type LoginRequest struct {
	IDToken string `json:"idToken"`
}

// SignInRequest is the body of POST /api/auth/sign-in
type SignInRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SignInResponse carries a freshly issued identity token
type SignInResponse struct {
	IDToken   string    `json:"idToken"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionResponse describes the caller's current session
type SessionResponse struct {
	UID        string          `json:"uid"`
	Email      string          `json:"email"`
	Role       models.Role     `json:"role,omitempty"`
	RoleSource RoleSource      `json:"roleSource,omitempty"`
	Home       string          `json:"home,omitempty"`
	AuthTime   time.Time       `json:"authTime"`
	ExpiresAt  time.Time       `json:"expiresAt"`
	Profile    *models.Profile `json:"profile,omitempty"`
}

// loginError is the error body of POST /api/login
type loginError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// Handler serves the session endpoints
type Handler struct {
	provider SessionProvider
	profiles ProfileStore
	auth     *Authenticator
	audit    AuditLogger
	throttle SignInThrottle
	metrics  *observability.Metrics
	secure   bool
	logger   *zap.Logger
}

// NewHandler creates a new session handler. secure marks cookies Secure and
// should be true in production.
func NewHandler(
	provider SessionProvider,
	profiles ProfileStore,
	auditLogger AuditLogger,
	metrics *observability.Metrics,
	secure bool,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		provider: provider,
		profiles: profiles,
		auth:     NewAuthenticator(provider, profiles, logger),
		audit:    auditLogger,
		metrics:  metrics,
		secure:   secure,
		logger:   logger,
	}
}

// WithThrottle enables sign-in throttling
func (h *Handler) WithThrottle(throttle SignInThrottle) *Handler {
	h.throttle = throttle
	return h
}

// HandleLogin exchanges an identity token for a session cookie
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	meta := audit.MetaFromRequest(r)

	var req LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil && !errors.Is(err, utils.ErrEmptyBody) {
		h.metrics.LoginOutcome("bad_request")
		_ = utils.WriteJSON(w, http.StatusBadRequest, loginError{Error: "Invalid request body"})
		return
	}
	req.IDToken = strings.TrimSpace(req.IDToken)
	if req.IDToken == "" {
		h.metrics.LoginOutcome("bad_request")
		_ = utils.WriteJSON(w, http.StatusBadRequest, loginError{Error: "ID token is required"})
		return
	}

	claims, err := h.provider.VerifyIDToken(r.Context(), req.IDToken)
	if err != nil {
		h.loginFailed(w, "", meta, err)
		return
	}

	// stamp the stored role so claims and profile agree at mint time
	role := claims.Role
	if profile, err := h.profiles.GetByUID(r.Context(), claims.Subject); err == nil && profile.Role.IsValid() {
		role = profile.Role
	} else if err != nil && !errors.Is(err, repositories.ErrNotFound) {
		h.logger.Warn("profile lookup failed during login",
			zap.String("uid", claims.Subject),
			zap.String("request_id", meta.RequestID),
			zap.Error(err))
	}

	cookie, err := h.provider.CreateSessionCookie(r.Context(), claims, role, SessionDuration)
	if err != nil {
		h.loginFailed(w, claims.Subject, meta, err)
		return
	}

	SetSessionCookie(w, cookie, h.secure)
	h.metrics.LoginOutcome("success")
	if err := h.audit.LogLogin(claims.Subject, true, meta, ""); err != nil {
		h.logger.Warn("failed to queue login audit event", zap.Error(err))
	}

	h.logger.Info("session created",
		zap.String("uid", claims.Subject),
		zap.String("role", string(role)),
		zap.String("request_id", meta.RequestID))

	_ = utils.WriteJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

func (h *Handler) loginFailed(w http.ResponseWriter, uid string, meta audit.RequestMeta, err error) {
	h.metrics.LoginOutcome("failure")
	h.logger.Warn("session exchange failed",
		zap.String("uid", uid),
		zap.String("request_id", meta.RequestID),
		zap.Error(err))
	if uid != "" {
		if aerr := h.audit.LogLogin(uid, false, meta, err.Error()); aerr != nil {
			h.logger.Warn("failed to queue login audit event", zap.Error(aerr))
		}
	}
	_ = utils.WriteJSON(w, http.StatusInternalServerError, loginError{
		Error:   "Failed to create session",
		Details: err.Error(),
	})
}

// HandleLogout clears the session cookie
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if principal, err := h.auth.Authenticate(r); err == nil {
		if err := h.audit.LogLogout(principal.UID(), audit.MetaFromRequest(r)); err != nil {
			h.logger.Warn("failed to queue logout audit event", zap.Error(err))
		}
	}

	ClearSessionCookie(w, h.secure)
	_ = utils.WriteJSON(w, http.StatusOK, statusResponse{Status: "success"})
}

// HandleSession returns the decoded session and the caller's profile
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	principal, err := h.auth.Authenticate(r)
	if err != nil {
		if !errors.Is(err, ErrNoSession) {
			h.logger.Debug("session rejected", zap.Error(err))
		}
		_ = utils.WriteUnauthorized(w, "Not authenticated.")
		return
	}

	resp := SessionResponse{
		UID:        principal.UID(),
		Email:      principal.Claims.Email,
		Role:       principal.Role,
		RoleSource: principal.RoleSource,
		Home:       principal.Role.HomePath(),
		AuthTime:   principal.Claims.AuthTime,
		ExpiresAt:  principal.Claims.ExpiresAt,
	}

	profile, err := h.profiles.GetByUID(r.Context(), principal.UID())
	switch {
	case err == nil:
		resp.Profile = profile
		if principal.RoleSource == RoleFromClaims && profile.Role != principal.Role {
			h.logger.Warn("role divergence",
				zap.String("uid", principal.UID()),
				zap.String("claims_role", string(principal.Role)),
				zap.String("profile_role", string(profile.Role)))
		}
	case !errors.Is(err, repositories.ErrNotFound):
		h.logger.Warn("profile lookup failed", zap.String("uid", principal.UID()), zap.Error(err))
	}

	_ = utils.WriteOK(w, resp)
}

// HandleSignIn verifies an email and password and returns an identity token.
// Only served when this service issues its own identity tokens.
func (h *Handler) HandleSignIn(w http.ResponseWriter, r *http.Request) {
	if !h.provider.LocalMode() {
		_ = utils.WriteNotFound(w, identity.ErrLocalSignInDisabled.Error())
		return
	}

	var req SignInRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := utils.ValidateStruct(req); err != nil {
		details := make(map[string]interface{})
		for field, tag := range utils.GetValidationFields(err) {
			details[field] = tag
		}
		_ = utils.WriteBadRequest(w, "email and password are required", details)
		return
	}

	ctx := r.Context()
	keys := []string{ratelimit.EmailKey(req.Email), ratelimit.IPKey(audit.MetaFromRequest(r).IPAddress)}
	if h.throttle != nil {
		result, err := h.throttle.Check(ctx, keys...)
		switch {
		case err != nil:
			// fail open: an unavailable counter must not lock everyone out
			h.logger.Warn("sign-in throttle check failed", zap.Error(err))
		case !result.Allowed:
			h.logger.Warn("sign-in throttled", zap.String("scope", result.Scope), zap.Duration("retry_after", result.RetryAfter))
			_ = utils.WriteTooManyRequests(w, "Too many failed sign-in attempts. Try again later.", result.RetryAfter)
			return
		}
	}

	profile, err := h.profiles.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			h.recordFailure(ctx, keys)
			_ = utils.WriteUnauthorized(w, identity.ErrInvalidCredentials.Error())
			return
		}
		h.logger.Error("profile lookup failed", zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	token, expiresAt, err := h.provider.SignInWithPassword(ctx, profile, req.Password)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			h.recordFailure(ctx, keys)
			_ = utils.WriteUnauthorized(w, err.Error())
			return
		}
		h.logger.Error("password sign-in failed", zap.String("uid", profile.UID), zap.Error(err))
		_ = utils.WriteInternalServerError(w, "")
		return
	}

	if h.throttle != nil {
		if err := h.throttle.Reset(ctx, keys[0]); err != nil {
			h.logger.Warn("failed to reset sign-in attempts", zap.Error(err))
		}
	}

	_ = utils.WriteOK(w, SignInResponse{IDToken: token, ExpiresAt: expiresAt})
}

func (h *Handler) recordFailure(ctx context.Context, keys []string) {
	if h.throttle == nil {
		return
	}
	if err := h.throttle.RecordFailure(ctx, keys...); err != nil {
		h.logger.Warn("failed to record sign-in attempt", zap.Error(err))
	}
}

// HandleJWKS publishes the keys verifying tokens signed by this service
func (h *Handler) HandleJWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_ = utils.WriteJSON(w, http.StatusOK, h.provider.PublicJWKS())
}
