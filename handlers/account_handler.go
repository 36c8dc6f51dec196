package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/upb/academy-hub/internal/observability"
	"github.com/upb/academy-hub/middleware"
	"github.com/upb/academy-hub/services/account"
	"github.com/upb/academy-hub/services/audit"
	"github.com/upb/academy-hub/utils"
	"go.uber.org/zap"
)

// PasswordUpdater performs super-admin password changes
type PasswordUpdater interface {
	UpdatePassword(ctx context.Context, actorUID string, req account.UpdatePasswordRequest, meta audit.RequestMeta) error
}

// AccountHandler serves privileged account mutations. Routes must be wrapped
// with RequireSession and RequireRole(super-admin), which answer 401 and 403.
type AccountHandler struct {
	accounts PasswordUpdater
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewAccountHandler creates a new AccountHandler
func NewAccountHandler(accounts PasswordUpdater, metrics *observability.Metrics, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accounts: accounts,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleUpdatePassword handles POST /api/super-admin/update-password
func (h *AccountHandler) HandleUpdatePassword(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipalFromContext(r.Context())
	if principal == nil {
		h.metrics.ElevationStatus(http.StatusUnauthorized)
		_ = utils.WriteResult(w, http.StatusUnauthorized, middleware.NotAuthenticatedMessage)
		return
	}

	var req account.UpdatePasswordRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.metrics.ElevationStatus(http.StatusBadRequest)
		_ = utils.WriteResult(w, http.StatusBadRequest, "Invalid request body.")
		return
	}

	if err := h.accounts.UpdatePassword(r.Context(), principal.UID(), req, audit.MetaFromRequest(r)); err != nil {
		h.metrics.ElevationStatus(HandleResultError(w, err, h.logger))
		return
	}

	h.metrics.ElevationStatus(http.StatusOK)
	_ = utils.WriteResult(w, http.StatusOK, fmt.Sprintf("Password updated successfully for user %s.", strings.TrimSpace(req.TargetUID)))
}
