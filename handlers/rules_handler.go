package handlers

import (
	"context"
	"net/http"

	"github.com/upb/academy-hub/internal/observability"
	"github.com/upb/academy-hub/middleware"
	"github.com/upb/academy-hub/services"
	"github.com/upb/academy-hub/services/audit"
	"github.com/upb/academy-hub/services/rules"
	"github.com/upb/academy-hub/utils"
	"go.uber.org/zap"
)

// RulesDrafter drafts security rules from a description
type RulesDrafter interface {
	Generate(ctx context.Context, req rules.GenerateRequest) (*rules.Draft, error)
	Model() string
}

// RulesAuditor records generated drafts
type RulesAuditor interface {
	LogRulesGenerated(uid, model string, meta audit.RequestMeta) error
}

// RulesHandler serves the security-rules assistant
type RulesHandler struct {
	rules   RulesDrafter
	audit   RulesAuditor
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewRulesHandler creates a new RulesHandler
func NewRulesHandler(drafter RulesDrafter, auditor RulesAuditor, metrics *observability.Metrics, logger *zap.Logger) *RulesHandler {
	return &RulesHandler{
		rules:   drafter,
		audit:   auditor,
		metrics: metrics,
		logger:  logger,
	}
}

// HandleGenerate handles POST /api/super-admin/security-rules
func (h *RulesHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var req rules.GenerateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		h.metrics.RulesOutcome("bad_request")
		_ = utils.WriteBadRequest(w, err.Error(), nil)
		return
	}

	draft, err := h.rules.Generate(r.Context(), req)
	if err != nil {
		h.metrics.RulesOutcome(string(services.GetErrorType(err)))
		HandleServiceError(w, err, h.logger)
		return
	}

	h.metrics.RulesOutcome("success")
	if principal := middleware.GetPrincipalFromContext(r.Context()); principal != nil && h.audit != nil {
		if err := h.audit.LogRulesGenerated(principal.UID(), h.rules.Model(), audit.MetaFromRequest(r)); err != nil {
			h.logger.Warn("failed to queue rules audit event", zap.Error(err))
		}
	}

	_ = utils.WriteOK(w, draft)
}
