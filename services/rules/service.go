// Package rules drafts data-access security rules from a plain-language
// description using a hosted chat-completion model.
package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/upb/academy-hub/services"
	"github.com/upb/academy-hub/services/providers"
	"github.com/upb/academy-hub/utils"
	"go.uber.org/zap"
)

// MaxDescriptionLength bounds the description accepted from callers
const MaxDescriptionLength = 4000

const systemPrompt = `You write security rules for a multi-tenant academy management database.
Collections: profiles (keyed by uid, field role in super-admin|owner|coach, field academyId),
academies (keyed by id, field ownerUid), and per-academy data nested under academies/{id}.
Reply with a JSON object with exactly two string fields: "rules" holding the complete rules
source, and "explanation" summarising what each rule allows.`

// GenerateRequest is the body of a rules drafting request
type GenerateRequest struct {
	Description string `json:"description" validate:"required,max=4000"`
}

// Draft is the schema the model output must satisfy
type Draft struct {
	Rules       string `json:"rules" validate:"required"`
	Explanation string `json:"explanation" validate:"required"`
}

// Service drafts security rules
type Service struct {
	provider  providers.Provider
	model     string
	maxTokens int
	logger    *zap.Logger
}

// NewService creates a rules service. A nil provider leaves the service disabled.
func NewService(provider providers.Provider, model string, logger *zap.Logger) *Service {
	return &Service{
		provider:  provider,
		model:     model,
		maxTokens: 2048,
		logger:    logger,
	}
}

// Enabled reports whether a provider is configured
func (s *Service) Enabled() bool {
	return s.provider != nil
}

// Model returns the model drafts are requested from
func (s *Service) Model() string {
	return s.model
}

// Generate screens the description, makes a single request to the model and
// validates its answer
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Draft, error) {
	if !s.Enabled() {
		return nil, services.NewDomainError(services.ErrorTypeUnavailable,
			"security rules assistant is not configured", services.ErrNotConfigured)
	}

	req.Description = strings.TrimSpace(req.Description)
	if err := utils.ValidateStruct(req); err != nil {
		return nil, services.WrapValidation(
			fmt.Sprintf("description is required and must be at most %d characters", MaxDescriptionLength), err)
	}

	description, findings, err := screenDescription(req.Description)
	if err != nil {
		s.logger.Warn("rules description rejected", zap.String("pattern", findings[0].Kind))
		return nil, services.NewDomainError(services.ErrorTypeValidation,
			"description must describe access rules, not instructions for the assistant", err).
			WithDetail("pattern", findings[0].Kind)
	}
	if len(findings) > 0 {
		s.logger.Info("redacted sensitive values from rules description", zap.Int("count", len(findings)))
	}

	resp, err := s.provider.ChatCompletion(ctx, &providers.ChatRequest{
		Model: s.model,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: systemPrompt},
			{Role: providers.RoleUser, Content: description},
		},
		MaxTokens:      s.maxTokens,
		Temperature:    0.2,
		ResponseFormat: providers.FormatJSONObject,
	})
	if err != nil {
		s.logger.Warn("rules provider request failed", zap.String("model", s.model), zap.Error(err))
		return nil, services.WrapExternal(fmt.Sprintf("rules provider request failed: %v", err), err)
	}

	draft, err := parseDraft(resp.Content())
	if err != nil {
		s.logger.Warn("rules provider returned an invalid draft",
			zap.String("model", s.model),
			zap.String("finish_reason", finishReason(resp)),
			zap.Error(err))
		return nil, err
	}

	s.logger.Debug("rules draft generated",
		zap.String("model", resp.Model),
		zap.Int("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("latency", resp.Latency))
	return draft, nil
}

func parseDraft(content string) (*Draft, error) {
	content = stripFence(content)
	if content == "" {
		return nil, services.WrapExternal("model returned an empty response", nil)
	}

	var draft Draft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return nil, services.WrapExternal("model response is not a JSON object", err)
	}
	if err := utils.ValidateStruct(draft); err != nil {
		derr := services.NewDomainError(services.ErrorTypeExternal, "model response is missing required fields", err)
		for field, msg := range utils.GetValidationFields(err) {
			derr.WithDetail(field, msg)
		}
		return nil, derr
	}
	return &draft, nil
}

// stripFence removes a markdown code fence some models wrap JSON in
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}

func finishReason(resp *providers.ChatResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return resp.Choices[0].FinishReason
}
