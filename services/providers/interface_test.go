package providers

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

// MockProvider is a test implementation of the Provider interface
type MockProvider struct {
	name          string
	content       string
	err           error
	responseDelay time.Duration
}

func NewMockProvider(name, content string) *MockProvider {
	return &MockProvider{name: name, content: content}
}

func (m *MockProvider) Name() string {
	return m.name
}

func (m *MockProvider) ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if m.responseDelay > 0 {
		select {
		case <-time.After(m.responseDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.err != nil {
		return nil, m.err
	}

	return &ChatResponse{
		ID:       "mock-response-123",
		Model:    req.Model,
		Provider: m.name,
		Choices: []Choice{
			{Message: Message{Role: RoleAssistant, Content: m.content}, FinishReason: "stop"},
		},
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		Created: time.Now(),
	}, nil
}

func TestMockProvider(t *testing.T) {
	var p Provider = NewMockProvider("mock", `{"rules":"allow read;"}`)

	resp, err := p.ChatCompletion(context.Background(), &ChatRequest{
		Model:          "mock-model",
		Messages:       []Message{{Role: RoleUser, Content: "hi"}},
		ResponseFormat: FormatJSONObject,
	})
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}
	if resp.Content() != `{"rules":"allow read;"}` {
		t.Errorf("Content() = %q", resp.Content())
	}
	if resp.Model != "mock-model" {
		t.Errorf("Model = %s, want mock-model", resp.Model)
	}
}

func TestChatResponse_Content(t *testing.T) {
	var nilResp *ChatResponse
	if nilResp.Content() != "" {
		t.Error("Content() on nil response should be empty")
	}
	if (&ChatResponse{}).Content() != "" {
		t.Error("Content() without choices should be empty")
	}
}

func TestDefaultProviderConfig(t *testing.T) {
	config := DefaultProviderConfig()
	if config.Timeout != 30*time.Second {
		t.Errorf("Timeout = %v, want 30s", config.Timeout)
	}
	if config.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", config.MaxRetries)
	}
	if config.Headers == nil {
		t.Error("Headers should be initialized")
	}
}

func TestProviderError(t *testing.T) {
	t.Run("ErrorMethod", func(t *testing.T) {
		err := NewProviderError("provider", "CODE", "message", 400, false, nil)
		if err.Error() != "message" {
			t.Errorf("Error() = %s, want message", err.Error())
		}

		err = NewProviderError("provider", "CODE", "message", 400, false, errors.New("cause"))
		if err.Error() != "message: cause" {
			t.Errorf("Error() = %s, want 'message: cause'", err.Error())
		}

		err = NewProviderError("provider", "CODE", "message", 400, false, errors.New("message"))
		if err.Error() != "message" {
			t.Errorf("Error() = %s, want message without repetition", err.Error())
		}
	})

	t.Run("Unwrap", func(t *testing.T) {
		cause := errors.New("underlying error")
		err := NewProviderError("provider", "CODE", "message", 500, true, cause)
		if !errors.Is(err, cause) {
			t.Error("errors.Is did not find the cause")
		}
	})

	t.Run("IsRetryable", func(t *testing.T) {
		if !IsRetryable(NewProviderError("provider", "CODE", "message", 500, true, nil)) {
			t.Error("IsRetryable() = false, want true")
		}
		if IsRetryable(NewProviderError("provider", "CODE", "message", 400, false, nil)) {
			t.Error("IsRetryable() = true, want false")
		}
		wrapped := fmt.Errorf("generate: %w", NewProviderError("provider", "CODE", "message", 429, true, nil))
		if !IsRetryable(wrapped) {
			t.Error("IsRetryable() should see through wrapping")
		}
		if IsRetryable(errors.New("standard error")) {
			t.Error("IsRetryable() should return false for non-ProviderError")
		}
	})
}

func TestContextCancellation(t *testing.T) {
	p := NewMockProvider("slow", "")
	p.responseDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.ChatCompletion(ctx, &ChatRequest{Model: "m"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
}
