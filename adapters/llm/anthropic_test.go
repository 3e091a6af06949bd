package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/Fixverse25/KonvoAI/domain/entities"
	"github.com/Fixverse25/KonvoAI/domain/repositories"
)

func userTurn(content string) entities.Turn {
	return entities.Turn{Role: entities.RoleUser, Content: content, Source: entities.SourceTyped}
}

func newTestCompletion(t *testing.T, handler http.HandlerFunc) (*AnthropicCompletion, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	completion, err := NewAnthropicCompletion(AnthropicConfig{
		APIKey:  "test-key",
		BaseURL: server.URL,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewAnthropicCompletion failed: %v", err)
	}
	return completion, server
}

func TestCompleteSendsHistoryAndReturnsReply(t *testing.T) {
	var gotBody anthropicRequest
	completion, _ := newTestCompletion(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Api-Key") != "test-key" {
			t.Errorf("Missing API key header")
		}
		if r.Header.Get("Anthropic-Version") != anthropicVersion {
			t.Errorf("Missing version header")
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("Decode request: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]string{{"type": "text", "text": "Check the connector latch."}},
		})
	})

	reply, err := completion.Complete(context.Background(), []entities.Turn{
		userTurn("My CCS plug will not lock"),
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != "Check the connector latch." {
		t.Errorf("Unexpected reply %q", reply)
	}
	if len(gotBody.Messages) != 1 || gotBody.Messages[0].Role != "user" {
		t.Errorf("Unexpected messages payload: %+v", gotBody.Messages)
	}
	if gotBody.System == "" {
		t.Error("Expected the system prompt to be sent")
	}
}

func TestCompleteClassifiesRateLimitAsTransient(t *testing.T) {
	completion, _ := newTestCompletion(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "rate_limit_error", "message": "slow down"},
		})
	})

	_, err := completion.Complete(context.Background(), []entities.Turn{userTurn("hi")})
	var cerr *repositories.CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected CompletionError, got %v", err)
	}
	if !cerr.Transient {
		t.Error("Rate limit should be classified as transient")
	}
	if cerr.Kind != repositories.FailureRateLimited {
		t.Errorf("Expected rate_limited kind, got %q", cerr.Kind)
	}
}

func TestCompleteClassifiesAuthFailureAsFatal(t *testing.T) {
	completion, _ := newTestCompletion(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error": map[string]string{"type": "authentication_error", "message": "bad key"},
		})
	})

	_, err := completion.Complete(context.Background(), []entities.Turn{userTurn("hi")})
	var cerr *repositories.CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Expected CompletionError, got %v", err)
	}
	if cerr.Transient {
		t.Error("Auth failure must not be retried")
	}
	if cerr.Kind != repositories.FailureUnauthorized {
		t.Errorf("Expected unauthorized kind, got %q", cerr.Kind)
	}
}

func TestCompleteRejectsEmptyHistory(t *testing.T) {
	completion, _ := newTestCompletion(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request should be sent for an empty history")
	})

	if _, err := completion.Complete(context.Background(), nil); err == nil {
		t.Error("Expected error for empty history")
	}
}

func TestStreamDeliversChunksUntilStop(t *testing.T) {
	completion, _ := newTestCompletion(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		chunks := []string{
			`{"type":"message_start"}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Try "}}`,
			`{"type":"content_block_delta","delta":{"type":"text_delta","text":"again."}}`,
			`{"type":"message_stop"}`,
		}
		for _, c := range chunks {
			w.Write([]byte("data: " + c + "\n\n"))
		}
	})

	stream, err := completion.Stream(context.Background(), []entities.Turn{userTurn("help")})
	if err != nil {
		t.Fatalf("Stream failed: %v", err)
	}

	var sb strings.Builder
	for chunk := range stream {
		sb.WriteString(chunk)
	}
	if sb.String() != "Try again." {
		t.Errorf("Unexpected streamed text %q", sb.String())
	}
}

func TestNewAnthropicCompletionRequiresKey(t *testing.T) {
	if _, err := NewAnthropicCompletion(AnthropicConfig{}, zap.NewNop()); err == nil {
		t.Error("Expected error without API key")
	}
}
