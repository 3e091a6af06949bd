package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Fixverse25/KonvoAI/domain/entities"
	"github.com/Fixverse25/KonvoAI/domain/repositories"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
	defaultClaudeModel      = "claude-3-sonnet-20240229"
	defaultMaxTokens        = 4000
	defaultTemperature      = 0.7
	defaultTimeout          = 60 * time.Second
	sseDataPrefix           = "data: "
)

// AnthropicConfig holds configuration for the Claude completion adapter.
// Required fields:
// - APIKey: Anthropic API key
// Optional fields with defaults:
// - BaseURL: API base URL (default: "https://api.anthropic.com/v1")
// - Model: model identifier (default: "claude-3-sonnet-20240229")
// - MaxTokens: response token budget (default: 4000)
// - SystemPrompt: conversation system prompt (default: the support prompt)
// - Timeout: per-request timeout (default: 60s)
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	SystemPrompt string
	Timeout      time.Duration
}

// AnthropicCompletion implements the Completion interface against the
// Anthropic Messages API.
type AnthropicCompletion struct {
	apiKey       string
	baseURL      string
	model        string
	maxTokens    int
	systemPrompt string
	client       *http.Client
	logger       *zap.Logger
}

var _ repositories.Completion = (*AnthropicCompletion)(nil)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// NewAnthropicCompletion creates a Claude-backed completion adapter.
func NewAnthropicCompletion(config AnthropicConfig, logger *zap.Logger) (*AnthropicCompletion, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	model := config.Model
	if model == "" {
		model = defaultClaudeModel
	}
	maxTokens := config.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	systemPrompt := config.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = SupportSystemPrompt
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &AnthropicCompletion{
		apiKey:       config.APIKey,
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		model:        model,
		maxTokens:    maxTokens,
		systemPrompt: systemPrompt,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
	}, nil
}

// Complete sends the windowed history and returns the reply text.
func (a *AnthropicCompletion) Complete(ctx context.Context, turns []entities.Turn) (string, error) {
	messages := toAnthropicMessages(turns)
	if len(messages) == 0 {
		return "", &repositories.CompletionError{Err: errors.New("no messages to send")}
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      a.systemPrompt,
		Messages:    messages,
		Temperature: defaultTemperature,
	})
	if err != nil {
		return "", &repositories.CompletionError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	resp, err := a.post(ctx, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", a.statusError(resp)
	}

	var parsed anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", &repositories.CompletionError{Err: fmt.Errorf("decode response: %w", err)}
	}
	for _, block := range parsed.Content {
		if block.Type == "text" && block.Text != "" {
			a.logger.Debug("claude reply received",
				zap.String("model", a.model),
				zap.Int("chars", len(block.Text)))
			return block.Text, nil
		}
	}
	return "", &repositories.CompletionError{Err: errors.New("empty completion response")}
}

// Stream sends the windowed history and emits reply chunks as they
// arrive. The channel closes after message_stop or on stream failure.
func (a *AnthropicCompletion) Stream(ctx context.Context, turns []entities.Turn) (<-chan string, error) {
	messages := toAnthropicMessages(turns)
	if len(messages) == 0 {
		return nil, &repositories.CompletionError{Err: errors.New("no messages to send")}
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       a.model,
		MaxTokens:   a.maxTokens,
		System:      a.systemPrompt,
		Messages:    messages,
		Temperature: defaultTemperature,
		Stream:      true,
	})
	if err != nil {
		return nil, &repositories.CompletionError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	resp, err := a.post(ctx, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, a.statusError(resp)
	}

	chunks := make(chan string, 16)
	go func() {
		defer close(chunks)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, sseDataPrefix) {
				continue
			}
			var event anthropicStreamEvent
			if err := json.Unmarshal([]byte(line[len(sseDataPrefix):]), &event); err != nil {
				continue
			}
			switch event.Type {
			case "content_block_delta":
				if event.Delta.Type == "text_delta" && event.Delta.Text != "" {
					select {
					case chunks <- event.Delta.Text:
					case <-ctx.Done():
						return
					}
				}
			case "message_stop":
				return
			}
		}
		if err := scanner.Err(); err != nil {
			a.logger.Warn("claude stream interrupted", zap.Error(err))
		}
	}()
	return chunks, nil
}

func (a *AnthropicCompletion) post(ctx context.Context, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &repositories.CompletionError{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", a.apiKey)
	req.Header.Set("Anthropic-Version", anthropicVersion)

	resp, err := a.client.Do(req)
	if err != nil {
		// Network trouble and timeouts are worth a retry.
		return nil, &repositories.CompletionError{Transient: true, Kind: repositories.FailureUnavailable, Err: err}
	}
	return resp, nil
}

// statusError classifies HTTP failures: rate limits and server errors
// are transient, auth and request problems are fatal.
func (a *AnthropicCompletion) statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	message := strings.TrimSpace(string(raw))

	var parsed anthropicResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.Error != nil {
		message = parsed.Error.Message
	}

	transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
	kind := repositories.FailureInternal
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = repositories.FailureRateLimited
	case resp.StatusCode >= 500:
		kind = repositories.FailureUnavailable
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		kind = repositories.FailureUnauthorized
	}
	a.logger.Error("claude API error",
		zap.Int("status", resp.StatusCode),
		zap.Bool("transient", transient),
		zap.String("message", message))

	return &repositories.CompletionError{
		Transient: transient,
		Kind:      kind,
		Err:       fmt.Errorf("anthropic API status %d: %s", resp.StatusCode, message),
	}
}

func toAnthropicMessages(turns []entities.Turn) []anthropicMessage {
	messages := make([]anthropicMessage, 0, len(turns))
	for _, turn := range turns {
		if turn.Role != entities.RoleUser && turn.Role != entities.RoleAssistant {
			continue
		}
		messages = append(messages, anthropicMessage{
			Role:    string(turn.Role),
			Content: turn.Content,
		})
	}
	return messages
}
