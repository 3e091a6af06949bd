package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Fixverse25/KonvoAI/domain/entities"
	"github.com/Fixverse25/KonvoAI/domain/repositories"
)

const (
	defaultGeminiModel   = "gemini-2.0-flash"
	geminiRequestTimeout = 60 * time.Second
)

// GeminiCompletion implements the Completion interface using Google's
// Gemini API. Alternate provider, selected with COMPLETION_PROVIDER=gemini.
type GeminiCompletion struct {
	client       *genai.Client
	model        string
	maxTokens    int
	systemPrompt string
	logger       *zap.Logger
}

var _ repositories.Completion = (*GeminiCompletion)(nil)

// NewGeminiCompletion creates a Gemini-backed completion adapter.
func NewGeminiCompletion(ctx context.Context, apiKey, model string, maxTokens int, logger *zap.Logger) (*GeminiCompletion, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		model = defaultGeminiModel
	}
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiCompletion{
		client:       client,
		model:        model,
		maxTokens:    maxTokens,
		systemPrompt: SupportSystemPrompt,
		logger:       logger,
	}, nil
}

// Complete sends the windowed history and returns the reply text.
func (g *GeminiCompletion) Complete(ctx context.Context, turns []entities.Turn) (string, error) {
	contents := g.toContents(turns)
	if len(contents) == 0 {
		return "", &repositories.CompletionError{Err: fmt.Errorf("no messages to send")}
	}

	ctx, cancel := context.WithTimeout(ctx, geminiRequestTimeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		MaxOutputTokens:   int32(g.maxTokens),
		SystemInstruction: genai.NewContentFromText(g.systemPrompt, genai.RoleUser),
	}

	response, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return "", g.classify(err)
	}

	text := response.Text()
	if strings.TrimSpace(text) == "" {
		return "", &repositories.CompletionError{Err: fmt.Errorf("empty completion response")}
	}
	g.logger.Debug("gemini reply received",
		zap.String("model", g.model),
		zap.Int("chars", len(text)))
	return text, nil
}

// Stream sends the windowed history and emits reply chunks.
func (g *GeminiCompletion) Stream(ctx context.Context, turns []entities.Turn) (<-chan string, error) {
	contents := g.toContents(turns)
	if len(contents) == 0 {
		return nil, &repositories.CompletionError{Err: fmt.Errorf("no messages to send")}
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens:   int32(g.maxTokens),
		SystemInstruction: genai.NewContentFromText(g.systemPrompt, genai.RoleUser),
	}

	chunks := make(chan string, 16)
	go func() {
		defer close(chunks)
		for response, err := range g.client.Models.GenerateContentStream(ctx, g.model, contents, config) {
			if err != nil {
				g.logger.Warn("gemini stream interrupted", zap.Error(err))
				return
			}
			text := response.Text()
			if text == "" {
				continue
			}
			select {
			case chunks <- text:
			case <-ctx.Done():
				return
			}
		}
	}()
	return chunks, nil
}

func (g *GeminiCompletion) toContents(turns []entities.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		switch turn.Role {
		case entities.RoleUser:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleUser))
		case entities.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(turn.Content, genai.RoleModel))
		}
	}
	return contents
}

// classify maps transport errors onto the retry taxonomy. Deadline and
// cancellation failures are transient; anything else from the SDK is
// treated as fatal to avoid hammering a misconfigured endpoint.
func (g *GeminiCompletion) classify(err error) error {
	transient := ctxError(err)
	kind := repositories.FailureInternal
	if transient {
		kind = repositories.FailureUnavailable
	}
	return &repositories.CompletionError{Transient: transient, Kind: kind, Err: err}
}

func ctxError(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		strings.Contains(err.Error(), "deadline") ||
		strings.Contains(err.Error(), "connection")
}
