package api

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/Fixverse25/KonvoAI/domain/entities"
	"github.com/Fixverse25/KonvoAI/internal/auth"
	"github.com/Fixverse25/KonvoAI/internal/websocket"
	"github.com/Fixverse25/KonvoAI/usecase"
)

// Pinger reports whether the session store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handlers bundles the dependencies of the HTTP surface.
type Handlers struct {
	Conversation *usecase.ConversationService
	Voice        *usecase.VoiceService
	Hub          *websocket.Hub
	Issuer       *auth.TokenIssuer
	Store        Pinger
	Logger       *zap.Logger
}

// InitRoutes initializes all API routes.
func InitRoutes(e *echo.Echo, h *Handlers) {
	e.GET("/health", h.health)

	v1 := e.Group("/api/v1")
	v1.POST("/chat", h.chat)
	v1.POST("/voice-chat", h.voiceChat)
	v1.POST("/widget/session", h.widgetSession)

	e.GET("/ws/call", h.callSocket)
}

func (h *Handlers) health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Service: "konvoai-server", Redis: "ok"}
	status := http.StatusOK
	if h.Store != nil {
		if err := h.Store.Ping(ctx); err != nil {
			h.Logger.Warn("Health check: session store unreachable", zap.Error(err))
			resp.Status = "degraded"
			resp.Redis = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}
	return c.JSON(status, resp)
}

func (h *Handlers) chat(c echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if strings.TrimSpace(req.Message) == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Message is required",
		})
	}

	if req.Stream {
		return h.streamChat(c, &req)
	}

	reply, err := h.Conversation.HandleTurn(c.Request().Context(), req.SessionID, typedUtterance(req.Message, req.Language))
	if err != nil {
		h.Logger.Error("Chat turn failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "chat_failed",
			Message: "Failed to process message",
		})
	}

	return c.JSON(http.StatusOK, ChatResponse{
		Reply:     reply.Reply,
		SessionID: reply.SessionID,
		MessageID: uuid.NewString(),
	})
}

// streamChat delivers the reply as server-sent events, terminated by
// a [DONE] marker.
func (h *Handlers) streamChat(c echo.Context, req *ChatRequest) error {
	stream, err := h.Conversation.StreamTurn(c.Request().Context(), req.SessionID, typedUtterance(req.Message, req.Language))
	if err != nil {
		h.Logger.Error("Chat stream failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "chat_failed",
			Message: "Failed to process message",
		})
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/event-stream")
	resp.Header().Set("Cache-Control", "no-cache")
	resp.Header().Set("Connection", "keep-alive")
	resp.Header().Set("X-Session-Id", stream.SessionID)
	resp.WriteHeader(http.StatusOK)

	for chunk := range stream.Chunks {
		if _, err := fmt.Fprintf(resp, "data: %s\n\n", chunk); err != nil {
			return nil
		}
		resp.Flush()
	}
	fmt.Fprint(resp, "data: [DONE]\n\n")
	resp.Flush()
	return nil
}

func (h *Handlers) voiceChat(c echo.Context) error {
	var req VoiceChatRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}
	if req.AudioData == "" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "missing_fields",
			Message: "Audio data is required",
		})
	}
	if req.Format != "" && req.Format != "wav" {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "unsupported_format",
			Message: "Only wav audio is supported",
		})
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioData)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_audio",
			Message: "Audio data must be base64 encoded",
		})
	}

	result, err := h.Voice.HandleUtterance(c.Request().Context(), req.SessionID, audio, req.Language)
	if err != nil {
		h.Logger.Error("Voice turn failed", zap.Error(err))
		return c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "voice_failed",
			Message: "Failed to process audio",
		})
	}

	resp := VoiceChatResponse{
		Transcription: result.Transcription,
		Reply:         result.Reply,
		SessionID:     result.SessionID,
		Prompted:      result.Prompted,
	}
	if len(result.ReplyAudio) > 0 {
		resp.ReplyAudio = base64.StdEncoding.EncodeToString(result.ReplyAudio)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handlers) widgetSession(c echo.Context) error {
	var req WidgetSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	sessionID := uuid.NewString()
	token, err := h.Issuer.IssueWidgetToken(sessionID, req.Origin)
	if err != nil {
		h.Logger.Error("Failed to issue widget token", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate session token",
		})
	}

	h.Logger.Info("Widget session issued",
		zap.String("sessionID", sessionID),
		zap.String("origin", req.Origin))

	return c.JSON(http.StatusOK, WidgetSessionResponse{
		Token:     token,
		SessionID: sessionID,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	})
}

// callSocket validates the widget token and hands the connection to
// the call hub.
func (h *Handlers) callSocket(c echo.Context) error {
	token := c.QueryParam("token")
	if token == "" {
		h.Logger.Warn("Call socket rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "Widget token is required",
		})
	}

	claims, err := h.Issuer.ValidateToken(token)
	if err != nil {
		h.Logger.Warn("Call socket rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired widget token",
		})
	}

	h.Logger.Info("Call socket authenticated", zap.String("sessionID", claims.SessionID))
	return websocket.ServeCall(h.Hub, c, claims.SessionID, h.Logger)
}

func typedUtterance(message string, language string) entities.Utterance {
	return entities.Utterance{
		Text:     message,
		Language: language,
		Source:   entities.SourceTyped,
	}
}
