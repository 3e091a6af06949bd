package api

import "time"

// ChatRequest is the payload of the typed chat endpoint.
type ChatRequest struct {
	Message   string `json:"message" validate:"required"`
	SessionID string `json:"session_id,omitempty"`
	Language  string `json:"language,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
}

// ChatResponse is the non-streaming chat reply.
type ChatResponse struct {
	Reply     string `json:"reply"`
	SessionID string `json:"session_id"`
	MessageID string `json:"message_id"`
}

// VoiceChatRequest carries one base64-encoded WAV utterance.
type VoiceChatRequest struct {
	AudioData string `json:"audio_data" validate:"required"`
	SessionID string `json:"session_id,omitempty"`
	Language  string `json:"language,omitempty"`
	Format    string `json:"format,omitempty"`
}

// VoiceChatResponse is the outcome of one voice turn. ReplyAudio is
// base64-encoded WAV; it is empty when synthesis was unavailable.
type VoiceChatResponse struct {
	Transcription string `json:"transcription"`
	Reply         string `json:"reply"`
	ReplyAudio    string `json:"reply_audio,omitempty"`
	SessionID     string `json:"session_id"`
	Prompted      bool   `json:"prompted"`
}

// WidgetSessionRequest asks for a widget session token.
type WidgetSessionRequest struct {
	Origin string `json:"origin,omitempty"`
}

// WidgetSessionResponse carries the signed widget token.
type WidgetSessionResponse struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse reports service and dependency status.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Redis   string `json:"redis"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
