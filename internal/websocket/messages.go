package websocket

import (
	"encoding/json"
	"fmt"
	"time"
)

// MessageType defines the type of a JSON control message on the call
// socket. Audio travels as binary frames and never as JSON.
type MessageType string

const (
	// Client to server.
	MessageTypeCallStart MessageType = "call_start"
	MessageTypeHangUp    MessageType = "hang_up"

	// Server to client.
	MessageTypeCallStarted   MessageType = "call_started"
	MessageTypeTranscription MessageType = "transcription"
	MessageTypeReply         MessageType = "reply"
	MessageTypePrompt        MessageType = "prompt"
	MessageTypeCallEnded     MessageType = "call_ended"
	MessageTypeError         MessageType = "error"
)

// BaseMessage is the common envelope of all control messages.
type BaseMessage struct {
	Type      MessageType `json:"type"`
	Timestamp string      `json:"timestamp,omitempty"`
}

// CallStartMessage asks the server to open the voice pipeline.
type CallStartMessage struct {
	BaseMessage
	SampleRate int    `json:"sample_rate,omitempty"`
	Language   string `json:"language,omitempty"`
}

// TranscriptionMessage carries what the caller was heard saying.
type TranscriptionMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// ReplyMessage carries the assistant reply text. When HasAudio is set
// the next binary frame on the socket is the spoken version.
type ReplyMessage struct {
	BaseMessage
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
	HasAudio  bool   `json:"has_audio"`
}

// PromptMessage asks the caller to repeat themselves.
type PromptMessage struct {
	BaseMessage
	Text     string `json:"text"`
	HasAudio bool   `json:"has_audio"`
}

// CallEndedMessage reports that the call is over.
type CallEndedMessage struct {
	BaseMessage
	Reason string `json:"reason,omitempty"`
}

// ErrorMessage reports a protocol or pipeline error.
type ErrorMessage struct {
	BaseMessage
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseClientMessage parses an incoming control message.
func ParseClientMessage(data []byte) (interface{}, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch base.Type {
	case MessageTypeCallStart:
		var msg CallStartMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid call_start message: %w", err)
		}
		if msg.SampleRate != 0 && (msg.SampleRate < 8000 || msg.SampleRate > 48000) {
			return nil, fmt.Errorf("sample_rate must be between 8000 and 48000")
		}
		return &msg, nil

	case MessageTypeHangUp:
		return &BaseMessage{Type: MessageTypeHangUp}, nil

	default:
		return nil, fmt.Errorf("unsupported message type: %s", base.Type)
	}
}

func newEnvelope(t MessageType) BaseMessage {
	return BaseMessage{Type: t, Timestamp: time.Now().Format(time.RFC3339)}
}

// NewErrorMessage creates a standardized error message.
func NewErrorMessage(code, message string) *ErrorMessage {
	return &ErrorMessage{BaseMessage: newEnvelope(MessageTypeError), Code: code, Message: message}
}

// NewCallEndedMessage creates a call_ended message.
func NewCallEndedMessage(reason string) *CallEndedMessage {
	return &CallEndedMessage{BaseMessage: newEnvelope(MessageTypeCallEnded), Reason: reason}
}
