package repositories

import (
	"context"
	"fmt"
)

// RecognitionStatus is the tagged outcome of a transcription attempt.
// "No intelligible speech" is an expected outcome callers branch on, not
// an error.
type RecognitionStatus string

const (
	StatusRecognized RecognitionStatus = "recognized"
	StatusNoSpeech   RecognitionStatus = "no_speech"
)

// Transcription is the result of recognizing one audio segment.
type Transcription struct {
	Status     RecognitionStatus `json:"status"`
	Text       string            `json:"text"`
	Confidence float64           `json:"confidence"`
	Language   string            `json:"language"`
}

// SpeechToText abstracts the external speech recognizer. Audio is a
// complete WAV blob, 16 kHz mono PCM.
type SpeechToText interface {
	Transcribe(ctx context.Context, audio []byte, languageHint string) (Transcription, error)
}

// TextToSpeech abstracts the external speech synthesizer. The returned
// bytes are a complete playable audio blob.
type TextToSpeech interface {
	Synthesize(ctx context.Context, text string, voice string) ([]byte, error)
}

// RecognitionError is a speech-service failure: network trouble,
// unsupported format, service rejection. Recoverable at the call level.
type RecognitionError struct {
	Err error
}

func (e *RecognitionError) Error() string { return fmt.Sprintf("recognition error: %v", e.Err) }
func (e *RecognitionError) Unwrap() error { return e.Err }

// SynthesisError is a text-to-speech failure. Callers degrade to
// text-only delivery rather than failing the turn.
type SynthesisError struct {
	Err error
}

func (e *SynthesisError) Error() string { return fmt.Sprintf("synthesis error: %v", e.Err) }
func (e *SynthesisError) Unwrap() error { return e.Err }
