package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Fixverse25/KonvoAI/adapters/speech"
	"github.com/Fixverse25/KonvoAI/domain/repositories"
	"github.com/Fixverse25/KonvoAI/internal/voice"
)

// wavBytes builds a valid WAV payload of the given duration.
func wavBytes(t *testing.T, duration time.Duration) []byte {
	t.Helper()
	samples := make([]int16, int(duration.Seconds()*16000))
	return voice.EncodeWAV(samples, 16000)
}

func recognized(text string, confidence float64) repositories.Transcription {
	return repositories.Transcription{
		Status:     repositories.StatusRecognized,
		Text:       text,
		Confidence: confidence,
	}
}

func newVoiceService(stt *speech.MockSpeechToText, tts *speech.MockTextToSpeech, completion *fakeCompletion) (*VoiceService, *fakeStore) {
	store := newFakeStore()
	conversation := newConversationService(store, completion)
	return NewVoiceService(conversation, stt, tts, VoiceServiceConfig{}, zap.NewNop()), store
}

func TestHandleUtteranceFullPipeline(t *testing.T) {
	stt := &speech.MockSpeechToText{Results: []repositories.Transcription{
		recognized("the cable is stuck", 0.9),
	}}
	tts := &speech.MockTextToSpeech{Audio: []byte("spoken-reply")}
	completion := &fakeCompletion{replies: []string{"Press the release button."}}
	svc, store := newVoiceService(stt, tts, completion)

	result, err := svc.HandleUtterance(context.Background(), "", wavBytes(t, 2*time.Second), "")
	if err != nil {
		t.Fatalf("HandleUtterance failed: %v", err)
	}
	if result.Prompted {
		t.Error("Recognized speech should not prompt")
	}
	if result.Transcription != "the cable is stuck" {
		t.Errorf("Unexpected transcription %q", result.Transcription)
	}
	if result.Reply != "Press the release button." {
		t.Errorf("Unexpected reply %q", result.Reply)
	}
	if string(result.ReplyAudio) != "spoken-reply" {
		t.Errorf("Unexpected reply audio %q", result.ReplyAudio)
	}

	saved, _ := store.Get(context.Background(), result.SessionID)
	if saved == nil || len(saved.Turns) != 2 {
		t.Error("Voice turn should be persisted to the session")
	}
}

func TestNoSpeechPromptsWithoutConversation(t *testing.T) {
	stt := &speech.MockSpeechToText{Results: []repositories.Transcription{
		{Status: repositories.StatusNoSpeech},
	}}
	tts := &speech.MockTextToSpeech{}
	completion := &fakeCompletion{}
	svc, store := newVoiceService(stt, tts, completion)

	result, err := svc.HandleUtterance(context.Background(), "sess-1", wavBytes(t, time.Second), "")
	if err != nil {
		t.Fatalf("HandleUtterance failed: %v", err)
	}
	if !result.Prompted {
		t.Error("Expected prompt for no-speech audio")
	}
	if result.Reply != promptEnglish {
		t.Errorf("Unexpected prompt text %q", result.Reply)
	}
	if completion.calls != 0 {
		t.Error("No-speech audio must not reach the completion provider")
	}
	if saved, _ := store.Get(context.Background(), "sess-1"); saved != nil {
		t.Error("No-speech audio must not create a session")
	}
}

func TestLowConfidencePrompts(t *testing.T) {
	stt := &speech.MockSpeechToText{Results: []repositories.Transcription{
		recognized("mumble mumble", 0.2),
	}}
	completion := &fakeCompletion{}
	svc, _ := newVoiceService(stt, &speech.MockTextToSpeech{}, completion)

	result, err := svc.HandleUtterance(context.Background(), "", wavBytes(t, time.Second), "")
	if err != nil {
		t.Fatalf("HandleUtterance failed: %v", err)
	}
	if !result.Prompted {
		t.Error("Low-confidence speech should prompt")
	}
	if completion.calls != 0 {
		t.Error("Low-confidence speech must not reach the completion provider")
	}
}

func TestSynthesisFailureDegradesToTextOnly(t *testing.T) {
	stt := &speech.MockSpeechToText{Results: []repositories.Transcription{
		recognized("hello", 0.95),
	}}
	tts := &speech.MockTextToSpeech{Err: &repositories.SynthesisError{Err: errors.New("tts down")}}
	completion := &fakeCompletion{replies: []string{"Hi there."}}
	svc, _ := newVoiceService(stt, tts, completion)

	result, err := svc.HandleUtterance(context.Background(), "", wavBytes(t, time.Second), "")
	if err != nil {
		t.Fatalf("Synthesis failure must not fail the turn: %v", err)
	}
	if result.Reply != "Hi there." {
		t.Errorf("Unexpected reply %q", result.Reply)
	}
	if result.ReplyAudio != nil {
		t.Error("Expected nil audio when synthesis fails")
	}
}

func TestRecognitionFailureIsAnError(t *testing.T) {
	stt := &speech.MockSpeechToText{
		Results: []repositories.Transcription{{}},
		Errs:    []error{&repositories.RecognitionError{Err: errors.New("stt down")}},
	}
	svc, _ := newVoiceService(stt, &speech.MockTextToSpeech{}, &fakeCompletion{})

	if _, err := svc.HandleUtterance(context.Background(), "", wavBytes(t, time.Second), ""); err == nil {
		t.Error("Expected error when recognition fails")
	}
}

func TestRejectsOversizedAudio(t *testing.T) {
	stt := &speech.MockSpeechToText{}
	conversation := newConversationService(newFakeStore(), &fakeCompletion{})
	svc := NewVoiceService(conversation, stt, &speech.MockTextToSpeech{}, VoiceServiceConfig{MaxAudioBytes: 100}, zap.NewNop())

	if _, err := svc.HandleUtterance(context.Background(), "", wavBytes(t, time.Second), ""); err == nil {
		t.Error("Expected error for oversized audio")
	}
	if stt.Calls != 0 {
		t.Error("Oversized audio must be rejected before recognition")
	}
}

func TestRejectsOverlongAudio(t *testing.T) {
	stt := &speech.MockSpeechToText{}
	conversation := newConversationService(newFakeStore(), &fakeCompletion{})
	svc := NewVoiceService(conversation, stt, &speech.MockTextToSpeech{}, VoiceServiceConfig{MaxAudioDuration: 2 * time.Second}, zap.NewNop())

	if _, err := svc.HandleUtterance(context.Background(), "", wavBytes(t, 5*time.Second), ""); err == nil {
		t.Error("Expected error for audio over the duration cap")
	}
}

func TestRejectsMalformedAudio(t *testing.T) {
	svc, _ := newVoiceService(&speech.MockSpeechToText{}, &speech.MockTextToSpeech{}, &fakeCompletion{})

	if _, err := svc.HandleUtterance(context.Background(), "", []byte("not a wav file"), ""); err == nil {
		t.Error("Expected error for malformed audio")
	}
}

func TestPromptTextLocalization(t *testing.T) {
	conversation := newConversationService(newFakeStore(), &fakeCompletion{})
	svc := NewVoiceService(conversation, &speech.MockSpeechToText{}, &speech.MockTextToSpeech{}, VoiceServiceConfig{Language: "sv-SE"}, zap.NewNop())

	if got := svc.PromptText(""); got != promptSwedish {
		t.Errorf("Expected Swedish prompt, got %q", got)
	}
	// A per-call language wins over the configured default.
	if got := svc.PromptText("en-US"); got != promptEnglish {
		t.Errorf("Expected English prompt for explicit language, got %q", got)
	}
}

func TestUtteranceLanguageReachesRecognizerAndSession(t *testing.T) {
	store := newFakeStore()
	completion := &fakeCompletion{replies: []string{"Prova en annan kontakt."}}
	conversation := newConversationService(store, completion)
	stt := &speech.MockSpeechToText{
		Results: []repositories.Transcription{{
			Status:     repositories.StatusRecognized,
			Text:       "laddaren piper",
			Confidence: 0.9,
		}},
	}
	svc := NewVoiceService(conversation, stt, &speech.MockTextToSpeech{}, VoiceServiceConfig{Language: "en-US"}, zap.NewNop())

	result, err := svc.HandleUtterance(context.Background(), "", wavBytes(t, time.Second), "sv-SE")
	if err != nil {
		t.Fatalf("HandleUtterance failed: %v", err)
	}
	if len(stt.Languages) == 0 || stt.Languages[0] != "sv-SE" {
		t.Errorf("Recognizer languages %v, want sv-SE first", stt.Languages)
	}
	saved, _ := store.Get(context.Background(), result.SessionID)
	if saved == nil || saved.Language != "sv-SE" {
		t.Errorf("Session language not taken from the utterance: %+v", saved)
	}
}
