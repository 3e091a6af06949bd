package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Fixverse25/KonvoAI/domain/entities"
	"github.com/Fixverse25/KonvoAI/domain/repositories"
	"github.com/Fixverse25/KonvoAI/internal/voice"
)

const (
	defaultMaxAudioBytes    = 10 * 1024 * 1024
	defaultMaxAudioDuration = 30 * time.Second
	lowConfidenceThreshold  = 0.5

	promptEnglish = "I didn't catch that. Could you say it again?"
	promptSwedish = "Jag uppfattade inte det där. Kan du säga det igen?"
)

// VoiceTurnResult is the outcome of one voice turn. When Prompted is
// set no reply was generated: the audio carried no usable speech and
// Reply holds the re-ask prompt instead.
type VoiceTurnResult struct {
	SessionID     string
	Transcription string
	Reply         string
	ReplyAudio    []byte
	Prompted      bool
}

// VoiceServiceConfig bounds incoming audio and selects the synthesis
// voice. Zero values fall back to defaults.
type VoiceServiceConfig struct {
	MaxAudioBytes    int
	MaxAudioDuration time.Duration
	Voice            string
	Language         string
}

// VoiceService runs the voice pipeline for a single utterance:
// recognize, converse, synthesize. Synthesis is best-effort; the
// spoken reply degrades to text-only when the synthesizer fails.
type VoiceService struct {
	conversation *ConversationService
	stt          repositories.SpeechToText
	tts          repositories.TextToSpeech
	config       VoiceServiceConfig
	logger       *zap.Logger
}

// NewVoiceService creates a new voice pipeline service.
func NewVoiceService(
	conversation *ConversationService,
	stt repositories.SpeechToText,
	tts repositories.TextToSpeech,
	config VoiceServiceConfig,
	logger *zap.Logger,
) *VoiceService {
	if config.MaxAudioBytes == 0 {
		config.MaxAudioBytes = defaultMaxAudioBytes
	}
	if config.MaxAudioDuration == 0 {
		config.MaxAudioDuration = defaultMaxAudioDuration
	}
	return &VoiceService{
		conversation: conversation,
		stt:          stt,
		tts:          tts,
		config:       config,
		logger:       logger,
	}
}

// HandleUtterance processes one WAV utterance end to end. An empty
// language falls back to the configured default. Audio that contains
// no recognizable speech, or speech below the confidence threshold,
// short-circuits to a re-ask prompt without touching the conversation
// history.
func (s *VoiceService) HandleUtterance(ctx context.Context, sessionID string, audio []byte, language string) (*VoiceTurnResult, error) {
	if err := s.validateAudio(audio); err != nil {
		return nil, err
	}
	if language == "" {
		language = s.config.Language
	}

	transcription, err := s.stt.Transcribe(ctx, audio, language)
	if err != nil {
		return nil, fmt.Errorf("recognition failed: %w", err)
	}

	if transcription.Status == repositories.StatusNoSpeech ||
		transcription.Confidence < lowConfidenceThreshold ||
		strings.TrimSpace(transcription.Text) == "" {
		s.logger.Info("No usable speech in utterance, prompting",
			zap.String("sessionID", sessionID),
			zap.Float64("confidence", transcription.Confidence))
		prompt := promptFor(language)
		return &VoiceTurnResult{
			SessionID:  sessionID,
			Reply:      prompt,
			ReplyAudio: s.synthesize(ctx, prompt),
			Prompted:   true,
		}, nil
	}

	utterance := entities.Utterance{
		Text:       transcription.Text,
		Confidence: transcription.Confidence,
		Language:   language,
		Source:     entities.SourceVoice,
	}
	if transcription.Language != "" {
		utterance.Language = transcription.Language
	}

	turn, err := s.conversation.HandleTurn(ctx, sessionID, utterance)
	if err != nil {
		return nil, err
	}

	return &VoiceTurnResult{
		SessionID:     turn.SessionID,
		Transcription: transcription.Text,
		Reply:         turn.Reply,
		ReplyAudio:    s.synthesize(ctx, turn.Reply),
	}, nil
}

// PromptAudio synthesizes the re-ask prompt, used when the caller
// stays silent. Returns nil audio when synthesis is unavailable.
func (s *VoiceService) PromptAudio(ctx context.Context, language string) ([]byte, error) {
	return s.synthesize(ctx, s.PromptText(language)), nil
}

// PromptText returns the re-ask prompt in the given language, falling
// back to the configured default.
func (s *VoiceService) PromptText(language string) string {
	if language == "" {
		language = s.config.Language
	}
	return promptFor(language)
}

func (s *VoiceService) validateAudio(audio []byte) error {
	if len(audio) == 0 {
		return fmt.Errorf("audio payload is empty")
	}
	if len(audio) > s.config.MaxAudioBytes {
		return fmt.Errorf("audio payload exceeds %d bytes", s.config.MaxAudioBytes)
	}
	info, err := voice.ParseWAVInfo(audio)
	if err != nil {
		return fmt.Errorf("invalid audio: %w", err)
	}
	if info.Duration > s.config.MaxAudioDuration {
		return fmt.Errorf("audio exceeds maximum duration of %s", s.config.MaxAudioDuration)
	}
	return nil
}

// synthesize is best-effort: failures are logged and the caller
// proceeds with a text-only reply.
func (s *VoiceService) synthesize(ctx context.Context, text string) []byte {
	audio, err := s.tts.Synthesize(ctx, text, s.config.Voice)
	if err != nil {
		s.logger.Warn("Synthesis failed, replying with text only", zap.Error(err))
		return nil
	}
	return audio
}

func promptFor(language string) string {
	if strings.HasPrefix(strings.ToLower(language), "sv") {
		return promptSwedish
	}
	return promptEnglish
}
