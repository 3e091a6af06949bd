package speech

import (
	"context"
	"fmt"
	"strings"

	gspeech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/Fixverse25/KonvoAI/domain/repositories"
)

// GoogleSpeechToText implements SpeechToText using Google Cloud
// Speech-to-Text. Credentials are resolved from the environment
// (GOOGLE_APPLICATION_CREDENTIALS).
type GoogleSpeechToText struct {
	sampleRate int
	language   string
	logger     *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

// NewGoogleSpeechToText creates a Google Cloud recognition adapter.
func NewGoogleSpeechToText(sampleRate int, language string, logger *zap.Logger) *GoogleSpeechToText {
	if sampleRate == 0 {
		sampleRate = 16000
	}
	if language == "" {
		language = defaultAzureLanguage
	}
	return &GoogleSpeechToText{
		sampleRate: sampleRate,
		language:   language,
		logger:     logger,
	}
}

// Transcribe performs a single-shot recognition of a WAV utterance.
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, audio []byte, languageHint string) (repositories.Transcription, error) {
	if len(audio) == 0 {
		return repositories.Transcription{}, &repositories.RecognitionError{Err: fmt.Errorf("audio payload is empty")}
	}

	language := g.language
	if languageHint != "" {
		language = languageHint
	}

	client, err := gspeech.NewClient(ctx)
	if err != nil {
		return repositories.Transcription{}, &repositories.RecognitionError{Err: fmt.Errorf("failed to create speech client: %w", err)}
	}
	defer client.Close()

	resp, err := client.Recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: int32(g.sampleRate),
			LanguageCode:    language,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	})
	if err != nil {
		return repositories.Transcription{}, &repositories.RecognitionError{Err: fmt.Errorf("recognition request failed: %w", err)}
	}

	var best string
	var confidence float64
	for _, result := range resp.Results {
		if len(result.Alternatives) == 0 {
			continue
		}
		alt := result.Alternatives[0]
		best += alt.Transcript
		if float64(alt.Confidence) > confidence {
			confidence = float64(alt.Confidence)
		}
	}

	if strings.TrimSpace(best) == "" {
		g.logger.Debug("Recognition returned no transcript")
		return repositories.Transcription{Status: repositories.StatusNoSpeech, Language: language}, nil
	}

	return repositories.Transcription{
		Status:     repositories.StatusRecognized,
		Text:       best,
		Confidence: confidence,
		Language:   language,
	}, nil
}
