package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Fixverse25/KonvoAI/domain/repositories"
)

const (
	defaultAzureLanguage     = "en-US"
	defaultAzureVoice        = "en-US-AriaNeural"
	defaultAzureOutputFormat = "riff-16khz-16bit-mono-pcm"
	defaultAzureTimeout      = 30 * time.Second

	azureSTTPathFormat = "https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1"
	azureTTSPathFormat = "https://%s.tts.speech.microsoft.com/cognitiveservices/v1"
)

// AzureConfig holds configuration for the Azure Speech adapters.
// Required fields:
// - SubscriptionKey: Azure Cognitive Services subscription key
// - Region: Azure region of the speech resource (e.g. "westeurope")
// Optional fields with defaults:
// - Language: recognition language (default: "en-US")
// - Voice: synthesis voice name (default: "en-US-AriaNeural")
// - OutputFormat: synthesis output format (default: "riff-16khz-16bit-mono-pcm")
// - STTEndpoint / TTSEndpoint: endpoint overrides, used by tests
type AzureConfig struct {
	SubscriptionKey string
	Region          string
	Language        string
	Voice           string
	OutputFormat    string
	STTEndpoint     string
	TTSEndpoint     string
	Timeout         time.Duration
}

// ValidateAzureConfig validates the AzureConfig.
func ValidateAzureConfig(config AzureConfig) error {
	if config.SubscriptionKey == "" {
		return fmt.Errorf("azure speech subscription key is required")
	}
	if config.Region == "" && (config.STTEndpoint == "" || config.TTSEndpoint == "") {
		return fmt.Errorf("azure speech region is required")
	}
	return nil
}

// AzureSpeech implements speech recognition and synthesis over the
// Azure Cognitive Services REST API.
type AzureSpeech struct {
	subscriptionKey string
	language        string
	voice           string
	outputFormat    string
	sttEndpoint     string
	ttsEndpoint     string
	client          *http.Client
	logger          *zap.Logger
}

var _ repositories.SpeechToText = (*AzureSpeech)(nil)
var _ repositories.TextToSpeech = (*AzureSpeech)(nil)

// NewAzureSpeech creates a new Azure Speech adapter.
func NewAzureSpeech(config AzureConfig, logger *zap.Logger) (*AzureSpeech, error) {
	if err := ValidateAzureConfig(config); err != nil {
		return nil, err
	}

	language := config.Language
	if language == "" {
		language = defaultAzureLanguage
		logger.Info("Using default recognition language", zap.String("language", language))
	}

	voice := config.Voice
	if voice == "" {
		voice = defaultAzureVoice
		logger.Info("Using default synthesis voice", zap.String("voice", voice))
	}

	outputFormat := config.OutputFormat
	if outputFormat == "" {
		outputFormat = defaultAzureOutputFormat
	}

	sttEndpoint := config.STTEndpoint
	if sttEndpoint == "" {
		sttEndpoint = fmt.Sprintf(azureSTTPathFormat, config.Region)
	}

	ttsEndpoint := config.TTSEndpoint
	if ttsEndpoint == "" {
		ttsEndpoint = fmt.Sprintf(azureTTSPathFormat, config.Region)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaultAzureTimeout
	}

	return &AzureSpeech{
		subscriptionKey: config.SubscriptionKey,
		language:        language,
		voice:           voice,
		outputFormat:    outputFormat,
		sttEndpoint:     sttEndpoint,
		ttsEndpoint:     ttsEndpoint,
		client:          &http.Client{Timeout: timeout},
		logger:          logger,
	}, nil
}

// azureRecognitionResponse is the detailed-format response of the
// conversation recognition endpoint.
type azureRecognitionResponse struct {
	RecognitionStatus string `json:"RecognitionStatus"`
	DisplayText       string `json:"DisplayText"`
	NBest             []struct {
		Confidence float64 `json:"Confidence"`
		Display    string  `json:"Display"`
	} `json:"NBest"`
}

// Transcribe sends WAV audio to the Azure recognition endpoint and
// returns a single-shot transcription.
func (a *AzureSpeech) Transcribe(ctx context.Context, audio []byte, languageHint string) (repositories.Transcription, error) {
	if len(audio) == 0 {
		return repositories.Transcription{}, &repositories.RecognitionError{Err: fmt.Errorf("audio payload is empty")}
	}

	language := a.language
	if languageHint != "" {
		language = languageHint
	}

	query := url.Values{}
	query.Set("language", language)
	query.Set("format", "detailed")
	endpoint := a.sttEndpoint + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(audio))
	if err != nil {
		return repositories.Transcription{}, &repositories.RecognitionError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.subscriptionKey)
	req.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	req.Header.Set("Accept", "application/json")

	a.logger.Debug("Sending recognition request",
		zap.String("language", language),
		zap.Int("audioBytes", len(audio)))

	resp, err := a.client.Do(req)
	if err != nil {
		return repositories.Transcription{}, &repositories.RecognitionError{Err: fmt.Errorf("recognition request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return repositories.Transcription{}, &repositories.RecognitionError{
			Err: fmt.Errorf("recognition API returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	var parsed azureRecognitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return repositories.Transcription{}, &repositories.RecognitionError{Err: fmt.Errorf("failed to decode recognition response: %w", err)}
	}

	switch parsed.RecognitionStatus {
	case "Success":
		transcription := repositories.Transcription{
			Status:   repositories.StatusRecognized,
			Text:     parsed.DisplayText,
			Language: language,
		}
		if len(parsed.NBest) > 0 {
			transcription.Confidence = parsed.NBest[0].Confidence
			if transcription.Text == "" {
				transcription.Text = parsed.NBest[0].Display
			}
		}
		if strings.TrimSpace(transcription.Text) == "" {
			transcription.Status = repositories.StatusNoSpeech
		}
		return transcription, nil
	case "NoMatch", "InitialSilenceTimeout":
		return repositories.Transcription{Status: repositories.StatusNoSpeech, Language: language}, nil
	default:
		return repositories.Transcription{}, &repositories.RecognitionError{
			Err: fmt.Errorf("recognition failed with status %q", parsed.RecognitionStatus),
		}
	}
}

// Synthesize converts text to audio via the Azure synthesis endpoint.
func (a *AzureSpeech) Synthesize(ctx context.Context, text string, voice string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &repositories.SynthesisError{Err: fmt.Errorf("text cannot be empty")}
	}

	if voice == "" {
		voice = a.voice
	}
	ssml := buildSSML(text, voice, a.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.ttsEndpoint, strings.NewReader(ssml))
	if err != nil {
		return nil, &repositories.SynthesisError{Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", a.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", a.outputFormat)

	a.logger.Debug("Sending synthesis request",
		zap.String("voice", voice),
		zap.Int("textLength", len(text)))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, &repositories.SynthesisError{Err: fmt.Errorf("synthesis request failed: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &repositories.SynthesisError{
			Err: fmt.Errorf("synthesis API returned %d: %s", resp.StatusCode, string(body)),
		}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &repositories.SynthesisError{Err: fmt.Errorf("failed to read synthesized audio: %w", err)}
	}
	if len(audio) == 0 {
		return nil, &repositories.SynthesisError{Err: fmt.Errorf("synthesis returned no audio")}
	}
	return audio, nil
}

func buildSSML(text, voice, language string) string {
	var sb strings.Builder
	sb.WriteString(`<speak version='1.0' xml:lang='`)
	sb.WriteString(language)
	sb.WriteString(`'><voice name='`)
	sb.WriteString(voice)
	sb.WriteString(`'>`)
	sb.WriteString(escapeXML(text))
	sb.WriteString(`</voice></speak>`)
	return sb.String()
}

func escapeXML(s string) string {
	replacer := strings.NewReplacer(
		"&", "&amp;",
		"<", "&lt;",
		">", "&gt;",
		"'", "&apos;",
		`"`, "&quot;",
	)
	return replacer.Replace(s)
}
