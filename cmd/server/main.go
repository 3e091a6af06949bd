package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Fixverse25/KonvoAI/adapters/llm"
	"github.com/Fixverse25/KonvoAI/adapters/redisstore"
	"github.com/Fixverse25/KonvoAI/adapters/speech"
	"github.com/Fixverse25/KonvoAI/domain/repositories"
	"github.com/Fixverse25/KonvoAI/internal/api"
	"github.com/Fixverse25/KonvoAI/internal/auth"
	"github.com/Fixverse25/KonvoAI/internal/config"
	"github.com/Fixverse25/KonvoAI/internal/websocket"
	"github.com/Fixverse25/KonvoAI/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx := context.Background()

	// Session store
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("Invalid REDIS_URL", zap.Error(err))
	}
	redisClient := redis.NewClient(redisOpts)
	store := redisstore.NewStore(redisClient, logger, redisstore.WithTTL(cfg.SessionTTL))

	// Completion provider
	completion, err := newCompletion(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize completion provider", zap.Error(err))
	}

	// Speech providers
	stt, tts, err := newSpeech(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize speech provider", zap.Error(err))
	}

	// Usecase services
	conversationService := usecase.NewConversationService(store, completion, logger)
	voiceService := usecase.NewVoiceService(conversationService, stt, tts, usecase.VoiceServiceConfig{
		MaxAudioBytes:    int(cfg.MaxAudioBytes),
		MaxAudioDuration: cfg.MaxAudioDuration,
		Voice:            cfg.AzureSpeechVoice,
		Language:         cfg.AzureSpeechLanguage,
	}, logger)

	// Widget auth
	issuer, err := auth.NewTokenIssuer(cfg.JWTSecret)
	if err != nil {
		logger.Fatal("Failed to initialize token issuer", zap.Error(err))
	}

	// Call hub
	hub := websocket.NewHub(voiceService, websocket.PipelineConfig{
		SampleRate:    cfg.SampleRate,
		VADThreshold:  cfg.VADThreshold,
		PromptTimeout: cfg.PromptTimeout,
		Debounce:      cfg.SegmentDebounce,
		MaxSegment:    cfg.MaxAudioDuration,
	}, logger)
	go hub.Run()

	// HTTP surface
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	api.InitRoutes(e, &api.Handlers{
		Conversation: conversationService,
		Voice:        voiceService,
		Hub:          hub,
		Issuer:       issuer,
		Store:        store,
		Logger:       logger,
	})

	go func() {
		if err := e.Start(":" + cfg.Port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	logger.Info("Server started",
		zap.String("port", cfg.Port),
		zap.String("completionProvider", cfg.CompletionProvider),
		zap.String("speechProvider", cfg.SpeechProvider))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if err := redisClient.Close(); err != nil {
		logger.Warn("Failed to close redis client", zap.Error(err))
	}

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.Environment == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func newCompletion(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repositories.Completion, error) {
	switch cfg.CompletionProvider {
	case "gemini":
		return llm.NewGeminiCompletion(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, cfg.ClaudeMaxTokens, logger)
	default:
		return llm.NewAnthropicCompletion(llm.AnthropicConfig{
			APIKey:    cfg.AnthropicAPIKey,
			BaseURL:   cfg.AnthropicBaseURL,
			Model:     cfg.ClaudeModel,
			MaxTokens: cfg.ClaudeMaxTokens,
		}, logger)
	}
}

func newSpeech(cfg *config.Config, logger *zap.Logger) (repositories.SpeechToText, repositories.TextToSpeech, error) {
	switch cfg.SpeechProvider {
	case "google":
		// Google only covers recognition; synthesis stays on Azure.
		stt := speech.NewGoogleSpeechToText(cfg.SampleRate, cfg.AzureSpeechLanguage, logger)
		azure, err := speech.NewAzureSpeech(speech.AzureConfig{
			SubscriptionKey: cfg.AzureSpeechKey,
			Region:          cfg.AzureSpeechRegion,
			Language:        cfg.AzureSpeechLanguage,
			Voice:           cfg.AzureSpeechVoice,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return stt, azure, nil
	default:
		azure, err := speech.NewAzureSpeech(speech.AzureConfig{
			SubscriptionKey: cfg.AzureSpeechKey,
			Region:          cfg.AzureSpeechRegion,
			Language:        cfg.AzureSpeechLanguage,
			Voice:           cfg.AzureSpeechVoice,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return azure, azure, nil
	}
}
