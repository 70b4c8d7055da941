package vision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/smallbiznis/meterscan/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

var Module = fx.Module("providers.vision",
	fx.Provide(NewFromConfig),
)

// NewFromConfig builds the process-wide extractor once at startup.
func NewFromConfig(lc fx.Lifecycle, cfg config.Config, prompts *config.PromptConfigHolder, log *zap.Logger) (Extractor, error) {
	log = log.Named("vision")

	var base Extractor
	switch cfg.Vision.Provider {
	case "static":
		log.Warn("using static vision extractor", zap.String("text", cfg.Vision.StaticText))
		base = &StaticExtractor{Text: cfg.Vision.StaticText}
	case "gemini", "":
		if cfg.Vision.GeminiAPIKey == "" {
			return nil, errors.New("GEMINI_API_KEY is empty")
		}
		client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.Vision.GeminiAPIKey))
		if err != nil {
			return nil, fmt.Errorf("create gemini client: %w", err)
		}
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		base = NewGeminiExtractor(
			client,
			cfg.Vision.GeminiModel,
			prompts,
			time.Duration(cfg.Vision.TimeoutSeconds)*time.Second,
		)
		log.Info("gemini extractor configured", zap.String("model", cfg.Vision.GeminiModel))
	default:
		return nil, fmt.Errorf("unsupported vision provider %q", cfg.Vision.Provider)
	}

	return NewRetrying(base, cfg.Vision.MaxAttempts, 500*time.Millisecond, log), nil
}
