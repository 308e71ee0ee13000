package runtimeinit

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"snappy-ocr/src/assistant"
	"snappy-ocr/src/config"
	"snappy-ocr/src/llm"
	"snappy-ocr/src/logutil"
	"snappy-ocr/src/ocr"
	"snappy-ocr/src/pipeline"
	"snappy-ocr/src/screenshot"
)

type Options struct {
	LoadOptions config.LoadOptions
	// SetupLogging receives the loaded config; nil leaves logging untouched.
	SetupLogging func(cfg *config.Config)
	// PingLLM verifies the chat model at startup when one is configured.
	PingLLM bool
	// Source overrides the display source (tests).
	Source screenshot.Source
}

// Runtime is everything a binary needs after bootstrap.
type Runtime struct {
	Config     *config.Config
	Pipeline   *pipeline.Pipeline
	Recognizer ocr.Recognizer
	Responder  assistant.Responder
	LLM        *llm.Client
}

// Deadline returns the per-capture deadline.
func (r *Runtime) Deadline() time.Duration {
	return time.Duration(r.Config.OCRDeadlineSec) * time.Second
}

func Bootstrap(ctx context.Context, opts Options) (*Runtime, error) {
	cfg, err := config.LoadWithOptions(opts.LoadOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if opts.SetupLogging != nil {
		opts.SetupLogging(cfg)
	}

	rt := &Runtime{Config: cfg, Responder: assistant.Echo{}}

	needLLM := cfg.Engine == config.EngineVision || cfg.Assistant == config.AssistantLLM
	if needLLM {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OPENROUTER_API_KEY is required for OCR_ENGINE=%s ASSISTANT=%s. Checked key file %s and OPENROUTER_API_KEY env var",
				cfg.Engine, cfg.Assistant, cfg.APIKeyPath)
		}
		if cfg.Model == "" {
			return nil, fmt.Errorf("MODEL is required. Please set it in your .env file")
		}
		client, err := llm.New(llm.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.BaseURL,
			Providers: cfg.Providers,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		zap.S().Infow("LLM client configured", "model", cfg.Model, "key", logutil.RedactKey(cfg.APIKey))
		if opts.PingLLM {
			if err := client.Ping(ctx); err != nil {
				return nil, fmt.Errorf("startup check failed: %w", err)
			}
			zap.S().Info("LLM ping succeeded")
		}
		rt.LLM = client
	}

	if cfg.Assistant == config.AssistantLLM {
		rt.Responder = assistant.LLM{Client: rt.LLM}
	}

	var recognizer ocr.Recognizer = ocr.NewTesseract(cfg.Language, cfg.PageSegMode)
	if cfg.Engine == config.EngineVision {
		recognizer = &ocr.Vision{Client: rt.LLM}
	}

	region, err := screenshot.ParseRegion(cfg.CaptureRegion)
	if err != nil {
		return nil, fmt.Errorf("invalid CAPTURE_REGION: %w", err)
	}

	rt.Recognizer = recognizer
	rt.Pipeline = pipeline.New(pipeline.Options{
		Source:     opts.Source,
		Recognizer: recognizer,
		Path:       cfg.ScreenshotPath,
		Display:    cfg.DisplayIndex,
		Region:     region,
	})

	zap.S().Infow("runtime initialized",
		"engine", cfg.Engine,
		"assistant", cfg.Assistant,
		"lang", cfg.Language,
		"psm", cfg.PageSegMode,
		"path", cfg.ScreenshotPath,
		"display", cfg.DisplayIndex,
		"region", region.String(),
	)
	return rt, nil
}
