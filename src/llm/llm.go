package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries   = 3
	defaultInitialDelay = 1 * time.Second
	requestTimeout      = 45 * time.Second

	noTextMarker = "NO_TEXT_FOUND"

	visionPrompt = "Perform OCR on this image. Return ONLY the raw extracted text with:\n" +
		"- No formatting\n" +
		"- No XML/HTML tags\n" +
		"- No markdown\n" +
		"- No explanations\n" +
		"- Preserve line breaks accurately from the visual layout.\n" +
		"If no text found, return '" + noTextMarker + "'"

	askSystemPrompt = "You answer questions about text that was extracted from a screenshot with OCR. " +
		"The text may contain recognition errors. Answer concisely."
)

// ErrNoText is returned by QueryVision when the model reports an image without text.
var ErrNoText = errors.New("no text detected in image")

type Config struct {
	APIKey    string
	Model     string
	BaseURL   string
	Providers []string
	// HTTPClient defaults to a client with a 45s timeout.
	HTTPClient *http.Client
	// MaxRetries is the total number of attempts; <=0 means 3.
	MaxRetries int
	// RetryDelay is the base backoff; <=0 means 1s.
	RetryDelay time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint
// (OpenRouter by default).
type Client struct {
	cfg Config
	api openai.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultInitialDelay
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: requestTimeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(hc),
		// complete retries with its own linear backoff
		option.WithMaxRetries(0),
		option.WithHeader("HTTP-Referer", "https://github.com/snappy-ocr/snappy-ocr"),
		option.WithHeader("X-Title", "Snappy OCR"),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Client{cfg: cfg, api: openai.NewClient(opts...)}, nil
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.cfg.Model }

// providerPreferences returns the OpenRouter "provider" routing object, or nil
// to let OpenRouter choose.
func (c *Client) providerPreferences() map[string]any {
	if len(c.cfg.Providers) == 0 {
		return nil
	}
	return map[string]any{
		"order":           c.cfg.Providers,
		"allow_fallbacks": false,
	}
}

func (c *Client) requestOptions() []option.RequestOption {
	if prefs := c.providerPreferences(); prefs != nil {
		return []option.RequestOption{option.WithJSONSet("provider", prefs)}
	}
	return nil
}

// QueryVision sends a PNG to the vision model and returns the transcribed text.
func (c *Client) QueryVision(ctx context.Context, pngData []byte) (string, error) {
	imageURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngData)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfArrayOfContentParts: []openai.ChatCompletionContentPartUnionParam{
						{OfText: &openai.ChatCompletionContentPartTextParam{Text: visionPrompt}},
						{OfImageURL: &openai.ChatCompletionContentPartImageParam{
							ImageURL: openai.ChatCompletionContentPartImageImageURLParam{URL: imageURL},
						}},
					},
				},
			},
		}},
		Temperature: openai.Float(0.1),
		MaxTokens:   openai.Int(2000),
	}

	text, err := c.complete(ctx, params)
	if err != nil {
		return "", err
	}
	if text == "" || strings.TrimSpace(text) == noTextMarker {
		return "", ErrNoText
	}
	return cleanExtractedText(text), nil
}

// Ask sends the extracted text and the user's question and returns the answer.
func (c *Client) Ask(ctx context.Context, extracted, question string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			{OfSystem: &openai.ChatCompletionSystemMessageParam{
				Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(askSystemPrompt)},
			}},
			{OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{
					OfString: openai.String(fmt.Sprintf("Extracted text:\n%s\n\nQuestion: %s", extracted, question)),
				},
			}},
		},
		Temperature: openai.Float(0.2),
		MaxTokens:   openai.Int(1000),
	}
	return c.complete(ctx, params)
}

// Ping performs a minimal completion to verify key, model and connectivity.
func (c *Client) Ping(ctx context.Context) error {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{{
			OfUser: &openai.ChatCompletionUserMessageParam{
				Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String("Reply with OK.")},
			},
		}},
		MaxTokens: openai.Int(5),
	}
	_, err := c.complete(ctx, params)
	return err
}

func (c *Client) complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := time.Duration(float64(c.cfg.RetryDelay) * (1.5 * float64(attempt)))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := c.api.Chat.Completions.New(ctx, params, c.requestOptions()...)
		if err != nil {
			lastErr = err
			if !retryable(ctx, err) {
				break
			}
			zap.S().Debugw("llm request failed, retrying", "attempt", attempt+1, "error", err)
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("no choices in API response")
			continue
		}
		return resp.Choices[0].Message.Content, nil
	}
	return "", fmt.Errorf("failed after %d attempts: %w", c.cfg.MaxRetries, lastErr)
}

// retryable is false for cancelled contexts and for client errors other than
// rate limiting.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		code := apiErr.StatusCode
		return code == http.StatusTooManyRequests || code >= 500
	}
	return true
}

func cleanExtractedText(text string) string {
	text = strings.TrimSuffix(text, "</image>")
	return text
}
