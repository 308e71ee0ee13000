package runtimeinit

import (
	"context"
	"image"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snappy-ocr/src/assistant"
	"snappy-ocr/src/config"
	"snappy-ocr/src/failure"
	"snappy-ocr/src/ocr"
)

func isolate(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv(config.APIKeyPathEnvVar, filepath.Join(t.TempDir(), "missing"))
	t.Setenv(config.ConfigPathEnvVar, "")
	t.Setenv("OPENROUTER_API_KEY", "")
	t.Setenv("MODEL", "")
}

func TestBootstrapDefaults(t *testing.T) {
	isolate(t)
	var logged *config.Config

	rt, err := Bootstrap(context.Background(), Options{
		LoadOptions:  config.LoadOptions{DisplayIndexOverride: -1, ScreenshotPathOverride: "out.png"},
		SetupLogging: func(cfg *config.Config) { logged = cfg },
	})
	require.NoError(t, err)

	assert.Same(t, rt.Config, logged)
	assert.Nil(t, rt.LLM)
	assert.IsType(t, assistant.Echo{}, rt.Responder)
	assert.IsType(t, &ocr.Tesseract{}, rt.Recognizer)
	assert.Equal(t, "out.png", rt.Pipeline.Path())
	assert.Equal(t, 20*time.Second, rt.Deadline())
}

func TestBootstrapLLMRequiresKey(t *testing.T) {
	isolate(t)
	t.Setenv("ASSISTANT", "llm")

	_, err := Bootstrap(context.Background(), Options{LoadOptions: config.LoadOptions{DisplayIndexOverride: -1}})
	assert.ErrorContains(t, err, "OPENROUTER_API_KEY")

	t.Setenv("OPENROUTER_API_KEY", "sk-test-key-123456")
	_, err = Bootstrap(context.Background(), Options{LoadOptions: config.LoadOptions{DisplayIndexOverride: -1}})
	assert.ErrorContains(t, err, "MODEL")
}

func TestBootstrapLLMAssistant(t *testing.T) {
	isolate(t)
	t.Setenv("ASSISTANT", "llm")
	t.Setenv("OPENROUTER_API_KEY", "sk-test-key-123456")
	t.Setenv("MODEL", "test/model")

	rt, err := Bootstrap(context.Background(), Options{LoadOptions: config.LoadOptions{DisplayIndexOverride: -1}})
	require.NoError(t, err)
	require.NotNil(t, rt.LLM)
	assert.Equal(t, "test/model", rt.LLM.Model())
	assert.IsType(t, assistant.LLM{}, rt.Responder)

	t.Setenv("OCR_ENGINE", "vision")
	rt, err = Bootstrap(context.Background(), Options{LoadOptions: config.LoadOptions{DisplayIndexOverride: -1}})
	require.NoError(t, err)
	assert.IsType(t, &ocr.Vision{}, rt.Recognizer)
}

type oneDisplay struct{}

func (oneDisplay) NumDisplays() int                  { return 1 }
func (oneDisplay) DisplayBounds(int) image.Rectangle { return image.Rect(0, 0, 100, 100) }

func (oneDisplay) CaptureRect(r image.Rectangle) (*image.RGBA, error) {
	return image.NewRGBA(r), nil
}

func TestBootstrapCaptureRegion(t *testing.T) {
	isolate(t)

	_, err := Bootstrap(context.Background(), Options{
		LoadOptions: config.LoadOptions{DisplayIndexOverride: -1, CaptureRegionOverride: "10,10,0,5"},
	})
	assert.ErrorContains(t, err, "CAPTURE_REGION")

	t.Setenv("CAPTURE_REGION", "80,80,50,50")
	rt, err := Bootstrap(context.Background(), Options{
		LoadOptions: config.LoadOptions{DisplayIndexOverride: -1},
		Source:      oneDisplay{},
	})
	require.NoError(t, err)
	// 80+50 runs past the 100px display
	_, err = rt.Pipeline.Run(context.Background())
	assert.Equal(t, failure.CaptureFailed, failure.KindOf(err))
}
