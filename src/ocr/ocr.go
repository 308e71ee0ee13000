package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"
	"go.uber.org/zap"

	"snappy-ocr/src/failure"
	"snappy-ocr/src/llm"
)

// Recognizer turns the image stored at path into plain text. Layout,
// confidence and bounding boxes are not kept.
type Recognizer interface {
	Recognize(ctx context.Context, path string) (string, error)
}

// Client is the subset of *gosseract.Client used here.
type Client interface {
	SetLanguage(langs ...string) error
	SetPageSegMode(mode gosseract.PageSegMode) error
	SetImage(path string) error
	Text() (string, error)
	Close() error
}

// Tesseract recognizes text with a local tesseract install via gosseract.
// A fresh engine is created per call.
type Tesseract struct {
	Language    string
	PageSegMode int
	// NewClient defaults to gosseract.NewClient.
	NewClient func() Client
}

func NewTesseract(language string, psm int) *Tesseract {
	return &Tesseract{Language: language, PageSegMode: psm}
}

func (t *Tesseract) Recognize(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", failure.New(failure.Cancelled, "recognize", err)
	}

	newClient := t.NewClient
	if newClient == nil {
		newClient = func() Client { return gosseract.NewClient() }
	}

	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		text, err := t.run(newClient(), path)
		resCh <- result{text, err}
	}()

	select {
	case r := <-resCh:
		return r.text, r.err
	case <-ctx.Done():
		// The cgo call cannot be interrupted; it finishes and closes its own client.
		return "", failure.New(failure.Cancelled, "recognize", ctx.Err())
	}
}

func (t *Tesseract) run(client Client, path string) (string, error) {
	defer client.Close()

	if err := client.SetLanguage(t.Language); err != nil {
		return "", failure.New(failure.EngineInitFailed, "set language "+t.Language, err)
	}
	if err := client.SetPageSegMode(gosseract.PageSegMode(t.PageSegMode)); err != nil {
		return "", failure.New(failure.EngineInitFailed, fmt.Sprintf("set page segmentation mode %d", t.PageSegMode), err)
	}
	if err := client.SetImage(path); err != nil {
		return "", failure.New(failure.RecognitionFailed, "load "+path, err)
	}

	zap.S().Debugw("running tesseract", "path", path, "lang", t.Language, "psm", t.PageSegMode)
	text, err := client.Text()
	if err != nil {
		// gosseract initialises the engine lazily inside Text, so missing
		// language data only shows up here.
		if strings.Contains(err.Error(), "initialize") {
			return "", failure.New(failure.EngineInitFailed, "init tesseract "+t.Language, err)
		}
		return "", failure.New(failure.RecognitionFailed, "recognize "+path, err)
	}
	return text, nil
}

// VisionQuerier is implemented by *llm.Client.
type VisionQuerier interface {
	QueryVision(ctx context.Context, pngData []byte) (string, error)
}

// Vision sends the image to a vision-capable chat model.
type Vision struct {
	Client VisionQuerier
}

func (v *Vision) Recognize(ctx context.Context, path string) (string, error) {
	if v.Client == nil {
		return "", failure.New(failure.EngineInitFailed, "vision", errors.New("LLM client not initialized"))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", failure.New(failure.RecognitionFailed, "load "+path, err)
	}

	text, err := v.Client.QueryVision(ctx, data)
	switch {
	case errors.Is(err, llm.ErrNoText):
		return "", nil
	case ctx.Err() != nil:
		return "", failure.New(failure.Cancelled, "recognize", ctx.Err())
	case err != nil:
		return "", failure.New(failure.RecognitionFailed, "vision model", err)
	}
	return text, nil
}
