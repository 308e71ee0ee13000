package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"snappy-ocr/src/failure"
	"snappy-ocr/src/logutil"
	"snappy-ocr/src/ocr"
	"snappy-ocr/src/screenshot"
)

type Options struct {
	Source     screenshot.Source
	Recognizer ocr.Recognizer
	// Path is overwritten by every run.
	Path    string
	Display int
	// Region crops the display; empty means the whole display.
	Region screenshot.Region
}

// Result describes one capture-and-recognize run.
type Result struct {
	RunID    string
	Path     string
	Text     string
	Display  int
	Width    int
	Height   int
	Duration time.Duration
}

// Pipeline captures a display, persists it as PNG and runs OCR on the file.
type Pipeline struct {
	opts Options
}

func New(opts Options) *Pipeline {
	if opts.Source == nil {
		opts.Source = screenshot.System()
	}
	return &Pipeline{opts: opts}
}

// Path returns the file every run writes to.
func (p *Pipeline) Path() string { return p.opts.Path }

// Run executes one capture. Every failure is a *failure.Error.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{RunID: uuid.NewString(), Path: p.opts.Path, Display: p.opts.Display}
	log := zap.S().With("run", res.RunID)

	if p.opts.Recognizer == nil {
		return res, failure.New(failure.EngineInitFailed, "pipeline", errors.New("no OCR engine configured"))
	}
	if err := checkCtx(ctx, "capture"); err != nil {
		return res, err
	}

	frame, err := p.capture()
	if err != nil {
		log.Warnw("capture failed", "display", p.opts.Display, "region", p.opts.Region.String(), "error", err)
		return res, err
	}
	res.Width, res.Height = frame.Width(), frame.Height()
	log.Debugw("captured display", "display", frame.Display, "width", res.Width, "height", res.Height)

	if err := checkCtx(ctx, "encode"); err != nil {
		return res, err
	}
	if err := screenshot.Save(frame.Image, p.opts.Path); err != nil {
		log.Warnw("saving screenshot failed", "path", p.opts.Path, "error", err)
		return res, err
	}

	text, err := p.opts.Recognizer.Recognize(ctx, p.opts.Path)
	if err != nil {
		if failure.KindOf(err) == failure.Unknown {
			err = failure.New(failure.RecognitionFailed, "recognize", err)
		}
		log.Warnw("recognition failed", "path", p.opts.Path, "error", err)
		return res, err
	}

	res.Text = text
	res.Duration = time.Since(start)
	log.Infow("capture recognized", "chars", len(text), "elapsed", res.Duration, "text", logutil.SanitizeForLog(text))
	return res, nil
}

func (p *Pipeline) capture() (screenshot.Frame, error) {
	if p.opts.Region.Empty() {
		return screenshot.CaptureDisplay(p.opts.Source, p.opts.Display)
	}
	return screenshot.CaptureRegion(p.opts.Source, p.opts.Display, p.opts.Region)
}

func checkCtx(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return failure.New(failure.Cancelled, op, err)
	}
	return nil
}
