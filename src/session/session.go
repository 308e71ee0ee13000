package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"snappy-ocr/src/assistant"
	"snappy-ocr/src/clipboard"
	"snappy-ocr/src/failure"
	"snappy-ocr/src/pipeline"
	"snappy-ocr/src/worker"
)

// ErrBusy is returned by Recapture while a previous capture is still running.
var ErrBusy = errors.New("capture already in progress")

// Submitter queues a pipeline run; *worker.Pool implements it.
type Submitter interface {
	Submit(ctx context.Context, cb worker.ResultCallback) bool
}

type Options struct {
	Worker    Submitter
	Clipboard clipboard.Writer
	Responder assistant.Responder
	// Deadline bounds a single capture; <=0 means 20s.
	Deadline time.Duration
	// OnChange is called after every state change, from whichever goroutine
	// made it, outside the session lock.
	OnChange func(Snapshot)
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	Text string
	// TextVersion increases whenever a capture or an answer replaces Text.
	// Direct edits through SetText leave it unchanged.
	TextVersion int
	Query       string
	ImagePath   string
	// Captures counts successful captures; the image file is reused, so
	// viewers compare this to decide when to reload it.
	Captures int
	Busy     bool
	Status   string
	Err      error
}

// Session owns the shell state: the extracted text shared by recapture, ask
// and direct edits, the user's query and the last image path. Every write is
// a whole-string replacement under one lock; the last writer wins.
type Session struct {
	opts Options

	mu          sync.Mutex
	text        string
	textVersion int
	query       string
	imagePath   string
	captures    int
	busy        bool
	status      string
	lastErr     error
	cancel      context.CancelFunc
}

func New(opts Options) *Session {
	if opts.Deadline <= 0 {
		opts.Deadline = 20 * time.Second
	}
	if opts.Responder == nil {
		opts.Responder = assistant.Echo{}
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.System{}
	}
	return &Session{opts: opts}
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		Text:        s.text,
		TextVersion: s.textVersion,
		Query:       s.query,
		ImagePath:   s.imagePath,
		Captures:    s.captures,
		Busy:        s.busy,
		Status:      s.status,
		Err:         s.lastErr,
	}
}

func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// SetText replaces the extracted text, e.g. after a user edit. It does not
// notify OnChange since the editor already shows the new value.
func (s *Session) SetText(text string) {
	s.mu.Lock()
	s.text = text
	s.mu.Unlock()
}

func (s *Session) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

func (s *Session) SetQuery(q string) {
	s.mu.Lock()
	s.query = q
	s.mu.Unlock()
}

// update applies fn under the lock and then reports the new state.
func (s *Session) update(fn func()) {
	s.mu.Lock()
	fn()
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if s.opts.OnChange != nil {
		s.opts.OnChange(snap)
	}
}

// Recapture queues a capture-and-recognize run. On success the extracted text
// is replaced by the new recognition result and the image path updated; on
// failure the text is kept and the error recorded. done, if non-nil, is
// called after the state has been updated.
func (s *Session) Recapture(ctx context.Context, done func(pipeline.Result, error)) error {
	if s.opts.Worker == nil {
		return errors.New("session: no worker configured")
	}

	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return ErrBusy
	}
	jobCtx, cancel := context.WithTimeout(ctx, s.opts.Deadline)
	s.busy = true
	s.cancel = cancel
	s.status = "Capturing..."
	snap := s.snapshotLocked()
	s.mu.Unlock()
	if s.opts.OnChange != nil {
		s.opts.OnChange(snap)
	}

	submitted := s.opts.Worker.Submit(jobCtx, func(res pipeline.Result, err error) {
		cancel()
		s.applyCapture(res, err)
		if done != nil {
			done(res, err)
		}
	})
	if !submitted {
		cancel()
		s.update(func() {
			s.busy = false
			s.cancel = nil
			s.status = ErrBusy.Error()
		})
		return ErrBusy
	}
	return nil
}

func (s *Session) applyCapture(res pipeline.Result, err error) {
	s.update(func() {
		s.busy = false
		s.cancel = nil
		if err != nil {
			if failure.Is(err, failure.Unknown) && errors.Is(err, context.DeadlineExceeded) {
				err = failure.New(failure.Cancelled, "capture deadline", err)
			}
			s.lastErr = err
			s.status = "Capture failed: " + err.Error()
			zap.S().Warnw("recapture failed", "kind", failure.KindOf(err).String(), "error", err)
			return
		}
		s.text = res.Text
		s.textVersion++
		s.imagePath = res.Path
		s.captures++
		s.lastErr = nil
		s.status = fmt.Sprintf("Captured %d characters from display %d", len(res.Text), res.Display)
	})
}

// Cancel aborts the running capture, if any.
func (s *Session) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Copy writes the text as it is at the moment of the call to the clipboard.
func (s *Session) Copy() error {
	text := s.Text()
	err := s.opts.Clipboard.Write(text)
	if err != nil && failure.KindOf(err) == failure.Unknown {
		err = failure.New(failure.ClipboardUnavailable, "write", err)
	}
	s.update(func() {
		if err != nil {
			s.lastErr = err
			s.status = "Copy failed: " + err.Error()
			return
		}
		s.lastErr = nil
		s.status = fmt.Sprintf("Copied %d characters to clipboard", len(text))
	})
	return err
}

// Ask passes the current text and query to the responder and replaces the
// text with the formatted reply.
func (s *Session) Ask(ctx context.Context) error {
	s.mu.Lock()
	text, query := s.text, s.query
	s.mu.Unlock()

	resp, err := s.opts.Responder.Respond(ctx, text, query)
	s.update(func() {
		if err != nil {
			s.lastErr = err
			s.status = "Ask failed: " + err.Error()
			return
		}
		s.text = assistant.Format(resp)
		s.textVersion++
		s.lastErr = nil
		s.status = "Response received"
	})
	return err
}
