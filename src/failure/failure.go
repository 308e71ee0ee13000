package failure

import (
	"errors"
	"fmt"
)

// Kind classifies why a capture, recognition or clipboard step failed.
type Kind int

const (
	Unknown Kind = iota
	CaptureUnavailable
	CaptureFailed
	EncodeFailed
	EngineInitFailed
	RecognitionFailed
	ClipboardUnavailable
	Cancelled
)

func (k Kind) String() string {
	switch k {
	case CaptureUnavailable:
		return "capture unavailable"
	case CaptureFailed:
		return "capture failed"
	case EncodeFailed:
		return "encode failed"
	case EngineInitFailed:
		return "engine init failed"
	case RecognitionFailed:
		return "recognition failed"
	case ClipboardUnavailable:
		return "clipboard unavailable"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ExitCode maps a kind to the CLI process exit status.
func (k Kind) ExitCode() int {
	if k == Unknown {
		return 1
	}
	return int(k) + 1
}

// ErrNoDisplay is returned (wrapped in a CaptureUnavailable Error) when the
// system reports zero active displays.
var ErrNoDisplay = errors.New("no display found")

// Error carries a Kind plus the operation that failed.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Op)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports a match against another *Error with the same Kind, so callers
// can write errors.Is(err, &failure.Error{Kind: failure.EncodeFailed}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// New wraps err with kind and op. A nil err still yields a non-nil Error.
func New(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or Unknown.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
