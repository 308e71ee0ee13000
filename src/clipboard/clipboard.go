package clipboard

import (
	"sync"

	"golang.design/x/clipboard"

	"snappy-ocr/src/failure"
)

// Writer puts text on a clipboard.
type Writer interface {
	Write(text string) error
}

var (
	initOnce sync.Once
	initErr  error
	writeMu  sync.Mutex
)

// Init prepares the system clipboard. It is safe to call repeatedly; the
// first result is cached.
func Init() error {
	initOnce.Do(func() {
		if err := clipboard.Init(); err != nil {
			initErr = failure.New(failure.ClipboardUnavailable, "init", err)
		}
	})
	return initErr
}

// Write performs a mutex-guarded clipboard write to prevent corruption under parallel writes.
func Write(text string) error {
	if err := Init(); err != nil {
		return err
	}
	writeMu.Lock()
	defer writeMu.Unlock()
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

// System is the Writer backed by the OS clipboard.
type System struct{}

func (System) Write(text string) error { return Write(text) }
