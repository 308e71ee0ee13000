package logutil

import (
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	logFileName = "snappy_debug.log"
	maxSizeMB   = 10
	maxArchives = 3
)

// Options controls where log output goes.
type Options struct {
	// EnableFileLogging writes to a size-rotated file (10MB, max 3 archives).
	EnableFileLogging bool
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Console receives output when file logging is disabled. nil discards.
	Console io.Writer
}

var encoderConfig = zapcore.EncoderConfig{
	TimeKey:        "ts",
	LevelKey:       "lvl",
	NameKey:        "name",
	CallerKey:      "caller",
	MessageKey:     "message",
	StacktraceKey:  "stacktrace",
	LineEnding:     zapcore.DefaultLineEnding,
	EncodeLevel:    zapcore.CapitalLevelEncoder,
	EncodeTime:     zapcore.RFC3339TimeEncoder,
	EncodeDuration: zapcore.SecondsDurationEncoder,
	EncodeCaller:   zapcore.ShortCallerEncoder,
}

// Setup builds a zap logger for opts and installs it as the zap global
// (zap.S / zap.L). The returned func flushes and closes the sink.
func Setup(opts Options) func() {
	sink, closeSink := openSink(opts)
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), sink, parseLevel(opts.Level))
	logger := zap.New(core, zap.AddCaller())
	undo := zap.ReplaceGlobals(logger)
	return func() {
		_ = logger.Sync()
		closeSink()
		undo()
	}
}

func openSink(opts Options) (zapcore.WriteSyncer, func()) {
	if !opts.EnableFileLogging {
		if opts.Console == nil {
			return zapcore.AddSync(io.Discard), func() {}
		}
		return zapcore.AddSync(opts.Console), func() {}
	}
	w := newFileSink(logFileName)
	return zapcore.AddSync(w), func() { _ = w.Close() }
}

// newFileSink rotates path once it exceeds maxSizeMB, keeping maxArchives
// old files next to it.
func newFileSink(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxArchives,
	}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// RedactKey masks an API key, leaving first/last 4 chars: xxxx...yyyy
func RedactKey(k string) string {
	if len(k) <= 8 {
		return "********"
	}
	return fmt.Sprintf("%s...%s", k[:4], k[len(k)-4:])
}

// SanitizeForLog truncates recognized text and escapes control characters so
// screen contents cannot forge log lines.
func SanitizeForLog(text string) string {
	const maxLogLength = 100
	runes := []rune(text)
	truncated := len(runes) > maxLogLength
	if truncated {
		runes = runes[:maxLogLength]
	}

	var b strings.Builder
	for _, r := range runes {
		switch {
		case r == '\n' || r == '\r':
			b.WriteString(`\n`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 32 || r == 127:
			b.WriteByte('?')
		default:
			b.WriteRune(r)
		}
	}
	if truncated {
		b.WriteString("...")
	}
	return b.String()
}
