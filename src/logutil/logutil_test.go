package logutil

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "********", RedactKey("short"))
	assert.Equal(t, "sk-o...cdef", RedactKey("sk-or-v1-1234567890abcdef"))
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Hello World", "Hello World"},
		{"newlines", "a\nb\r\nc", `a\nb\n\nc`},
		{"tab and control", "a\tb\x01", `a\tb?`},
		{"truncated", strings.Repeat("x", 120), strings.Repeat("x", 100) + "..."},
		{"multibyte kept whole", strings.Repeat("é", 101), strings.Repeat("é", 100) + "..."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeForLog(tt.in))
		})
	}
}

func TestSetupConsole(t *testing.T) {
	var buf bytes.Buffer
	done := Setup(Options{Level: "debug", Console: &buf})
	zap.S().Debugw("capture finished", "chars", 11)
	done()

	assert.Contains(t, buf.String(), "capture finished")
	assert.Contains(t, buf.String(), "DEBUG")
}

func TestSetupLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	done := Setup(Options{Level: "warn", Console: &buf})
	zap.S().Info("hidden")
	zap.S().Warn("shown")
	done()

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestFileSink(t *testing.T) {
	t.Chdir(t.TempDir())

	done := Setup(Options{EnableFileLogging: true, Level: "info", Console: &bytes.Buffer{}})
	zap.S().Infow("capture recognized", "chars", 11)
	done()

	got, err := os.ReadFile(logFileName)
	require.NoError(t, err)
	assert.Contains(t, string(got), "capture recognized")
}

func TestFileSinkPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	w := newFileSink(path)
	defer w.Close()

	assert.Equal(t, path, w.Filename)
	assert.Equal(t, 10, w.MaxSize)
	assert.Equal(t, 3, w.MaxBackups)
}
