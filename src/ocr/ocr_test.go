package ocr

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/otiai10/gosseract/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snappy-ocr/src/failure"
	"snappy-ocr/src/llm"
)

type fakeClient struct {
	lang     []string
	psm      gosseract.PageSegMode
	image    string
	text     string
	langErr  error
	imageErr error
	textErr  error
	block    chan struct{}
	closed   bool
}

func (f *fakeClient) SetLanguage(langs ...string) error {
	f.lang = langs
	return f.langErr
}

func (f *fakeClient) SetPageSegMode(mode gosseract.PageSegMode) error {
	f.psm = mode
	return nil
}

func (f *fakeClient) SetImage(path string) error {
	f.image = path
	return f.imageErr
}

func (f *fakeClient) Text() (string, error) {
	if f.block != nil {
		<-f.block
	}
	return f.text, f.textErr
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestTesseractRecognize(t *testing.T) {
	fc := &fakeClient{text: "Hello World\n"}
	tess := NewTesseract("eng", 6)
	tess.NewClient = func() Client { return fc }

	text, err := tess.Recognize(context.Background(), "screenshot.png")
	require.NoError(t, err)

	assert.Equal(t, "Hello World\n", text)
	assert.Equal(t, []string{"eng"}, fc.lang)
	assert.Equal(t, gosseract.PSM_SINGLE_BLOCK, fc.psm)
	assert.Equal(t, "screenshot.png", fc.image)
	assert.True(t, fc.closed)
}

func TestTesseractFailureKinds(t *testing.T) {
	tests := []struct {
		name   string
		client *fakeClient
		want   failure.Kind
	}{
		{"language rejected", &fakeClient{langErr: errors.New("languages cannot be empty")}, failure.EngineInitFailed},
		{"image missing", &fakeClient{imageErr: errors.New("file not found")}, failure.RecognitionFailed},
		{"lazy init", &fakeClient{textErr: errors.New("failed to initialize TessAPI with code -1")}, failure.EngineInitFailed},
		{"recognition", &fakeClient{textErr: errors.New("segfault-ish")}, failure.RecognitionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tess := NewTesseract("eng", 6)
			tess.NewClient = func() Client { return tt.client }
			_, err := tess.Recognize(context.Background(), "x.png")
			assert.Equal(t, tt.want, failure.KindOf(err))
			assert.True(t, tt.client.closed)
		})
	}
}

func TestTesseractHonorsDeadline(t *testing.T) {
	fc := &fakeClient{block: make(chan struct{})}
	defer close(fc.block)
	tess := NewTesseract("eng", 6)
	tess.NewClient = func() Client { return fc }

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := tess.Recognize(ctx, "x.png")
	assert.Equal(t, failure.Cancelled, failure.KindOf(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

type fakeVision struct {
	got  []byte
	text string
	err  error
}

func (f *fakeVision) QueryVision(_ context.Context, data []byte) (string, error) {
	f.got = data
	return f.text, f.err
}

func TestVisionRecognize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shot.png")
	require.NoError(t, os.WriteFile(path, []byte("png-bytes"), 0o600))

	fv := &fakeVision{text: "from model"}
	text, err := (&Vision{Client: fv}).Recognize(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "from model", text)
	assert.Equal(t, []byte("png-bytes"), fv.got)

	text, err = (&Vision{Client: &fakeVision{err: llm.ErrNoText}}).Recognize(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, text)

	_, err = (&Vision{Client: &fakeVision{err: errors.New("502")}}).Recognize(context.Background(), path)
	assert.Equal(t, failure.RecognitionFailed, failure.KindOf(err))

	_, err = (&Vision{}).Recognize(context.Background(), path)
	assert.Equal(t, failure.EngineInitFailed, failure.KindOf(err))

	_, err = (&Vision{Client: fv}).Recognize(context.Background(), filepath.Join(t.TempDir(), "missing.png"))
	assert.Equal(t, failure.RecognitionFailed, failure.KindOf(err))
}
