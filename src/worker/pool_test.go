package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snappy-ocr/src/pipeline"
)

type blockingRunner struct {
	release chan struct{}
	started chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context) (pipeline.Result, error) {
	b.started <- struct{}{}
	select {
	case <-b.release:
		return pipeline.Result{Text: "done"}, nil
	case <-ctx.Done():
		return pipeline.Result{}, ctx.Err()
	}
}

func TestSubmitDeliversResult(t *testing.T) {
	r := &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	p := New(r, 1)
	defer p.Close()

	got := make(chan string, 1)
	require.True(t, p.Submit(context.Background(), func(res pipeline.Result, err error) {
		assert.NoError(t, err)
		got <- res.Text
	}))
	<-r.started
	close(r.release)

	select {
	case text := <-got:
		assert.Equal(t, "done", text)
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestSubmitBackPressure(t *testing.T) {
	r := &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 2)}
	p := New(r, 1)
	defer p.Close()
	noop := func(pipeline.Result, error) {}

	require.True(t, p.Submit(context.Background(), noop))
	<-r.started // worker busy
	require.True(t, p.Submit(context.Background(), noop), "queue slot should be free")
	assert.False(t, p.Submit(context.Background(), noop), "queue is full, submit should be dropped")

	close(r.release)
}

func TestExpiredJobSkipsRunner(t *testing.T) {
	r := &blockingRunner{release: make(chan struct{}), started: make(chan struct{}, 1)}
	p := New(r, 1)
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errCh := make(chan error, 1)
	require.True(t, p.Submit(ctx, func(_ pipeline.Result, err error) { errCh <- err }))
	assert.True(t, errors.Is(<-errCh, context.Canceled))
	assert.Len(t, r.started, 0)
}

func TestSubmitAfterClose(t *testing.T) {
	p := New(&blockingRunner{}, 1)
	p.Close()
	p.Close()
	assert.False(t, p.Submit(context.Background(), func(pipeline.Result, error) {}))
}
