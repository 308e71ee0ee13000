package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"snappy-ocr/src/failure"
	"snappy-ocr/src/pipeline"
)

// Runner performs one capture-and-recognize run.
type Runner interface {
	Run(ctx context.Context) (pipeline.Result, error)
}

// ResultCallback is invoked on completion (from a worker goroutine).
// Callers that touch UI state must marshal back onto their own goroutine.
type ResultCallback func(res pipeline.Result, err error)

// Pool is a fixed-size worker pool with a 1-slot input queue (strict back-pressure).
type Pool struct {
	runner Runner
	jobs   chan job
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

type job struct {
	ctx context.Context
	cb  ResultCallback
}

// New creates a worker pool. Size defaults to 1 when size<=0 because every
// run writes the same output file. Queue is 1 slot.
func New(runner Runner, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	p := &Pool{runner: runner, jobs: make(chan job, 1)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				res, err := p.run(j.ctx)
				zap.S().Debugw("worker: run completed", "run", res.RunID, "chars", len(res.Text), "error", err)
				j.cb(res, err)
			}
		}()
	}
}

// run calls the runner unless the job's context already expired while queued.
func (p *Pool) run(ctx context.Context) (pipeline.Result, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Result{}, failure.New(failure.Cancelled, "queued run", err)
	}
	return p.runner.Run(ctx)
}

// Submit enqueues a run if the single-slot queue is free. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, cb ResultCallback) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.jobs <- job{ctx: ctx, cb: cb}:
		return true
	default:
		return false
	}
}

// Close stops the pool after draining current work.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
