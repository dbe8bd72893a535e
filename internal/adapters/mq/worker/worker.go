// Package worker runs queued analyses on a fixed number of goroutines so
// concurrent HTTP uploads cannot oversubscribe the CPU.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/okian/oratio/internal/adapters/mq/queue"
	"github.com/okian/oratio/internal/domain/model"
	"github.com/okian/oratio/pkg/logger"
	"github.com/okian/oratio/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Analyzer runs one analysis.
type Analyzer interface {
	Analyze(ctx context.Context, in model.Input) (model.Result, error)
}

// Queue is the part of queue.Queue the pool needs.
type Queue interface {
	Enqueue(ctx context.Context, j queue.Job) error
	Dequeue(ctx context.Context) <-chan queue.Job
	Close() error
}

// InMemoryWorker takes jobs off the queue one at a time.
type InMemoryWorker struct {
	queue    Queue
	analyzer Analyzer
	name     string
	done     chan struct{}
	logger   logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, analyzer Analyzer, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		analyzer: analyzer,
		name:     "worker",
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run processes jobs until the queue is closed and drained or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(j)
		}
	}
}

// process runs j under the submitter's context. A job whose submitter has
// already given up is answered without analysing it.
func (w *InMemoryWorker) process(j queue.Job) { //nolint:gocritic // hugeParam: Job travels by value through the channel
	metrics.RecordQueueWait(float64(time.Since(j.Enqueued).Milliseconds()))

	ctx := j.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		j.Reply <- queue.Outcome{Err: err}
		return
	}

	res, err := w.analyzer.Analyze(ctx, j.Input)
	if err != nil {
		w.logger.Warn(ctx, "analysis failed", logger.String("device_id", j.Input.DeviceID), logger.Error(err))
	}
	j.Reply <- queue.Outcome{Result: res, Err: err}
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers; below one it uses one per
// CPU. opts apply to every worker.
func NewPool(workerCount int, q Queue, analyzer Analyzer, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  poolLogger(opts),
	}
	for i := range p.workers {
		wopts := append([]Option{}, opts...)
		wopts = append(wopts, WithName("worker-"+strconv.Itoa(i)))
		p.workers[i] = NewInMemoryWorker(q, analyzer, wopts...)
	}
	return p
}

// poolLogger picks up a WithLogger among opts.
func poolLogger(opts []Option) logger.Logger {
	scratch := &InMemoryWorker{logger: logger.Nop()}
	for _, opt := range opts {
		opt(scratch)
	}
	return scratch.logger.Named("pool")
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerCount(len(p.workers))
}

// Analyze queues in and waits for its result. It fails fast with
// queue.ErrFull when every worker is busy and the queue has no room.
func (p *Pool) Analyze(ctx context.Context, in model.Input) (model.Result, error) {
	reply := make(chan queue.Outcome, 1)
	if err := p.queue.Enqueue(ctx, queue.Job{Ctx: ctx, Input: in, Enqueued: time.Now(), Reply: reply}); err != nil {
		return model.Result{}, err
	}
	select {
	case out := <-reply:
		return out.Result, out.Err
	case <-ctx.Done():
		return model.Result{}, ctx.Err()
	}
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
