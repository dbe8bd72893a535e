package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/oratio/internal/adapters/mq/queue"
	"github.com/okian/oratio/internal/domain/model"
	"github.com/okian/oratio/pkg/logger"
)

// fakeAnalyzer echoes the device id and can hold every call until released.
type fakeAnalyzer struct {
	gate    chan struct{}
	err     error
	calls   atomic.Int32
	running atomic.Int32
	peak    atomic.Int32
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, in model.Input) (model.Result, error) {
	f.calls.Add(1)
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return model.Result{}, ctx.Err()
		}
	}
	if f.err != nil {
		return model.Result{}, f.err
	}
	return model.Result{ID: in.DeviceID}, nil
}

func newPool(workers, capacity int, a Analyzer) *Pool {
	q := queue.NewInMemoryQueue(queue.WithCapacity(capacity))
	return NewPool(workers, q, a, WithLogger(logger.Nop()))
}

func TestPool_Analyze(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started pool", t, func() {
		a := &fakeAnalyzer{}
		p := newPool(2, 4, a)
		p.Start(ctx)
		Reset(func() { _ = p.Shutdown(ctx) })

		Convey("It returns the analyzer's result", func() {
			res, err := p.Analyze(ctx, model.Input{DeviceID: "mic"})
			So(err, ShouldBeNil)
			So(res.ID, ShouldEqual, "mic")
			So(p.Size(), ShouldEqual, 2)
		})

		Convey("It passes analyzer errors through", func() {
			a.err = errors.New("boom")
			_, err := p.Analyze(ctx, model.Input{})
			So(err, ShouldEqual, a.err)
		})
	})

	Convey("Given more submitters than workers", t, func() {
		a := &fakeAnalyzer{gate: make(chan struct{})}
		p := newPool(2, 16, a)
		p.Start(ctx)

		var wg sync.WaitGroup
		for range 6 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = p.Analyze(ctx, model.Input{DeviceID: "x"})
			}()
		}
		So(waitFor(func() bool { return a.running.Load() == 2 }), ShouldBeTrue)
		close(a.gate)
		wg.Wait()

		Convey("No more than the worker count run at once", func() {
			So(a.peak.Load(), ShouldEqual, 2)
			So(a.calls.Load(), ShouldEqual, 6)
		})
		So(p.Shutdown(ctx), ShouldBeNil)
	})

	Convey("Given a pool whose only worker is busy and whose queue is full", t, func() {
		a := &fakeAnalyzer{gate: make(chan struct{})}
		p := newPool(1, 1, a)
		p.Start(ctx)

		busy := make(chan error, 2)
		go func() { _, err := p.Analyze(ctx, model.Input{}); busy <- err }()
		So(waitFor(func() bool { return a.running.Load() == 1 }), ShouldBeTrue)
		go func() { _, err := p.Analyze(ctx, model.Input{}); busy <- err }()
		So(waitFor(func() bool { return len(p.queue.Dequeue(ctx)) == 1 }), ShouldBeTrue)

		Convey("A further submission is refused immediately", func() {
			_, err := p.Analyze(ctx, model.Input{})
			So(errors.Is(err, queue.ErrFull), ShouldBeTrue)
		})

		close(a.gate)
		So(<-busy, ShouldBeNil)
		So(<-busy, ShouldBeNil)
		So(p.Shutdown(ctx), ShouldBeNil)
	})

	Convey("Given a submitter that gives up while waiting", t, func() {
		a := &fakeAnalyzer{gate: make(chan struct{})}
		p := newPool(1, 4, a)
		p.Start(ctx)

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		_, err := p.Analyze(cctx, model.Input{})

		Convey("It gets its context error", func() {
			So(errors.Is(err, context.DeadlineExceeded), ShouldBeTrue)
		})
		close(a.gate)
		So(p.Shutdown(ctx), ShouldBeNil)
	})

	Convey("Given a pool that has been shut down", t, func() {
		p := newPool(1, 1, &fakeAnalyzer{})
		p.Start(ctx)
		So(p.Shutdown(ctx), ShouldBeNil)

		Convey("Submissions are refused", func() {
			_, err := p.Analyze(ctx, model.Input{})
			So(errors.Is(err, queue.ErrStopped), ShouldBeTrue)
		})
	})
}

func TestNewPool_DefaultSize(t *testing.T) {
	Convey("A non-positive worker count falls back to one per CPU", t, func() {
		p := newPool(0, 1, &fakeAnalyzer{})
		So(p.Size(), ShouldBeGreaterThan, 0)
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return cond()
}
