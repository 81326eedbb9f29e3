package concurrent

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// Future is the completion handle for an asynchronous operation. It
// carries no value, only success or failure, and may be observed by any
// number of goroutines.
type Future struct {
	done      chan struct{}
	completed atomic.Bool
	err       error // written once, before done is closed
}

// NewFuture returns an incomplete Future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Completed returns an already-successful Future.
func Completed() *Future {
	f := NewFuture()
	f.Complete(nil)
	return f
}

// Failed returns an already-failed Future.
func Failed(err error) *Future {
	f := NewFuture()
	f.Complete(err)
	return f
}

// Complete resolves the future. Only the first call has any effect.
func (f *Future) Complete(err error) {
	if f.completed.CompareAndSwap(false, true) {
		f.err = err
		close(f.done)
	}
}

// Done returns a channel that is closed once the future has resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Err returns the failure cause, or nil. Valid only after Done is closed.
func (f *Future) Err() error {
	return f.err
}

// Wait blocks until the future resolves or ctx expires, returning the
// future's error or the context's.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AllOf returns a future that resolves once every input future has
// resolved. Individual failures do not short-circuit the barrier; they
// are combined into the returned future's error. AllOf over an empty set
// is already complete.
func AllOf(futures ...*Future) *Future {
	out := NewFuture()
	if len(futures) == 0 {
		out.Complete(nil)
		return out
	}
	var (
		mu      sync.Mutex
		merged  error
		pending = atomic.NewInt32(int32(len(futures)))
	)
	for _, f := range futures {
		f := f
		go func() {
			<-f.Done()
			if err := f.Err(); err != nil {
				mu.Lock()
				merged = multierr.Append(merged, err)
				mu.Unlock()
			}
			if pending.Dec() == 0 {
				mu.Lock()
				err := merged
				mu.Unlock()
				out.Complete(err)
			}
		}()
	}
	return out
}
