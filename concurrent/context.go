// Package concurrent provides the single-threaded execution context the
// consensus layer schedules transport state changes on, plus the future
// primitives used to compose asynchronous lifecycle operations.
package concurrent

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
)

// ErrNoContext is returned when an operation that must run on an
// execution context is invoked without one. This is a programming
// contract violation, not a recoverable condition.
var ErrNoContext = errors.New("no execution context available")

// ErrContextClosed is returned for work submitted to a context that has
// already been closed.
var ErrContextClosed = errors.New("execution context is closed")

const taskBacklog = 1024

type task struct {
	fn func() error
	f  *Future
}

// Context is a single-goroutine execution domain. All functions
// submitted through Execute run on one goroutine in submission order, so
// state they touch needs no further synchronization against each other.
type Context struct {
	tasks chan task
	stop  chan struct{}
	// mu is read-held across an enqueue and write-held by Close, so a
	// task can never land in the queue after the runner has drained it.
	mu     sync.RWMutex
	closed atomic.Bool
	wg     sync.WaitGroup
}

// NewContext starts a new execution context.
func NewContext() *Context {
	c := &Context{
		tasks: make(chan task, taskBacklog),
		stop:  make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Context) run() {
	defer c.wg.Done()
	for {
		select {
		case t := <-c.tasks:
			t.f.Complete(t.fn())
		case <-c.stop:
			// Drain whatever was queued before Close flipped the flag.
			for {
				select {
				case t := <-c.tasks:
					t.f.Complete(t.fn())
				default:
					return
				}
			}
		}
	}
}

// Execute schedules fn on the context's goroutine and returns a future
// that resolves with fn's error once it has run.
func (c *Context) Execute(fn func() error) *Future {
	f := NewFuture()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed.Load() {
		f.Complete(ErrContextClosed)
		return f
	}
	c.tasks <- task{fn: fn, f: f}
	return f
}

// Close stops the context and waits for its goroutine to exit. Tasks
// already queued still run; tasks submitted afterwards fail with
// ErrContextClosed.
func (c *Context) Close() {
	c.mu.Lock()
	if c.closed.CompareAndSwap(false, true) {
		close(c.stop)
	}
	c.mu.Unlock()
	c.wg.Wait()
}
