// Package executor provides a serialized run loop for a non-reentrant
// graphics API.
//
// Work dispatched onto an Executor runs one item at a time, in submission
// order, on the run loop goroutine, which is locked to an OS thread.
// Callers from any goroutine submit with Async (returns a Future), Sync
// (submits and waits), or Dispatch (fire and forget); submission appends
// to an unbounded queue and never blocks the caller.
//
// Spawn runs a cooperatively suspendable task. Its segments execute under
// the same mutual exclusion as dispatched work, never concurrently with
// it, on a dedicated goroutine that is likewise locked to its OS thread
// for the task's lifetime. The task may call Yield.Sleep to give the run
// loop back while waiting on hardware completion and is resumed as a
// fresh work item when its timer fires. Independent work queued in
// between interleaves in FIFO order; the executor is never blocked by a
// suspended task.
package executor

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

// ErrClosed is returned for work submitted to, or suspended across,
// a closed executor.
var ErrClosed = errors.New("executor: closed")

// Executor owns one goroutine on which all dispatched work runs.
//
// Thread safety: all methods are safe for concurrent use.
type Executor struct {
	mu    sync.Mutex
	queue []func()

	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
}

// New creates an executor and starts its run loop.
func New() *Executor {
	e := &Executor{
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go e.run()
	return e
}

// run is the executor goroutine. The OS thread is locked because graphics
// drivers associate state with the calling thread.
func (e *Executor) run() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(e.stopped)

	for {
		for _, fn := range e.take() {
			fn()
		}
		select {
		case <-e.wake:
		case <-e.quit:
			// Drain everything enqueued before (or during) shutdown,
			// then stop.
			for {
				work := e.take()
				if len(work) == 0 {
					return
				}
				for _, fn := range work {
					fn()
				}
			}
		}
	}
}

// take removes and returns all pending work.
func (e *Executor) take() []func() {
	e.mu.Lock()
	work := e.queue
	e.queue = nil
	e.mu.Unlock()
	return work
}

// enqueue appends fn to the pending queue and wakes the run loop. It
// reports false, without queueing, once the executor has shut down.
// enqueue never blocks: the queue is a slice, not a bounded channel, so a
// stalled device backs memory up rather than callers.
func (e *Executor) enqueue(fn func()) bool {
	e.mu.Lock()
	select {
	case <-e.quit:
		e.mu.Unlock()
		return false
	default:
	}
	e.queue = append(e.queue, fn)
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return true
}

// Dispatch enqueues fn for execution on the executor goroutine and returns
// immediately; it never blocks. Work submitted after Close is dropped.
func (e *Executor) Dispatch(fn func()) {
	e.enqueue(fn)
}

// Close signals the run loop to drain and stop, then waits for it to exit.
// Close is safe to call multiple times.
func (e *Executor) Close() {
	e.closeOnce.Do(func() { close(e.quit) })
	<-e.stopped
}

// Future is the pending result of an asynchronously dispatched function.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) complete(v T, err error) {
	f.val = v
	f.err = err
	close(f.done)
}

// Wait blocks until the function has run and returns its result.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.val, f.err
}

// Done returns a channel closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Async enqueues fn onto the executor and returns a Future for its result.
// The caller is never blocked. If the executor is closed before fn runs,
// the future resolves with ErrClosed.
func Async[T any](e *Executor, fn func() (T, error)) *Future[T] {
	fut := newFuture[T]()
	submit(e, fut, func() { fut.complete(fn()) })
	return fut
}

// Sync enqueues fn onto the executor and waits for its result. Only the
// calling goroutine blocks, never the executor.
func Sync[T any](e *Executor, fn func() (T, error)) (T, error) {
	return Async(e, fn).Wait()
}

// Yield is handed to suspendable tasks. Its methods may only be called from
// within the task function.
type Yield struct {
	e      *Executor
	resume chan struct{}
	yields chan struct{}
	delay  time.Duration
	fin    bool
}

// Sleep suspends the task for at least d, returning the run loop to the
// executor so other work can proceed. It returns ErrClosed if the executor
// shuts down while the task is suspended; the task should unwind promptly,
// it no longer holds the executor turn.
func (y *Yield) Sleep(d time.Duration) error {
	y.delay = d
	y.yields <- struct{}{}
	select {
	case <-y.resume:
		return nil
	case <-y.e.stopped:
		return ErrClosed
	}
}

// Spawn runs fn as a suspendable task on the executor. Each segment of fn
// between Sleep calls executes as one executor work item; while suspended
// the task occupies nothing. The task goroutine locks its OS thread so a
// segment never migrates threads mid-call. The returned future resolves
// when fn returns.
func Spawn[T any](e *Executor, fn func(y *Yield) (T, error)) *Future[T] {
	fut := newFuture[T]()
	y := &Yield{
		e:      e,
		resume: make(chan struct{}),
		yields: make(chan struct{}),
	}

	started := false
	var step func()
	step = func() {
		if !started {
			started = true
			go func() {
				runtime.LockOSThread()
				defer runtime.UnlockOSThread()
				<-y.resume
				v, err := fn(y)
				y.fin = true
				fut.complete(v, err)
				// A step is waiting for the turn back unless the
				// executor shut down mid-suspension.
				select {
				case y.yields <- struct{}{}:
				case <-e.stopped:
				}
			}()
		}

		// Hand the executor turn to the task goroutine and wait for it
		// to either finish or suspend. Exactly one of the two runs at a
		// time, so dispatched work never overlaps a task segment.
		y.resume <- struct{}{}
		<-y.yields
		if y.fin {
			return
		}
		time.AfterFunc(y.delay, func() { e.Dispatch(step) })
	}
	submit(e, fut, step)
	return fut
}

// submit dispatches fn, resolving fut with ErrClosed if the executor has
// already shut down instead of silently dropping the work.
func submit[T any](e *Executor, fut *Future[T], fn func()) {
	if !e.enqueue(fn) {
		var zero T
		fut.complete(zero, ErrClosed)
	}
}
