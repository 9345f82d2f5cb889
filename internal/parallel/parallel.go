// Package parallel provides a small worker pool for band-partitioned pixel
// work.
//
// Converters split a raster into horizontal bands and hand one closure per
// band to the pool. Workers are long-lived goroutines, so per-frame
// conversion does not pay goroutine startup on a real-time deadline.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool is a fixed-size pool of worker goroutines.
//
// Thread safety: Pool is safe for concurrent use.
type Pool struct {
	workers int
	tasks   chan func()
	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool
}

// NewPool creates a pool with the given number of workers and starts them.
// If workers <= 0, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	p := &Pool{
		workers: workers,
		tasks:   make(chan func(), workers*4),
		done:    make(chan struct{}),
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			// Drain remaining work before exiting.
			for {
				select {
				case fn := <-p.tasks:
					fn()
				default:
					return
				}
			}
		case fn := <-p.tasks:
			fn()
		}
	}
}

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int {
	return p.workers
}

// ExecuteAll runs every closure in work on the pool and waits for all of
// them to complete. If the pool has been closed, the work runs inline on the
// calling goroutine instead so callers never observe dropped bands.
func (p *Pool) ExecuteAll(work []func()) {
	if len(work) == 0 {
		return
	}
	if !p.running.Load() {
		for _, fn := range work {
			fn()
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(len(work))
	for _, fn := range work {
		fn := fn
		wrapped := func() {
			defer wg.Done()
			fn()
		}
		select {
		case p.tasks <- wrapped:
		case <-p.done:
			// Pool is closing; run inline.
			fn()
			wg.Done()
		}
	}
	wg.Wait()
}

// Close stops the workers after draining queued work.
// Close is safe to call multiple times.
func (p *Pool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}
