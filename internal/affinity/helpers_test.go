package affinity

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dshills/affinity/internal/goid"
)

var errBoom = errors.New("boom")

// testQueue is a minimal affinity queue served by one goroutine.
type testQueue struct {
	items   chan func()
	owner   atomic.Uint64
	stopped atomic.Bool
	wg      sync.WaitGroup

	mu      sync.Mutex
	running int
	overlap bool
	queued  atomic.Int64
}

func newTestQueue() *testQueue {
	q := &testQueue{items: make(chan func(), 1024)}
	ready := make(chan struct{})
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.owner.Store(goid.Current())
		close(ready)
		for fn := range q.items {
			q.mu.Lock()
			q.running++
			if q.running > 1 {
				q.overlap = true
			}
			q.mu.Unlock()

			fn()

			q.mu.Lock()
			q.running--
			q.mu.Unlock()
		}
	}()
	<-ready
	return q
}

var errQueueStopped = errors.New("test queue stopped")

func (q *testQueue) BeginInvoke(fn func()) error {
	if q.stopped.Load() {
		return errQueueStopped
	}
	q.queued.Add(1)
	q.items <- fn
	return nil
}

func (q *testQueue) Invoke(fn func() error) error {
	if q.CheckAccess() {
		return fn()
	}
	done := make(chan error, 1)
	if err := q.BeginInvoke(func() { done <- fn() }); err != nil {
		return err
	}
	return <-done
}

func (q *testQueue) CheckAccess() bool {
	return q.owner.Load() == goid.Current()
}

func (q *testQueue) close() {
	if q.stopped.CompareAndSwap(false, true) {
		close(q.items)
		q.wg.Wait()
	}
}

// onQueue runs fn on the queue goroutine and waits for it.
func (q *testQueue) onQueue(fn func()) {
	done := make(chan struct{})
	q.items <- func() {
		defer close(done)
		fn()
	}
	<-done
}
