package affinity

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingDispatcher counts calls into the wrapped dispatcher.
type recordingDispatcher struct {
	Dispatcher
	posts atomic.Int64
	sends atomic.Int64
}

func (r *recordingDispatcher) Post(action Action) {
	r.posts.Add(1)
	r.Dispatcher.Post(action)
}

func (r *recordingDispatcher) TryPost(action Action) error {
	r.posts.Add(1)
	if tp, ok := r.Dispatcher.(tryPoster); ok {
		return tp.TryPost(action)
	}
	r.Dispatcher.Post(action)
	return nil
}

func (r *recordingDispatcher) Send(action Action) error {
	r.sends.Add(1)
	return r.Dispatcher.Send(action)
}

func newQueueExecutor(t *testing.T) (*Executor, *testQueue, *recordingDispatcher) {
	t.Helper()
	q := newTestQueue()
	t.Cleanup(q.close)

	rec := &recordingDispatcher{Dispatcher: NewAdapter(q)}
	exec := NewExecutor()
	require.NoError(t, exec.SetDispatcher(rec))
	return exec, q, rec
}

func waitFuture(t *testing.T, f *Future) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := f.Wait(ctx)
	require.False(t, errors.Is(err, context.DeadlineExceeded), "future did not resolve within timeout")
	return err
}

func TestExecutor_DefaultsToPassThrough(t *testing.T) {
	exec := NewExecutor()
	assert.IsType(t, PassThrough{}, exec.Dispatcher())

	x := 0
	exec.Run(func() error {
		x = 5
		return nil
	})
	assert.Equal(t, 5, x, "Run should execute inline before returning")
	assert.Equal(t, uint64(1), exec.Stats().Inline)
}

func TestExecutor_SetDispatcherNil(t *testing.T) {
	exec, _, rec := newQueueExecutor(t)

	err := exec.SetDispatcher(nil)
	require.ErrorIs(t, err, ErrNilDispatcher)
	assert.Same(t, rec, exec.Dispatcher(), "previous dispatcher must stay installed")
}

func TestExecutor_SetDispatcherTypedNil(t *testing.T) {
	exec, _, rec := newQueueExecutor(t)

	var adapter *Adapter
	require.ErrorIs(t, exec.SetDispatcher(adapter), ErrNilDispatcher)

	var recorder *recordingDispatcher
	require.ErrorIs(t, exec.SetDispatcher(recorder), ErrNilDispatcher)

	assert.Same(t, rec, exec.Dispatcher(), "previous dispatcher must stay installed")
	assert.NoError(t, exec.RunSync(func() error { return nil }))
}

func TestExecutor_SetDispatcherReplaces(t *testing.T) {
	exec, _, _ := newQueueExecutor(t)

	require.NoError(t, exec.SetDispatcher(PassThrough{}))
	assert.IsType(t, PassThrough{}, exec.Dispatcher())
}

func TestExecutor_RunSync_CrossGoroutine(t *testing.T) {
	exec, _, rec := newQueueExecutor(t)

	x := 0
	err := exec.RunSync(func() error {
		x = 5
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, x)
	assert.Equal(t, int64(1), rec.sends.Load())
}

func TestExecutor_RunSync_WrapsErrorOnBothPaths(t *testing.T) {
	exec, q, rec := newQueueExecutor(t)

	// Off the affinity goroutine: goes through Send.
	err := exec.RunSync(func() error { return errBoom })
	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, errBoom)
	assert.Equal(t, errBoom, ie.Err)
	assert.Equal(t, int64(1), rec.sends.Load())

	// On the affinity goroutine: runs inline with the same wrapping.
	var inlineErr error
	q.onQueue(func() {
		inlineErr = exec.RunSync(func() error { return errBoom })
	})
	require.ErrorAs(t, inlineErr, &ie)
	assert.ErrorIs(t, inlineErr, errBoom)
	assert.Equal(t, int64(1), rec.sends.Load(), "inline path must not call Send")
}

func TestExecutor_RunSync_WrapsPanic(t *testing.T) {
	exec, _, _ := newQueueExecutor(t)

	err := exec.RunSync(func() error { panic("kaboom") })

	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
}

func TestExecutor_RunSync_PassThroughWraps(t *testing.T) {
	exec := NewExecutor()

	err := exec.RunSync(func() error { return errBoom })
	var ie *InvocationError
	require.ErrorAs(t, err, &ie)
	assert.ErrorIs(t, err, errBoom)
}

func TestExecutor_RunSync_NoSelfDeadlock(t *testing.T) {
	exec, q, _ := newQueueExecutor(t)

	done := make(chan error, 1)
	go q.onQueue(func() {
		done <- exec.RunSync(func() error {
			return exec.RunSync(func() error { return nil })
		})
	})

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunSync on the affinity goroutine deadlocked")
	}
}

func TestExecutor_Run_OnAffinityIsInline(t *testing.T) {
	exec, q, rec := newQueueExecutor(t)
	queuedBefore := q.queued.Load()

	var x int
	var afterCall int
	q.onQueue(func() {
		exec.Run(func() error {
			x = 5
			return nil
		})
		afterCall = x
	})

	assert.Equal(t, 5, afterCall, "Run should execute inline on the affinity goroutine")
	assert.Equal(t, int64(0), rec.posts.Load())
	assert.Equal(t, queuedBefore, q.queued.Load(), "no queue interaction expected")
}

func TestExecutor_Run_OffAffinityPosts(t *testing.T) {
	exec, _, rec := newQueueExecutor(t)

	ran := make(chan bool, 1)
	exec.Run(func() error {
		ran <- exec.Dispatcher().IsCurrent()
		return nil
	})

	select {
	case onQueue := <-ran:
		assert.True(t, onQueue)
	case <-time.After(time.Second):
		t.Fatal("posted action was not executed within timeout")
	}
	assert.Equal(t, int64(1), rec.posts.Load())
}

func TestExecutor_PostAsync_DefersOnAffinity(t *testing.T) {
	exec, q, rec := newQueueExecutor(t)

	ran := make(chan struct{})
	var ranBeforeReturn bool
	q.onQueue(func() {
		exec.PostAsync(func() error {
			close(ran)
			return nil
		})
		select {
		case <-ran:
			ranBeforeReturn = true
		default:
		}
	})

	assert.False(t, ranBeforeReturn, "PostAsync must not run inline")
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("posted action was not executed within timeout")
	}
	assert.Equal(t, int64(1), rec.posts.Load())
}

func TestExecutor_PostAsync_ManyProducers(t *testing.T) {
	exec, q, _ := newQueueExecutor(t)

	const producers = 64
	var executed sync.WaitGroup
	executed.Add(producers)
	var mu sync.Mutex
	seen := make(map[int]int)
	var onAffinity atomic.Int64

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			exec.PostAsync(func() error {
				defer executed.Done()
				if q.CheckAccess() {
					onAffinity.Add(1)
				}
				mu.Lock()
				seen[i]++
				mu.Unlock()
				return nil
			})
		}(i)
	}
	wg.Wait()
	executed.Wait()
	q.close()

	assert.Len(t, seen, producers)
	for i, n := range seen {
		assert.Equal(t, 1, n, "action %d", i)
	}
	assert.Equal(t, int64(producers), onAffinity.Load())
	assert.False(t, q.overlap, "actions must not overlap")
}

func TestExecutor_PostAsyncAwaitable(t *testing.T) {
	exec, _, _ := newQueueExecutor(t)

	x := 0
	f := exec.PostAsyncAwaitable(func() error {
		x = 5
		return nil
	})
	require.NoError(t, waitFuture(t, f))
	assert.Equal(t, 5, x)

	f = exec.PostAsyncAwaitable(func() error { return errBoom })
	assert.Equal(t, errBoom, waitFuture(t, f))
}

func TestExecutor_PostAsyncAwaitable_Refused(t *testing.T) {
	exec, q, _ := newQueueExecutor(t)
	q.close()

	f := exec.PostAsyncAwaitable(func() error { return nil })
	assert.ErrorIs(t, waitFuture(t, f), errQueueStopped)
}

func TestExecutor_PostAsyncAwaitable_PlainDispatcher(t *testing.T) {
	exec := NewExecutor()

	// PassThrough has no TryPost; the shim still resolves the future.
	f := exec.PostAsyncAwaitable(func() error { return errBoom })
	assert.True(t, f.IsDone())
	assert.Equal(t, errBoom, f.Err())
}

func TestExecutor_RunAsync(t *testing.T) {
	tests := []struct {
		name       string
		onAffinity bool
		actionErr  error
	}{
		{name: "inline success", onAffinity: true},
		{name: "inline error", onAffinity: true, actionErr: errBoom},
		{name: "cross success", onAffinity: false},
		{name: "cross error", onAffinity: false, actionErr: errBoom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, q, rec := newQueueExecutor(t)
			action := func() error { return tt.actionErr }

			var f *Future
			if tt.onAffinity {
				q.onQueue(func() { f = exec.RunAsync(action) })
				assert.True(t, f.IsDone(), "inline RunAsync must return a completed future")
				assert.Equal(t, int64(0), rec.posts.Load())
			} else {
				f = exec.RunAsync(action)
			}

			assert.Equal(t, tt.actionErr, waitFuture(t, f))
		})
	}
}

func TestExecutor_NilActions(t *testing.T) {
	exec := NewExecutor()

	exec.Run(nil)
	exec.PostAsync(nil)
	assert.ErrorIs(t, exec.RunSync(nil), ErrNilAction)
	assert.ErrorIs(t, exec.RunAsync(nil).Err(), ErrNilAction)
	assert.ErrorIs(t, exec.PostAsyncAwaitable(nil).Err(), ErrNilAction)
}

func TestExecutor_Stats(t *testing.T) {
	exec := NewExecutor()

	exec.Run(func() error { return nil })
	_ = exec.RunSync(func() error { return errBoom })

	stats := exec.Stats()
	assert.Equal(t, uint64(2), stats.Inline)
	assert.Equal(t, uint64(1), stats.Failed)

	exec.ResetStats()
	assert.Equal(t, ExecutorStats{}, exec.Stats())
}
