package utils

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

func TestSemaphoreGather(t *testing.T) {
	var counter int64
	errs := SemaphoreGather(context.Background(), 4,
		func() error { atomic.AddInt64(&counter, 1); return nil },
		func() error { atomic.AddInt64(&counter, 1); return nil },
		func() error { return errors.New("boom") },
	)

	require.Len(t, errs, 3)
	assert.NoError(t, errs[0])
	assert.NoError(t, errs[1])
	assert.EqualError(t, errs[2], "boom")
	assert.Equal(t, int64(2), atomic.LoadInt64(&counter))
}

func TestSemaphoreGatherBoundsConcurrency(t *testing.T) {
	var current, peak int64
	var mu sync.Mutex

	fns := make([]func() error, 20)
	for i := range fns {
		fns[i] = func() error {
			c := atomic.AddInt64(&current, 1)
			mu.Lock()
			if c > peak {
				peak = c
			}
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt64(&current, -1)
			return nil
		}
	}

	SemaphoreGather(context.Background(), 3, fns...)
	assert.LessOrEqual(t, peak, int64(3))
}

func TestSemaphoreGatherRecoversPanic(t *testing.T) {
	errs := SemaphoreGather(context.Background(), 2,
		func() error { panic("worker exploded") },
		func() error { return nil },
	)

	var panicErr *PanicError
	require.ErrorAs(t, errs[0], &panicErr)
	assert.Contains(t, panicErr.Error(), "worker exploded")
	assert.NoError(t, errs[1])
}

func TestSemaphoreGatherWithResults(t *testing.T) {
	results, errs := SemaphoreGatherWithResults(context.Background(), 2,
		func() (int, error) { return 1, nil },
		func() (int, error) { return 0, errors.New("failed") },
		func() (int, error) { return 3, nil },
	)

	require.Len(t, results, 3)
	assert.Equal(t, 1, results[0])
	assert.Error(t, errs[1])
	assert.Equal(t, 3, results[2])
}

func TestSemaphoreGatherCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	errs := SemaphoreGather(ctx, 1, func() error { return nil })
	// A pre-cancelled context either fills the slot with ctx.Err() or the
	// function slips through before the semaphore observes cancellation.
	if errs[0] != nil {
		assert.ErrorIs(t, errs[0], context.Canceled)
	}
}

func TestBatch(t *testing.T) {
	batches := Batch([]int{1, 2, 3, 4, 5}, 2)
	require.Len(t, batches, 3)
	assert.Equal(t, []int{1, 2}, batches[0])
	assert.Equal(t, []int{5}, batches[2])

	assert.Nil(t, Batch([]int{}, 2))
}

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()
	var inCritical int64
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			km.Lock("canonical-1")
			defer km.Unlock("canonical-1")

			c := atomic.AddInt64(&inCritical, 1)
			assert.Equal(t, int64(1), c)
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&inCritical, -1)
		}()
	}
	wg.Wait()
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	km := NewKeyedMutex()
	km.Lock("a")

	done := make(chan struct{})
	go func() {
		km.Lock("b")
		km.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent key blocked")
	}
	km.Unlock("a")
}
