package coordination

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedCounter_RespectsBound(t *testing.T) {
	ctx := context.Background()
	counter := NewBoundedCounter(NewMemoryStore(), "sync", 2)

	for i := 0; i < 2; i++ {
		ok, err := counter.TryAcquire(ctx)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, err := counter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, counter.Release(ctx))

	ok, err = counter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestBoundedCounter_ConcurrentAdmission(t *testing.T) {
	ctx := context.Background()
	counter := NewBoundedCounter(NewMemoryStore(), "sync", 5)

	var admitted atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := counter.TryAcquire(ctx)
			require.NoError(t, err)
			if ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(5), admitted.Load())
}

func TestBoundedCounter_DoubleReleaseDoesNotInflateCapacity(t *testing.T) {
	ctx := context.Background()
	counter := NewBoundedCounter(NewMemoryStore(), "sync", 1)

	ok, err := counter.TryAcquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, counter.Release(ctx))
	require.NoError(t, counter.Release(ctx))

	ok, err = counter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = counter.TryAcquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "clamped counter must not admit beyond the bound")
}
