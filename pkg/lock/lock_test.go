package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryExclusive(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	release, err := m.TryLock(ctx, "a")
	require.NoError(t, err)

	_, err = m.TryLock(ctx, "a")
	assert.ErrorIs(t, err, ErrHeld)

	other, err := m.TryLock(ctx, "b")
	require.NoError(t, err)
	other()

	release()
	release() // idempotent

	again, err := m.TryLock(ctx, "a")
	require.NoError(t, err)
	again()
}

func TestMemoryConcurrent(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	var won atomic.Int32
	start := make(chan struct{})

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := m.TryLock(context.Background(), "same"); err == nil {
				won.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()
	assert.Equal(t, int32(1), won.Load())
}
