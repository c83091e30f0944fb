package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"housekeeping/internal/apperr"
)

func TestAcquire_TimesOutAsBusy(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	release, err := m.Acquire(context.Background(), Key("room", "r1"))
	require.NoError(t, err)
	defer release()

	_, err = m.Acquire(context.Background(), Key("room", "r1"))
	require.True(t, apperr.Is(err, apperr.KindBusy), "got %v", err)

	other, err := m.Acquire(context.Background(), Key("room", "r2"))
	require.NoError(t, err)
	other()
}

func TestAcquire_CancelledContextIsNotBusy(t *testing.T) {
	m := NewManager(time.Second)
	release, err := m.Acquire(context.Background(), "task:t1")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Acquire(ctx, "task:t1")
	require.ErrorIs(t, err, context.Canceled)
}

func TestDo_SerializesSameKey(t *testing.T) {
	m := NewManager(time.Second)
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.Do(context.Background(), "item:towel", func() error {
				n := atomic.AddInt32(&inside, 1)
				for {
					cur := atomic.LoadInt32(&maxInside)
					if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inside, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInside)

	m.mu.Lock()
	defer m.mu.Unlock()
	require.Empty(t, m.entries)
}

func TestRelease_Idempotent(t *testing.T) {
	m := NewManager(time.Second)
	release, err := m.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	again, err := m.Acquire(context.Background(), "k")
	require.NoError(t, err)
	again()
}
