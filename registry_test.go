package rio

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReadyRegistryTakeIsExclusive(t *testing.T) {
	var reg readyRegistry
	ctx := NewConnectionContext(-1, nil)
	reg.store(7, &readyRecord{ctx: ctx})
	got, ok := reg.load(7)
	require.True(t, ok)
	require.Same(t, ctx, got.ctx)

	rec, ok := reg.take(7)
	require.True(t, ok)
	require.Same(t, ctx, rec.ctx)
	_, ok = reg.take(7)
	require.False(t, ok)
	_, ok = reg.load(7)
	require.False(t, ok)
}

func TestReadyRegistryConcurrentTake(t *testing.T) {
	var reg readyRegistry
	reg.store(1, &readyRecord{})

	var wg sync.WaitGroup
	var won atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := reg.take(1); ok {
				won.Add(1)
			}
		}()
	}
	wg.Wait()
	// 就绪记录至多被一个消费者取走
	require.Equal(t, int32(1), won.Load())
}

func TestPendingRegistrySingleInFlight(t *testing.T) {
	var reg pendingRegistry
	p1 := &pendingRead{expected: 5}
	p2 := &pendingRead{expected: 10}

	require.True(t, reg.storeIfAbsent(3, p1))
	require.False(t, reg.storeIfAbsent(3, p2))

	got, ok := reg.load(3)
	require.True(t, ok)
	require.Same(t, p1, got)

	reg.delete(3)
	require.True(t, reg.storeIfAbsent(3, p2))
}
