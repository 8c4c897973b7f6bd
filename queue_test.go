package rio

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotifyQueueFIFO(t *testing.T) {
	q := newNotifyQueue[int]()
	_, ok := q.pop()
	require.False(t, ok)

	for i := 0; i < 100; i++ {
		q.push(i)
	}
	for i := 0; i < 100; i++ {
		v, ok := q.pop()
		require.True(t, ok)
		require.Equal(t, i, v)
	}
	_, ok = q.pop()
	require.False(t, ok)
}

func TestNotifyQueueConcurrentPush(t *testing.T) {
	const producers = 8
	const perProducer = 200
	q := newNotifyQueue[int]()

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				q.push(j)
			}
		}()
	}
	wg.Wait()

	count := 0
	for {
		if _, ok := q.pop(); !ok {
			break
		}
		count++
	}
	require.Equal(t, producers*perProducer, count)
}
