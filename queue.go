package rio

import (
	"sync"

	"github.com/eapache/queue"
)

// notifyQueue 是互斥量保护的 FIFO，底层为 eapache/queue 的环形队列。
// 用于任意线程向反应器线程移交注册请求与恢复派发通知。
type notifyQueue[T any] struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newNotifyQueue[T any]() *notifyQueue[T] {
	return &notifyQueue[T]{q: queue.New()}
}

func (n *notifyQueue[T]) push(v T) {
	n.mu.Lock()
	n.q.Add(v)
	n.mu.Unlock()
}

func (n *notifyQueue[T]) pop() (T, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.q.Length() == 0 {
		var zero T
		return zero, false
	}
	return n.q.Remove().(T), true
}
