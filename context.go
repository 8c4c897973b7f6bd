package rio

import (
	"sync/atomic"

	"github.com/legamerdc/rio/internal/netutil"
	"github.com/legamerdc/rio/poller"
)

type contextKind uint8

const (
	kindListener contextKind = iota + 1
	kindConnection
)

// SocketContext 持有一个 socket 句柄及其消费方配置，生命周期内独占句柄。
// 反应器注册后仅保留非所有权引用。
type SocketContext struct {
	fd      poller.FD
	id      uint64 // 注册时由反应器分配的单调 id，注册完成前为 0
	kind    contextKind
	service Service
	guard   chan struct{} // 再入守卫：同一 socket 的消费派发至多一个在途
	closed  atomic.Bool
}

func newContext(fd poller.FD, kind contextKind, svc Service) *SocketContext {
	return &SocketContext{
		fd:      fd,
		kind:    kind,
		service: svc,
		guard:   make(chan struct{}, 1),
	}
}

// NewListenerContext 包装一个监听 socket，svc 将被接入的连接继承。
func NewListenerContext(fd poller.FD, svc Service) *SocketContext {
	return newContext(fd, kindListener, svc)
}

// NewConnectionContext 包装一个已连接 socket。svc 可为 nil，
// 此时就绪事件仅被闩存，直到发起显式读请求。
func NewConnectionContext(fd poller.FD, svc Service) *SocketContext {
	return newContext(fd, kindConnection, svc)
}

// FD 返回底层文件描述符。
func (c *SocketContext) FD() poller.FD { return c.fd }

// ID 返回注册时分配的 socket 标识，注册完成前为 0。
func (c *SocketContext) ID() uint64 { return c.id }

// Service 返回关联的消费方回调集合，可能为 nil。
func (c *SocketContext) Service() Service { return c.service }

// IsListener 报告该上下文是否为监听 socket。
func (c *SocketContext) IsListener() bool { return c.kind == kindListener }

// Close 幂等关闭底层句柄。关闭前应先调用 Reactor.UnregisterChannel。
func (c *SocketContext) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return netutil.Close(c.fd)
}

func (c *SocketContext) tryAcquireGuard() bool {
	select {
	case c.guard <- struct{}{}:
		return true
	default:
		return false
	}
}

func (c *SocketContext) releaseGuard() {
	select {
	case <-c.guard:
	default:
	}
}
