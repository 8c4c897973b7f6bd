package rio

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/legamerdc/rio/internal/netutil"
)

// 读失败兜底的缓冲大小（取不到 SO_RCVBUF 时使用）
const fallbackReadBuffer = 64 << 10

// read 执行非阻塞读并推进组装状态，直至请求完成或数据耗尽。
// 调用方必须持有 p.mu 且已取走就绪记录。请求在读取与停驻期间
// 始终保持在册（并发读请求因此得到 ErrReadPending），完成时才摘除。
func (r *Reactor) read(p *pendingRead) {
	ctx := p.ctx
	defer func() {
		// 未预期失败经失败通道上报，提示调用方不应重试
		if v := recover(); v != nil {
			r.log.Errorf("unexpected failure while reading fd=%d: %v", ctx.fd, v)
			r.pending.delete(ctx.id)
			p.cb.OnFailure(newError(KindUnexpectedReadFailure,
				fmt.Sprintf("unexpected failure on read operation: %v", v)))
		}
	}()
	for {
		buf := make([]byte, p.bufferSize())
		n, err := unix.Read(ctx.fd, buf)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				// 就绪已被消费或为虚假唤醒：恢复兴趣后请求停驻。
				// 恢复期间事件线程可能已再次闩存就绪，取走则立即续读
				r.rearmRead(ctx)
				if _, ok := r.ready.take(ctx.id); ok {
					continue
				}
				return
			}
			r.pending.delete(ctx.id)
			p.cb.OnError(r.readError(err))
			return
		}
		if n == 0 {
			// 对端有序关闭：先摘除请求再注销，避免注销路径将其作废；
			// 用已累积的字节完成请求
			r.pending.delete(ctx.id)
			r.UnregisterChannel(ctx)
			p.cb.OnComplete(p.bytes(), len(p.data))
			return
		}
		p.data = append(p.data, buf[:n]...)
		r.rearmRead(ctx)
		if p.expected != NoReadLength && len(p.data) < p.expected {
			// 长度未满：兴趣恢复期间就绪再次闩存则续读，否则停驻等待
			if _, ok := r.ready.take(ctx.id); ok {
				continue
			}
			return
		}
		r.pending.delete(ctx.id)
		p.cb.OnComplete(p.bytes(), len(p.data))
		return
	}
}

// bufferSize 计算本次读取的缓冲容量：未指定长度时取 socket 接收缓冲提示，
// 否则为剩余未满足的字节数。
func (p *pendingRead) bufferSize() int {
	if p.expected == NoReadLength {
		if hint, err := netutil.GetRecvBuf(p.ctx.fd); err == nil && hint > 0 {
			return hint
		}
		return fallbackReadBuffer
	}
	return p.expected - len(p.data)
}

// bytes 返回已累积的字节，保证非 nil。
func (p *pendingRead) bytes() []byte {
	if p.data == nil {
		return []byte{}
	}
	return p.data
}

func (r *Reactor) readError(err error) *Error {
	switch err {
	case unix.ENOTCONN:
		return newError(KindNotYetConnected, "connection not yet connected")
	case unix.EBADF, unix.ECONNRESET, unix.EPIPE:
		return newError(KindConnectionClosedDuringRead, "connection closed")
	default:
		r.log.Errorf("error while read: %v", err)
		return wrapError(KindReadGenericIO, err, "error while reading from the connection")
	}
}
