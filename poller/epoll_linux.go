//go:build linux

package poller

import (
	"golang.org/x/sys/unix"
)

type epollPoller struct {
	efd int
	wfd int // eventfd for wakeup
	raw []unix.EpollEvent // Wait 单一调用方，可安全复用
}

func New() (Poller, error) {
	efd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(efd)
		return nil, err
	}
	p := &epollPoller{efd: efd, wfd: wfd}
	// 注册 wakeup fd（水平触发，Wait 中就地清空）
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}
	if err := unix.EpollCtl(efd, unix.EPOLL_CTL_ADD, wfd, ev); err != nil {
		unix.Close(wfd)
		unix.Close(efd)
		return nil, err
	}
	return p, nil
}

func interestEvents(readable, writable bool) uint32 {
	var flag uint32
	if readable {
		flag |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if writable {
		flag |= unix.EPOLLOUT
	}
	return flag
}

func (p *epollPoller) Register(fd FD, readable, writable bool) error {
	ev := &unix.EpollEvent{Events: interestEvents(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_ADD, fd, ev)
}

func (p *epollPoller) Mod(fd FD, readable, writable bool) error {
	ev := &unix.EpollEvent{Events: interestEvents(readable, writable), Fd: int32(fd)}
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_MOD, fd, ev)
}

func (p *epollPoller) Unregister(fd FD) error {
	return unix.EpollCtl(p.efd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wake() error {
	var buf [8]byte
	buf[0] = 1
	_, err := unix.Write(p.wfd, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *epollPoller) Close() error {
	unix.Close(p.wfd)
	return unix.Close(p.efd)
}

// Wait 阻塞直至至少一个事件到达或被 Wake 唤醒；唤醒事件被就地吞掉，
// 此时返回 n=0，调用方应当继续其每轮的队列处理。
func (p *epollPoller) Wait(events []Event) (int, error) {
	if len(p.raw) < len(events) {
		p.raw = make([]unix.EpollEvent, len(events))
	}
	raw := p.raw[:len(events)]
	for {
		n, err := unix.EpollWait(p.efd, raw, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		out := 0
		var efdBuf [8]byte
		for i := 0; i < n; i++ {
			ev := raw[i]
			fd := int(ev.Fd)
			if fd == p.wfd {
				// 清空 eventfd
				for {
					if _, rerr := unix.Read(p.wfd, efdBuf[:]); rerr != nil {
						break
					}
				}
				continue
			}
			events[out] = Event{
				FD:       fd,
				Readable: ev.Events&(unix.EPOLLIN|unix.EPOLLRDHUP) != 0,
				Writable: ev.Events&unix.EPOLLOUT != 0,
				Closed:   ev.Events&(unix.EPOLLERR|unix.EPOLLHUP) != 0,
			}
			out++
		}
		return out, nil
	}
}
