//go:build darwin

package poller

import (
	"golang.org/x/sys/unix"
)

type kqueuePoller struct {
	kq  int
	wfd int // 写端，用于唤醒
	rfd int // 读端，注册到 kqueue
	raw []unix.Kevent_t // Wait 单一调用方，可安全复用
}

func New() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	// 使用管道作为唤醒
	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		unix.Close(kq)
		return nil, err
	}
	rfd, wfd := p[0], p[1]
	_ = unix.SetNonblock(rfd, true)
	_ = unix.SetNonblock(wfd, true)
	kev := unix.Kevent_t{
		Ident:  uint64(rfd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}
	if _, err = unix.Kevent(kq, []unix.Kevent_t{kev}, nil, nil); err != nil {
		unix.Close(rfd)
		unix.Close(wfd)
		unix.Close(kq)
		return nil, err
	}
	return &kqueuePoller{kq: kq, wfd: wfd, rfd: rfd}, nil
}

func (p *kqueuePoller) apply(changes []unix.Kevent_t) error {
	// 逐条提交：删除不存在的过滤器返回 ENOENT，可忽略
	for _, kev := range changes {
		if _, err := unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil); err != nil {
			if kev.Flags&unix.EV_DELETE != 0 && err == unix.ENOENT {
				continue
			}
			return err
		}
	}
	return nil
}

func (p *kqueuePoller) Register(fd FD, readable, writable bool) error {
	var changes []unix.Kevent_t
	if readable {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD})
	}
	if writable {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD})
	}
	return p.apply(changes)
}

func (p *kqueuePoller) Mod(fd FD, readable, writable bool) error {
	// kqueue 中 Mod 等价为删除不需要的再添加
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	if readable {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD})
	}
	if writable {
		changes = append(changes, unix.Kevent_t{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD})
	}
	return p.apply(changes)
}

func (p *kqueuePoller) Unregister(fd FD) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	return p.apply(changes)
}

func (p *kqueuePoller) Wake() error {
	var b [1]byte
	b[0] = 1
	_, err := unix.Write(p.wfd, b[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func (p *kqueuePoller) Close() error {
	unix.Close(p.rfd)
	unix.Close(p.wfd)
	return unix.Close(p.kq)
}

func (p *kqueuePoller) Wait(events []Event) (int, error) {
	if len(p.raw) < len(events) {
		p.raw = make([]unix.Kevent_t, len(events))
	}
	raw := p.raw[:len(events)]
	buf := make([]byte, 16)
	for {
		n, err := unix.Kevent(p.kq, nil, raw, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, err
		}
		out := 0
		for i := 0; i < n; i++ {
			ev := raw[i]
			fd := int(ev.Ident)
			if fd == p.rfd {
				for {
					if _, rerr := unix.Read(p.rfd, buf); rerr != nil {
						break
					}
				}
				continue
			}
			events[out] = Event{
				FD:       fd,
				Readable: ev.Filter == unix.EVFILT_READ,
				Writable: ev.Filter == unix.EVFILT_WRITE,
				Closed:   ev.Flags&unix.EV_EOF != 0,
			}
			out++
		}
		return out, nil
	}
}
