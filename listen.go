//go:build linux || darwin

package rio

import (
	"net"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/legamerdc/rio/internal/netutil"
	"github.com/legamerdc/rio/poller"
)

// Listen 创建非阻塞 TCP 监听 socket 并返回其 fd，
// 由调用方包装为 ListenerContext 后注册到反应器。
// 仅支持 tcp 与 tcp4/tcp6。
func Listen(network, address string, reusePort bool) (poller.FD, error) {
	fam, sa, err := resolveSockaddr(network, address)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(fam, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	_ = netutil.SetReuseAddr(fd, true)
	if reusePort {
		_ = netutil.SetReusePort(fd, true)
	}
	_ = netutil.SetNonblock(fd, true)
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// resolveSockaddr 将 network/address 解析为 socket 族与内核地址。
func resolveSockaddr(network, address string) (int, unix.Sockaddr, error) {
	fam := unix.AF_INET
	if strings.HasSuffix(network, "6") {
		fam = unix.AF_INET6
	}
	if fam == unix.AF_INET6 {
		addr, err := net.ResolveTCPAddr("tcp6", address)
		if err != nil {
			return 0, nil, err
		}
		var sa6 unix.SockaddrInet6
		if addr.IP != nil {
			copy(sa6.Addr[:], addr.IP.To16())
		}
		sa6.Port = addr.Port
		return fam, &sa6, nil
	}
	addr, err := net.ResolveTCPAddr("tcp4", address)
	if err != nil {
		return 0, nil, err
	}
	var sa4 unix.SockaddrInet4
	if addr.IP != nil {
		copy(sa4.Addr[:], addr.IP.To4())
	}
	sa4.Port = addr.Port
	return fam, &sa4, nil
}
