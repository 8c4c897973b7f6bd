//go:build linux || darwin

package rio

import (
	"golang.org/x/sys/unix"

	"github.com/legamerdc/rio/internal/netutil"
	"github.com/legamerdc/rio/poller"
)

// Dial 建立 TCP 连接并返回设为非阻塞的 fd，
// 由调用方包装为 ConnectionContext 后经注册队列注册到反应器。
// 连接本身为阻塞式，注册完成前不会有事件派发。
func Dial(network, address string) (poller.FD, error) {
	fam, sa, err := resolveSockaddr(network, address)
	if err != nil {
		return -1, err
	}
	fd, err := unix.Socket(fam, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, err
	}
	if err := unix.Connect(fd, sa); err != nil {
		unix.Close(fd)
		return -1, err
	}
	_ = netutil.SetNonblock(fd, true)
	_ = netutil.SetNoDelay(fd, true)
	return fd, nil
}
