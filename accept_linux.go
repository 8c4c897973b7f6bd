//go:build linux

package rio

import (
	"golang.org/x/sys/unix"

	"github.com/legamerdc/rio/poller"
)

func acceptConn(lfd poller.FD) (poller.FD, error) {
	fd, _, err := unix.Accept4(lfd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	return fd, err
}
