//go:build darwin

package rio

import (
	"golang.org/x/sys/unix"

	"github.com/legamerdc/rio/internal/netutil"
	"github.com/legamerdc/rio/poller"
)

func acceptConn(lfd poller.FD) (poller.FD, error) {
	fd, _, err := unix.Accept(lfd)
	if err != nil {
		return -1, err
	}
	_ = netutil.SetNonblock(fd, true)
	unix.CloseOnExec(fd)
	return fd, nil
}
