//go:build darwin || freebsd || netbsd || openbsd

package receiver

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func listenControl(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return serr
}
