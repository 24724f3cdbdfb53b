//go:build linux || darwin || netbsd || freebsd || openbsd || dragonfly

package connmgr

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// listen opens the gateway's sensor-facing TCP listener with SO_REUSEADDR
// set on the underlying socket, so a restarted gateway can rebind the
// same port immediately instead of waiting out TIME_WAIT.
func listen(ctx context.Context, port int, addr string) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	return lc.Listen(ctx, "tcp", addr)
}
