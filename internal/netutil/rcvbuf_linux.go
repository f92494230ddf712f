//go:build linux

package netutil

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// setRecvBuffer sets SO_RCVBUF via the raw socket control, since
// net.TCPConn.SetReadBuffer silently clamps/doubles per-OS and doesn't
// report the value actually installed.
func setRecvBuffer(tc *net.TCPConn, size int) error {
	raw, err := tc.SyscallConn()
	if err != nil {
		return fmt.Errorf("get raw conn: %w", err)
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, size)
	})
	if err != nil {
		return fmt.Errorf("control raw conn: %w", err)
	}
	return sockErr
}
