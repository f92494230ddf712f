//go:build !linux

package netutil

import "net"

// setRecvBuffer falls back to the portable (best-effort, doubled-by-OS) API
// on platforms without golang.org/x/sys/unix socket option support wired up
// here.
func setRecvBuffer(tc *net.TCPConn, size int) error {
	return tc.SetReadBuffer(size)
}
