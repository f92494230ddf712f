// Package netutil applies the per-connection socket tuning §4.2 requires
// (TCP_NODELAY, SO_KEEPALIVE, a receive buffer sized against the negotiated
// MaxRecvDataSegmentLength) that net.TCPConn's portable API doesn't expose
// directly.
package netutil

import (
	"fmt"
	"net"
)

// MinRecvBuffer is the floor receive buffer size applied regardless of the
// negotiated segment length, using explicit
// minimums over relying on OS defaults.
const MinRecvBuffer = 64 * 1024

// TuneAccepted applies §4.2's socket options to a freshly accepted
// connection: TCP_NODELAY on, SO_KEEPALIVE on, and a receive buffer sized
// to at least 2x maxRecvDataSegmentLen (serve.go passes the configured
// MaxRecvDataSegmentLength; the buffer is not resized after login).
func TuneAccepted(conn net.Conn, maxRecvDataSegmentLen uint32) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if err := tc.SetNoDelay(true); err != nil {
		return fmt.Errorf("set TCP_NODELAY: %w", err)
	}
	if err := tc.SetKeepAlive(true); err != nil {
		return fmt.Errorf("set SO_KEEPALIVE: %w", err)
	}
	want := int(2 * maxRecvDataSegmentLen)
	if want < MinRecvBuffer {
		want = MinRecvBuffer
	}
	return setRecvBuffer(tc, want)
}
