package logger

import "context"

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped fields that every log line emitted while
// servicing a connection or session should carry.
type LogContext struct {
	TraceID   string // correlation id assigned at accept time
	CID       uint16 // iSCSI connection id
	TSIH      uint16 // target session identifying handle, 0 before login completes
	Initiator string // initiator name once known
	RemoteIP  string
}

// WithContext returns a new context carrying lc.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext stored in ctx, or nil if absent.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// Clone returns a copy of lc, or nil if lc is nil.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	cp := *lc
	return &cp
}

// WithTSIH returns a copy of lc with TSIH set.
func (lc *LogContext) WithTSIH(tsih uint16) *LogContext {
	cp := lc.Clone()
	if cp != nil {
		cp.TSIH = tsih
	}
	return cp
}

// WithInitiator returns a copy of lc with the initiator name set.
func (lc *LogContext) WithInitiator(name string) *LogContext {
	cp := lc.Clone()
	if cp != nil {
		cp.Initiator = name
	}
	return cp
}
