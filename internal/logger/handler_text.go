package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"
)

// colorTextHandler is a minimal slog.Handler that renders records as
// "time level message key=value ..." lines, colorizing the level when the
// destination is a terminal.
type colorTextHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	opts   *slog.HandlerOptions
	color  bool
	attrs  []slog.Attr
	groups []string
}

// NewColorTextHandler builds a slog.Handler writing to w.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &colorTextHandler{mu: &sync.Mutex{}, out: w, opts: opts, color: color}
}

func (h *colorTextHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *colorTextHandler) levelColor(level slog.Level) string {
	if !h.color {
		return ""
	}
	switch {
	case level >= slog.LevelError:
		return "\x1b[31m"
	case level >= slog.LevelWarn:
		return "\x1b[33m"
	case level >= slog.LevelInfo:
		return "\x1b[36m"
	default:
		return "\x1b[90m"
	}
}

func (h *colorTextHandler) Handle(_ context.Context, r slog.Record) error {
	var buf bytes.Buffer
	buf.WriteString(r.Time.Format(time.RFC3339Nano))
	buf.WriteByte(' ')

	reset := ""
	if h.color {
		reset = "\x1b[0m"
	}
	fmt.Fprintf(&buf, "%s%-5s%s", h.levelColor(r.Level), r.Level.String(), reset)
	buf.WriteByte(' ')
	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, a)
		return true
	})
	buf.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func writeAttr(buf *bytes.Buffer, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}
	buf.WriteByte(' ')
	buf.WriteString(a.Key)
	buf.WriteByte('=')
	fmt.Fprintf(buf, "%v", a.Value.Any())
}

func (h *colorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &cp
}

func (h *colorTextHandler) WithGroup(name string) slog.Handler {
	cp := *h
	cp.groups = append(append([]string{}, h.groups...), name)
	return &cp
}
