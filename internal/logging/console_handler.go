package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiDim    = "\x1b[2m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiCyan   = "\x1b[36m"
)

// consoleHandler renders records as single human-readable lines:
// timestamp, level, message, then key=value attrs. Color is enabled only
// when the writer is a terminal.
type consoleHandler struct {
	mu    *sync.Mutex
	w     io.Writer
	level *slog.LevelVar
	color bool
	attrs []slog.Attr
	group string
}

func newConsoleHandler(w io.Writer, lvl *slog.LevelVar) slog.Handler {
	color := false
	if f, ok := w.(*os.File); ok {
		color = isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return &consoleHandler{
		mu:    &sync.Mutex{},
		w:     w,
		level: lvl,
		color: color,
	}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	var b strings.Builder

	b.WriteString(h.paint(ansiDim, record.Time.Format(time.TimeOnly)))
	b.WriteByte(' ')
	b.WriteString(h.paintLevel(record.Level))
	b.WriteByte(' ')
	b.WriteString(record.Message)

	for _, attr := range h.attrs {
		h.writeAttr(&b, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		h.writeAttr(&b, attr)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	clone := *h
	clone.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	clone.attrs = append(clone.attrs, h.attrs...)
	for _, attr := range attrs {
		clone.attrs = append(clone.attrs, h.qualify(attr))
	}
	return &clone
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if strings.TrimSpace(name) == "" {
		return h
	}
	clone := *h
	if h.group != "" {
		clone.group = h.group + "." + name
	} else {
		clone.group = name
	}
	return &clone
}

func (h *consoleHandler) qualify(attr slog.Attr) slog.Attr {
	if h.group == "" {
		return attr
	}
	attr.Key = h.group + "." + attr.Key
	return attr
}

func (h *consoleHandler) writeAttr(b *strings.Builder, attr slog.Attr) {
	if attr.Equal(slog.Attr{}) {
		return
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		for _, nested := range attr.Value.Group() {
			nested.Key = attr.Key + "." + nested.Key
			h.writeAttr(b, nested)
		}
		return
	}
	b.WriteByte(' ')
	b.WriteString(h.paint(ansiCyan, attr.Key))
	b.WriteByte('=')
	b.WriteString(formatValue(attr.Value))
}

func (h *consoleHandler) paintLevel(level slog.Level) string {
	label := strings.ToUpper(level.String())
	switch {
	case level >= slog.LevelError:
		return h.paint(ansiRed, label)
	case level >= slog.LevelWarn:
		return h.paint(ansiYellow, label)
	case level <= slog.LevelDebug:
		return h.paint(ansiDim, label)
	default:
		return h.paint(ansiBlue, label)
	}
}

func (h *consoleHandler) paint(color, text string) string {
	if !h.color {
		return text
	}
	return color + text + ansiReset
}

func formatValue(value slog.Value) string {
	switch value.Kind() {
	case slog.KindString:
		s := value.String()
		if strings.ContainsAny(s, " \t") {
			return fmt.Sprintf("%q", s)
		}
		return s
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().Format(time.RFC3339)
	default:
		return value.String()
	}
}
