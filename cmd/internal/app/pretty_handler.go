package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset   = "\x1b[0m"
	ansiBright  = "\x1b[1m"
	ansiDim     = "\x1b[2m"
	ansiRed     = "\x1b[31m"
	ansiGreen   = "\x1b[32m"
	ansiYellow  = "\x1b[33m"
	ansiBlue    = "\x1b[34m"
	ansiMagenta = "\x1b[35m"
	ansiCyan    = "\x1b[36m"
)

type groupedAttr struct {
	prefix string
	attr   slog.Attr
}

// prettyHandler renders records as one logfmt-ish line for local development.
type prettyHandler struct {
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []groupedAttr
	groups []string
	color  bool
	mu     *sync.Mutex
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions, color bool) slog.Handler {
	h := &prettyHandler{
		w:     w,
		color: color,
		mu:    &sync.Mutex{},
	}
	if opts != nil {
		h.opts = *opts
	}
	return h
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	minLevel := slog.LevelInfo
	if h.opts.Level != nil {
		minLevel = h.opts.Level.Level()
	}
	return level >= minLevel
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "ts=%s lvl=%s msg=%s",
		paint(ts.Format("15:04:05.000"), ansiDim, h.color),
		levelTag(r.Level, h.color),
		paint(r.Message, ansiBright, h.color),
	)
	if src := h.source(r.PC); src != "" {
		b.WriteString(" src=" + paint(src, ansiDim, h.color))
	}

	for _, ga := range h.attrs {
		h.appendAttr(&b, ga.attr, ga.prefix)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(&b, a, prefix)
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}

func (h *prettyHandler) source(pc uintptr) string {
	if !h.opts.AddSource || pc == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	return filepath.Base(frame.File) + ":" + strconv.Itoa(frame.Line)
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	prefix := strings.Join(h.groups, ".")
	cp.attrs = slices.Clone(h.attrs)
	for _, a := range attrs {
		cp.attrs = append(cp.attrs, groupedAttr{prefix: prefix, attr: a})
	}
	return &cp
}

func (h *prettyHandler) WithGroup(name string) slog.Handler {
	name = strings.TrimSpace(name)
	if name == "" {
		return h
	}
	cp := *h
	cp.groups = append(slices.Clone(h.groups), name)
	return &cp
}

// appendAttr writes " prefix.key=value", flattening nested groups into dotted keys.
func (h *prettyHandler) appendAttr(b *strings.Builder, a slog.Attr, prefix string) {
	a.Value = a.Value.Resolve()
	key := strings.TrimSpace(a.Key)
	if key == "" {
		return
	}

	if a.Value.Kind() == slog.KindGroup {
		child := key
		if prefix != "" {
			child = prefix + "." + key
		}
		for _, ga := range a.Value.Group() {
			h.appendAttr(b, ga, child)
		}
		return
	}

	b.WriteByte(' ')
	if prefix != "" {
		b.WriteString(prefix)
		b.WriteByte('.')
	}
	b.WriteString(prettyKey(key))
	b.WriteByte('=')
	b.WriteString(h.prettyValue(key, a.Value))
}

// prettyValue formats v; key is the leaf key without group prefixes.
func (h *prettyHandler) prettyValue(key string, v slog.Value) string {
	switch key {
	case "method":
		return colorizeHTTPMethod(strings.ToUpper(strings.TrimSpace(v.String())), h.color)
	case "path":
		return paint(strings.TrimSpace(v.String()), ansiCyan, h.color)
	case "status":
		if n, ok := valueToInt64(v); ok {
			return colorizeStatusCode(int(n), h.color)
		}
	case "status_class", "class":
		return colorizeStatusClass(strings.TrimSpace(v.String()), h.color)
	case "duration_ms":
		if n, ok := valueToInt64(v); ok {
			return colorizeDurationMS(n, h.color)
		}
	case "result", "outcome", "action":
		return colorizeResult(strings.ToLower(strings.TrimSpace(v.String())), h.color)
	case "err":
		return paint(quoteIfNeeded(v.String()), ansiRed, h.color)
	}

	if v.Kind() == slog.KindTime {
		return v.Time().Format(time.RFC3339)
	}
	// slog.Value.String formats every other kind the way we want.
	return quoteIfNeeded(v.String())
}

func prettyKey(k string) string {
	switch k {
	case "status_class":
		return "class"
	case "duration_ms":
		return "duration"
	default:
		return k
	}
}

func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	if strings.ContainsAny(s, " \t\r\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

func levelTag(level slog.Level, color bool) string {
	switch {
	case level >= slog.LevelError:
		return paint("[ERROR]", ansiRed, color)
	case level >= slog.LevelWarn:
		return paint("[WARN]", ansiYellow, color)
	case level < slog.LevelInfo:
		return paint("[DEBUG]", ansiMagenta, color)
	default:
		return paint("[INFO]", ansiBlue, color)
	}
}

func paint(s, code string, color bool) string {
	if !color || s == "" {
		return s
	}
	return code + s + ansiReset
}

func colorizeHTTPMethod(m string, color bool) string {
	switch m {
	case http.MethodGet, http.MethodHead:
		return paint(m, ansiGreen, color)
	case http.MethodPost:
		return paint(m, ansiBlue, color)
	case http.MethodPut, http.MethodPatch:
		return paint(m, ansiYellow, color)
	case http.MethodDelete:
		return paint(m, ansiRed, color)
	default:
		return paint(m, ansiMagenta, color)
	}
}

func colorizeStatusCode(code int, color bool) string {
	return colorizeStatusClassText(strconv.Itoa(code), statusClass(code), color)
}

func colorizeStatusClass(class string, color bool) string {
	return colorizeStatusClassText(class, class, color)
}

func colorizeStatusClassText(text, class string, color bool) string {
	switch class {
	case "2xx":
		return paint(text, ansiGreen, color)
	case "3xx":
		return paint(text, ansiCyan, color)
	case "4xx":
		return paint(text, ansiYellow, color)
	case "5xx":
		return paint(text, ansiRed, color)
	default:
		return text
	}
}

func colorizeDurationMS(ms int64, color bool) string {
	text := strconv.FormatInt(ms, 10) + "ms"
	switch {
	case ms >= 1000:
		return paint(text, ansiRed, color)
	case ms >= 250:
		return paint(text, ansiYellow, color)
	default:
		return paint(text, ansiDim, color)
	}
}

// colorizeResult colors gate outcomes and generic ok/fail results.
func colorizeResult(r string, color bool) string {
	switch r {
	case "ok", "valid", "granted", "success", "passcode_succeeded":
		return paint(r, ansiGreen, color)
	case "requires_passcode", "passcode_required", "not_found":
		return paint(r, ansiYellow, color)
	case "fail", "error", "denied", "invalid", "revoked", "expired", "passcode_failed", "store_unavailable":
		return paint(r, ansiRed, color)
	default:
		return quoteIfNeeded(r)
	}
}

func valueToInt64(v slog.Value) (int64, bool) {
	switch v.Kind() {
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		u := v.Uint64()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case slog.KindFloat64:
		return int64(v.Float64()), true
	case slog.KindString:
		n, err := strconv.ParseInt(strings.TrimSpace(v.String()), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}
