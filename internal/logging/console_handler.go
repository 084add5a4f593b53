package logging

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const consoleTimeLayout = "2006-01-02 15:04:05"

// consoleHandler writes a header line per record with the remaining
// attributes listed underneath it:
//
//	2026-01-02 15:04:05 INFO [encoder] Session 1a2b3c4d (demo) - gif generated
//	    - frames: 12
//	    - size_bytes: 1.2 MB (1234567)
type consoleHandler struct {
	mu     *sync.Mutex
	out    io.Writer
	level  slog.Leveler
	preset []field
	prefix string
	source bool
}

type field struct {
	key   string
	value slog.Value
}

// subject is the part of a record that identifies what the line is about.
type subject struct {
	component string
	session   string
	project   string
	frame     string
}

func newConsoleHandler(w io.Writer, level slog.Leveler, source bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, out: w, level: level, source: source}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = appendFields(append([]field(nil), h.preset...), h.prefix, attrs)
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = joinKey(h.prefix, name)
	return &next
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	if !h.Enabled(context.Background(), record.Level) {
		return nil
	}
	fields := append([]field(nil), h.preset...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendFields(fields, h.prefix, []slog.Attr{attr})
		return true
	})
	subj, rest := splitSubject(lastValueWins(fields))

	var buf bytes.Buffer
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(ts.Local().Format(consoleTimeLayout))
	buf.WriteByte(' ')
	buf.WriteString(levelName(record.Level))
	if subj.component != "" {
		fmt.Fprintf(&buf, " [%s]", subj.component)
	}
	if s := subj.describe(); s != "" {
		buf.WriteByte(' ')
		buf.WriteString(s)
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(" - ")
	buf.WriteString(msg)
	if h.source && record.PC != 0 {
		if src := record.Source(); src != nil {
			fmt.Fprintf(&buf, " [%s:%d]", filepath.Base(src.File), src.Line)
		}
	}
	buf.WriteByte('\n')
	for _, f := range rest {
		fmt.Fprintf(&buf, "    - %s: %s\n", f.key, renderValue(f.key, f.value))
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (s subject) describe() string {
	var parts []string
	switch {
	case s.session != "" && s.project != "":
		parts = append(parts, "Session "+s.session+" ("+s.project+")")
	case s.session != "":
		parts = append(parts, "Session "+s.session)
	case s.project != "":
		parts = append(parts, "Project "+s.project)
	}
	if s.frame != "" {
		parts = append(parts, "frame "+s.frame)
	}
	return strings.Join(parts, " ")
}

func splitSubject(fields []field) (subject, []field) {
	var subj subject
	rest := fields[:0]
	for _, f := range fields {
		text := strings.TrimSpace(plainString(f.value))
		switch f.key {
		case FieldComponent:
			subj.component = text
		case FieldSessionID:
			subj.session = ShortSessionID(text)
		case FieldProject:
			subj.project = text
		case FieldFrameID:
			subj.frame = text
		default:
			rest = append(rest, f)
		}
	}
	return subj, rest
}

// lastValueWins collapses repeated keys onto the position where the key first
// appeared, keeping the most recent value.
func lastValueWins(fields []field) []field {
	index := make(map[string]int, len(fields))
	out := make([]field, 0, len(fields))
	for _, f := range fields {
		if f.key == "" {
			continue
		}
		if i, seen := index[f.key]; seen {
			out[i].value = f.value
			continue
		}
		index[f.key] = len(out)
		out = append(out, f)
	}
	return out
}

func appendFields(dst []field, prefix string, attrs []slog.Attr) []field {
	for _, attr := range attrs {
		if attr.Equal(slog.Attr{}) {
			continue
		}
		value := attr.Value.Resolve()
		if value.Kind() == slog.KindGroup {
			dst = appendFields(dst, joinKey(prefix, attr.Key), value.Group())
			continue
		}
		dst = append(dst, field{key: joinKey(prefix, attr.Key), value: value})
	}
	return dst
}

func joinKey(prefix, key string) string {
	switch {
	case prefix == "":
		return key
	case key == "":
		return prefix
	}
	return prefix + "." + key
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}

func plainString(v slog.Value) string {
	if v.Kind() == slog.KindAny {
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return fmt.Sprint(v.Any())
	}
	return v.String()
}

// renderValue formats a field for the console. Byte counts (keys ending in
// "bytes" or "size") get a human readable form alongside the raw number.
func renderValue(key string, v slog.Value) string {
	switch v.Kind() {
	case slog.KindInt64, slog.KindUint64:
		var n uint64
		if v.Kind() == slog.KindInt64 {
			if v.Int64() < 0 {
				return strconv.FormatInt(v.Int64(), 10)
			}
			n = uint64(v.Int64())
		} else {
			n = v.Uint64()
		}
		if isByteKey(key) && n >= 1000 {
			return fmt.Sprintf("%s (%d)", humanize.Bytes(n), n)
		}
		return strconv.FormatUint(n, 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(v.Float64(), 'f', -1, 64)
	case slog.KindDuration:
		return v.Duration().Round(time.Millisecond).String()
	case slog.KindTime:
		return v.Time().Local().Format(consoleTimeLayout)
	case slog.KindBool:
		return strconv.FormatBool(v.Bool())
	}
	s := plainString(v)
	if s == "" || strings.ContainsFunc(s, func(r rune) bool { return r < ' ' || r == '"' }) {
		return strconv.Quote(s)
	}
	return s
}

func isByteKey(key string) bool {
	key = strings.ToLower(key)
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		key = key[i+1:]
	}
	return strings.HasSuffix(key, "bytes") || key == "size" || strings.HasSuffix(key, "_size")
}
