package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorPurple = "\033[35m"
	colorCyan   = "\033[36m"
	colorWhite  = "\033[37m"
)

type LogType string

const (
	TypeCommand LogType = "CMD"
	TypeDB      LogType = "DB"
	TypeSystem  LogType = "SYS"
	TypeError   LogType = "ERR"
	TypeLedger  LogType = "LEDGER"
	TypeAPI     LogType = "API"
	TypeWorker  LogType = "WORKER"
)

var typeColors = map[LogType]string{
	TypeCommand: colorCyan,
	TypeDB:      colorBlue,
	TypeLedger:  colorGreen,
	TypeAPI:     colorCyan,
	TypeWorker:  colorPurple,
	TypeError:   colorRed,
}

type Options struct {
	AppName string
	Level   slog.Leveler
	Writer  io.Writer
	// NoColor strips ANSI escapes, for log files and tests.
	NoColor bool
}

type CustomHandler struct {
	opts   Options
	mu     *sync.Mutex
	attrs  []slog.Attr
	groups []string
}

func NewHandler(opts Options) *CustomHandler {
	if opts.AppName == "" {
		opts.AppName = "pledgebot"
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	return &CustomHandler{opts: opts, mu: &sync.Mutex{}}
}

func (h *CustomHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CustomHandler{
		opts:   h.opts,
		mu:     h.mu,
		attrs:  append(append([]slog.Attr(nil), h.attrs...), attrs...),
		groups: h.groups,
	}
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	return &CustomHandler{
		opts:   h.opts,
		mu:     h.mu,
		attrs:  h.attrs,
		groups: append(append([]string(nil), h.groups...), name),
	}
}

func (h *CustomHandler) Handle(_ context.Context, r slog.Record) error {
	if shouldSkipLog(&r) {
		return nil
	}

	timestamp := r.Time
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var levelColor, levelText string
	switch {
	case r.Level >= slog.LevelError:
		levelColor, levelText = colorRed, "ERROR"
	case r.Level >= slog.LevelWarn:
		levelColor, levelText = colorYellow, "WARN"
	case r.Level >= slog.LevelInfo:
		levelColor, levelText = colorGreen, "INFO"
	default:
		levelColor, levelText = colorPurple, "DEBUG"
	}

	fields, order := collect(&r, h.attrs)
	logType := typeOf(fields["type"])

	message := r.Message
	if r.Level >= slog.LevelError {
		location := fields["error_location"]
		if location == "" {
			location = sourceLocation(r.PC)
		}
		if location != "" {
			message = fmt.Sprintf("%s (%s)", message, location)
		}
		if details := fields["error"]; details != "" {
			message = fmt.Sprintf("%s: %s", message, details)
		}
	}
	if name, user := fields["name"], fields["user_name"]; name != "" && user != "" {
		message = fmt.Sprintf("%s [%s by %s]", message, name, user)
	} else if name != "" {
		message = fmt.Sprintf("%s [%s]", message, name)
	}
	if status := fields["status"]; status != "" {
		message = fmt.Sprintf("%s [Status: %s]", message, status)
	}
	if took := fields["took"]; took != "" {
		message = fmt.Sprintf("%s (took %s)", message, took)
	}

	var extra strings.Builder
	for _, key := range order {
		if isInternalAttr(key) {
			continue
		}
		fmt.Fprintf(&extra, " %s=%s", key, fields[key])
	}

	line := fmt.Sprintf("%s[%s] [%s] [%s%s%s] [%s%s%s] %s%s%s\n",
		colorWhite,
		h.opts.AppName,
		timestamp.Format("15:04:05"),
		levelColor, levelText, colorWhite,
		typeColors[logType], logType, colorWhite,
		message,
		extra.String(),
		colorReset,
	)
	if h.opts.NoColor {
		line = stripColors(line)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.opts.Writer, line)
	return err
}

// collect flattens handler and record attributes in order, record values winning.
func collect(r *slog.Record, base []slog.Attr) (map[string]string, []string) {
	values := make(map[string]string)
	var order []string
	add := func(a slog.Attr) bool {
		if _, seen := values[a.Key]; !seen {
			order = append(order, a.Key)
		}
		values[a.Key] = a.Value.Resolve().String()
		return true
	}
	for _, a := range base {
		add(a)
	}
	r.Attrs(add)
	return values, order
}

func typeOf(v string) LogType {
	switch v {
	case "cmd":
		return TypeCommand
	case "db":
		return TypeDB
	case "error":
		return TypeError
	case "ledger":
		return TypeLedger
	case "api":
		return TypeAPI
	case "worker":
		return TypeWorker
	default:
		return TypeSystem
	}
}

func shouldSkipLog(r *slog.Record) bool {
	// gateway and rest chatter from disgo
	skippedMessages := []string{
		"locking buckets",
		"unlocking buckets",
		"gateway event",
		"cleaning up bucket",
		"cleaned up rate limit buckets",
		"binary message received",
		"received gateway message",
		"opening gateway connection",
		"sending gateway command",
		"new request",
		"new response",
		"rate limit response headers",
		"sending heartbeat",
	}

	msg := strings.ToLower(r.Message)
	for _, skip := range skippedMessages {
		if strings.Contains(msg, skip) {
			return true
		}
	}
	return false
}

func sourceLocation(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frames := runtime.CallersFrames([]uintptr{pc})
	frame, _ := frames.Next()
	if frame.File == "" {
		return ""
	}
	return fmt.Sprintf("%s:%d", filepath.Base(frame.File), frame.Line)
}

func isInternalAttr(key string) bool {
	switch key {
	case "type", "name", "user_name", "status", "took", "error", "error_location":
		return true
	}
	return false
}

func stripColors(s string) string {
	for _, c := range []string{colorReset, colorRed, colorGreen, colorYellow, colorBlue, colorPurple, colorCyan, colorWhite} {
		s = strings.ReplaceAll(s, c, "")
	}
	return s
}
