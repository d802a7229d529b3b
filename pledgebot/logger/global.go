package logger

import (
	"io"
	"log/slog"
	"os"
)

// New builds the process logger. format "json" selects slog's JSON handler, anything else the colored one.
func New(appName, format string, level slog.Level, addSource bool, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level, AddSource: addSource})).
			With(slog.String("app", appName))
	}
	return slog.New(NewHandler(Options{AppName: appName, Level: level, Writer: w}))
}

// LogSystem logs a lifecycle message tagged as a system event.
func LogSystem(msg string, attrs ...any) {
	baseAttrs := []any{slog.String("type", "sys")}
	slog.Info(msg, append(baseAttrs, attrs...)...)
}

// LogError logs a failure outside any command, tagged as an error event.
func LogError(msg string, err error, attrs ...any) {
	baseAttrs := []any{
		slog.String("type", "error"),
		slog.Any("error", err),
	}
	slog.Error(msg, append(baseAttrs, attrs...)...)
}
