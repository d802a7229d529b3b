package handlers

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/disgoorg/disgo/handler"
)

const (
	commandTimeout = 10 * time.Second
	slowThreshold  = 2 * time.Second
)

// WrapWithLogging logs start, outcome and duration of a slash command.
// The handler keeps running after a timeout; only the log and the returned error change.
func WrapWithLogging(name string, h handler.CommandHandler) handler.CommandHandler {
	return func(e *handler.CommandEvent) error {
		attrs := []any{
			slog.String("type", "cmd"),
			slog.String("name", name),
			slog.String("user_id", e.User().ID.String()),
			slog.String("user_name", e.User().Username),
		}
		return run(name, "Command", attrs, func() error { return h(e) })
	}
}

func WrapComponentWithLogging(name string, h handler.ComponentHandler) handler.ComponentHandler {
	return func(e *handler.ComponentEvent) error {
		attrs := []any{
			slog.String("type", "cmd"),
			slog.String("name", name),
			slog.String("user_id", e.User().ID.String()),
			slog.String("user_name", e.User().Username),
		}
		return run(name, "Component interaction", attrs, func() error { return h(e) })
	}
}

func run(name, kind string, attrs []any, fn func() error) error {
	start := time.Now()
	slog.Debug(kind+" started", attrs...)

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		duration := time.Since(start)
		attrs = append(attrs, slog.Duration("took", duration))

		switch {
		case err != nil:
			slog.Error(kind+" failed", append(attrs,
				slog.Any("error", err),
				slog.String("status", "failed"),
			)...)
		case duration > slowThreshold:
			slog.Warn(kind+" executed slowly", append(attrs, slog.String("status", "slow"))...)
		default:
			slog.Info(kind+" completed", append(attrs, slog.String("status", "success"))...)
		}
		return err

	case <-time.After(commandTimeout):
		slog.Error(kind+" timed out", append(attrs,
			slog.String("status", "timeout"),
			slog.Duration("timeout", commandTimeout),
		)...)
		return fmt.Errorf("%s %s timed out after %s", kind, name, commandTimeout)
	}
}
