package canbus

import (
	"context"
	"log/slog"
)

// LogOption is a bitmask for selecting which operations LoggedBus logs.
type LogOption uint8

const (
	LogNone  LogOption = 0
	LogRead  LogOption = 1 << iota
	LogWrite
	LogAll = LogRead | LogWrite
)

// LoggedBus is a Bus decorator that logs Send/Receive through a slog.Logger.
// Frames are logged at the configured level, failures at error level.
// Receive errors caused by ctx cancellation are not logged.
type LoggedBus struct {
	inner  Bus
	logger *slog.Logger
	level  slog.Level
	opts   LogOption
	filter FrameFilter
}

// NewLoggedBus wraps inner and logs the selected operations at level.
func NewLoggedBus(inner Bus, logger *slog.Logger, level slog.Level, opts LogOption) *LoggedBus {
	return NewLoggedBusWithFilter(inner, logger, level, opts, nil)
}

// NewLoggedBusWithFilter is NewLoggedBus restricted to frames matching
// filter. A nil filter logs every frame.
func NewLoggedBusWithFilter(inner Bus, logger *slog.Logger, level slog.Level, opts LogOption, filter FrameFilter) *LoggedBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggedBus{inner: inner, logger: logger, level: level, opts: opts, filter: filter}
}

func (l *LoggedBus) wants(f Frame) bool { return l.filter == nil || l.filter(f) }

func (l *LoggedBus) logFrame(ctx context.Context, msg string, f Frame) {
	l.logger.Log(ctx, l.level, msg,
		"id", f.ID,
		"extended", f.Extended,
		"rtr", f.RTR,
		"len", int(f.Len),
		"frame", f.String(),
	)
}

// Send logs the frame and forwards it.
func (l *LoggedBus) Send(ctx context.Context, frame Frame) error {
	write := l.opts&LogWrite != 0 && l.wants(frame)
	if write {
		l.logFrame(ctx, "canbus send", frame)
	}
	err := l.inner.Send(ctx, frame)
	if err != nil && l.opts&LogWrite != 0 && ctx.Err() == nil {
		l.logger.Log(ctx, slog.LevelError, "canbus send error", "id", frame.ID, "error", err)
	}
	return err
}

// Receive forwards to the inner bus and logs the outcome.
func (l *LoggedBus) Receive(ctx context.Context) (Frame, error) {
	f, err := l.inner.Receive(ctx)
	if l.opts&LogRead == 0 {
		return f, err
	}
	switch {
	case err != nil && ctx.Err() == nil:
		l.logger.Log(ctx, slog.LevelError, "canbus receive error", "error", err)
	case err == nil && l.wants(f):
		l.logFrame(ctx, "canbus receive", f)
	}
	return f, err
}

// Close forwards to the inner Bus without logging.
func (l *LoggedBus) Close() error { return l.inner.Close() }
