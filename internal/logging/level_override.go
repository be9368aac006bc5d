package logging

import (
	"context"
	"log/slog"
)

// minLevelHandler drops records below min before delegating. The wrapped
// handler must be configured at least as verbose as any override.
type minLevelHandler struct {
	next slog.Handler
	min  slog.Level
}

func newLevelOverrideHandler(next slog.Handler, min slog.Level) slog.Handler {
	if next == nil {
		return NoopHandler{}
	}
	if inner, ok := next.(*minLevelHandler); ok {
		next = inner.next
	}
	return &minLevelHandler{next: next, min: min}
}

func (h *minLevelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.next.Enabled(ctx, level)
}

func (h *minLevelHandler) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.min {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h *minLevelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &minLevelHandler{next: h.next.WithAttrs(attrs), min: h.min}
}

func (h *minLevelHandler) WithGroup(name string) slog.Handler {
	return &minLevelHandler{next: h.next.WithGroup(name), min: h.min}
}

// WithLevelOverride returns a logger that enforces the provided minimum level
// while keeping the attributes already attached to logger.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	return slog.New(newLevelOverrideHandler(logger.Handler(), level))
}
