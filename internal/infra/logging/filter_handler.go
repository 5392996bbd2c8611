package logging

import (
	"context"
	"log/slog"
	"strings"
)

const loggerNameKey = "logger"

// levelFor resolves the minimum level for a dotted logger name.
// The longest matching prefix in pkgLevels wins.
func levelFor(name string, level Level, pkgLevels map[string]Level) Level {
	if len(pkgLevels) == 0 {
		return level
	}

	parts := strings.Split(name, ".")

	for i := len(parts); i > 0; i-- {
		if l, ok := pkgLevels[strings.Join(parts[:i], ".")]; ok {
			return l
		}
	}

	return level
}

// loggerName returns the logger name among attrs, or current if there is none.
func loggerName(current string, attrs []slog.Attr) string {
	for _, attr := range attrs {
		if attr.Key == loggerNameKey {
			return attr.Value.String()
		}
	}

	return current
}

// FilterHandler applies per-logger minimum levels to a wrapped handler.
type FilterHandler struct {
	Handler   slog.Handler
	Level     Level
	PkgLevels map[string]Level

	name string
}

var _ slog.Handler = (*FilterHandler)(nil)

// Enabled implements slog.Handler.Enabled.
func (h *FilterHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= levelFor(h.name, h.Level, h.PkgLevels) && h.Handler.Enabled(ctx, level)
}

// Handle implements slog.Handler.Handle.
func (h *FilterHandler) Handle(ctx context.Context, r slog.Record) error {
	//nolint:wrapcheck
	return h.Handler.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.WithAttrs.
func (h *FilterHandler) WithAttrs(attrs []slog.Attr) Handler {
	return &FilterHandler{
		Handler:   h.Handler.WithAttrs(attrs),
		Level:     h.Level,
		PkgLevels: h.PkgLevels,
		name:      loggerName(h.name, attrs),
	}
}

// WithGroup implements slog.Handler.WithGroup.
func (h *FilterHandler) WithGroup(name string) Handler {
	return &FilterHandler{
		Handler:   h.Handler.WithGroup(name),
		Level:     h.Level,
		PkgLevels: h.PkgLevels,
		name:      h.name,
	}
}
