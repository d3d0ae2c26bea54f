package logging

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Mirror receives warning-and-above log records for durable storage.
// Implementations must never fail the caller; a mirror write error is
// swallowed after best-effort reporting.
type Mirror interface {
	Write(ctx context.Context, ts time.Time, level, message, data string) error
}

// MirrorHandler wraps a slog.Handler and forwards warn/error records
// to a durable mirror. Forwarding failures are non-fatal.
type MirrorHandler struct {
	inner  slog.Handler
	mirror Mirror
}

// NewMirrorHandler creates a handler that mirrors warn+ records.
func NewMirrorHandler(inner slog.Handler, mirror Mirror) *MirrorHandler {
	return &MirrorHandler{inner: inner, mirror: mirror}
}

func (h *MirrorHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *MirrorHandler) Handle(ctx context.Context, rec slog.Record) error {
	if rec.Level >= slog.LevelWarn {
		data := ""
		rec.Attrs(func(a slog.Attr) bool {
			if data != "" {
				data += " "
			}
			data += fmt.Sprintf("%s=%v", a.Key, a.Value.Any())
			return true
		})
		// Mirror errors must not break logging.
		_ = h.mirror.Write(ctx, rec.Time, rec.Level.String(), rec.Message, data)
	}
	return h.inner.Handle(ctx, rec)
}

func (h *MirrorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &MirrorHandler{inner: h.inner.WithAttrs(attrs), mirror: h.mirror}
}

func (h *MirrorHandler) WithGroup(name string) slog.Handler {
	return &MirrorHandler{inner: h.inner.WithGroup(name), mirror: h.mirror}
}
