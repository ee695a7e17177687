package logger

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// ============================================================================
//                          子系统 Handler
// ============================================================================

// subsystemHandler 按子系统过滤的 Handler
//
// 包装底层 Handler，附带子系统名称属性，级别可动态调整。
type subsystemHandler struct {
	subsystem string
	level     *atomic.Int64
	inner     slog.Handler
}

// newHandler 创建子系统 Handler
func newHandler(subsystem string, level slog.Level, json bool) *subsystemHandler {
	lvl := new(atomic.Int64)
	lvl.Store(int64(level))

	h := &subsystemHandler{
		subsystem: subsystem,
		level:     lvl,
	}

	opts := &slog.HandlerOptions{
		// 级别由 subsystemHandler.Enabled 控制，底层放行全部
		Level: slog.LevelDebug,
	}
	if json {
		h.inner = slog.NewJSONHandler(os.Stderr, opts).WithAttrs(
			[]slog.Attr{slog.String("subsystem", subsystem)})
	} else {
		h.inner = slog.NewTextHandler(os.Stderr, opts).WithAttrs(
			[]slog.Attr{slog.String("subsystem", subsystem)})
	}
	return h
}

// SetLevel 动态调整级别
func (h *subsystemHandler) SetLevel(level slog.Level) {
	h.level.Store(int64(level))
}

func (h *subsystemHandler) Enabled(_ context.Context, level slog.Level) bool {
	return int64(level) >= h.level.Load()
}

func (h *subsystemHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.inner.Handle(ctx, r)
}

func (h *subsystemHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &subsystemHandler{
		subsystem: h.subsystem,
		level:     h.level,
		inner:     h.inner.WithAttrs(attrs),
	}
}

func (h *subsystemHandler) WithGroup(name string) slog.Handler {
	return &subsystemHandler{
		subsystem: h.subsystem,
		level:     h.level,
		inner:     h.inner.WithGroup(name),
	}
}

// ============================================================================
//                          Discard Handler
// ============================================================================

// discardHandler 丢弃所有日志
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }
