package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestHandlerLevelGate(t *testing.T) {
	h := NewHandler("test")
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("handler must start at debug so startup messages pass")
	}

	h.SetLevel(slog.LevelWarn)
	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info passed after SetLevel(warn)")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Error("error gated after SetLevel(warn)")
	}
}

func TestDerivedHandlersFollowLevel(t *testing.T) {
	h := NewHandler("test")
	derived := h.WithAttrs([]slog.Attr{slog.String("component", "web")})

	h.SetLevel(slog.LevelError)
	if derived.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("derived handler did not follow the shared level")
	}
}
