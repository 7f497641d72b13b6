package logging

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mrsingh-rishi/voice-bot/config"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"
)

const scopeName = "github.com/mrsingh-rishi/voice-bot"

// New builds the process logger. The "otel" format hands records to provider
// instead of writing them locally; provider is ignored by the other formats.
func New(cfg config.LoggingConfig, provider log.LoggerProvider) *slog.Logger {
	return newLogger(cfg, os.Stdout, provider)
}

func newLogger(cfg config.LoggingConfig, w io.Writer, provider log.LoggerProvider) *slog.Logger {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts))
	case "otel":
		h := otelslog.NewHandler(scopeName, otelslog.WithLoggerProvider(provider))
		return slog.New(&levelHandler{level: level, Handler: h})
	default:
		return slog.New(slog.NewTextHandler(w, opts))
	}
}

// levelHandler drops records below level before they reach the wrapped handler.
type levelHandler struct {
	level slog.Level
	slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return l >= h.level && h.Handler.Enabled(ctx, l)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, Handler: h.Handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, Handler: h.Handler.WithGroup(name)}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard is a logger for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
