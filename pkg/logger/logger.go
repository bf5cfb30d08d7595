package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// New returns the process logger: JSON on stdout, tagged with the service name.
// Local and dev environments log at debug level.
func New(appEnv string) *slog.Logger {
	return newLogger(os.Stdout, appEnv)
}

func newLogger(w io.Writer, appEnv string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFor(appEnv)}
	return slog.New(slog.NewJSONHandler(w, opts)).With("service", "shelter-platform")
}

func levelFor(appEnv string) slog.Level {
	switch appEnv {
	case "local", "dev":
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Discard drops everything. Tests use it to keep output quiet.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ctxKey struct{}

func With(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From returns the context logger, or slog.Default().
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// WithTenant returns a context whose logger carries tenant_id.
func WithTenant(ctx context.Context, tenantID string) context.Context {
	return With(ctx, From(ctx).With("tenant_id", tenantID))
}
