package logger

import (
	"context"
	"log/slog"
)

type contextKey string

const (
	loggerKey contextKey = "walletmesh.logger"
	walletKey contextKey = "walletmesh.wallet"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from ctx, falling back to fallback
// and then to slog.Default.
func FromContext(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
		return l
	}
	if fallback != nil {
		return fallback
	}
	return slog.Default()
}

// WithWallet records the wallet an operation targets.
func WithWallet(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, walletKey, name)
}

// WalletFromContext returns the wallet name recorded by WithWallet.
func WalletFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(walletKey).(string); ok {
		return name
	}
	return ""
}

// L is FromContext enriched with the wallet attribute when present.
func L(ctx context.Context, fallback *slog.Logger) *slog.Logger {
	l := FromContext(ctx, fallback)
	if name := WalletFromContext(ctx); name != "" {
		l = l.With("wallet", name)
	}
	return l
}
