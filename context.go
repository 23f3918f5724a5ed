package luastack

import (
	"context"
	"log/slog"
)

type ContextKey string

const (
	LoggerContextKey  ContextKey = "logger"
	RuntimeContextKey ContextKey = "runtime"
)

func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

func WithRuntime(ctx context.Context, rt *Runtime) context.Context {
	return context.WithValue(ctx, RuntimeContextKey, rt)
}

func GetLoggerFromContext(ctx context.Context) (*slog.Logger, bool) {
	logger, ok := ctx.Value(LoggerContextKey).(*slog.Logger)
	return logger, ok
}

func GetRuntimeFromContext(ctx context.Context) (*Runtime, bool) {
	rt, ok := ctx.Value(RuntimeContextKey).(*Runtime)
	return rt, ok
}
