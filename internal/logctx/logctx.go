// Package logctx carries a zerolog logger through context.Context so
// per-stream fields (file, format) follow a record stream down into the
// decoder and aggregator.
//
//	ctx = logctx.WithLogger(ctx, logging.WithPhase("summarize"))
//	ctx = logctx.WithStream(ctx, "crawl-00001.cdx.gz")
//	log := logctx.FromContext(ctx)
package logctx

import (
	"context"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

type loggerKey struct{}

var (
	defaultLogger     zerolog.Logger
	defaultLoggerOnce sync.Once
)

func initDefaultLogger() {
	defaultLoggerOnce.Do(func() {
		defaultLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	})
}

// DefaultLogger returns the logger used when a context carries none.
func DefaultLogger() zerolog.Logger {
	initDefaultLogger()
	return defaultLogger
}

// SetDefaultLogger overrides the default logger. Call it during startup
// only; it is not safe to race with FromContext.
func SetDefaultLogger(l zerolog.Logger) {
	initDefaultLogger()
	defaultLogger = l
}

// WithLogger returns a context carrying logger.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the context's logger, or DefaultLogger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx == nil {
		return DefaultLogger()
	}
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return DefaultLogger()
}

// WithStr returns a context whose logger has key=value added.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Str(key, value).Logger())
}

// WithInt returns a context whose logger has key=value added.
func WithInt(ctx context.Context, key string, value int) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Int(key, value).Logger())
}

// WithStream tags the logger with the input stream name.
func WithStream(ctx context.Context, name string) context.Context {
	return WithStr(ctx, "file", name)
}
