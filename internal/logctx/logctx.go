// Package logctx carries a zerolog logger through context.Context so that
// pipeline stages and HTTP handlers log with the fields of their caller
// (run_id, source, request_id) without threading a logger argument.
package logctx

import (
	"context"

	"github.com/eunmann/shopsight/pkg/logging"
	"github.com/rs/zerolog"
)

type loggerKey struct{}

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger attached to ctx, or the global logger.
func FromContext(ctx context.Context) zerolog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
			return l
		}
	}
	return *logging.L()
}

// WithStr adds a string field to the context logger.
func WithStr(ctx context.Context, key, value string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Str(key, value).Logger())
}

// WithInt adds an int field to the context logger.
func WithInt(ctx context.Context, key string, value int) context.Context {
	return WithLogger(ctx, FromContext(ctx).With().Int(key, value).Logger())
}

// WithRun tags every line logged under ctx with the ingestion run id.
func WithRun(ctx context.Context, runID string) context.Context {
	return WithStr(ctx, "run_id", runID)
}

// WithSource tags lines with the transaction or catalog source being read.
func WithSource(ctx context.Context, source string) context.Context {
	return WithStr(ctx, "source", source)
}
