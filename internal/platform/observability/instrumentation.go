package observability

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// Enabled reports whether observability has been toggled on.
func Enabled() bool {
	_, cfg := currentLogger()
	return cfg.Enabled
}

func activeLogger() *slog.Logger {
	logger, cfg := currentLogger()
	if !cfg.Enabled {
		return nil
	}
	return logger
}

// StartSpan records a lightweight span lifecycle around an operation. The
// returned function must be called exactly once with the operation result.
func StartSpan(ctx context.Context, component, operation string) (context.Context, func(error)) {
	logger := activeLogger()
	if logger == nil {
		return ctx, func(error) {}
	}

	start := time.Now()
	logger.LogAttrs(ctx, slog.LevelDebug, "obs span start",
		slog.String("component", component),
		slog.String("operation", operation),
	)

	return ctx, func(err error) {
		level := slog.LevelDebug
		if err != nil {
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("component", component),
			slog.String("operation", operation),
			slog.Duration("duration", time.Since(start)),
		}
		if err != nil {
			attrs = append(attrs, slog.Any("error", err))
		}

		logger.LogAttrs(ctx, level, "obs span end", attrs...)
	}
}

// RecordMetric emits a best-effort metric datapoint via the configured logger.
func RecordMetric(ctx context.Context, name string, value float64, labels map[string]string) {
	logger := activeLogger()
	if logger == nil {
		return
	}

	attrs := []slog.Attr{
		slog.String("metric", name),
		slog.Float64("value", value),
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, slog.String(k, labels[k]))
	}

	logger.LogAttrs(ctx, slog.LevelDebug, "obs metric", attrs...)
}

// RecordDuration records elapsed milliseconds since start.
func RecordDuration(ctx context.Context, name string, start time.Time, labels map[string]string) {
	RecordMetric(ctx, name, float64(time.Since(start).Milliseconds()), labels)
}
