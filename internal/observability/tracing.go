// Package observability wires trace export for the generation pipeline.
//
// Genkit already records spans for every model and embedding call on its
// own TracerProvider; this package attaches an OTLP HTTP exporter to it so
// those spans reach a collector. When tracing is disabled or the exporter
// cannot be built, the service runs without export rather than failing
// startup.
package observability

import (
	"context"
	"log/slog"
	"os"

	"github.com/firebase/genkit/go/core/tracing"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/woodpecker023/woo-ai-chatbot/internal/config"
)

// noopShutdown is returned whenever nothing was registered.
func noopShutdown(context.Context) error { return nil }

// Setup attaches an OTLP exporter to the generation trace pipeline per the
// configuration. The returned shutdown flushes pending spans; it is always
// non-nil and safe to call.
func Setup(ctx context.Context, cfg config.Observability, logger *slog.Logger) (shutdown func(context.Context) error, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if !cfg.TracingEnabled {
		return noopShutdown, nil
	}

	if cfg.ServiceName != "" {
		_ = os.Setenv("OTEL_SERVICE_NAME", cfg.ServiceName)
	}

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		logger.Warn("trace exporter unavailable, continuing without export", "error", err)
		return noopShutdown, nil
	}

	tracing.TracerProvider().RegisterSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter))

	logger.Debug("trace export enabled",
		"endpoint", cfg.OTLPEndpoint, "service", cfg.ServiceName)

	return tracing.TracerProvider().Shutdown, nil
}
