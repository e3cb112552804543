// Package telemetry sets up logging, tracing, and crash reporting for the arena binaries.
package telemetry

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/argus-labs/arena/pkg/telemetry/sentry"
)

const sentryFlushTimeout = 5 * time.Second

type Telemetry struct {
	Logger      zerolog.Logger
	Tracer      trace.Tracer
	serviceName string

	shutdown func(context.Context) error
}

// New loads the telemetry config from the environment, applies opts on top, and starts the configured exporters.
func New(opts Options) (Telemetry, error) {
	return newTelemetry(opts, nil)
}

func newTelemetry(opts Options, out io.Writer) (Telemetry, error) {
	cfg, err := loadConfig()
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to load telemetry config")
	}

	options := newDefaultOptions()
	cfg.applyToOptions(&options)
	options.apply(opts)
	if err := options.validate(); err != nil {
		return Telemetry{}, eris.Wrap(err, "invalid telemetry options")
	}

	logger := newLogger(options, out)

	if err := sentry.New(options.SentryOptions); err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to setup sentry")
	}

	tracer, shutdownFns, err := setupTracing(context.Background(), options)
	if err != nil {
		return Telemetry{}, eris.Wrap(err, "failed to setup tracing")
	}

	return Telemetry{
		Logger:      logger,
		Tracer:      tracer,
		serviceName: options.ServiceName,
		shutdown:    joinShutdown(shutdownFns),
	}, nil
}

// Shutdown flushes buffered spans and crash reports.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	sentry.Shutdown(ctx, sentryFlushTimeout)
	if t.shutdown != nil {
		return t.shutdown(ctx)
	}
	return nil
}

// GetLogger returns a component-specific logger.
func (t *Telemetry) GetLogger(component string) zerolog.Logger {
	return t.Logger.With().Str("component", t.serviceName+"."+component).Logger()
}

// GetLoggerWithTrace returns a component-specific logger enriched with the trace context of ctx.
func (t *Telemetry) GetLoggerWithTrace(ctx context.Context, component string) zerolog.Logger {
	logger := t.Logger.With().Str("component", t.serviceName+"."+component)

	if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
		logger = logger.
			Str("trace_id", spanCtx.TraceID().String()).
			Str("span_id", spanCtx.SpanID().String())
	}
	return logger.Logger()
}

// RecoverAndFlush reports a panic to sentry. It must be deferred directly. If repanic is true, the panic is rethrown
// after the report is flushed.
func (t *Telemetry) RecoverAndFlush(repanic bool) {
	r := recover()
	if r == nil {
		return
	}
	t.Logger.Error().Interface("panic", r).Msg("recovered from panic")
	sentry.ReportPanic(r, sentryFlushTimeout)
	if repanic {
		panic(r)
	}
}

// CaptureException reports an unexpected error to sentry.
func (t *Telemetry) CaptureException(ctx context.Context, err error) {
	sentry.CaptureException(ctx, err)
}
