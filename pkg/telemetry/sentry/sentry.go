// Package sentry reports panics and unexpected errors to Sentry. Every function is a no-op until New is called with a
// DSN.
package sentry

import (
	"context"
	"time"

	sentrygo "github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel/trace"
)

type Options struct {
	Dsn         string
	Environment string
	Tags        map[string]string
}

// New initializes the global Sentry client. An empty DSN leaves Sentry disabled.
func New(opt Options) error {
	if opt.Dsn == "" {
		return nil
	}

	err := sentrygo.Init(sentrygo.ClientOptions{
		Dsn:         opt.Dsn,
		Environment: opt.Environment,
		Tags:        opt.Tags,
	})
	if err != nil {
		return eris.Wrap(err, "failed to initialize sentry")
	}
	return nil
}

// ReportPanic sends a recovered panic value and waits up to timeout for delivery.
func ReportPanic(r any, timeout time.Duration) {
	if !isInitialized() {
		return
	}
	sentrygo.CurrentHub().Recover(r)
	sentrygo.Flush(timeout)
}

// CaptureException reports a handled error, tagged with the trace of ctx if there is one.
func CaptureException(ctx context.Context, err error) {
	if !isInitialized() || err == nil {
		return
	}
	sentrygo.WithScope(func(scope *sentrygo.Scope) {
		if spanCtx := trace.SpanContextFromContext(ctx); spanCtx.IsValid() {
			scope.SetTag("trace_id", spanCtx.TraceID().String())
			scope.SetTag("span_id", spanCtx.SpanID().String())
		}
		sentrygo.CaptureException(err)
	})
}

// Shutdown flushes buffered events within timeout or the deadline of ctx, whichever is sooner.
func Shutdown(ctx context.Context, timeout time.Duration) {
	if !isInitialized() {
		return
	}
	t := timeout
	if dl, ok := ctx.Deadline(); ok {
		if until := time.Until(dl); until > 0 && until < t {
			t = until
		}
	}
	sentrygo.Flush(t)
}

func isInitialized() bool {
	return sentrygo.CurrentHub().Client() != nil
}
