package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics records nothing. Used when metrics are disabled and in tests.
type NoopMetrics struct{}

func (n *NoopMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, respSize int64) {
}

func (n *NoopMetrics) RecordRequest(ctx context.Context, outcome string, duration time.Duration, errKind string) {
}

func (n *NoopMetrics) RecordNodeRun(ctx context.Context, node string, duration time.Duration, err error) {
}

func (n *NoopMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
}

func (n *NoopMetrics) RecordLLMCall(ctx context.Context, role, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
}

func (n *NoopMetrics) RecordSuspend(ctx context.Context, reason string) {}

func (n *NoopMetrics) RecordLockBusy(ctx context.Context) {}

func (n *NoopMetrics) RecordWebhookDuplicate(ctx context.Context, kind string) {}

// NoopTracer returns a tracer that records nothing.
func NoopTracer(name string) trace.Tracer {
	return noop.NewTracerProvider().Tracer(name)
}

var _ Metrics = (*NoopMetrics)(nil)
var _ Metrics = (*PrometheusMetrics)(nil)
