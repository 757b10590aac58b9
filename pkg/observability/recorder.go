package observability

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	globalMetrics Metrics
	metricsMu     sync.RWMutex
)

// Metrics records domain events. A zero-value PrometheusMetrics satisfies
// it and records nothing, so callers never nil-check.
type Metrics interface {
	RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, respSize int64)
	RecordRequest(ctx context.Context, outcome string, duration time.Duration, errKind string)
	RecordNodeRun(ctx context.Context, node string, duration time.Duration, err error)
	RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error)
	RecordLLMCall(ctx context.Context, role, model string, duration time.Duration, inputTokens, outputTokens int, err error)
	RecordSuspend(ctx context.Context, reason string)
	RecordLockBusy(ctx context.Context)
	RecordWebhookDuplicate(ctx context.Context, kind string)
}

// PrometheusMetrics implements Metrics over the OTel instrument set created
// by InitMetrics.
type PrometheusMetrics struct {
	httpDuration     metric.Float64Histogram
	httpRequests     metric.Int64Counter
	httpResponseSize metric.Int64Histogram

	requestDuration metric.Float64Histogram
	requestsTotal   metric.Int64Counter
	requestErrors   metric.Int64Counter

	nodeDuration  metric.Float64Histogram
	nodeRunsTotal metric.Int64Counter

	toolDuration    metric.Float64Histogram
	toolCallsTotal  metric.Int64Counter
	toolErrorsTotal metric.Int64Counter

	llmDuration      metric.Float64Histogram
	llmRequestsTotal metric.Int64Counter
	llmInputTokens   metric.Int64Counter
	llmOutputTokens  metric.Int64Counter
	llmErrorsTotal   metric.Int64Counter

	suspendsTotal metric.Int64Counter
	lockBusyTotal metric.Int64Counter

	webhookDuplicatesTotal metric.Int64Counter
}

func (m *PrometheusMetrics) RecordHTTPRequest(ctx context.Context, method, route string, status int, duration time.Duration, respSize int64) {
	if m == nil || m.httpDuration == nil || m.httpRequests == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.Int("status", status),
	}

	m.httpDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.httpResponseSize != nil {
		m.httpResponseSize.Record(ctx, respSize, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordRequest(ctx context.Context, outcome string, duration time.Duration, errKind string) {
	if m == nil || m.requestDuration == nil || m.requestsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("outcome", outcome),
	}

	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if errKind != "" && m.requestErrors != nil {
		m.requestErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", errKind)))
	}
}

func (m *PrometheusMetrics) RecordNodeRun(ctx context.Context, node string, duration time.Duration, err error) {
	if m == nil || m.nodeDuration == nil || m.nodeRunsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("node", node),
		attribute.Bool("error", err != nil),
	}

	m.nodeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.nodeRunsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *PrometheusMetrics) RecordToolExecution(ctx context.Context, tool string, duration time.Duration, err error) {
	if m == nil || m.toolDuration == nil || m.toolCallsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("tool", tool),
	}

	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.toolCallsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))

	if err != nil && m.toolErrorsTotal != nil {
		m.toolErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordLLMCall(ctx context.Context, role, model string, duration time.Duration, inputTokens, outputTokens int, err error) {
	if m == nil || m.llmDuration == nil || m.llmInputTokens == nil || m.llmOutputTokens == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("role", role),
		attribute.String("model", model),
	}

	m.llmDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if m.llmRequestsTotal != nil {
		m.llmRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	m.llmInputTokens.Add(ctx, int64(inputTokens), metric.WithAttributes(attrs...))
	m.llmOutputTokens.Add(ctx, int64(outputTokens), metric.WithAttributes(attrs...))

	if err != nil && m.llmErrorsTotal != nil {
		m.llmErrorsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func (m *PrometheusMetrics) RecordSuspend(ctx context.Context, reason string) {
	if m == nil || m.suspendsTotal == nil {
		return
	}
	m.suspendsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *PrometheusMetrics) RecordLockBusy(ctx context.Context) {
	if m == nil || m.lockBusyTotal == nil {
		return
	}
	m.lockBusyTotal.Add(ctx, 1)
}

func (m *PrometheusMetrics) RecordWebhookDuplicate(ctx context.Context, kind string) {
	if m == nil || m.webhookDuplicatesTotal == nil {
		return
	}
	m.webhookDuplicatesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// SetGlobalMetrics installs the process-wide recorder.
func SetGlobalMetrics(m Metrics) {
	metricsMu.Lock()
	defer metricsMu.Unlock()
	globalMetrics = m
}

// GetGlobalMetrics returns the process-wide recorder, never nil-useful: a
// nil return still records nothing through the pointer methods.
func GetGlobalMetrics() Metrics {
	metricsMu.RLock()
	defer metricsMu.RUnlock()
	if globalMetrics == nil {
		return (*PrometheusMetrics)(nil)
	}
	return globalMetrics
}
