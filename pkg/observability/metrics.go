package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsHandler serves the Prometheus exposition endpoint. The OTel
// prometheus exporter registers with the default registry, so the stock
// promhttp handler picks up every instrument created by InitMetrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// InitMetrics wires the OTel meter to the Prometheus exporter and creates
// the causa instrument set. When disabled, the returned recorder is inert.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (*PrometheusMetrics, error) {
	if !cfg.Enabled {
		return &PrometheusMetrics{}, nil
	}

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(promExporter),
	)

	meter := meterProvider.Meter("causa")

	httpDuration, err := meter.Float64Histogram(
		"causa_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http duration histogram: %w", err)
	}

	httpRequests, err := meter.Int64Counter(
		"causa_http_requests_total",
		metric.WithDescription("Total HTTP requests by method, route and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http requests counter: %w", err)
	}

	httpResponseSize, err := meter.Int64Histogram(
		"causa_http_response_size_bytes",
		metric.WithDescription("HTTP response size in bytes"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http response size histogram: %w", err)
	}

	requestDuration, err := meter.Float64Histogram(
		"causa_request_duration_seconds",
		metric.WithDescription("Agent request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request duration histogram: %w", err)
	}

	requestsTotal, err := meter.Int64Counter(
		"causa_requests_total",
		metric.WithDescription("Total agent requests by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create requests counter: %w", err)
	}

	requestErrors, err := meter.Int64Counter(
		"causa_request_errors_total",
		metric.WithDescription("Total agent request errors by kind"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create request errors counter: %w", err)
	}

	nodeDuration, err := meter.Float64Histogram(
		"causa_node_duration_seconds",
		metric.WithDescription("Orchestrator node run duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create node duration histogram: %w", err)
	}

	nodeRuns, err := meter.Int64Counter(
		"causa_node_executions_total",
		metric.WithDescription("Total orchestrator node runs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create node runs counter: %w", err)
	}

	toolDuration, err := meter.Float64Histogram(
		"causa_tool_duration_seconds",
		metric.WithDescription("Tool execution duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool duration histogram: %w", err)
	}

	toolCalls, err := meter.Int64Counter(
		"causa_tool_calls_total",
		metric.WithDescription("Total tool calls"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool calls counter: %w", err)
	}

	toolErrors, err := meter.Int64Counter(
		"causa_tool_errors_total",
		metric.WithDescription("Total tool errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create tool errors counter: %w", err)
	}

	llmDuration, err := meter.Float64Histogram(
		"causa_llm_request_duration_seconds",
		metric.WithDescription("LLM request duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm duration histogram: %w", err)
	}

	llmRequests, err := meter.Int64Counter(
		"causa_llm_requests_total",
		metric.WithDescription("Total LLM requests by role and model"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm requests counter: %w", err)
	}

	llmInputTokens, err := meter.Int64Counter(
		"causa_llm_tokens_input_total",
		metric.WithDescription("Total input tokens sent to LLMs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm input tokens counter: %w", err)
	}

	llmOutputTokens, err := meter.Int64Counter(
		"causa_llm_tokens_output_total",
		metric.WithDescription("Total output tokens from LLMs"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm output tokens counter: %w", err)
	}

	llmErrors, err := meter.Int64Counter(
		"causa_llm_errors_total",
		metric.WithDescription("Total LLM errors"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create llm errors counter: %w", err)
	}

	suspends, err := meter.Int64Counter(
		"causa_requests_suspended_total",
		metric.WithDescription("Total cooperative suspensions by reason"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create suspends counter: %w", err)
	}

	lockBusy, err := meter.Int64Counter(
		"causa_lock_busy_total",
		metric.WithDescription("Total agent requests rejected because the case was locked"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock busy counter: %w", err)
	}

	webhookDuplicates, err := meter.Int64Counter(
		"causa_webhook_duplicates_total",
		metric.WithDescription("Total webhook events dropped as replays"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook duplicates counter: %w", err)
	}

	return &PrometheusMetrics{
		httpDuration:     httpDuration,
		httpRequests:     httpRequests,
		httpResponseSize: httpResponseSize,

		requestDuration:  requestDuration,
		requestsTotal:    requestsTotal,
		requestErrors:    requestErrors,
		nodeDuration:     nodeDuration,
		nodeRunsTotal:    nodeRuns,
		toolDuration:     toolDuration,
		toolCallsTotal:   toolCalls,
		toolErrorsTotal:  toolErrors,
		llmDuration:      llmDuration,
		llmRequestsTotal: llmRequests,
		llmInputTokens:   llmInputTokens,
		llmOutputTokens:  llmOutputTokens,
		llmErrorsTotal:   llmErrors,
		suspendsTotal:    suspends,
		lockBusyTotal:    lockBusy,

		webhookDuplicatesTotal: webhookDuplicates,
	}, nil
}
