package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Telemetry holds all telemetry instruments and providers.
type Telemetry struct {
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracer         trace.Tracer
	meter          metric.Meter
	registry       *promclient.Registry

	// RED Metrics (Rate, Errors, Duration)
	httpRequestsTotal    metric.Int64Counter
	httpRequestDuration  metric.Float64Histogram
	httpRequestsInFlight metric.Int64UpDownCounter

	// Business Metrics
	downloadsTotal        metric.Int64Counter
	downloadsActive       metric.Int64UpDownCounter
	downloadDuration      metric.Float64Histogram
	downloadedBytes       metric.Int64Counter
	clientOperationsTotal metric.Int64Counter
	clientErrors          metric.Int64Counter
	storeOperationsTotal  metric.Int64Counter
	storeOperationTime    metric.Float64Histogram

	// System health
	systemErrors metric.Int64Counter
	systemUptime metric.Float64Gauge
}

// Config holds telemetry configuration.
type Config struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// OTLPEndpoint enables pushing metrics over OTLP/gRPC in addition to the Prometheus endpoint.
	OTLPEndpoint string
}

// New creates a new telemetry instance. A disabled instance is fully usable: spans are
// no-ops and every Record* call is skipped.
func New(ctx context.Context, cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		return &Telemetry{
			tracer: tracenoop.NewTracerProvider().Tracer(cfg.ServiceName),
			meter:  metricnoop.NewMeterProvider().Meter(cfg.ServiceName),
		}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to build resource: %w", err)
	}

	// A private registry keeps the exporter independent of the global default registerer.
	registry := promclient.NewRegistry()

	exporter, err := prometheus.New(prometheus.WithRegisterer(registry), prometheus.WithoutUnits())
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	opts := []sdkmetric.Option{
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	}

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp metric exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(otlpExporter)))
	}

	meterProvider := sdkmetric.NewMeterProvider(opts...)
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))

	otel.SetMeterProvider(meterProvider)
	otel.SetTracerProvider(tracerProvider)

	t := &Telemetry{
		meterProvider:  meterProvider,
		tracerProvider: tracerProvider,
		tracer:         tracerProvider.Tracer(cfg.ServiceName),
		meter:          meterProvider.Meter(cfg.ServiceName),
		registry:       registry,
	}

	if err := t.initializeMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	if err := runtime.Start(runtime.WithMeterProvider(meterProvider)); err != nil {
		return nil, fmt.Errorf("failed to start runtime metrics: %w", err)
	}

	go t.collectSystemMetrics(ctx)

	return t, nil
}

// Tracer returns the OpenTelemetry tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the OpenTelemetry meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// RecordHTTPRequest records HTTP request metrics.
func (t *Telemetry) RecordHTTPRequest(ctx context.Context, method, route, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("method", method),
		attribute.String("route", route),
		attribute.String("status", status),
	)

	if t.httpRequestsTotal != nil {
		t.httpRequestsTotal.Add(ctx, 1, attrs)
	}

	if t.httpRequestDuration != nil {
		t.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// IncrementHTTPInFlight increments in-flight HTTP requests.
func (t *Telemetry) IncrementHTTPInFlight(ctx context.Context) {
	if t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, 1)
	}
}

// DecrementHTTPInFlight decrements in-flight HTTP requests.
func (t *Telemetry) DecrementHTTPInFlight(ctx context.Context) {
	if t.httpRequestsInFlight != nil {
		t.httpRequestsInFlight.Add(ctx, -1)
	}
}

// RecordDownload records a finished artifact download.
func (t *Telemetry) RecordDownload(ctx context.Context, status string, duration time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))

	if t.downloadsTotal != nil {
		t.downloadsTotal.Add(ctx, 1, attrs)
	}

	if t.downloadDuration != nil {
		t.downloadDuration.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordDownloadedBytes adds the size of a completed artifact.
func (t *Telemetry) RecordDownloadedBytes(ctx context.Context, n int64) {
	if t.downloadedBytes != nil && n > 0 {
		t.downloadedBytes.Add(ctx, n)
	}
}

// IncrementActiveDownloads increments active downloads counter.
func (t *Telemetry) IncrementActiveDownloads(ctx context.Context) {
	if t.downloadsActive != nil {
		t.downloadsActive.Add(ctx, 1)
	}
}

// DecrementActiveDownloads decrements active downloads counter.
func (t *Telemetry) DecrementActiveDownloads(ctx context.Context) {
	if t.downloadsActive != nil {
		t.downloadsActive.Add(ctx, -1)
	}
}

// RecordClientOperation records hub client operation metrics.
func (t *Telemetry) RecordClientOperation(ctx context.Context, client, operation, status string) {
	if t.clientOperationsTotal != nil {
		t.clientOperationsTotal.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("client", client),
				attribute.String("operation", operation),
				attribute.String("status", status),
			),
		)
	}

	if status == "error" && t.clientErrors != nil {
		t.clientErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("client", client),
				attribute.String("operation", operation),
			),
		)
	}
}

// RecordStoreOperation records queue store operation metrics.
func (t *Telemetry) RecordStoreOperation(ctx context.Context, backend, operation, status string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("backend", backend),
		attribute.String("operation", operation),
		attribute.String("status", status),
	)

	if t.storeOperationsTotal != nil {
		t.storeOperationsTotal.Add(ctx, 1, attrs)
	}

	if t.storeOperationTime != nil {
		t.storeOperationTime.Record(ctx, duration.Seconds(), attrs)
	}
}

// RecordSystemError records system error metrics.
func (t *Telemetry) RecordSystemError(ctx context.Context, component, errorType string) {
	if t != nil && t.systemErrors != nil {
		t.systemErrors.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("component", component),
				attribute.String("error_type", errorType),
			),
		)
	}
}

// ObserveQueue registers a gauge reporting the number of queue items per status.
// count is called on every collection and must not block.
func (t *Telemetry) ObserveQueue(count func() map[string]int64) error {
	if t.meterProvider == nil {
		return nil
	}

	_, err := t.meter.Int64ObservableGauge(
		"queue_items",
		metric.WithDescription("Number of download queue items by status"),
		metric.WithUnit("1"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			for status, n := range count() {
				o.Observe(n, metric.WithAttributes(attribute.String("status", status)))
			}

			return nil
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create queue_items gauge: %w", err)
	}

	return nil
}

// Handler returns the HTTP handler for metrics endpoint.
func (t *Telemetry) Handler() http.Handler {
	if t.registry == nil {
		return http.NotFoundHandler()
	}

	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown gracefully shuts down the telemetry system.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}

	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

// initializeMetrics creates all metric instruments.
func (t *Telemetry) initializeMetrics() error {
	if err := t.initializeREDMetrics(); err != nil {
		return err
	}

	if err := t.initializeBusinessMetrics(); err != nil {
		return err
	}

	return t.initializeSystemMetrics()
}

func (t *Telemetry) initializeREDMetrics() error {
	var err error

	t.httpRequestsTotal, err = t.meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	t.httpRequestDuration, err = t.meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_request_duration histogram: %w", err)
	}

	t.httpRequestsInFlight, err = t.meter.Int64UpDownCounter(
		"http_requests_in_flight",
		metric.WithDescription("Number of HTTP requests currently being processed"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create http_requests_in_flight counter: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeBusinessMetrics() error {
	var err error

	t.downloadsTotal, err = t.meter.Int64Counter(
		"downloads_total",
		metric.WithDescription("Total number of finished artifact downloads"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloads_total counter: %w", err)
	}

	t.downloadsActive, err = t.meter.Int64UpDownCounter(
		"downloads_active",
		metric.WithDescription("Number of artifact downloads in flight"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloads_active counter: %w", err)
	}

	t.downloadDuration, err = t.meter.Float64Histogram(
		"download_duration_seconds",
		metric.WithDescription("Artifact download duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create download_duration histogram: %w", err)
	}

	t.downloadedBytes, err = t.meter.Int64Counter(
		"downloaded_bytes_total",
		metric.WithDescription("Total bytes of completed artifacts"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return fmt.Errorf("failed to create downloaded_bytes_total counter: %w", err)
	}

	t.clientOperationsTotal, err = t.meter.Int64Counter(
		"client_operations_total",
		metric.WithDescription("Total number of hub client operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create client_operations_total counter: %w", err)
	}

	t.clientErrors, err = t.meter.Int64Counter(
		"client_errors_total",
		metric.WithDescription("Total number of hub client errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create client_errors counter: %w", err)
	}

	t.storeOperationsTotal, err = t.meter.Int64Counter(
		"store_operations_total",
		metric.WithDescription("Total number of queue store operations"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create store_operations_total counter: %w", err)
	}

	t.storeOperationTime, err = t.meter.Float64Histogram(
		"store_operation_duration_seconds",
		metric.WithDescription("Queue store operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create store_operation_duration histogram: %w", err)
	}

	return nil
}

func (t *Telemetry) initializeSystemMetrics() error {
	var err error

	t.systemErrors, err = t.meter.Int64Counter(
		"system_errors_total",
		metric.WithDescription("Total number of system errors"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_errors counter: %w", err)
	}

	t.systemUptime, err = t.meter.Float64Gauge(
		"system_uptime_seconds",
		metric.WithDescription("System uptime in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create system_uptime gauge: %w", err)
	}

	return nil
}

// collectSystemMetrics refreshes the uptime gauge until ctx is done. Go runtime metrics
// come from the runtime instrumentation started in New.
func (t *Telemetry) collectSystemMetrics(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	startTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if t.systemUptime != nil {
				t.systemUptime.Record(ctx, time.Since(startTime).Seconds())
			}
		}
	}
}
