// Package metrics exposes detection-level OTel instruments.
package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	detectionRuns       metric.Int64Counter
	merchantsAnalyzed   metric.Int64Counter
	subscriptionsUpsert metric.Int64Counter
	reconcileErrors     metric.Int64Counter
	dedupMerges         metric.Int64Counter
	runDuration         metric.Float64Histogram
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment", cfg.Environment),
	)
	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "recurra"
	}
	meter := provider.Meter(name)

	detectionRuns, err := meter.Int64Counter("recurra_detection_runs_total")
	if err != nil {
		return nil, err
	}
	merchantsAnalyzed, err := meter.Int64Counter("recurra_merchants_analyzed_total")
	if err != nil {
		return nil, err
	}
	subscriptionsUpsert, err := meter.Int64Counter("recurra_subscriptions_upserted_total")
	if err != nil {
		return nil, err
	}
	reconcileErrors, err := meter.Int64Counter("recurra_reconcile_errors_total")
	if err != nil {
		return nil, err
	}
	dedupMerges, err := meter.Int64Counter("recurra_dedup_merges_total")
	if err != nil {
		return nil, err
	}
	runDuration, err := meter.Float64Histogram("recurra_detection_run_seconds")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		detectionRuns:       detectionRuns,
		merchantsAnalyzed:   merchantsAnalyzed,
		subscriptionsUpsert: subscriptionsUpsert,
		reconcileErrors:     reconcileErrors,
		dedupMerges:         dedupMerges,
		runDuration:         runDuration,
	}, nil
}

// RecordDetectionRun increments run counts per outcome.
func (m *Metrics) RecordDetectionRun(ctx context.Context, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", strings.TrimSpace(outcome)))
	m.detectionRuns.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordMerchantsAnalyzed counts merchant groups that reached the analyzer.
func (m *Metrics) RecordMerchantsAnalyzed(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.merchantsAnalyzed.Add(ctx, int64(n))
}

// RecordSubscriptionUpsert counts reconciler writes by action (created/updated).
func (m *Metrics) RecordSubscriptionUpsert(ctx context.Context, action string) {
	if m == nil {
		return
	}
	m.subscriptionsUpsert.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", strings.TrimSpace(action)),
	))
}

// RecordReconcileError counts per-merchant reconcile failures.
func (m *Metrics) RecordReconcileError(ctx context.Context) {
	if m == nil {
		return
	}
	m.reconcileErrors.Add(ctx, 1)
}

// RecordDedupMerges counts subscriptions removed by the dedup pass.
func (m *Metrics) RecordDedupMerges(ctx context.Context, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.dedupMerges.Add(ctx, int64(n))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}
