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
	reconcileAttempts metric.Int64Counter
	generations       metric.Int64Counter
	quotaDenied       metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return provider.Shutdown(ctx)
			},
		})
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "wearly"
	}
	meter := provider.Meter(name)

	reconcileAttempts, err := meter.Int64Counter("wearly_reconcile_attempts_total")
	if err != nil {
		return nil, err
	}
	generations, err := meter.Int64Counter("wearly_generations_total")
	if err != nil {
		return nil, err
	}
	quotaDenied, err := meter.Int64Counter("wearly_quota_denied_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("wearly_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		reconcileAttempts: reconcileAttempts,
		generations:       generations,
		quotaDenied:       quotaDenied,
		rateLimitDenied:   rateLimitDenied,
	}, nil
}

// RecordReconcileAttempt counts reconciliation attempts per source and outcome.
func (m *Metrics) RecordReconcileAttempt(ctx context.Context, source, outcome string) {
	if m == nil {
		return
	}
	m.reconcileAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", strings.TrimSpace(source)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	))
}

// RecordGeneration counts completed generation attempts per result.
func (m *Metrics) RecordGeneration(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.generations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", strings.TrimSpace(result)),
	))
}

// RecordQuotaDenied counts quota-gate rejections per tier.
func (m *Metrics) RecordQuotaDenied(ctx context.Context, tier string) {
	if m == nil {
		return
	}
	m.quotaDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", strings.TrimSpace(tier)),
	))
}

// RecordRateLimitDenied counts burst-limiter rejections.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
	))
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
