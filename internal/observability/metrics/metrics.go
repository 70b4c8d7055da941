package metrics

import (
	"context"
	"fmt"
	"strconv"
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

// Metrics exposes reading lifecycle instruments.
type Metrics struct {
	readingsIngested   metric.Int64Counter
	readingsConfirmed  metric.Int64Counter
	extractionFailures metric.Int64Counter
	duplicatePeriod    metric.Int64Counter
	rateLimitAllowed   metric.Int64Counter
	rateLimitDenied    metric.Int64Counter
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
	meter := provider.Meter(serviceName(cfg))

	readingsIngested, err := meter.Int64Counter("meterscan_readings_ingested_total")
	if err != nil {
		return nil, err
	}
	readingsConfirmed, err := meter.Int64Counter("meterscan_readings_confirmed_total")
	if err != nil {
		return nil, err
	}
	extractionFailures, err := meter.Int64Counter("meterscan_extraction_failures_total")
	if err != nil {
		return nil, err
	}
	duplicatePeriod, err := meter.Int64Counter("meterscan_duplicate_period_total")
	if err != nil {
		return nil, err
	}
	rateLimitAllowed, err := meter.Int64Counter("meterscan_rate_limit_allowed_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("meterscan_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		readingsIngested:   readingsIngested,
		readingsConfirmed:  readingsConfirmed,
		extractionFailures: extractionFailures,
		duplicatePeriod:    duplicatePeriod,
		rateLimitAllowed:   rateLimitAllowed,
		rateLimitDenied:    rateLimitDenied,
	}, nil
}

// RecordReadingIngested increments created reading counts.
func (m *Metrics) RecordReadingIngested(ctx context.Context, meterKind string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("meter_kind", strings.TrimSpace(meterKind)))
	m.readingsIngested.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordReadingConfirmed increments confirmation counts.
func (m *Metrics) RecordReadingConfirmed(ctx context.Context, meterKind string, corrected bool) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("meter_kind", strings.TrimSpace(meterKind)),
		attribute.String("corrected", strconv.FormatBool(corrected)),
	)
	m.readingsConfirmed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordExtractionFailure increments failed extraction counts.
func (m *Metrics) RecordExtractionFailure(ctx context.Context, meterKind, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("meter_kind", strings.TrimSpace(meterKind)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.extractionFailures.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordDuplicatePeriod increments rejected duplicate submissions.
func (m *Metrics) RecordDuplicatePeriod(ctx context.Context, meterKind, stage string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("meter_kind", strings.TrimSpace(meterKind)),
		attribute.String("stage", strings.TrimSpace(stage)),
	)
	m.duplicatePeriod.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitAllowed increments rate limit allow counts.
func (m *Metrics) RecordRateLimitAllowed(ctx context.Context, endpoint string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("endpoint", strings.TrimSpace(endpoint)))
	m.rateLimitAllowed.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
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

func serviceName(cfg Config) string {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "meterscan"
	}
	return name
}

// Customer codes never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"endpoint":    {},
	"status_code": {},
	"meter_kind":  {},
	"corrected":   {},
	"stage":       {},
	"provider":    {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
