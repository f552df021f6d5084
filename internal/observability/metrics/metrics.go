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

// Metrics exposes billing lifecycle instruments.
type Metrics struct {
	transitions     metric.Int64Counter
	invoicesEmitted metric.Int64Counter
	invoicesPaid    metric.Int64Counter
	lifecycleErrors metric.Int64Counter
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
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

// New configures the billing instruments on the given provider.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "tenantbill"
	}
	meter := provider.Meter(name)

	transitions, err := meter.Int64Counter("tenantbill_subscription_transitions_total",
		metric.WithDescription("Subscription status transitions by event."))
	if err != nil {
		return nil, err
	}
	invoicesEmitted, err := meter.Int64Counter("tenantbill_invoices_emitted_total",
		metric.WithDescription("Invoices created by reason."))
	if err != nil {
		return nil, err
	}
	invoicesPaid, err := meter.Int64Counter("tenantbill_invoices_paid_total")
	if err != nil {
		return nil, err
	}
	lifecycleErrors, err := meter.Int64Counter("tenantbill_lifecycle_errors_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		transitions:     transitions,
		invoicesEmitted: invoicesEmitted,
		invoicesPaid:    invoicesPaid,
		lifecycleErrors: lifecycleErrors,
	}, nil
}

// RecordTransition counts a committed subscription state change.
func (m *Metrics) RecordTransition(ctx context.Context, event, from, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event", strings.TrimSpace(event)),
		attribute.String("from_status", strings.TrimSpace(from)),
		attribute.String("to_status", strings.TrimSpace(to)),
	)
	m.transitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordInvoiceEmitted(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("reason", strings.TrimSpace(reason)))
	m.invoicesEmitted.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordInvoicePaid(ctx context.Context) {
	if m == nil {
		return
	}
	m.invoicesPaid.Add(ctx, 1)
}

// RecordLifecycleError counts a rejected operation by its domain error code.
func (m *Metrics) RecordLifecycleError(ctx context.Context, event string, err error) {
	if m == nil || err == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("event", strings.TrimSpace(event)),
		attribute.String("error_code", err.Error()),
	)
	m.lifecycleErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{otlpmetrichttp.WithInsecure()}
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

// team_id and subscription_id are intentionally absent.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"event":       {},
	"from_status": {},
	"to_status":   {},
	"reason":      {},
	"error_code":  {},
	"status_code": {},
	"route":       {},
	"method":      {},
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
