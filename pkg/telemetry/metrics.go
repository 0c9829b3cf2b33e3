package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Config controls metric export. An empty CollectorAddr disables export;
// instruments still work but record into the global no-op provider.
type Config struct {
	ServiceName    string
	Environment    string
	CollectorAddr  string
	MetricInterval time.Duration
}

var (
	mu       sync.RWMutex
	meter    metric.Meter
	provider *sdkmetric.MeterProvider
)

// Init wires an OTLP gRPC exporter behind a periodic reader.
// It is the caller's responsibility to call Shutdown.
func Init(ctx context.Context, cfg Config) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "voice-agent-platform"
	}
	if cfg.CollectorAddr == "" {
		return nil
	}
	if cfg.MetricInterval <= 0 {
		cfg.MetricInterval = 15 * time.Second
	}

	exp, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.CollectorAddr),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		return fmt.Errorf("telemetry: metric exporter: %w", err)
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("deployment.environment.name", cfg.Environment),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exp, sdkmetric.WithInterval(cfg.MetricInterval))),
	)
	otel.SetMeterProvider(mp)

	mu.Lock()
	provider = mp
	meter = mp.Meter(cfg.ServiceName)
	mu.Unlock()
	return nil
}

// UseMeterProvider installs mp as the source for instruments created afterwards.
// Tests use it with a ManualReader.
func UseMeterProvider(mp metric.MeterProvider) {
	mu.Lock()
	defer mu.Unlock()
	meter = mp.Meter("voice-agent-platform")
}

// Shutdown flushes and stops the exporter installed by Init.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	mp := provider
	provider = nil
	mu.Unlock()
	if mp == nil {
		return nil
	}
	return mp.Shutdown(ctx)
}

// GetMeter returns the configured meter, or the global one when Init was not called.
func GetMeter() metric.Meter {
	mu.RLock()
	defer mu.RUnlock()
	if meter == nil {
		return otel.Meter("voice-agent-platform")
	}
	return meter
}

// MetricOpts holds options for creating metrics
type MetricOpts struct {
	Name        string
	Description string
	Unit        string
}

// Counter wraps an OTel counter. A nil *Counter is valid and records nothing.
type Counter struct {
	counter metric.Int64Counter
}

// NewCounter creates a new counter metric
func NewCounter(opts MetricOpts) (*Counter, error) {
	c, err := GetMeter().Int64Counter(
		opts.Name,
		metric.WithDescription(opts.Description),
		metric.WithUnit(opts.Unit),
	)
	if err != nil {
		return nil, err
	}
	return &Counter{counter: c}, nil
}

// MustCounter is NewCounter for package-level wiring; an invalid
// instrument definition yields a nil counter instead of failing startup.
func MustCounter(opts MetricOpts) *Counter {
	c, err := NewCounter(opts)
	if err != nil {
		otel.Handle(err)
		return nil
	}
	return c
}

// Add increments the counter by the given value
func (c *Counter) Add(ctx context.Context, value int64, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.counter.Add(ctx, value, metric.WithAttributes(attrs...))
}

// Inc increments the counter by 1
func (c *Counter) Inc(ctx context.Context, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, attrs...)
}
