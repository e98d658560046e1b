// Package telemetry configures OpenTelemetry tracing for the normalizer:
// a trace-mode switch shared by the HTTP and dependency layers, and an
// OTLP/HTTP span exporter for shipping spans to a collector.
package telemetry

import (
	"context"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const defaultServiceName = "scm-normalizer"

// Mode selects how much tracing the service emits.
type Mode string

const (
	// ModeOff emits no spans.
	ModeOff Mode = "off"
	// ModeErrors samples a small fraction so error traces stay available.
	ModeErrors Mode = "errors"
	// ModeSampled applies the configured ratio to ingest spans.
	ModeSampled Mode = "sampled"
	// ModeDetailed records everything, including outbound dependency calls.
	ModeDetailed Mode = "detailed"
)

// ParseMode normalizes a raw mode string. Unknown values map to sampled
// rather than failing: tracing config must never take the service down.
func ParseMode(raw string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeOff:
		return ModeOff
	case ModeErrors:
		return ModeErrors
	case ModeDetailed:
		return ModeDetailed
	default:
		return ModeSampled
	}
}

// TracesHTTP reports whether inbound HTTP handlers should open spans.
func (m Mode) TracesHTTP() bool { return m != ModeOff }

// TracesDependencies reports whether outbound calls get their own spans.
func (m Mode) TracesDependencies() bool { return m == ModeDetailed }

func (m Mode) sampler(ratio float64) sdktrace.Sampler {
	clamped := clampRatio(ratio)
	switch m {
	case ModeOff:
		return sdktrace.NeverSample()
	case ModeDetailed:
		return sdktrace.AlwaysSample()
	case ModeErrors:
		if clamped <= 0 {
			clamped = 0.01
		}
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clamped))
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(clamped))
	}
}

var globalMode atomic.Value

// CurrentMode reports the trace mode Setup installed.
func CurrentMode() Mode {
	value := globalMode.Load()
	mode, ok := value.(Mode)
	if !ok || mode == "" {
		return ModeOff
	}
	return mode
}

// Config configures tracing setup.
type Config struct {
	Enabled          bool
	ServiceName      string
	TraceMode        string
	TraceSampleRatio float64
	// ExporterEndpoint is the OTLP/HTTP traces URL. Blank keeps spans
	// in-process, which is how tests and local runs operate.
	ExporterEndpoint string
}

// Runtime holds the installed tracer provider and its shutdown hook.
type Runtime struct {
	TracerProvider *sdktrace.TracerProvider
	Shutdown       func(ctx context.Context) error
}

// Setup installs the global tracer provider and records the effective
// trace mode for the HTTP and dependency layers to consult.
func Setup(cfg Config) (Runtime, error) {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	mode := ParseMode(cfg.TraceMode)
	if !cfg.Enabled {
		mode = ModeOff
	}
	globalMode.Store(mode)

	resourceConfig, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return Runtime{}, err
	}

	options := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(mode.sampler(cfg.TraceSampleRatio)),
		sdktrace.WithResource(resourceConfig),
	}
	if endpoint := strings.TrimSpace(cfg.ExporterEndpoint); endpoint != "" && mode != ModeOff {
		options = append(options, sdktrace.WithBatcher(&otlpHTTPExporter{
			endpoint: endpoint,
			client:   &http.Client{Timeout: 10 * time.Second},
		}))
	}

	provider := sdktrace.NewTracerProvider(options...)
	otel.SetTracerProvider(provider)

	return Runtime{
		TracerProvider: provider,
		Shutdown:       provider.Shutdown,
	}, nil
}

func clampRatio(ratio float64) float64 {
	if ratio < 0 {
		return 0
	}
	if ratio > 1 {
		return 1
	}
	return ratio
}
