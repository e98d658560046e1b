package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func TestOTLPHTTPExporterExportSpans(t *testing.T) {
	spans := recordedIngestSpans(t)
	if len(spans) == 0 {
		t.Fatal("expected non-empty span list")
	}

	testCases := []struct {
		name        string
		endpoint    string
		client      *http.Client
		spans       []sdktrace.ReadOnlySpan
		wantErr     bool
		errContains string
	}{
		{
			name:     "no_spans_noop",
			endpoint: "http://collector.local/v1/traces",
			client: &http.Client{
				Timeout: time.Second,
				Transport: roundTripFunc(func(_ *http.Request) (*http.Response, error) {
					t.Fatal("unexpected HTTP call for empty span slice")
					return nil, nil
				}),
			},
			spans:   nil,
			wantErr: false,
		},
		{
			name:        "invalid_endpoint",
			endpoint:    "://invalid-endpoint",
			client:      &http.Client{Timeout: time.Second},
			spans:       spans,
			wantErr:     true,
			errContains: "build otlp request",
		},
		{
			name:     "transport_error",
			endpoint: "http://collector.local/v1/traces",
			client: &http.Client{
				Timeout: time.Second,
				Transport: roundTripFunc(func(_ *http.Request) (*http.Response, error) {
					return nil, errors.New("network down")
				}),
			},
			spans:       spans,
			wantErr:     true,
			errContains: "send otlp request",
		},
		{
			name:     "non_2xx_status_carries_body",
			endpoint: "http://collector.local/v1/traces",
			client: &http.Client{
				Timeout: time.Second,
				Transport: roundTripFunc(func(_ *http.Request) (*http.Response, error) {
					return &http.Response{
						StatusCode: http.StatusBadGateway,
						Body:       io.NopCloser(strings.NewReader("collector overloaded")),
						Header:     make(http.Header),
					}, nil
				}),
			},
			spans:       spans,
			wantErr:     true,
			errContains: "otlp export failed status=502 body=collector overloaded",
		},
		{
			name:     "non_2xx_status_with_unreadable_body",
			endpoint: "http://collector.local/v1/traces",
			client: &http.Client{
				Timeout: time.Second,
				Transport: roundTripFunc(func(_ *http.Request) (*http.Response, error) {
					return &http.Response{
						StatusCode: http.StatusBadRequest,
						Body:       &failingReadCloser{},
						Header:     make(http.Header),
					}, nil
				}),
			},
			spans:       spans,
			wantErr:     true,
			errContains: "body-read-error",
		},
		{
			name:     "success",
			endpoint: "http://collector.local/v1/traces",
			client: &http.Client{
				Timeout: time.Second,
				Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
					if req.Method != http.MethodPost {
						return nil, fmt.Errorf("method = %s, want POST", req.Method)
					}
					if req.Header.Get("Content-Type") != "application/json" {
						return nil, fmt.Errorf("content type = %q", req.Header.Get("Content-Type"))
					}
					return &http.Response{
						StatusCode: http.StatusOK,
						Body:       io.NopCloser(strings.NewReader("{}")),
						Header:     make(http.Header),
					}, nil
				}),
			},
			spans:   spans,
			wantErr: false,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			exporter := &otlpHTTPExporter{
				endpoint: tc.endpoint,
				client:   tc.client,
			}

			err := exporter.ExportSpans(context.Background(), tc.spans)
			if tc.wantErr {
				if err == nil {
					t.Fatal("ExportSpans() expected error, got nil")
				}
				if tc.errContains != "" && !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("ExportSpans() error = %q, missing %q", err.Error(), tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("ExportSpans() unexpected error: %v", err)
			}
		})
	}
}

func TestBuildOTLPTraceRequest(t *testing.T) {
	t.Parallel()

	spans := recordedIngestSpans(t)
	request := buildOTLPTraceRequest(spans)
	if len(request.ResourceSpans) != 1 {
		t.Fatalf("ResourceSpans len = %d, want 1", len(request.ResourceSpans))
	}

	var persist *otlpSpan
	for _, scopeSpans := range request.ResourceSpans[0].ScopeSpans {
		for i, span := range scopeSpans.Spans {
			if span.Name == "store.save_result" {
				persist = &scopeSpans.Spans[i]
			}
		}
	}
	if persist == nil {
		t.Fatal("missing converted child span")
	}
	if persist.ParentSpanID == "" {
		t.Fatal("ParentSpanID empty for child span")
	}
	if persist.Status.Code != int(codes.Error) {
		t.Fatalf("child status code = %d, want %d", persist.Status.Code, int(codes.Error))
	}
	if persist.Status.Message != "connection refused" {
		t.Fatalf("child status message = %q", persist.Status.Message)
	}
	if len(persist.Attributes) == 0 {
		t.Fatal("child attributes len = 0, want > 0")
	}
	if persist.StartTimeUnixNano == "" || persist.EndTimeUnixNano == "" {
		t.Fatal("span timestamps must be set")
	}
}

func TestToOTLPAttributes(t *testing.T) {
	t.Parallel()

	attributes := toOTLPAttributes([]attribute.KeyValue{
		attribute.Bool("retryable", true),
		attribute.Int64("http.status_code", 503),
		attribute.Float64("duration_seconds", 0.5),
		attribute.String("integration", "gh-1"),
	})
	if len(attributes) != 4 {
		t.Fatalf("toOTLPAttributes len = %d, want 4", len(attributes))
	}
	if attributes[0].Value.BoolValue == nil || !*attributes[0].Value.BoolValue {
		t.Fatalf("bool attribute = %+v", attributes[0])
	}
	if attributes[1].Value.IntValue == nil || *attributes[1].Value.IntValue != "503" {
		t.Fatalf("int attribute = %+v, want OTLP string encoding", attributes[1])
	}
	if attributes[3].Value.StringValue == nil || *attributes[3].Value.StringValue != "gh-1" {
		t.Fatalf("string attribute = %+v", attributes[3])
	}
}

func TestOTLPHTTPExporterShutdown(t *testing.T) {
	t.Parallel()

	exporter := &otlpHTTPExporter{
		endpoint: "http://collector.local/v1/traces",
		client:   &http.Client{Timeout: time.Second},
	}
	if err := exporter.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() unexpected error: %v", err)
	}
}

// recordedIngestSpans produces a parent ingest span with a failed child
// persist span, the shape the runtime emits on a store outage.
func recordedIngestSpans(t *testing.T) []sdktrace.ReadOnlySpan {
	t.Helper()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(recorder),
		sdktrace.WithResource(sdkresource.Empty()),
	)
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	tracer := provider.Tracer("telemetry-test")
	ctx, parent := tracer.Start(context.Background(), "http.server.ingest")
	_, child := tracer.Start(
		ctx,
		"store.save_result",
		trace.WithAttributes(
			attribute.Bool("retryable", true),
			attribute.Int64("records", 12),
			attribute.Float64("duration_seconds", 0.25),
			attribute.String("integration", "gh-1"),
		),
	)
	child.SetStatus(codes.Error, "connection refused")
	child.End()
	parent.End()

	return recorder.Ended()
}

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (fn roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

type failingReadCloser struct{}

func (f *failingReadCloser) Read([]byte) (int, error) {
	return 0, errors.New("read failed")
}

func (f *failingReadCloser) Close() error {
	return nil
}
