package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// otlpHTTPExporter ships spans to an OTLP/HTTP collector endpoint using
// the JSON encoding. It carries no queue of its own; the SDK batcher in
// front of it handles buffering and flush timing.
type otlpHTTPExporter struct {
	endpoint string
	client   *http.Client
}

var _ sdktrace.SpanExporter = (*otlpHTTPExporter)(nil)

func (e *otlpHTTPExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	if len(spans) == 0 {
		return nil
	}

	payload, err := json.Marshal(buildOTLPTraceRequest(spans))
	if err != nil {
		return fmt.Errorf("marshal otlp payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build otlp request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("send otlp request: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if readErr != nil {
			body = []byte("body-read-error")
		}
		return fmt.Errorf("otlp export failed status=%d body=%s", resp.StatusCode, body)
	}
	return nil
}

func (e *otlpHTTPExporter) Shutdown(context.Context) error { return nil }

// OTLP/JSON trace payload shapes, trimmed to the fields the collector
// needs. Int values are strings per the OTLP JSON mapping.
type otlpTraceRequest struct {
	ResourceSpans []otlpResourceSpans `json:"resourceSpans"`
}

type otlpResourceSpans struct {
	Resource   otlpResource     `json:"resource"`
	ScopeSpans []otlpScopeSpans `json:"scopeSpans"`
}

type otlpResource struct {
	Attributes []otlpAttribute `json:"attributes,omitempty"`
}

type otlpScopeSpans struct {
	Scope otlpScope  `json:"scope"`
	Spans []otlpSpan `json:"spans"`
}

type otlpScope struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

type otlpSpan struct {
	TraceID           string          `json:"traceId"`
	SpanID            string          `json:"spanId"`
	ParentSpanID      string          `json:"parentSpanId,omitempty"`
	Name              string          `json:"name"`
	Kind              int             `json:"kind"`
	StartTimeUnixNano string          `json:"startTimeUnixNano"`
	EndTimeUnixNano   string          `json:"endTimeUnixNano"`
	Attributes        []otlpAttribute `json:"attributes,omitempty"`
	Status            otlpStatus      `json:"status"`
}

type otlpStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
}

type otlpAttribute struct {
	Key   string    `json:"key"`
	Value otlpValue `json:"value"`
}

type otlpValue struct {
	StringValue *string  `json:"stringValue,omitempty"`
	BoolValue   *bool    `json:"boolValue,omitempty"`
	IntValue    *string  `json:"intValue,omitempty"`
	DoubleValue *float64 `json:"doubleValue,omitempty"`
}

// buildOTLPTraceRequest converts SDK spans to the wire shape, grouping
// by instrumentation scope. All spans in one export batch share the
// process resource, so a single resourceSpans entry carries them.
func buildOTLPTraceRequest(spans []sdktrace.ReadOnlySpan) otlpTraceRequest {
	if len(spans) == 0 {
		return otlpTraceRequest{}
	}

	byScope := make(map[otlpScope][]otlpSpan)
	var scopeOrder []otlpScope
	for _, span := range spans {
		scope := otlpScope{
			Name:    span.InstrumentationScope().Name,
			Version: span.InstrumentationScope().Version,
		}
		if _, seen := byScope[scope]; !seen {
			scopeOrder = append(scopeOrder, scope)
		}
		byScope[scope] = append(byScope[scope], convertSpan(span))
	}

	scopeSpans := make([]otlpScopeSpans, 0, len(scopeOrder))
	for _, scope := range scopeOrder {
		scopeSpans = append(scopeSpans, otlpScopeSpans{Scope: scope, Spans: byScope[scope]})
	}

	return otlpTraceRequest{
		ResourceSpans: []otlpResourceSpans{{
			Resource:   otlpResource{Attributes: toOTLPAttributes(spans[0].Resource().Attributes())},
			ScopeSpans: scopeSpans,
		}},
	}
}

func convertSpan(span sdktrace.ReadOnlySpan) otlpSpan {
	converted := otlpSpan{
		TraceID:           span.SpanContext().TraceID().String(),
		SpanID:            span.SpanContext().SpanID().String(),
		Name:              span.Name(),
		Kind:              int(span.SpanKind()),
		StartTimeUnixNano: strconv.FormatInt(span.StartTime().UnixNano(), 10),
		EndTimeUnixNano:   strconv.FormatInt(span.EndTime().UnixNano(), 10),
		Attributes:        toOTLPAttributes(span.Attributes()),
		Status: otlpStatus{
			Code:    int(span.Status().Code),
			Message: span.Status().Description,
		},
	}
	if parent := span.Parent(); parent.IsValid() {
		converted.ParentSpanID = parent.SpanID().String()
	}
	return converted
}

func toOTLPAttributes(kvs []attribute.KeyValue) []otlpAttribute {
	attributes := make([]otlpAttribute, 0, len(kvs))
	for _, kv := range kvs {
		converted := otlpAttribute{Key: string(kv.Key)}
		switch kv.Value.Type() {
		case attribute.BOOL:
			value := kv.Value.AsBool()
			converted.Value.BoolValue = &value
		case attribute.INT64:
			value := strconv.FormatInt(kv.Value.AsInt64(), 10)
			converted.Value.IntValue = &value
		case attribute.FLOAT64:
			value := kv.Value.AsFloat64()
			converted.Value.DoubleValue = &value
		default:
			value := kv.Value.Emit()
			converted.Value.StringValue = &value
		}
		attributes = append(attributes, converted)
	}
	return attributes
}
