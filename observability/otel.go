package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const otelScope = "github.com/tailored-agentic-units/atomstore"

// OTelObserver counts events with an OpenTelemetry counter and, when the
// context carries a recording span, attaches each event to it as a span
// event.
type OTelObserver struct {
	events metric.Int64Counter
}

// NewOTelObserver creates an OTelObserver on the given meter provider. A
// nil provider means the global otel.GetMeterProvider().
func NewOTelObserver(provider metric.MeterProvider) (*OTelObserver, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	events, err := provider.Meter(otelScope).Int64Counter(
		"atomstore_events_total",
		metric.WithDescription("Total number of store engine events by type"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event counter: %w", err)
	}

	return &OTelObserver{events: events}, nil
}

func (o *OTelObserver) OnEvent(ctx context.Context, event Event) {
	attrs := []attribute.KeyValue{
		attribute.String("event.type", string(event.Type)),
		attribute.String("event.severity", event.Level.String()),
	}
	o.events.Add(ctx, 1, metric.WithAttributes(attrs...))

	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}

	spanAttrs := append(attrs, attribute.String("event.source", event.Source))
	if event.Scope != "" {
		spanAttrs = append(spanAttrs, attribute.String("store.id", event.Scope))
	}
	if event.Key != "" {
		spanAttrs = append(spanAttrs, attribute.String("atom.key", event.Key))
	}
	span.AddEvent(string(event.Type), trace.WithAttributes(spanAttrs...))
}
