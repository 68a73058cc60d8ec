package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// TracingPublisher records a producer span for every lifecycle event handed
// to the wrapped publisher.
type TracingPublisher struct {
	next   domain.EventPublisher
	tracer trace.Tracer
	system string
}

var _ domain.EventPublisher = (*TracingPublisher)(nil)

// NewTracingPublisher wraps next. Spans are tagged with messaging.system
// "river", the queue every publisher in this service writes to.
func NewTracingPublisher(next domain.EventPublisher) *TracingPublisher {
	return &TracingPublisher{
		next:   next,
		tracer: otel.Tracer(tracerName),
		system: "river",
	}
}

// Publish names the span after the event, e.g. "publish tenant.activate".
func (p *TracingPublisher) Publish(ctx context.Context, event domain.Event, tenant domain.Tenant) (err error) {
	ctx, span := p.tracer.Start(ctx, "publish tenant."+string(event),
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", p.system),
			attribute.String("messaging.operation.type", "publish"),
			attribute.String("event.type", string(event)),
			attribute.String("tenant.id", tenant.ID),
			attribute.String("tenant.status", string(tenant.Status)),
		),
	)
	defer func() { endSpan(span, err) }()

	if tenant.Slug != "" {
		span.SetAttributes(attribute.String("tenant.slug", tenant.Slug))
	}
	return p.next.Publish(ctx, event, tenant)
}
