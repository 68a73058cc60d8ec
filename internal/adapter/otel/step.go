package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/plexica/plexica-sub002/internal/provisioning"
)

// TracingStep wraps a provisioning.Step so every forward and compensating
// action gets its own span. It keeps the wrapped step's optionality.
type TracingStep struct {
	next   provisioning.Step
	tracer trace.Tracer
}

var _ provisioning.Step = (*TracingStep)(nil)

// NewTracingStep creates a tracing decorator around next.
func NewTracingStep(next provisioning.Step) *TracingStep {
	return &TracingStep{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

// TraceSteps wraps every step in steps.
func TraceSteps(steps []provisioning.Step) []provisioning.Step {
	out := make([]provisioning.Step, len(steps))
	for i, s := range steps {
		out[i] = NewTracingStep(s)
	}
	return out
}

func (s *TracingStep) Name() string { return s.next.Name() }

// Optional reports the wrapped step's optionality.
func (s *TracingStep) Optional() bool {
	o, ok := s.next.(provisioning.Optional)
	return ok && o.Optional()
}

func (s *TracingStep) Forward(ctx context.Context, pc *provisioning.Context) (_ any, err error) {
	ctx, span := s.tracer.Start(ctx, "ProvisioningStep.Forward",
		trace.WithAttributes(
			attribute.String("step.name", s.next.Name()),
			attribute.Bool("step.optional", s.Optional()),
			attribute.String("tenant.id", pc.TenantID),
			attribute.String("tenant.slug", pc.Slug),
		),
	)
	defer func() { endSpan(span, err) }()

	return s.next.Forward(ctx, pc)
}

func (s *TracingStep) Compensate(ctx context.Context, pc *provisioning.Context, result any) (err error) {
	ctx, span := s.tracer.Start(ctx, "ProvisioningStep.Compensate",
		trace.WithAttributes(
			attribute.String("step.name", s.next.Name()),
			attribute.String("tenant.id", pc.TenantID),
			attribute.String("tenant.slug", pc.Slug),
		),
	)
	defer func() { endSpan(span, err) }()

	return s.next.Compensate(ctx, pc, result)
}
