package otel_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	adapter "github.com/plexica/plexica-sub002/internal/adapter/otel"
	"github.com/plexica/plexica-sub002/internal/provisioning"
)

func TestTracingStep_ForwardAndCompensateSpans(t *testing.T) {
	exporter := setupTestTracer(t)

	steps := adapter.TraceSteps([]provisioning.Step{
		provisioning.NewStep("create_schema",
			func(context.Context, *provisioning.Context) (any, error) { return "tenant_acme", nil },
			func(context.Context, *provisioning.Context, any) error { return nil },
		),
		provisioning.NewStep("create_bucket",
			func(context.Context, *provisioning.Context) (any, error) { return nil, errors.New("bucket quota exceeded") },
			nil,
		),
	})

	orch := provisioning.NewOrchestrator(zaptest.NewLogger(t))
	res := orch.Run(context.Background(), &provisioning.Context{TenantID: "t-1", Slug: "acme"}, steps)
	if res.Success {
		t.Fatal("expected the run to fail")
	}

	spans := exporter.GetSpans()
	if len(spans) != 3 {
		t.Fatalf("got %d spans, want 3", len(spans))
	}

	want := []struct{ name, step string }{
		{"ProvisioningStep.Forward", "create_schema"},
		{"ProvisioningStep.Forward", "create_bucket"},
		{"ProvisioningStep.Compensate", "create_schema"},
	}
	for i, w := range want {
		if spans[i].Name != w.name {
			t.Errorf("span %d name = %q, want %q", i, spans[i].Name, w.name)
		}
		assertAttribute(t, spans[i], "step.name", w.step)
		assertAttribute(t, spans[i], "tenant.slug", "acme")
	}
	assertAttribute(t, spans[1], "error.code", "INTERNAL")
}

func TestTracingStep_KeepsOptionality(t *testing.T) {
	setupTestTracer(t)

	forward := func(context.Context, *provisioning.Context) (any, error) { return nil, nil }
	steps := adapter.TraceSteps([]provisioning.Step{
		provisioning.NewStep("required", forward, nil),
		provisioning.NewOptionalStep("optional", forward),
	})

	for i, want := range []bool{false, true} {
		o, ok := steps[i].(provisioning.Optional)
		if !ok {
			t.Fatalf("step %d does not expose Optional", i)
		}
		if o.Optional() != want {
			t.Errorf("step %q Optional() = %v, want %v", steps[i].Name(), o.Optional(), want)
		}
	}
}

func TestTracingStep_OptionalFailureIsWarning(t *testing.T) {
	setupTestTracer(t)

	steps := adapter.TraceSteps([]provisioning.Step{
		provisioning.NewOptionalStep("send_invitation", func(context.Context, *provisioning.Context) (any, error) {
			return nil, errors.New("smtp down")
		}),
	})

	res := provisioning.NewOrchestrator(zaptest.NewLogger(t)).Run(context.Background(), &provisioning.Context{TenantID: "t-1", Slug: "acme"}, steps)
	if !res.Success {
		t.Fatalf("optional failure must not fail the run: %v", res.Err)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("got %d warnings, want 1", len(res.Warnings))
	}
}
