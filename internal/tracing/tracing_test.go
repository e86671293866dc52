package tracing

import (
	"context"
	"testing"
)

func TestNewProducesWorkingSpans(t *testing.T) {
	tr, shutdown := New(Config{ServiceName: "agentcore-test"})
	defer shutdown(context.Background())

	ctx, span := tr.ConductorTick(context.Background(), 1, 7)
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a valid span context")
	}
	span.End()

	_, planSpan := tr.PlanningStage(ctx, "architect", 1)
	defer planSpan.End()
}
