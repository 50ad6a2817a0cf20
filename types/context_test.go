package types

import (
	"context"
	"testing"
)

func TestContext_Propagation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	if _, ok := ThreadID(ctx); ok {
		t.Fatalf("empty context must not carry a thread ID")
	}

	ctx = WithTraceID(ctx, "tr-1")
	ctx = WithThreadID(ctx, "th-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithOperator(ctx, "alice")
	ctx = WithRoles(ctx, []string{"approver"})

	if v, ok := TraceID(ctx); !ok || v != "tr-1" {
		t.Fatalf("trace ID not propagated: %q %v", v, ok)
	}
	if v, ok := ThreadID(ctx); !ok || v != "th-1" {
		t.Fatalf("thread ID not propagated: %q %v", v, ok)
	}
	if v, ok := RunID(ctx); !ok || v != "run-1" {
		t.Fatalf("run ID not propagated: %q %v", v, ok)
	}
	if v, ok := Operator(ctx); !ok || v != "alice" {
		t.Fatalf("operator not propagated: %q %v", v, ok)
	}
	if roles, ok := Roles(ctx); !ok || len(roles) != 1 || roles[0] != "approver" {
		t.Fatalf("roles not propagated: %v %v", roles, ok)
	}
}

func TestContext_EmptyValuesNotOK(t *testing.T) {
	t.Parallel()

	ctx := WithThreadID(context.Background(), "")
	if _, ok := ThreadID(ctx); ok {
		t.Fatalf("empty thread ID must report not-ok")
	}
	ctx = WithRoles(context.Background(), nil)
	if _, ok := Roles(ctx); ok {
		t.Fatalf("empty roles must report not-ok")
	}
}
