package device

import (
	"errors"
	"testing"
)

func TestResolveDefault(t *testing.T) {
	ctxs, err := Resolve(nil, nil)
	if err != nil {
		t.Fatalf("Resolve(nil, nil) returned error: %v", err)
	}
	if len(ctxs) != 1 {
		t.Fatalf("expected 1 default context, got %d", len(ctxs))
	}
	if ctxs[0].Kind != CPU || ctxs[0].Index != 0 {
		t.Errorf("expected cpu(0), got %v", ctxs[0])
	}
}

func TestResolveCPUs(t *testing.T) {
	ctxs, err := Resolve(nil, []int{0, 1, 2})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(ctxs) != 3 {
		t.Fatalf("expected 3 contexts, got %d", len(ctxs))
	}
	for i, c := range ctxs {
		if c.Kind != CPU || c.Index != i {
			t.Errorf("context %d: expected cpu(%d), got %v", i, i, c)
		}
	}
}

func TestResolveGPUs(t *testing.T) {
	ctxs, err := Resolve([]int{1, 3}, nil)
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if len(ctxs) != 2 {
		t.Fatalf("expected 2 contexts, got %d", len(ctxs))
	}
	if ctxs[0].Kind != GPU || ctxs[0].Index != 1 {
		t.Errorf("expected gpu(1), got %v", ctxs[0])
	}
	if !HasGPU(ctxs) {
		t.Error("HasGPU = false for GPU contexts")
	}
}

func TestResolveConflict(t *testing.T) {
	_, err := Resolve([]int{0}, []int{0})
	if !errors.Is(err, ErrConflictingContexts) {
		t.Fatalf("expected ErrConflictingContexts, got %v", err)
	}
}

func TestContextString(t *testing.T) {
	tests := []struct {
		ctx  Context
		want string
	}{
		{Context{Kind: CPU, Index: 0}, "cpu(0)"},
		{Context{Kind: GPU, Index: 2}, "gpu(2)"},
	}
	for _, tt := range tests {
		if got := tt.ctx.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
