// Package device models execution contexts as a tagged variant: a batch is
// sharded across the resolved contexts by the runtime, one worker per context.
package device

import (
	"errors"
	"fmt"
)

// Kind discriminates the context variant.
type Kind int

const (
	// CPU is a CPU execution context.
	CPU Kind = iota
	// GPU is a GPU execution context. There is no GPU backend in this
	// runtime; the runtime schedules GPU contexts as CPU shards and logs a
	// warning once at bind time.
	GPU
)

// Context identifies one execution context.
type Context struct {
	Kind  Kind
	Index int
}

func (c Context) String() string {
	if c.Kind == GPU {
		return fmt.Sprintf("gpu(%d)", c.Index)
	}
	return fmt.Sprintf("cpu(%d)", c.Index)
}

// ErrConflictingContexts is returned when both GPU and CPU index lists are
// supplied; the selection is mutually exclusive.
var ErrConflictingContexts = errors.New("device: gpu and cpu context lists are mutually exclusive")

// Resolve maps the configured GPU/CPU index lists to concrete contexts.
// Exactly one list may be non-empty; with neither set the default is a
// single cpu(0) context.
func Resolve(gpus, cpus []int) ([]Context, error) {
	if len(gpus) > 0 && len(cpus) > 0 {
		return nil, ErrConflictingContexts
	}
	switch {
	case len(gpus) > 0:
		ctxs := make([]Context, len(gpus))
		for i, idx := range gpus {
			ctxs[i] = Context{Kind: GPU, Index: idx}
		}
		return ctxs, nil
	case len(cpus) > 0:
		ctxs := make([]Context, len(cpus))
		for i, idx := range cpus {
			ctxs[i] = Context{Kind: CPU, Index: idx}
		}
		return ctxs, nil
	default:
		return []Context{{Kind: CPU, Index: 0}}, nil
	}
}

// HasGPU reports whether any context in the list is a GPU context.
func HasGPU(ctxs []Context) bool {
	for _, c := range ctxs {
		if c.Kind == GPU {
			return true
		}
	}
	return false
}
