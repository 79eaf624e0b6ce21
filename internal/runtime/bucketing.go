// Package runtime executes bucketed sequence graphs: one compiled executor
// per bucket length, all sharing a single parameter store and optimizer
// state.
package runtime

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/crimson-sun/bucketseq/internal/dataset"
	"github.com/crimson-sun/bucketseq/internal/device"
	"github.com/crimson-sun/bucketseq/internal/metrics"
	"github.com/crimson-sun/bucketseq/internal/symbol"
)

// ErrNotBound is returned by operations that require a bound model.
var ErrNotBound = errors.New("runtime: model is not bound")

// ErrNoOptimizer is returned by Update before InitOptimizer has run.
var ErrNoOptimizer = errors.New("runtime: optimizer is not initialized")

// BucketingModel lazily compiles one executor per bucket key encountered and
// runs forward/backward/update against the shared parameter store. The
// wrapper is its sole caller; no method is safe for concurrent use, though
// forward and backward internally shard work across the device contexts.
type BucketingModel struct {
	symGen     symbol.Generator
	defaultKey int
	ctxs       []device.Context
	logger     *slog.Logger

	store *ParamStore
	execs map[int]*executor
	opt   Optimizer
	cur   *executor
}

// NewBucketingModel creates an unbound model. The default bucket key is the
// length whose graph is compiled at bind time; further keys compile on first
// use.
func NewBucketingModel(gen symbol.Generator, defaultKey int, ctxs []device.Context, logger *slog.Logger) *BucketingModel {
	if logger == nil {
		logger = slog.Default()
	}
	if len(ctxs) == 0 {
		ctxs = []device.Context{{Kind: device.CPU, Index: 0}}
	}
	return &BucketingModel{
		symGen:     gen,
		defaultKey: defaultKey,
		ctxs:       ctxs,
		logger:     logger,
		execs:      make(map[int]*executor),
	}
}

// Bind validates the iterator's shape descriptors, allocates the parameter
// store from the default bucket's graph, and compiles its executor.
func (m *BucketingModel) Bind(data, label dataset.DataDesc) error {
	if m.store != nil {
		return errors.New("runtime: model is already bound")
	}
	if data.Name != symbol.DataName {
		return fmt.Errorf("runtime: data descriptor named %q, want %q", data.Name, symbol.DataName)
	}
	if label.Name != symbol.LabelName {
		return fmt.Errorf("runtime: label descriptor named %q, want %q", label.Name, symbol.LabelName)
	}
	if len(data.Shape) != 2 {
		return fmt.Errorf("runtime: data shape %v, want [batch, seqLen]", data.Shape)
	}
	if len(label.Shape) != 1 {
		return fmt.Errorf("runtime: label shape %v, want [batch]", label.Shape)
	}
	if data.Shape[1] != m.defaultKey {
		return fmt.Errorf("runtime: data sequence length %d does not match default bucket key %d",
			data.Shape[1], m.defaultKey)
	}

	g := m.symGen(m.defaultKey)
	store, err := newParamStore(g)
	if err != nil {
		return err
	}
	exec, err := compile(g, store)
	if err != nil {
		return err
	}
	m.store = store
	m.execs[m.defaultKey] = exec

	if device.HasGPU(m.ctxs) {
		m.logger.Warn("no gpu backend available; gpu contexts run as cpu shards",
			"contexts", fmt.Sprint(m.ctxs))
	}
	return nil
}

// Bound reports whether Bind has completed.
func (m *BucketingModel) Bound() bool { return m.store != nil }

// InitParams fills the parameter store with seeded uniform values.
func (m *BucketingModel) InitParams(seed int64) error {
	if m.store == nil {
		return ErrNotBound
	}
	m.store.InitUniform(seed, 0.07)
	return nil
}

// LoadParams reads parameter values from a safetensors file. On failure the
// previous values are untouched.
func (m *BucketingModel) LoadParams(path string) error {
	if m.store == nil {
		return ErrNotBound
	}
	return m.store.LoadFile(path)
}

// SaveParams writes parameter values only; graph topology is reconstructed
// from an iterator's buckets at load time.
func (m *BucketingModel) SaveParams(path string) error {
	if m.store == nil {
		return ErrNotBound
	}
	return m.store.SaveFile(path)
}

// InitOptimizer configures the update rule applied by Update.
func (m *BucketingModel) InitOptimizer(name string, lr float64) error {
	opt, err := NewOptimizer(name, lr)
	if err != nil {
		return err
	}
	m.opt = opt
	return nil
}

// executorFor returns the compiled executor for a bucket key, compiling and
// caching it on first encounter.
func (m *BucketingModel) executorFor(key int) (*executor, error) {
	if exec, ok := m.execs[key]; ok {
		return exec, nil
	}
	exec, err := compile(m.symGen(key), m.store)
	if err != nil {
		return nil, err
	}
	m.execs[key] = exec
	m.logger.Debug("compiled graph for bucket", "bucket_key", key)
	return exec, nil
}

// Forward runs one batch through the executor matching its bucket key.
// With train set the executor retains state for Backward.
func (m *BucketingModel) Forward(b *dataset.Batch, train bool) error {
	if m.store == nil {
		return ErrNotBound
	}
	exec, err := m.executorFor(b.BucketKey)
	if err != nil {
		return err
	}
	exec.forward(b, train, len(m.ctxs))
	m.cur = exec
	return nil
}

// Backward computes gradients for the most recent training Forward.
func (m *BucketingModel) Backward() error {
	if m.cur == nil {
		return fmt.Errorf("runtime: backward before forward")
	}
	return m.cur.backward(len(m.ctxs))
}

// Update applies one optimizer step to the shared parameters.
func (m *BucketingModel) Update() error {
	if m.opt == nil {
		return ErrNoOptimizer
	}
	m.opt.Update(m.store)
	return nil
}

// Outputs returns the class probability rows of the most recent Forward.
// The rows are valid until the next Forward on the same bucket.
func (m *BucketingModel) Outputs() [][]float64 {
	if m.cur == nil {
		return nil
	}
	return m.cur.outputs
}

// Score runs the iterator through inference forwards, accumulating the
// metric over every batch, and returns the final value. The metric is reset
// first; the iterator is consumed from its current position.
func (m *BucketingModel) Score(it dataset.Iter, metric metrics.EvalMetric) (float64, error) {
	if m.store == nil {
		return 0, ErrNotBound
	}
	metric.Reset()
	for it.Next() {
		b := it.Batch()
		if err := m.Forward(b, false); err != nil {
			return 0, err
		}
		metric.Update(b.Labels, m.Outputs())
	}
	return metric.Value(), nil
}
