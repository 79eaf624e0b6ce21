package runtime

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/bucketseq/internal/dataset"
	"github.com/crimson-sun/bucketseq/internal/device"
	"github.com/crimson-sun/bucketseq/internal/metrics"
	"github.com/crimson-sun/bucketseq/internal/symbol"
)

const (
	testVocab   = 20
	testEmbed   = 6
	testHidden  = 5
	testClasses = 3
)

func testGen(layers int) symbol.Generator {
	return symbol.NewGenerator(symbol.Config{
		InputDim:   testVocab,
		NumEmbed:   testEmbed,
		NumHidden:  testHidden,
		LSTMLayers: layers,
		NumClasses: testClasses,
	})
}

func boundModel(t *testing.T, layers, defaultKey int, ctxs []device.Context) *BucketingModel {
	t.Helper()
	if ctxs == nil {
		ctxs = []device.Context{{Kind: device.CPU}}
	}
	m := NewBucketingModel(testGen(layers), defaultKey, ctxs, nil)
	err := m.Bind(
		dataset.DataDesc{Name: "data", Shape: []int{4, defaultKey}},
		dataset.DataDesc{Name: "softmax_label", Shape: []int{4}},
	)
	require.NoError(t, err)
	require.NoError(t, m.InitParams(1))
	return m
}

func testBatch(key int) *dataset.Batch {
	return &dataset.Batch{
		BucketKey: key,
		Data: [][]int{
			[]int{1, 2, 3, 0}[:key],
			[]int{4, 5, 6, 7}[:key],
			[]int{8, 9, 1, 0}[:key],
		},
		Labels: []int{0, 1, 2},
	}
}

func TestParamStoreShapes(t *testing.T) {
	store, err := newParamStore(testGen(2)(5))
	require.NoError(t, err)

	wantShapes := map[string][2]int{
		"embed_weight":  {testVocab, testEmbed},
		"lstm_1_Wx":     {testEmbed, 4 * testHidden},
		"lstm_1_Wh":     {testHidden, 4 * testHidden},
		"lstm_1_bias":   {1, 4 * testHidden},
		"lstm_2_Wx":     {testHidden, 4 * testHidden},
		"lstm_2_Wh":     {testHidden, 4 * testHidden},
		"lstm_2_bias":   {1, 4 * testHidden},
		"logits_weight": {testHidden, testClasses},
		"logits_bias":   {1, testClasses},
	}
	require.Len(t, store.Names(), len(wantShapes))
	for name, want := range wantShapes {
		p := store.Param(name)
		require.NotNil(t, p, "missing parameter %s", name)
		r, c := p.Dims()
		assert.Equal(t, want, [2]int{r, c}, "shape of %s", name)
	}
}

func TestInitUniform(t *testing.T) {
	store, err := newParamStore(testGen(1)(3))
	require.NoError(t, err)
	store.InitUniform(7, 0.07)

	weights := store.Param("lstm_1_Wx").RawMatrix().Data
	nonzero := 0
	for _, v := range weights {
		require.LessOrEqual(t, math.Abs(v), 0.07)
		if v != 0 {
			nonzero++
		}
	}
	assert.Positive(t, nonzero, "weights stayed zero after init")

	for _, v := range store.Param("lstm_1_bias").RawMatrix().Data {
		assert.Zero(t, v, "bias must start at zero")
	}

	// Same seed reproduces the same values.
	other, err := newParamStore(testGen(1)(3))
	require.NoError(t, err)
	other.InitUniform(7, 0.07)
	assert.Equal(t, weights, other.Param("lstm_1_Wx").RawMatrix().Data)
}

func TestSaveLoadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.params")

	store, err := newParamStore(testGen(2)(4))
	require.NoError(t, err)
	store.InitUniform(3, 0.07)
	require.NoError(t, store.SaveFile(path))

	fresh, err := newParamStore(testGen(2)(9))
	require.NoError(t, err)
	require.NoError(t, fresh.LoadFile(path))

	for _, name := range store.Names() {
		a := store.Param(name).RawMatrix().Data
		b := fresh.Param(name).RawMatrix().Data
		require.Len(t, b, len(a))
		for i := range a {
			// Values roundtrip through float32 storage.
			assert.InDelta(t, a[i], b[i], 1e-6)
		}
	}
}

func TestLoadCorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"not safetensors", []byte("not a safetensors file")},
		{"truncated header", []byte{1, 2, 3}},
		// Header length near MaxUint64: a naive 8+headerLen bound check
		// wraps around and slices out of range.
		{"oversized header length", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, '{'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.params")
			require.NoError(t, os.WriteFile(path, tt.content, 0o644))

			store, err := newParamStore(testGen(1)(4))
			require.NoError(t, err)
			store.InitUniform(5, 0.07)
			before := append([]float64(nil), store.Param("embed_weight").RawMatrix().Data...)

			require.Error(t, store.LoadFile(path))
			assert.Equal(t, before, store.Param("embed_weight").RawMatrix().Data,
				"failed load must not clobber existing values")
		})
	}
}

func TestLoadMissingTensor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.params")
	small, err := newParamStore(testGen(1)(4))
	require.NoError(t, err)
	require.NoError(t, small.SaveFile(path))

	big, err := newParamStore(testGen(2)(4))
	require.NoError(t, err)
	require.Error(t, big.LoadFile(path), "file lacking lstm_2 tensors must not load")
}

func TestUnknownOptimizer(t *testing.T) {
	_, err := NewOptimizer("rmsprop", 0.1)
	require.Error(t, err)

	m := boundModel(t, 1, 4, nil)
	require.Error(t, m.InitOptimizer("rmsprop", 0.1))
	require.NoError(t, m.InitOptimizer("sgd", 0.1))
	require.NoError(t, m.InitOptimizer("adam", 0.001))
}

func TestBindValidation(t *testing.T) {
	tests := []struct {
		name  string
		data  dataset.DataDesc
		label dataset.DataDesc
	}{
		{"wrong data name", dataset.DataDesc{Name: "tokens", Shape: []int{4, 4}}, dataset.DataDesc{Name: "softmax_label", Shape: []int{4}}},
		{"wrong label name", dataset.DataDesc{Name: "data", Shape: []int{4, 4}}, dataset.DataDesc{Name: "label", Shape: []int{4}}},
		{"bad data rank", dataset.DataDesc{Name: "data", Shape: []int{4}}, dataset.DataDesc{Name: "softmax_label", Shape: []int{4}}},
		{"bucket mismatch", dataset.DataDesc{Name: "data", Shape: []int{4, 9}}, dataset.DataDesc{Name: "softmax_label", Shape: []int{4}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewBucketingModel(testGen(1), 4, nil, nil)
			require.Error(t, m.Bind(tt.data, tt.label))
			assert.False(t, m.Bound())
		})
	}
}

func TestForwardOutputs(t *testing.T) {
	m := boundModel(t, 2, 4, nil)
	b := testBatch(4)
	require.NoError(t, m.Forward(b, false))

	// Outputs returns the rows of the graph's sole output endpoint.
	require.Equal(t, []string{symbol.OutputName}, testGen(2)(4).OutputNames())

	out := m.Outputs()
	require.Len(t, out, 3)
	for _, row := range out {
		require.Len(t, row, testClasses)
		sum := 0.0
		for _, p := range row {
			require.GreaterOrEqual(t, p, 0.0)
			sum += p
		}
		assert.InDelta(t, 1.0, sum, 1e-9, "softmax rows must sum to one")
	}
}

func TestLazyBucketCompilation(t *testing.T) {
	m := boundModel(t, 1, 4, nil)
	require.Len(t, m.execs, 1)

	require.NoError(t, m.Forward(testBatch(2), false))
	require.Len(t, m.execs, 2, "new bucket key must compile one more graph")

	require.NoError(t, m.Forward(testBatch(2), false))
	require.Len(t, m.execs, 2, "cached bucket must not recompile")
}

func TestForwardUnboundFails(t *testing.T) {
	m := NewBucketingModel(testGen(1), 4, nil, nil)
	require.ErrorIs(t, m.Forward(testBatch(4), false), ErrNotBound)
	require.ErrorIs(t, m.Update(), ErrNoOptimizer)
}

func batchLoss(t *testing.T, m *BucketingModel, b *dataset.Batch) float64 {
	t.Helper()
	require.NoError(t, m.Forward(b, false))
	ce := &metrics.CrossEntropy{}
	ce.Update(b.Labels, m.Outputs())
	return ce.Value()
}

func TestTrainingReducesLoss(t *testing.T) {
	m := boundModel(t, 1, 4, nil)
	require.NoError(t, m.InitOptimizer("sgd", 0.5))

	b := testBatch(4)
	before := batchLoss(t, m, b)
	for i := 0; i < 30; i++ {
		require.NoError(t, m.Forward(b, true))
		require.NoError(t, m.Backward())
		require.NoError(t, m.Update())
	}
	after := batchLoss(t, m, b)
	assert.Less(t, after, before, "loss did not decrease: %v -> %v", before, after)
}

// Finite-difference check of the analytic gradients on a tiny model.
func TestGradientCheck(t *testing.T) {
	m := boundModel(t, 2, 3, nil)
	b := testBatch(3)

	loss := func() float64 {
		return batchLoss(t, m, b)
	}

	require.NoError(t, m.Forward(b, true))
	require.NoError(t, m.Backward())

	const eps = 1e-6
	for _, name := range m.store.Names() {
		params := m.store.Param(name).RawMatrix().Data
		grads := m.store.Grad(name).RawMatrix().Data
		// Probe a few entries per tensor.
		for _, idx := range []int{0, len(params) / 2, len(params) - 1} {
			orig := params[idx]
			params[idx] = orig + eps
			up := loss()
			params[idx] = orig - eps
			down := loss()
			params[idx] = orig

			numeric := (up - down) / (2 * eps)
			assert.InDelta(t, numeric, grads[idx], 1e-4,
				"gradient mismatch for %s[%d]: analytic %v numeric %v", name, idx, grads[idx], numeric)
		}
	}
}

func TestMultiContextParity(t *testing.T) {
	single := boundModel(t, 1, 4, []device.Context{{Kind: device.CPU}})
	multi := boundModel(t, 1, 4, []device.Context{
		{Kind: device.CPU, Index: 0}, {Kind: device.CPU, Index: 1}, {Kind: device.CPU, Index: 2},
	})

	b := testBatch(4)
	require.NoError(t, single.Forward(b, true))
	require.NoError(t, multi.Forward(b, true))
	for i, row := range single.Outputs() {
		for j, p := range row {
			assert.InDelta(t, p, multi.Outputs()[i][j], 1e-12)
		}
	}

	require.NoError(t, single.Backward())
	require.NoError(t, multi.Backward())
	for _, name := range single.store.Names() {
		a := single.store.Grad(name).RawMatrix().Data
		c := multi.store.Grad(name).RawMatrix().Data
		for i := range a {
			assert.InDelta(t, a[i], c[i], 1e-9, "gradient of %s diverges across shards", name)
		}
	}
}

func TestScore(t *testing.T) {
	m := boundModel(t, 1, 4, nil)

	seqs := [][]int{{1, 2}, {3, 4, 5}, {6}}
	it, err := dataset.NewBucketIter(seqs, []int{0, 1, 2}, dataset.WithBuckets([]int{4}), dataset.WithBatchSize(2))
	require.NoError(t, err)

	acc, err := m.Score(it, &metrics.Accuracy{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.0)
	assert.LessOrEqual(t, acc, 1.0)
}
