package runtime

import (
	"fmt"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/crimson-sun/bucketseq/internal/dataset"
	"github.com/crimson-sun/bucketseq/internal/symbol"
)

// executor is one graph description compiled against the shared parameter
// store for a fixed bucket length. Compilation wires names and dimensions;
// parameter values stay in the store, so every executor sees each update.
type executor struct {
	seqLen     int
	embedName  string
	vocabSize  int
	embedDim   int
	cells      []cellSpec
	headName   string
	numClasses int

	store *ParamStore

	outputs [][]float64
	caches  []*rowCache
}

// rowCache is the per-sample state a training forward keeps for backward.
type rowCache struct {
	tokens []int
	layers []*layerCache
	hTop   []float64
	probs  []float64
	label  int
}

// compile validates a graph description and binds it to the store.
func compile(g *symbol.Graph, store *ParamStore) (*executor, error) {
	if g.SeqLen <= 0 {
		return nil, fmt.Errorf("runtime: cannot compile graph for sequence length %d", g.SeqLen)
	}
	e := &executor{seqLen: g.SeqLen, store: store}
	prevDim := 0
	for _, n := range g.Nodes {
		switch n.Op {
		case symbol.OpEmbedding:
			e.embedName = n.Name
			e.vocabSize = n.InputDim
			e.embedDim = n.OutputDim
			prevDim = n.OutputDim
		case symbol.OpLSTM:
			e.cells = append(e.cells, cellSpec{name: n.Name, inDim: prevDim, hidden: n.NumHidden})
			prevDim = n.NumHidden
		case symbol.OpFullyConnected:
			e.headName = n.Name
			e.numClasses = n.NumClasses
		case symbol.OpSoftmaxOutput:
			// Loss node; nothing to compile.
		default:
			return nil, fmt.Errorf("runtime: unsupported op %q", n.Op)
		}
	}
	if e.embedName == "" || len(e.cells) == 0 || e.headName == "" {
		return nil, fmt.Errorf("runtime: graph is missing embedding, recurrent or head nodes")
	}
	for _, name := range []string{e.embedName + "_weight", e.headName + "_weight", e.headName + "_bias"} {
		if store.Param(name) == nil {
			return nil, fmt.Errorf("runtime: parameter %q not in store", name)
		}
	}
	return e, nil
}

// forward runs the batch through the unrolled graph, sharded across workers.
// With train set, per-row caches are kept for the following backward.
func (e *executor) forward(b *dataset.Batch, train bool, workers int) {
	n := b.Size()
	e.outputs = make([][]float64, n)
	if train {
		e.caches = make([]*rowCache, n)
	} else {
		e.caches = nil
	}
	forEachRow(n, workers, func(_, r int) {
		probs, cache := e.forwardRow(b.Data[r], train)
		e.outputs[r] = probs
		if train {
			cache.label = b.Labels[r]
			e.caches[r] = cache
		}
	})
}

func (e *executor) forwardRow(tokens []int, train bool) ([]float64, *rowCache) {
	embed := e.store.Param(e.embedName + "_weight").RawMatrix()

	seq := make([][]float64, len(tokens))
	for t, tok := range tokens {
		if tok < 0 || tok >= e.vocabSize {
			tok = 0
		}
		seq[t] = embed.Data[tok*embed.Stride : tok*embed.Stride+e.embedDim]
	}

	var cache *rowCache
	if train {
		cache = &rowCache{tokens: tokens, layers: make([]*layerCache, len(e.cells))}
	}
	for li, cell := range e.cells {
		out, lc := cell.forward(e.store, seq, train)
		if train {
			cache.layers[li] = lc
		}
		seq = out
	}

	hTop := seq[len(seq)-1]
	logits := e.headForward(hTop)
	probs := softmax(logits)
	if train {
		cache.hTop = hTop
		cache.probs = probs
	}
	return probs, cache
}

func (e *executor) headForward(h []float64) []float64 {
	w := e.store.Param(e.headName + "_weight").RawMatrix()
	bias := e.store.Param(e.headName + "_bias").RawMatrix().Data
	logits := make([]float64, e.numClasses)
	copy(logits, bias)
	for j, hv := range h {
		if hv == 0 {
			continue
		}
		floats.AddScaled(logits, hv, w.Data[j*w.Stride:j*w.Stride+e.numClasses])
	}
	return logits
}

// backward computes gradients for the most recent training forward. Each
// worker accumulates into its own gradient set; the shards are then summed
// into the store and scaled by the batch size.
func (e *executor) backward(workers int) error {
	if e.caches == nil {
		return fmt.Errorf("runtime: backward without a training forward")
	}
	n := len(e.caches)
	if workers > n {
		workers = n
	}
	if workers < 1 {
		workers = 1
	}
	locals := make([]gradSet, workers)
	for i := range locals {
		locals[i] = gradSet{}
	}
	forEachRow(n, workers, func(w, r int) {
		e.backwardRow(e.caches[r], locals[w])
	})

	e.store.ZeroGrads()
	scale := 1 / float64(n)
	for _, local := range locals {
		for name, g := range local {
			floats.AddScaled(e.store.Grad(name).RawMatrix().Data, scale, g)
		}
	}
	return nil
}

func (e *executor) backwardRow(cache *rowCache, local gradSet) {
	h := len(cache.hTop)
	c := e.numClasses

	dlogits := make([]float64, c)
	copy(dlogits, cache.probs)
	if cache.label >= 0 && cache.label < c {
		dlogits[cache.label]--
	}

	w := e.store.Param(e.headName + "_weight").RawMatrix()
	gw := local.acc(e.headName+"_weight", h*c)
	gb := local.acc(e.headName+"_bias", c)
	for j, hv := range cache.hTop {
		if hv != 0 {
			floats.AddScaled(gw[j*c:(j+1)*c], hv, dlogits)
		}
	}
	floats.Add(gb, dlogits)

	dhTop := make([]float64, h)
	for j := 0; j < h; j++ {
		dhTop[j] = floats.Dot(w.Data[j*w.Stride:j*w.Stride+c], dlogits)
	}

	// Only the last timestep of the top cell feeds the head; lower cells
	// receive gradient at every timestep from the cell above.
	dhSeq := make([][]float64, e.seqLen)
	dhSeq[e.seqLen-1] = dhTop
	for li := len(e.cells) - 1; li >= 0; li-- {
		dhSeq = e.cells[li].backward(e.store, cache.layers[li], dhSeq, local)
	}

	ge := local.acc(e.embedName+"_weight", e.vocabSize*e.embedDim)
	for t, tok := range cache.tokens {
		if tok < 0 || tok >= e.vocabSize {
			tok = 0
		}
		floats.Add(ge[tok*e.embedDim:(tok+1)*e.embedDim], dhSeq[t])
	}
}

// gradSet is a worker-local accumulator of flat row-major gradients.
type gradSet map[string][]float64

func (g gradSet) acc(name string, size int) []float64 {
	if s, ok := g[name]; ok {
		return s
	}
	s := make([]float64, size)
	g[name] = s
	return s
}

// forEachRow runs fn over [0, n) split into contiguous chunks, one worker
// goroutine per chunk.
func forEachRow(n, workers int, fn func(worker, row int)) {
	if n <= 0 {
		return
	}
	if workers <= 1 || n == 1 {
		for i := 0; i < n; i++ {
			fn(0, i)
		}
		return
	}
	if workers > n {
		workers = n
	}
	chunk := (n + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		if start >= n {
			break
		}
		end := start + chunk
		if end > n {
			end = n
		}
		wg.Add(1)
		go func(w, start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				fn(w, i)
			}
		}(w, start, end)
	}
	wg.Wait()
}
