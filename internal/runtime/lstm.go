package runtime

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// cellSpec is one compiled LSTM cell: parameter names plus dimensions.
// Parameters live in the shared store; the spec itself is stateless, so the
// same cell can run under any bucket length and any worker shard.
//
// Gate layout inside the fused 4H pre-activation vector: input, forget,
// candidate, output.
type cellSpec struct {
	name   string
	inDim  int
	hidden int
}

// layerCache holds everything one cell needs for backpropagation through
// time on a single sample. in references the inputs it consumed; the rest
// are per-timestep gate activations and states.
type layerCache struct {
	in    [][]float64
	i     [][]float64
	f     [][]float64
	g     [][]float64
	o     [][]float64
	c     [][]float64
	tanhc [][]float64
	h     [][]float64
}

func newLayerCache(seqLen int) *layerCache {
	return &layerCache{
		i:     make([][]float64, seqLen),
		f:     make([][]float64, seqLen),
		g:     make([][]float64, seqLen),
		o:     make([][]float64, seqLen),
		c:     make([][]float64, seqLen),
		tanhc: make([][]float64, seqLen),
		h:     make([][]float64, seqLen),
	}
}

// forward unrolls the cell over one sample's input sequence and returns the
// full hidden-state sequence. With train set it also returns the cache
// required by backward.
func (cs cellSpec) forward(store *ParamStore, seq [][]float64, train bool) ([][]float64, *layerCache) {
	T := len(seq)
	H := cs.hidden
	wx := store.Param(cs.name + "Wx").RawMatrix()
	wh := store.Param(cs.name + "Wh").RawMatrix()
	bias := store.Param(cs.name + "bias").RawMatrix().Data

	var lc *layerCache
	if train {
		lc = newLayerCache(T)
		lc.in = seq
	}

	h := make([]float64, H)
	c := make([]float64, H)
	outs := make([][]float64, T)
	for t := 0; t < T; t++ {
		pre := make([]float64, 4*H)
		copy(pre, bias)
		for j, xv := range seq[t] {
			if xv == 0 {
				continue
			}
			floats.AddScaled(pre, xv, wx.Data[j*wx.Stride:j*wx.Stride+4*H])
		}
		for j, hv := range h {
			if hv == 0 {
				continue
			}
			floats.AddScaled(pre, hv, wh.Data[j*wh.Stride:j*wh.Stride+4*H])
		}

		ig := make([]float64, H)
		fg := make([]float64, H)
		gg := make([]float64, H)
		og := make([]float64, H)
		nc := make([]float64, H)
		tc := make([]float64, H)
		nh := make([]float64, H)
		for k := 0; k < H; k++ {
			ig[k] = sigmoid(pre[k])
			fg[k] = sigmoid(pre[H+k])
			gg[k] = math.Tanh(pre[2*H+k])
			og[k] = sigmoid(pre[3*H+k])
			nc[k] = fg[k]*c[k] + ig[k]*gg[k]
			tc[k] = math.Tanh(nc[k])
			nh[k] = og[k] * tc[k]
		}
		if train {
			lc.i[t], lc.f[t], lc.g[t], lc.o[t] = ig, fg, gg, og
			lc.c[t], lc.tanhc[t], lc.h[t] = nc, tc, nh
		}
		h, c = nh, nc
		outs[t] = nh
	}
	return outs, lc
}

// backward runs backpropagation through time for one sample. dhSeq carries
// the gradient flowing into each timestep's hidden output from the layer
// above (nil entries mean zero). It returns the gradient with respect to the
// cell's input sequence and accumulates parameter gradients into local.
func (cs cellSpec) backward(store *ParamStore, lc *layerCache, dhSeq [][]float64, local gradSet) [][]float64 {
	T := len(dhSeq)
	H := cs.hidden
	D := cs.inDim
	wx := store.Param(cs.name + "Wx").RawMatrix()
	wh := store.Param(cs.name + "Wh").RawMatrix()

	gWx := local.acc(cs.name+"Wx", D*4*H)
	gWh := local.acc(cs.name+"Wh", H*4*H)
	gb := local.acc(cs.name+"bias", 4*H)

	dx := make([][]float64, T)
	dhNext := make([]float64, H)
	dcNext := make([]float64, H)
	for t := T - 1; t >= 0; t-- {
		dh := make([]float64, H)
		if dhSeq[t] != nil {
			copy(dh, dhSeq[t])
		}
		floats.Add(dh, dhNext)

		var hPrev, cPrev []float64
		if t > 0 {
			hPrev = lc.h[t-1]
			cPrev = lc.c[t-1]
		}

		dpre := make([]float64, 4*H)
		for k := 0; k < H; k++ {
			ig, fg, gg, og := lc.i[t][k], lc.f[t][k], lc.g[t][k], lc.o[t][k]
			tc := lc.tanhc[t][k]

			dc := dcNext[k] + dh[k]*og*(1-tc*tc)
			do := dh[k] * tc
			di := dc * gg
			dg := dc * ig
			cp := 0.0
			if cPrev != nil {
				cp = cPrev[k]
			}
			df := dc * cp

			dpre[k] = di * ig * (1 - ig)
			dpre[H+k] = df * fg * (1 - fg)
			dpre[2*H+k] = dg * (1 - gg*gg)
			dpre[3*H+k] = do * og * (1 - og)
			dcNext[k] = dc * fg
		}

		for j, xv := range lc.in[t] {
			if xv != 0 {
				floats.AddScaled(gWx[j*4*H:(j+1)*4*H], xv, dpre)
			}
		}
		if hPrev != nil {
			for j, hv := range hPrev {
				if hv != 0 {
					floats.AddScaled(gWh[j*4*H:(j+1)*4*H], hv, dpre)
				}
			}
		}
		floats.Add(gb, dpre)

		dxt := make([]float64, D)
		for j := 0; j < D; j++ {
			dxt[j] = floats.Dot(wx.Data[j*wx.Stride:j*wx.Stride+4*H], dpre)
		}
		dx[t] = dxt

		for j := 0; j < H; j++ {
			dhNext[j] = floats.Dot(wh.Data[j*wh.Stride:j*wh.Stride+4*H], dpre)
		}
	}
	return dx
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func softmax(logits []float64) []float64 {
	max := floats.Max(logits)
	out := make([]float64, len(logits))
	sum := 0.0
	for i, v := range logits {
		e := math.Exp(v - max)
		out[i] = e
		sum += e
	}
	inv := 1 / sum
	for i := range out {
		out[i] *= inv
	}
	return out
}
