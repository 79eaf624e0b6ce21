package runtime

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/crimson-sun/bucketseq/internal/symbol"
)

// ParamStore owns the parameter and gradient tensors shared by every bucket
// executor. Tensors are keyed by name; biases are stored as 1×n matrices.
type ParamStore struct {
	params map[string]*mat.Dense
	grads  map[string]*mat.Dense
	names  []string
}

// newParamStore allocates the parameter set implied by a graph description.
// Only tensor shapes come from the graph; values start at zero until
// InitUniform or LoadFile fills them.
func newParamStore(g *symbol.Graph) (*ParamStore, error) {
	s := &ParamStore{
		params: make(map[string]*mat.Dense),
		grads:  make(map[string]*mat.Dense),
	}
	prevDim := 0
	for _, n := range g.Nodes {
		switch n.Op {
		case symbol.OpEmbedding:
			s.add(n.Name+"_weight", n.InputDim, n.OutputDim)
			prevDim = n.OutputDim
		case symbol.OpLSTM:
			if prevDim <= 0 {
				return nil, fmt.Errorf("runtime: node %s has no input dimension", n.Name)
			}
			s.add(n.Name+"Wx", prevDim, 4*n.NumHidden)
			s.add(n.Name+"Wh", n.NumHidden, 4*n.NumHidden)
			s.add(n.Name+"bias", 1, 4*n.NumHidden)
			prevDim = n.NumHidden
		case symbol.OpFullyConnected:
			s.add(n.Name+"_weight", prevDim, n.NumClasses)
			s.add(n.Name+"_bias", 1, n.NumClasses)
		case symbol.OpSoftmaxOutput:
			// No parameters.
		default:
			return nil, fmt.Errorf("runtime: unsupported op %q", n.Op)
		}
	}
	return s, nil
}

func (s *ParamStore) add(name string, rows, cols int) {
	s.params[name] = mat.NewDense(rows, cols, nil)
	s.grads[name] = mat.NewDense(rows, cols, nil)
	s.names = append(s.names, name)
}

// Param returns the named parameter tensor.
func (s *ParamStore) Param(name string) *mat.Dense { return s.params[name] }

// Grad returns the named gradient tensor.
func (s *ParamStore) Grad(name string) *mat.Dense { return s.grads[name] }

// Names returns all tensor names in allocation order.
func (s *ParamStore) Names() []string { return s.names }

// InitUniform fills every parameter with seeded uniform values in
// [-scale, scale]. Biases start at zero.
func (s *ParamStore) InitUniform(seed int64, scale float64) {
	rng := rand.New(rand.NewSource(seed))
	for _, name := range s.names {
		data := s.params[name].RawMatrix().Data
		if strings.HasSuffix(name, "bias") {
			for i := range data {
				data[i] = 0
			}
			continue
		}
		for i := range data {
			data[i] = (rng.Float64()*2 - 1) * scale
		}
	}
}

// ZeroGrads clears every gradient tensor.
func (s *ParamStore) ZeroGrads() {
	for _, name := range s.names {
		data := s.grads[name].RawMatrix().Data
		for i := range data {
			data[i] = 0
		}
	}
}

// Parameter persistence uses the safetensors layout: an 8-byte little-endian
// header length, a JSON header mapping tensor names to dtype/shape/offsets,
// then the raw F32 payload. Only parameter values are written — graph
// topology is rebuilt from an iterator's buckets at load time.

type tensorMeta struct {
	Dtype       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

// SaveFile writes every parameter tensor to path.
func (s *ParamStore) SaveFile(path string) error {
	names := append([]string(nil), s.names...)
	sort.Strings(names)

	header := make(map[string]tensorMeta, len(names))
	offset := 0
	for _, name := range names {
		r, c := s.params[name].Dims()
		size := r * c * 4
		header[name] = tensorMeta{
			Dtype:       "F32",
			Shape:       []int{r, c},
			DataOffsets: [2]int{offset, offset + size},
		}
		offset += size
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("params: marshal header: %w", err)
	}

	buf := make([]byte, 8+len(headerJSON)+offset)
	binary.LittleEndian.PutUint64(buf[:8], uint64(len(headerJSON)))
	copy(buf[8:], headerJSON)

	pos := 8 + len(headerJSON)
	for _, name := range names {
		data := s.params[name].RawMatrix().Data
		for _, v := range data {
			binary.LittleEndian.PutUint32(buf[pos:pos+4], math.Float32bits(float32(v)))
			pos += 4
		}
	}

	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("params: write %s: %w", path, err)
	}
	return nil
}

// LoadFile reads parameter values from path. Every tensor in the store must
// be present with a matching shape; the store is only mutated once the whole
// file has validated, so a failed load leaves existing values intact.
func (s *ParamStore) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}
	if len(data) < 8 {
		return fmt.Errorf("params: file too small: %d bytes", len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])
	if headerLen > uint64(len(data)-8) {
		return fmt.Errorf("params: header length %d exceeds file size", headerLen)
	}

	var header map[string]tensorMeta
	if err := json.Unmarshal(data[8:8+headerLen], &header); err != nil {
		return fmt.Errorf("params: parse header: %w", err)
	}

	payload := data[8+headerLen:]
	loaded := make(map[string][]float64, len(s.names))
	for _, name := range s.names {
		meta, ok := header[name]
		if !ok {
			return fmt.Errorf("params: tensor %q not found in %s", name, path)
		}
		if meta.Dtype != "F32" {
			return fmt.Errorf("params: tensor %q: expected dtype F32, got %s", name, meta.Dtype)
		}
		r, c := s.params[name].Dims()
		if len(meta.Shape) != 2 || meta.Shape[0] != r || meta.Shape[1] != c {
			return fmt.Errorf("params: tensor %q: shape %v does not match [%d %d]", name, meta.Shape, r, c)
		}
		start, end := meta.DataOffsets[0], meta.DataOffsets[1]
		if start < 0 || end > len(payload) || end-start != r*c*4 {
			return fmt.Errorf("params: tensor %q: data range [%d:%d] invalid for %d floats", name, start, end, r*c)
		}
		vals := make([]float64, r*c)
		for i := range vals {
			bits := binary.LittleEndian.Uint32(payload[start+i*4 : start+i*4+4])
			vals[i] = float64(math.Float32frombits(bits))
		}
		loaded[name] = vals
	}

	for name, vals := range loaded {
		copy(s.params[name].RawMatrix().Data, vals)
	}
	return nil
}
