package symbol

import (
	"reflect"
	"testing"
)

func testConfig(layers int) Config {
	return Config{
		InputDim:   1000,
		NumEmbed:   32,
		NumHidden:  64,
		LSTMLayers: layers,
		NumClasses: 4,
	}
}

func TestEndpointNames(t *testing.T) {
	gen := NewGenerator(testConfig(1))
	for _, seqLen := range []int{1, 10, 50, 1000} {
		g := gen(seqLen)
		if got := g.DataNames(); !reflect.DeepEqual(got, []string{"data"}) {
			t.Errorf("seqLen=%d: DataNames() = %v, want [data]", seqLen, got)
		}
		if got := g.LabelNames(); !reflect.DeepEqual(got, []string{"softmax_label"}) {
			t.Errorf("seqLen=%d: LabelNames() = %v, want [softmax_label]", seqLen, got)
		}
		if got := g.OutputNames(); !reflect.DeepEqual(got, []string{"softmax_output"}) {
			t.Errorf("seqLen=%d: OutputNames() = %v, want [softmax_output]", seqLen, got)
		}
		if g.SeqLen != seqLen {
			t.Errorf("SeqLen = %d, want %d", g.SeqLen, seqLen)
		}
	}
}

func TestStackDepth(t *testing.T) {
	for _, layers := range []int{1, 2, 3, 5} {
		gen := NewGenerator(testConfig(layers))
		g := gen(20)
		lstms := g.LSTMNodes()
		if len(lstms) != layers {
			t.Fatalf("layers=%d: got %d LSTM nodes", layers, len(lstms))
		}
		// First cell consumes the embedding, each later cell consumes the
		// full output sequence of the one below it.
		if lstms[0].Input != "embed" {
			t.Errorf("first cell input = %q, want embed", lstms[0].Input)
		}
		for i := 1; i < len(lstms); i++ {
			if lstms[i].Input != lstms[i-1].Name {
				t.Errorf("cell %d input = %q, want %q", i, lstms[i].Input, lstms[i-1].Name)
			}
		}
	}
}

func TestTopologyOrder(t *testing.T) {
	gen := NewGenerator(testConfig(2))
	g := gen(7)
	ops := make([]Op, len(g.Nodes))
	for i, n := range g.Nodes {
		ops[i] = n.Op
	}
	want := []Op{OpEmbedding, OpLSTM, OpLSTM, OpFullyConnected, OpSoftmaxOutput}
	if !reflect.DeepEqual(ops, want) {
		t.Fatalf("node ops = %v, want %v", ops, want)
	}
	head := g.Nodes[len(g.Nodes)-2]
	if head.Name != "logits" || head.NumClasses != 4 {
		t.Errorf("head = %+v, want logits with 4 classes", head)
	}
}

func TestDeterminism(t *testing.T) {
	gen := NewGenerator(testConfig(3))
	a := gen(42)
	b := gen(42)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("generator produced different graphs for identical inputs")
	}
}
