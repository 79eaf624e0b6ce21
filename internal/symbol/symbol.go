// Package symbol declares computation graphs for the bucketed sequence
// classifier. A graph is a description only — layers and their connections —
// and never holds parameter values; the runtime compiles one executor per
// bucket length against a shared parameter store.
package symbol

import "fmt"

// Op identifies a node kind in the graph.
type Op string

const (
	OpEmbedding      Op = "Embedding"
	OpLSTM           Op = "LSTM"
	OpFullyConnected Op = "FullyConnected"
	OpSoftmaxOutput  Op = "SoftmaxOutput"
)

// Node is one layer in a graph. Input names the node whose full output
// sequence this node consumes.
type Node struct {
	Name  string
	Op    Op
	Input string

	// Embedding
	InputDim  int
	OutputDim int

	// LSTM
	NumHidden int

	// FullyConnected
	NumClasses int
}

// Graph is a declarative description of the unrolled model for one sequence
// length. Endpoint names are fixed regardless of SeqLen.
type Graph struct {
	SeqLen int
	Nodes  []Node
}

// DataName is the raw token input endpoint.
const DataName = "data"

// LabelName is the integer label input endpoint.
const LabelName = "softmax_label"

// OutputName is the softmax-normalized class probability output endpoint.
const OutputName = "softmax_output"

// DataNames returns the graph's input endpoint names.
func (g *Graph) DataNames() []string { return []string{DataName} }

// LabelNames returns the graph's label endpoint names.
func (g *Graph) LabelNames() []string { return []string{LabelName} }

// OutputNames returns the graph's output endpoint names.
func (g *Graph) OutputNames() []string { return []string{OutputName} }

// LSTMNodes returns the graph's recurrent nodes in stacking order.
func (g *Graph) LSTMNodes() []Node {
	var nodes []Node
	for _, n := range g.Nodes {
		if n.Op == OpLSTM {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// Generator maps a bucket key (sequence length) to a graph description.
type Generator func(seqLen int) *Graph

// Config holds the hyperparameters that shape every generated graph.
type Config struct {
	InputDim   int // vocabulary size
	NumEmbed   int
	NumHidden  int
	LSTMLayers int
	NumClasses int
}

// NewGenerator returns the symbol generator for the configured topology:
// embedding → stacked LSTM cells → last-step dense projection → softmax
// loss. For a fixed config and seqLen the returned graph is identical on
// every call.
func NewGenerator(cfg Config) Generator {
	return func(seqLen int) *Graph {
		nodes := make([]Node, 0, cfg.LSTMLayers+3)
		nodes = append(nodes, Node{
			Name:      "embed",
			Op:        OpEmbedding,
			Input:     DataName,
			InputDim:  cfg.InputDim,
			OutputDim: cfg.NumEmbed,
		})
		prev := "embed"
		for i := 0; i < cfg.LSTMLayers; i++ {
			name := fmt.Sprintf("lstm_%d_", i+1)
			nodes = append(nodes, Node{
				Name:      name,
				Op:        OpLSTM,
				Input:     prev,
				NumHidden: cfg.NumHidden,
			})
			prev = name
		}
		nodes = append(nodes, Node{
			Name:       "logits",
			Op:         OpFullyConnected,
			Input:      prev,
			NumClasses: cfg.NumClasses,
		})
		nodes = append(nodes, Node{
			Name:  "softmax",
			Op:    OpSoftmaxOutput,
			Input: "logits",
		})
		return &Graph{SeqLen: seqLen, Nodes: nodes}
	}
}
