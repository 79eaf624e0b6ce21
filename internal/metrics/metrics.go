// Package metrics provides evaluation metrics over softmax class
// probabilities.
package metrics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// EvalMetric accumulates a running evaluation over batches of predictions.
// Update takes the true labels and one row of class probabilities per sample.
type EvalMetric interface {
	Name() string
	Reset()
	Update(labels []int, outputs [][]float64)
	Value() float64
}

// New returns the metric registered under the given name: "acc",
// "cross-entropy" or "topk" (top-3).
func New(name string) (EvalMetric, error) {
	switch name {
	case "acc":
		return &Accuracy{}, nil
	case "cross-entropy":
		return &CrossEntropy{}, nil
	case "topk":
		return NewTopKAccuracy(3), nil
	default:
		return nil, fmt.Errorf("metrics: unknown metric %q", name)
	}
}

// Accuracy is the fraction of samples whose arg-max class matches the label.
type Accuracy struct {
	correct int
	total   int
}

func (a *Accuracy) Name() string { return "accuracy" }

func (a *Accuracy) Reset() { a.correct, a.total = 0, 0 }

func (a *Accuracy) Update(labels []int, outputs [][]float64) {
	for i, row := range outputs {
		if i >= len(labels) {
			break
		}
		if floats.MaxIdx(row) == labels[i] {
			a.correct++
		}
		a.total++
	}
}

func (a *Accuracy) Value() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.correct) / float64(a.total)
}

// CrossEntropy is the mean negative log probability of the true class.
type CrossEntropy struct {
	sum   float64
	total int
}

const probFloor = 1e-10

func (c *CrossEntropy) Name() string { return "cross-entropy" }

func (c *CrossEntropy) Reset() { c.sum, c.total = 0, 0 }

func (c *CrossEntropy) Update(labels []int, outputs [][]float64) {
	for i, row := range outputs {
		if i >= len(labels) {
			break
		}
		label := labels[i]
		if label < 0 || label >= len(row) {
			continue
		}
		c.sum += -math.Log(math.Max(row[label], probFloor))
		c.total++
	}
}

func (c *CrossEntropy) Value() float64 {
	if c.total == 0 {
		return 0
	}
	return c.sum / float64(c.total)
}

// TopKAccuracy is the fraction of samples whose label appears among the k
// highest-probability classes.
type TopKAccuracy struct {
	k       int
	correct int
	total   int
}

// NewTopKAccuracy creates a TopKAccuracy for the given k.
func NewTopKAccuracy(k int) *TopKAccuracy {
	if k < 1 {
		k = 1
	}
	return &TopKAccuracy{k: k}
}

func (t *TopKAccuracy) Name() string { return fmt.Sprintf("top_%d_accuracy", t.k) }

func (t *TopKAccuracy) Reset() { t.correct, t.total = 0, 0 }

func (t *TopKAccuracy) Update(labels []int, outputs [][]float64) {
	for i, row := range outputs {
		if i >= len(labels) {
			break
		}
		label := labels[i]
		if label < 0 || label >= len(row) {
			t.total++
			continue
		}
		// Rank of the label's probability: number of classes scoring
		// strictly higher.
		higher := 0
		for c, p := range row {
			if p > row[label] || (p == row[label] && c < label) {
				higher++
			}
		}
		if higher < t.k {
			t.correct++
		}
		t.total++
	}
}

func (t *TopKAccuracy) Value() float64 {
	if t.total == 0 {
		return 0
	}
	return float64(t.correct) / float64(t.total)
}
