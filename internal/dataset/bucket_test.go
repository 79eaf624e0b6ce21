package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, it Iter) []*Batch {
	t.Helper()
	var batches []*Batch
	for it.Next() {
		batches = append(batches, it.Batch())
	}
	return batches
}

func TestBucketAssignmentAndPadding(t *testing.T) {
	seqs := [][]int{
		{1, 2},          // bucket 4
		{3, 4, 5, 6},    // bucket 4
		{7, 8, 9, 10, 11, 12}, // bucket 8
	}
	it, err := NewBucketIter(seqs, []int{0, 1, 2}, WithBuckets([]int{4, 8}), WithBatchSize(2))
	require.NoError(t, err)

	batches := collect(t, it)
	require.Len(t, batches, 2)

	require.Equal(t, 4, batches[0].BucketKey)
	assert.Equal(t, [][]int{{1, 2, 0, 0}, {3, 4, 5, 6}}, batches[0].Data)
	assert.Equal(t, []int{0, 1}, batches[0].Labels)

	require.Equal(t, 8, batches[1].BucketKey)
	assert.Equal(t, [][]int{{7, 8, 9, 10, 11, 12, 0, 0}}, batches[1].Data)
	assert.Equal(t, []int{2}, batches[1].Labels)
}

func TestOverlongSequenceTruncates(t *testing.T) {
	it, err := NewBucketIter([][]int{{1, 2, 3, 4, 5}}, []int{0}, WithBuckets([]int{3}))
	require.NoError(t, err)
	batches := collect(t, it)
	require.Len(t, batches, 1)
	assert.Equal(t, [][]int{{1, 2, 3}}, batches[0].Data)
}

func TestInferredBuckets(t *testing.T) {
	seqs := [][]int{{1}, {1, 2, 3}, {1, 2, 3}, {}}
	it, err := NewBucketIter(seqs, []int{0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 3, it.DefaultBucketKey())
	// Empty sequences pad into a length-1 bucket rather than producing a
	// zero-length graph.
	batches := collect(t, it)
	total := 0
	for _, b := range batches {
		require.Positive(t, b.BucketKey)
		total += b.Size()
	}
	assert.Equal(t, 4, total)
}

func TestPartialFinalBatchKeepsTrueRowCount(t *testing.T) {
	seqs := make([][]int, 5)
	labels := make([]int, 5)
	for i := range seqs {
		seqs[i] = []int{1, 2}
		labels[i] = i
	}
	it, err := NewBucketIter(seqs, labels, WithBuckets([]int{2}), WithBatchSize(2))
	require.NoError(t, err)
	batches := collect(t, it)
	require.Len(t, batches, 3)
	assert.Equal(t, 2, batches[0].Size())
	assert.Equal(t, 2, batches[1].Size())
	assert.Equal(t, 1, batches[2].Size())
	assert.Equal(t, []int{4}, batches[2].Labels)
}

func TestEmptyInput(t *testing.T) {
	it, err := NewBucketIter(nil, nil)
	require.NoError(t, err)
	assert.False(t, it.Next())
	assert.Zero(t, it.NumBatches())
}

func TestMismatchedLabels(t *testing.T) {
	_, err := NewBucketIter([][]int{{1}}, []int{0, 1})
	require.Error(t, err)
}

func TestResetReplays(t *testing.T) {
	seqs := [][]int{{1}, {2}, {3}}
	it, err := NewBucketIter(seqs, []int{0, 1, 2}, WithBatchSize(2))
	require.NoError(t, err)

	first := collect(t, it)
	it.Reset()
	second := collect(t, it)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Data, second[i].Data)
		assert.Equal(t, first[i].Labels, second[i].Labels)
	}
}

func TestShuffleIsSeededAndComplete(t *testing.T) {
	n := 64
	seqs := make([][]int, n)
	labels := make([]int, n)
	for i := range seqs {
		seqs[i] = []int{i + 1}
		labels[i] = i
	}

	gather := func(seed int64) []int {
		it, err := NewBucketIter(seqs, labels, WithBatchSize(8), WithShuffle(seed))
		require.NoError(t, err)
		var got []int
		for it.Next() {
			got = append(got, it.Batch().Labels...)
		}
		return got
	}

	a := gather(7)
	b := gather(7)
	assert.Equal(t, a, b, "same seed must reproduce the same order")

	seen := make(map[int]bool, n)
	for _, l := range a {
		seen[l] = true
	}
	assert.Len(t, seen, n, "shuffle must not drop or duplicate samples")
}

func TestProvideShapes(t *testing.T) {
	it, err := NewBucketIter([][]int{{1, 2, 3}}, []int{0}, WithBuckets([]int{10, 20}), WithBatchSize(16))
	require.NoError(t, err)

	data := it.ProvideData()
	assert.Equal(t, "data", data.Name)
	assert.Equal(t, []int{16, 20}, data.Shape)

	label := it.ProvideLabel()
	assert.Equal(t, "softmax_label", label.Name)
	assert.Equal(t, []int{16}, label.Shape)
}
