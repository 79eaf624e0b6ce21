package dataset

import (
	"fmt"
	"math/rand"
	"sort"
)

const defaultBatchSize = 32

// PadID is the token index used to pad sequences up to their bucket length.
// Vocabularies built by textenc reserve index 0 for padding.
const PadID = 0

// Option configures a BucketIter.
type Option func(*BucketIter)

// WithBuckets sets explicit bucket lengths. Without this option the buckets
// are inferred from the distinct sequence lengths present in the data.
func WithBuckets(buckets []int) Option {
	return func(it *BucketIter) { it.buckets = append([]int(nil), buckets...) }
}

// WithBatchSize sets the maximum rows per batch. Default: 32.
func WithBatchSize(n int) Option {
	return func(it *BucketIter) {
		if n > 0 {
			it.batchSize = n
		}
	}
}

// WithShuffle enables seeded shuffling of sample order within buckets and of
// batch order on every Reset. Without it, iteration order is deterministic:
// buckets ascending, samples in input order.
func WithShuffle(seed int64) Option {
	return func(it *BucketIter) {
		it.shuffle = true
		it.rng = rand.New(rand.NewSource(seed))
	}
}

// BucketIter groups (sequence, label) pairs into fixed-length buckets and
// yields padded batches. Each sequence lands in the smallest bucket that
// holds it; sequences longer than the largest bucket are truncated to it.
type BucketIter struct {
	seqs   [][]int
	labels []int

	buckets   []int
	batchSize int
	shuffle   bool
	rng       *rand.Rand

	// perBucket[i] holds indices into seqs assigned to buckets[i].
	perBucket [][]int
	plan      []planEntry
	cursor    int
	current   *Batch
}

type planEntry struct {
	bucket  int // bucket length
	samples []int
}

// NewBucketIter creates a bucketing iterator over parallel sequence and
// label slices. Empty input is valid and yields no batches.
func NewBucketIter(seqs [][]int, labels []int, opts ...Option) (*BucketIter, error) {
	if len(seqs) != len(labels) {
		return nil, fmt.Errorf("dataset: %d sequences but %d labels", len(seqs), len(labels))
	}
	it := &BucketIter{
		seqs:      seqs,
		labels:    labels,
		batchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(it)
	}
	if len(it.buckets) == 0 {
		it.buckets = inferBuckets(seqs)
	} else {
		it.buckets = append([]int(nil), it.buckets...)
		sort.Ints(it.buckets)
		for _, b := range it.buckets {
			if b <= 0 {
				return nil, fmt.Errorf("dataset: bucket length %d is not positive", b)
			}
		}
	}
	it.assign()
	it.Reset()
	return it, nil
}

// inferBuckets derives bucket lengths from the distinct sequence lengths in
// the data. Zero-length sequences pad into a bucket of length 1.
func inferBuckets(seqs [][]int) []int {
	seen := map[int]bool{}
	for _, s := range seqs {
		n := len(s)
		if n == 0 {
			n = 1
		}
		seen[n] = true
	}
	buckets := make([]int, 0, len(seen))
	for n := range seen {
		buckets = append(buckets, n)
	}
	sort.Ints(buckets)
	return buckets
}

// assign places every sample index into its bucket.
func (it *BucketIter) assign() {
	it.perBucket = make([][]int, len(it.buckets))
	for i, s := range it.seqs {
		b := it.bucketFor(len(s))
		it.perBucket[b] = append(it.perBucket[b], i)
	}
}

// bucketFor returns the index of the smallest bucket holding a sequence of
// the given length, or the largest bucket when none does.
func (it *BucketIter) bucketFor(n int) int {
	for i, b := range it.buckets {
		if n <= b {
			return i
		}
	}
	return len(it.buckets) - 1
}

// Reset rewinds the iterator. With shuffling enabled it also resamples the
// within-bucket sample order and the batch order.
func (it *BucketIter) Reset() {
	it.plan = it.plan[:0]
	for bi, samples := range it.perBucket {
		order := samples
		if it.shuffle {
			order = append([]int(nil), samples...)
			it.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		}
		for start := 0; start < len(order); start += it.batchSize {
			end := start + it.batchSize
			if end > len(order) {
				end = len(order)
			}
			it.plan = append(it.plan, planEntry{bucket: it.buckets[bi], samples: order[start:end]})
		}
	}
	if it.shuffle {
		it.rng.Shuffle(len(it.plan), func(i, j int) { it.plan[i], it.plan[j] = it.plan[j], it.plan[i] })
	}
	it.cursor = -1
	it.current = nil
}

// Next advances to the following batch, materializing its padded rows.
func (it *BucketIter) Next() bool {
	if it.cursor+1 >= len(it.plan) {
		it.current = nil
		return false
	}
	it.cursor++
	entry := it.plan[it.cursor]
	batch := &Batch{
		BucketKey: entry.bucket,
		Data:      make([][]int, len(entry.samples)),
		Labels:    make([]int, len(entry.samples)),
	}
	for row, idx := range entry.samples {
		seq := it.seqs[idx]
		if len(seq) > entry.bucket {
			seq = seq[:entry.bucket]
		}
		padded := make([]int, entry.bucket)
		copy(padded, seq)
		for i := len(seq); i < entry.bucket; i++ {
			padded[i] = PadID
		}
		batch.Data[row] = padded
		batch.Labels[row] = it.labels[idx]
	}
	it.current = batch
	return true
}

// Batch returns the batch produced by the last successful Next.
func (it *BucketIter) Batch() *Batch { return it.current }

// DefaultBucketKey returns the largest bucket length; the runtime compiles
// this bucket's graph at bind time.
func (it *BucketIter) DefaultBucketKey() int {
	if len(it.buckets) == 0 {
		return 0
	}
	return it.buckets[len(it.buckets)-1]
}

// NumBatches returns how many batches one full pass yields.
func (it *BucketIter) NumBatches() int { return len(it.plan) }

// ProvideData describes the token input shape for the default bucket.
func (it *BucketIter) ProvideData() DataDesc {
	return DataDesc{Name: "data", Shape: []int{it.batchSize, it.DefaultBucketKey()}}
}

// ProvideLabel describes the label input shape.
func (it *BucketIter) ProvideLabel() DataDesc {
	return DataDesc{Name: "softmax_label", Shape: []int{it.batchSize}}
}
