package bucketseq

import "github.com/crimson-sun/bucketseq/internal/dataset"

// Re-exported iterator surface so callers outside the module can construct
// and consume bucketing iterators.
type (
	// Iter is the minimal batch iterator contract accepted by TrainEpochs.
	Iter = dataset.Iter
	// BucketedIter is the contract Initialize requires: an Iter that also
	// declares its default bucket key and input/label shapes.
	BucketedIter = dataset.BucketedIter
	// BucketIter pads variable-length sequences into fixed-length buckets
	// and batches per bucket.
	BucketIter = dataset.BucketIter
	// Batch is one padded data/label batch tagged with its bucket length.
	Batch = dataset.Batch
	// DataDesc describes the name and shape of an iterator endpoint.
	DataDesc = dataset.DataDesc
	// IterOption configures a BucketIter.
	IterOption = dataset.Option
)

// NewBucketIter creates a bucketing iterator over parallel sequence and
// label slices.
func NewBucketIter(seqs [][]int, labels []int, opts ...IterOption) (*BucketIter, error) {
	return dataset.NewBucketIter(seqs, labels, opts...)
}

// WithBuckets supplies explicit bucket lengths instead of inferring them
// from the data.
func WithBuckets(buckets []int) IterOption {
	return dataset.WithBuckets(buckets)
}

// WithBatchSize sets the iterator batch size. Default: 32.
func WithBatchSize(n int) IterOption {
	return dataset.WithBatchSize(n)
}

// WithShuffle enables seeded shuffling of sample and batch order on every
// Reset.
func WithShuffle(seed int64) IterOption {
	return dataset.WithShuffle(seed)
}
