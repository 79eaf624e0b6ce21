// Package dataset provides the bucketing sequence iterator: variable-length
// integer token sequences are grouped into fixed-length buckets so batches
// have a fixed shape per bucket.
package dataset

// DataDesc describes the name and shape of one input the iterator provides.
type DataDesc struct {
	Name  string
	Shape []int
}

// Batch is one bucketed minibatch. Data rows are padded to BucketKey; the
// row count of the final batch of a bucket may be smaller than the batch
// size — rows are never synthesized.
type Batch struct {
	BucketKey int
	Data      [][]int // [rows][BucketKey] token indices
	Labels    []int   // [rows]
}

// Size returns the number of rows in the batch.
func (b *Batch) Size() int { return len(b.Data) }

// Iter is the sequential iteration contract consumed by the training loop:
// Reset, then Next/Batch until Next returns false.
type Iter interface {
	Reset()
	Next() bool
	Batch() *Batch
}

// BucketedIter is the full bucketing-iterator contract the model runtime
// binds against.
type BucketedIter interface {
	Iter
	DefaultBucketKey() int
	ProvideData() DataDesc
	ProvideLabel() DataDesc
}
