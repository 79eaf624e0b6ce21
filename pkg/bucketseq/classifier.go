package bucketseq

import (
	"errors"
	"fmt"
	"os"

	"gonum.org/v1/gonum/floats"

	"github.com/crimson-sun/bucketseq/internal/dataset"
	"github.com/crimson-sun/bucketseq/internal/device"
	"github.com/crimson-sun/bucketseq/internal/logging"
	"github.com/crimson-sun/bucketseq/internal/metrics"
	"github.com/crimson-sun/bucketseq/internal/runtime"
	"github.com/crimson-sun/bucketseq/internal/symbol"
)

const defaultEpochs = 10

const defaultPredictBatch = 32

// ErrNotInitialized is returned by operations that require a successful
// Initialize call first.
var ErrNotInitialized = errors.New("bucketseq: classifier is not initialized")

// Classifier is a bucketed LSTM sequence classifier over integer token
// sequences. Construct with New, then Initialize with a bucketing iterator
// before training or prediction. Methods are not safe for concurrent use.
type Classifier struct {
	opts   options
	gen    symbol.Generator
	metric metrics.EvalMetric
	ctxs   []device.Context
	logger *logging.Logger
	model  *runtime.BucketingModel
}

// New validates the configuration and creates an uninitialized Classifier.
// It fails on a missing vocabulary size, an unrecognized metric or
// optimizer name, and conflicting device lists. The instance owns log file
// handles; call Close when done.
func New(opts ...Option) (*Classifier, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.vocabSize <= 0 {
		return nil, errors.New("bucketseq: vocabulary size is required")
	}

	metric, err := metrics.New(o.metric)
	if err != nil {
		return nil, fmt.Errorf("bucketseq: %w", err)
	}
	if _, err := runtime.NewOptimizer(o.optimizer, o.learningRate); err != nil {
		return nil, fmt.Errorf("bucketseq: %w", err)
	}
	ctxs, err := device.Resolve(o.gpus, o.cpus)
	if err != nil {
		return nil, fmt.Errorf("bucketseq: %w", err)
	}
	logger := logging.Discard()
	if !o.noLogging {
		logger, err = logging.New(o.logConfig, o.logRoot, "seqclassifier")
		if err != nil {
			return nil, fmt.Errorf("bucketseq: %w", err)
		}
	}

	gen := symbol.NewGenerator(symbol.Config{
		InputDim:   o.vocabSize,
		NumEmbed:   o.numEmbed,
		NumHidden:  o.numHidden,
		LSTMLayers: o.lstmLayers,
		NumClasses: o.numClasses,
	})

	return &Classifier{
		opts:   o,
		gen:    gen,
		metric: metric,
		ctxs:   ctxs,
		logger: logger,
	}, nil
}

// Initialize builds the bucketing runtime from the iterator's bucket and
// shape declarations. The iterator must be a bucketed iterator; anything
// else is a precondition violation, logged and returned. If a parameters
// file is configured and readable its values are loaded, otherwise
// parameters are freshly initialized; a corrupt file degrades to fresh
// parameters with a warning. The optimizer is configured last.
func (c *Classifier) Initialize(it dataset.Iter) error {
	bi, ok := it.(dataset.BucketedIter)
	if !ok {
		err := fmt.Errorf("bucketseq: initialize requires a bucketed iterator, got %T", it)
		c.logger.Error("initialize failed", "error", err)
		return err
	}

	m := runtime.NewBucketingModel(c.gen, bi.DefaultBucketKey(), c.ctxs, c.logger.Logger)
	if err := m.Bind(bi.ProvideData(), bi.ProvideLabel()); err != nil {
		return err
	}

	loaded := false
	if c.opts.paramsFile != "" {
		if _, err := os.Stat(c.opts.paramsFile); err == nil {
			if err := m.LoadParams(c.opts.paramsFile); err != nil {
				c.logger.Warn("could not load saved parameters, initializing fresh",
					"path", c.opts.paramsFile, "error", err)
			} else {
				loaded = true
				c.logger.Info("loaded parameters", "path", c.opts.paramsFile)
			}
		}
	}
	if !loaded {
		if err := m.InitParams(c.opts.seed); err != nil {
			return err
		}
	}

	if err := m.InitOptimizer(c.opts.optimizer, c.opts.learningRate); err != nil {
		return err
	}
	c.model = m
	return nil
}

// Step runs one forward/backward/update cycle on a single batch, logging a
// cross-entropy diagnostic that is independent of the configured metric.
func (c *Classifier) Step(b *dataset.Batch) error {
	if c.model == nil {
		return ErrNotInitialized
	}
	if err := c.model.Forward(b, true); err != nil {
		return err
	}

	ce := &metrics.CrossEntropy{}
	ce.Update(b.Labels, c.model.Outputs())
	c.logger.Debug("step", "bucket_key", b.BucketKey, "batch_size", b.Size(),
		"cross_entropy", ce.Value())

	if err := c.model.Backward(); err != nil {
		return err
	}
	return c.model.Update()
}

// TrainEpochs runs numEpochs full passes over the training iterator,
// stepping once per batch in iterator order. When eval is non-nil each
// epoch ends with a scoring pass against the configured metric. A
// non-positive numEpochs means 10. No early stopping and no checkpointing;
// call Save explicitly.
func (c *Classifier) TrainEpochs(train, eval dataset.Iter, numEpochs int) error {
	if c.model == nil {
		return ErrNotInitialized
	}
	if numEpochs <= 0 {
		numEpochs = defaultEpochs
	}

	for epoch := 1; epoch <= numEpochs; epoch++ {
		train.Reset()
		for train.Next() {
			if err := c.Step(train.Batch()); err != nil {
				return fmt.Errorf("bucketseq: epoch %d: %w", epoch, err)
			}
		}
		if eval == nil {
			c.logger.Info("epoch complete", "epoch", epoch)
			continue
		}
		eval.Reset()
		value, err := c.model.Score(eval, c.metric)
		if err != nil {
			return fmt.Errorf("bucketseq: epoch %d: %w", epoch, err)
		}
		c.logger.Info("epoch complete", "epoch", epoch,
			"metric", c.metric.Name(), "value", value)
	}
	return nil
}

// Predict classifies a list of token sequences and returns the predicted
// class ids and raw probability rows, both in input order. Bucketing may
// reorder samples internally, so each batch carries sample identifiers as
// labels and results are scattered back by identifier. A non-positive
// batchSize means 32.
func (c *Classifier) Predict(samples [][]int, batchSize int) ([]int, [][]float64, error) {
	if c.model == nil {
		return nil, nil, ErrNotInitialized
	}
	if batchSize <= 0 {
		batchSize = defaultPredictBatch
	}
	labels := make([]int, len(samples))
	scores := make([][]float64, len(samples))
	if len(samples) == 0 {
		return labels, scores, nil
	}

	ids := make([]int, len(samples))
	for i := range ids {
		ids[i] = i
	}
	it, err := dataset.NewBucketIter(samples, ids, dataset.WithBatchSize(batchSize))
	if err != nil {
		return nil, nil, fmt.Errorf("bucketseq: %w", err)
	}

	for it.Next() {
		b := it.Batch()
		if err := c.model.Forward(b, false); err != nil {
			return nil, nil, err
		}
		for row, out := range c.model.Outputs() {
			if row >= b.Size() {
				break
			}
			id := b.Labels[row]
			labels[id] = floats.MaxIdx(out)
			scores[id] = append([]float64(nil), out...)
		}
	}
	return labels, scores, nil
}

// Score runs the iterator through the configured evaluation metric.
func (c *Classifier) Score(it dataset.Iter) (float64, error) {
	if c.model == nil {
		return 0, ErrNotInitialized
	}
	it.Reset()
	return c.model.Score(it, c.metric)
}

// Save persists parameter values to path, suffixed with "-<epoch>" when
// epoch is positive. Graph topology is not saved; loading requires an
// iterator to rebuild bucket graphs first.
func (c *Classifier) Save(path string, epoch int) error {
	if c.model == nil {
		return ErrNotInitialized
	}
	if epoch > 0 {
		path = fmt.Sprintf("%s-%d", path, epoch)
	}
	if err := c.model.SaveParams(path); err != nil {
		return err
	}
	c.logger.Info("saved parameters", "path", path)
	return nil
}

// Close releases the classifier's log file handles.
func (c *Classifier) Close() error {
	return c.logger.Close()
}
