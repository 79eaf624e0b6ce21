// Command bucketseq trains an LSTM sequence classifier on a labeled text
// CSV and saves the learned parameters and vocabulary.
package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/crimson-sun/bucketseq/internal/config"
	"github.com/crimson-sun/bucketseq/internal/corpus"
	"github.com/crimson-sun/bucketseq/internal/dataset"
	"github.com/crimson-sun/bucketseq/internal/textenc"
	"github.com/crimson-sun/bucketseq/pkg/bucketseq"
)

func main() {
	cfg := config.Load()

	// Load and encode the corpus.
	c, err := corpus.LoadCSV(cfg.Data.CSVPath)
	if err != nil {
		log.Fatalf("failed to load corpus: %v", err)
	}
	tokens := textenc.TokenizeAll(c.Texts())
	vocab := textenc.BuildVocab(tokens, cfg.Data.MinCount)
	seqs := vocab.EncodeAll(tokens)
	labels := c.LabelIDs()

	numClasses := cfg.Model.NumClasses
	if c.NumClasses() > numClasses {
		numClasses = c.NumClasses()
	}

	// Hold out the tail of the corpus for evaluation.
	split := len(seqs) - int(float64(len(seqs))*cfg.Data.EvalFraction)
	if split < 1 {
		split = 1
	}

	iterOpts := []dataset.Option{dataset.WithBatchSize(cfg.Train.BatchSize)}
	if len(cfg.Train.Buckets) > 0 {
		iterOpts = append(iterOpts, dataset.WithBuckets(cfg.Train.Buckets))
	}
	train, err := dataset.NewBucketIter(seqs[:split], labels[:split],
		append(iterOpts, dataset.WithShuffle(cfg.Train.Seed))...)
	if err != nil {
		log.Fatalf("failed to build training iterator: %v", err)
	}
	var eval dataset.Iter
	if split < len(seqs) {
		it, err := dataset.NewBucketIter(seqs[split:], labels[split:], iterOpts...)
		if err != nil {
			log.Fatalf("failed to build eval iterator: %v", err)
		}
		eval = it
	}

	clf, err := bucketseq.New(
		bucketseq.WithVocabSize(vocab.Size()),
		bucketseq.WithHiddenSize(cfg.Model.NumHidden),
		bucketseq.WithEmbeddingSize(cfg.Model.NumEmbed),
		bucketseq.WithLSTMLayers(cfg.Model.LSTMLayers),
		bucketseq.WithNumClasses(numClasses),
		bucketseq.WithParamsFile(cfg.Model.ParamsFile),
		bucketseq.WithLearningRate(cfg.Train.LearningRate),
		bucketseq.WithOptimizer(cfg.Train.Optimizer),
		bucketseq.WithMetric(cfg.Train.Metric),
		bucketseq.WithGPUs(cfg.Train.GPUs...),
		bucketseq.WithCPUs(cfg.Train.CPUs...),
		bucketseq.WithSeed(cfg.Train.Seed),
		bucketseq.WithLogDir(cfg.Logging.RootDir),
		bucketseq.WithLogConfig(cfg.Logging.ConfigPath),
	)
	if err != nil {
		log.Fatalf("failed to create classifier: %v", err)
	}
	defer clf.Close()

	if err := clf.Initialize(train); err != nil {
		log.Fatalf("failed to initialize classifier: %v", err)
	}

	fmt.Fprintf(os.Stderr, "bucketseq: training on %d samples, %d classes, vocab %d\n",
		split, numClasses, vocab.Size())
	if err := clf.TrainEpochs(train, eval, cfg.Train.Epochs); err != nil {
		log.Fatalf("training failed: %v", err)
	}

	for _, dir := range []string{filepath.Dir(cfg.Model.ParamsFile), filepath.Dir(cfg.Data.VocabPath)} {
		if dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("failed to create model directory: %v", err)
		}
	}
	if err := clf.Save(cfg.Model.ParamsFile, 0); err != nil {
		log.Fatalf("failed to save parameters: %v", err)
	}
	if err := vocab.Save(cfg.Data.VocabPath); err != nil {
		log.Fatalf("failed to save vocabulary: %v", err)
	}
	fmt.Fprintf(os.Stderr, "bucketseq: saved parameters to %s and vocabulary to %s\n",
		cfg.Model.ParamsFile, cfg.Data.VocabPath)
}
