package bucketseq

type options struct {
	numHidden    int
	numEmbed     int
	vocabSize    int
	lstmLayers   int
	numClasses   int
	paramsFile   string
	learningRate float64
	optimizer    string
	metric       string
	gpus         []int
	cpus         []int
	seed         int64
	logRoot      string
	logConfig    string
	noLogging    bool
}

// Option configures a Classifier instance.
type Option func(*options)

// WithVocabSize sets the token vocabulary size. Required: the embedding
// table cannot be allocated without it.
func WithVocabSize(n int) Option {
	return func(o *options) {
		o.vocabSize = n
	}
}

// WithHiddenSize sets the LSTM hidden state width. Default: 256.
func WithHiddenSize(n int) Option {
	return func(o *options) {
		o.numHidden = n
	}
}

// WithEmbeddingSize sets the token embedding width. Default: 128.
func WithEmbeddingSize(n int) Option {
	return func(o *options) {
		o.numEmbed = n
	}
}

// WithLSTMLayers sets the number of stacked LSTM cells. Default: 1.
func WithLSTMLayers(n int) Option {
	return func(o *options) {
		o.lstmLayers = n
	}
}

// WithNumClasses sets the number of output classes. Default: 2.
func WithNumClasses(n int) Option {
	return func(o *options) {
		o.numClasses = n
	}
}

// WithParamsFile sets a saved-parameters path that Initialize attempts to
// load. A missing or unreadable file degrades to fresh parameters with a
// logged warning.
func WithParamsFile(path string) Option {
	return func(o *options) {
		o.paramsFile = path
	}
}

// WithLearningRate sets the optimizer learning rate. Default: 0.1.
func WithLearningRate(lr float64) Option {
	return func(o *options) {
		o.learningRate = lr
	}
}

// WithOptimizer selects the update rule by registry name: "sgd" or "adam".
// Default: "sgd".
func WithOptimizer(name string) Option {
	return func(o *options) {
		o.optimizer = name
	}
}

// WithMetric selects the evaluation metric: "acc", "cross-entropy" or
// "topk". Default: "acc".
func WithMetric(name string) Option {
	return func(o *options) {
		o.metric = name
	}
}

// WithGPUs selects GPU device indices. Mutually exclusive with WithCPUs.
func WithGPUs(indices ...int) Option {
	return func(o *options) {
		o.gpus = indices
	}
}

// WithCPUs selects CPU worker indices. Mutually exclusive with WithGPUs.
func WithCPUs(indices ...int) Option {
	return func(o *options) {
		o.cpus = indices
	}
}

// WithSeed sets the seed for fresh parameter initialization. Default: 42.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithLogDir sets the root directory for per-instance log files.
// Default: "logs/".
func WithLogDir(dir string) Option {
	return func(o *options) {
		o.logRoot = dir
	}
}

// WithLogConfig sets the YAML logging configuration path. A missing file
// degrades to console logging with a warning. Default:
// "configs/logging.yaml".
func WithLogConfig(path string) Option {
	return func(o *options) {
		o.logConfig = path
	}
}

// WithoutLogging disables the instance logger entirely: no log directory is
// created and no config file is read. For embedding callers that handle
// their own logging.
func WithoutLogging() Option {
	return func(o *options) {
		o.noLogging = true
	}
}

func defaultOptions() options {
	return options{
		numHidden:    256,
		numEmbed:     128,
		lstmLayers:   1,
		numClasses:   2,
		learningRate: 0.1,
		optimizer:    "sgd",
		metric:       "acc",
		seed:         42,
		logRoot:      "logs/",
		logConfig:    "configs/logging.yaml",
	}
}
