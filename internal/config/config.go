package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all bucketseq CLI configuration.
type Config struct {
	Data    DataConfig
	Model   ModelConfig
	Train   TrainConfig
	Logging LoggingConfig
}

// DataConfig holds corpus and vocabulary settings.
type DataConfig struct {
	CSVPath      string
	VocabPath    string
	MinCount     int
	EvalFraction float64
}

// ModelConfig holds network architecture settings.
type ModelConfig struct {
	NumHidden  int
	NumEmbed   int
	LSTMLayers int
	NumClasses int
	ParamsFile string
}

// TrainConfig holds optimization settings.
type TrainConfig struct {
	LearningRate float64
	Optimizer    string
	Metric       string
	Epochs       int
	BatchSize    int
	Buckets      []int
	Seed         int64
	CPUs         []int
	GPUs         []int
}

// LoggingConfig holds log destination settings.
type LoggingConfig struct {
	RootDir    string
	ConfigPath string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	return Config{
		Data: DataConfig{
			CSVPath:      getenv("BUCKETSEQ_DATA_CSV", "datasets/train.csv"),
			VocabPath:    getenv("BUCKETSEQ_VOCAB_PATH", "models/vocab.txt"),
			MinCount:     getenvInt("BUCKETSEQ_MIN_COUNT", 1),
			EvalFraction: getenvFloat("BUCKETSEQ_EVAL_FRACTION", 0.2),
		},
		Model: ModelConfig{
			NumHidden:  getenvInt("BUCKETSEQ_NUM_HIDDEN", 256),
			NumEmbed:   getenvInt("BUCKETSEQ_NUM_EMBED", 128),
			LSTMLayers: getenvInt("BUCKETSEQ_LSTM_LAYERS", 1),
			NumClasses: getenvInt("BUCKETSEQ_NUM_CLASSES", 2),
			ParamsFile: getenv("BUCKETSEQ_PARAMS_FILE", "models/seqclassifier.params"),
		},
		Train: TrainConfig{
			LearningRate: getenvFloat("BUCKETSEQ_LEARNING_RATE", 0.1),
			Optimizer:    getenv("BUCKETSEQ_OPTIMIZER", "sgd"),
			Metric:       getenv("BUCKETSEQ_METRIC", "acc"),
			Epochs:       getenvInt("BUCKETSEQ_EPOCHS", 10),
			BatchSize:    getenvInt("BUCKETSEQ_BATCH_SIZE", 32),
			Buckets:      getenvInts("BUCKETSEQ_BUCKETS", nil),
			Seed:         int64(getenvInt("BUCKETSEQ_SEED", 42)),
			CPUs:         getenvInts("BUCKETSEQ_CPUS", nil),
			GPUs:         getenvInts("BUCKETSEQ_GPUS", nil),
		},
		Logging: LoggingConfig{
			RootDir:    getenv("BUCKETSEQ_LOG_DIR", "logs/"),
			ConfigPath: getenv("BUCKETSEQ_LOG_CONFIG", "configs/logging.yaml"),
		},
	}
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

// getenvInts parses a comma-separated list of integers. A malformed entry
// causes the whole variable to be ignored in favor of the fallback.
func getenvInts(key string, fallback []int) []int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return fallback
		}
		out = append(out, n)
	}
	return out
}
