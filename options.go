package vectodb

import (
	"github.com/deepfabric/vectodb/flatstore"
	"github.com/deepfabric/vectodb/internal/compress"
	"github.com/deepfabric/vectodb/metric"
)

// DefaultDesiredNtrain is the minimum ntotal before Sync will train a
// resident index for the first time.
const DefaultDesiredNtrain = 10000

// DefaultAllowAddGap is the maximum un-indexed tail Sync will tolerate
// before retraining; below this, Sync re-exports the existing artifact
// unchanged.
const DefaultAllowAddGap = 10000

// Config captures every per-database knob in one struct, in place of the
// source's global mutable configuration state.
type Config struct {
	Metric        metric.Kind
	MetricArg     float32
	Extra         metric.ExtraFunc
	Recipe        string
	QueryParams   string
	DistThreshold float32

	DesiredNtrain int
	AllowAddGap   int

	InitialCapacity     uint64
	ArtifactCompression compress.Type

	Logger *Logger
}

func defaultConfig() Config {
	return Config{
		Metric:              metric.L2,
		Recipe:              "Flat",
		DesiredNtrain:       DefaultDesiredNtrain,
		AllowAddGap:         DefaultAllowAddGap,
		InitialCapacity:     flatstore.DefaultCapacity,
		ArtifactCompression: compress.ZSTD,
		Logger:              NoopLogger(),
	}
}

// Option configures Open.
type Option func(*Config)

// WithMetric sets the distance metric and, for the Extra kind, the scalar
// metricArg and the pluggable distance function. The metric is fixed for
// the working directory's lifetime; it cannot be changed by a later Open.
func WithMetric(kind metric.Kind, metricArg float32, extra metric.ExtraFunc) Option {
	return func(c *Config) {
		c.Metric = kind
		c.MetricArg = metricArg
		c.Extra = extra
	}
}

// WithRecipe sets the ANN index recipe string Sync trains against, e.g.
// "Flat", "IVF4096,PQ32", "IVF4096_HNSW32,Flat".
func WithRecipe(recipe string) Option {
	return func(c *Config) { c.Recipe = recipe }
}

// WithQueryParams sets the default recipe parameter string applied to the
// resident index at Open/Sync time, e.g. "nprobe=8,k_factor=4".
func WithQueryParams(params string) Option {
	return func(c *Config) { c.QueryParams = params }
}

// WithDistThreshold stores threshold in Config.DistThreshold. RangeSearch
// takes its threshold as an argument and does not read this value.
func WithDistThreshold(threshold float32) Option {
	return func(c *Config) { c.DistThreshold = threshold }
}

// WithDesiredNtrain sets the minimum ntotal before Sync will train a
// resident index for the first time.
func WithDesiredNtrain(n int) Option {
	return func(c *Config) { c.DesiredNtrain = n }
}

// WithAllowAddGap sets the un-indexed tail size Sync tolerates before
// retraining rather than re-exporting the existing index artifact.
func WithAllowAddGap(n int) Option {
	return func(c *Config) { c.AllowAddGap = n }
}

// WithInitialCapacity sets the flat store's pre-allocated record capacity
// at creation time. Ignored when reopening an existing working directory.
func WithInitialCapacity(capacity uint64) Option {
	return func(c *Config) { c.InitialCapacity = capacity }
}

// WithArtifactCompression selects the compression algorithm used to frame
// .index artifacts written by Sync.
func WithArtifactCompression(t compress.Type) Option {
	return func(c *Config) { c.ArtifactCompression = t }
}

// WithLogger configures structured logging for operations. Pass nil to
// disable logging.
func WithLogger(logger *Logger) Option {
	return func(c *Config) {
		if logger == nil {
			logger = NoopLogger()
		}
		c.Logger = logger
	}
}

func applyOptions(opts []Option) Config {
	c := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}
