package semdex

import "go.uber.org/zap"

// Option configures the client.
type Option func(*clientConfig)

// regionSource is one corpus region, backed either by a parquet file or by
// records already in memory.
type regionSource struct {
	name    string
	path    string
	records []Paragraph
}

type clientConfig struct {
	regions     []regionSource
	conceptsDir string
	embedder    Embedder
	redisAddrs  []string
	redisPass   string
	logger      *zap.Logger
	kPerPattern int
	concurrency int
}

// WithRegionFile adds a corpus region read from a parquet file at New time.
func WithRegionFile(name, path string) Option {
	return func(c *clientConfig) {
		c.regions = append(c.regions, regionSource{name: name, path: path})
	}
}

// WithRegionRecords adds a corpus region from records already in memory.
func WithRegionRecords(name string, records []Paragraph) Option {
	return func(c *clientConfig) {
		c.regions = append(c.regions, regionSource{name: name, records: records})
	}
}

// WithConceptsDir sets the directory holding concept definition YAML files.
// Default is "concepts".
func WithConceptsDir(dir string) Option {
	return func(c *clientConfig) { c.conceptsDir = dir }
}

// WithEmbedder sets the embedding provider used for concept query patterns
// and free-text search. Required for Measure, Retrieve, and Query.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) { c.embedder = e }
}

// WithRedis connects a Redis-compatible store used for threshold persistence
// and the pattern embedding cache. Without it thresholds live in memory.
func WithRedis(addr, password string) Option {
	return func(c *clientConfig) {
		c.redisAddrs = []string{addr}
		c.redisPass = password
	}
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) { c.logger = logger }
}

// WithKPerPattern sets the per-pattern k-NN depth for retrieval runs.
func WithKPerPattern(k int) Option {
	return func(c *clientConfig) { c.kPerPattern = k }
}

// WithConcurrency bounds parallel concept runs within one measurement.
func WithConcurrency(n int) Option {
	return func(c *clientConfig) { c.concurrency = n }
}
