package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the semdex service configuration.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Auth      AuthConfig      `yaml:"auth"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Concepts  ConceptsConfig  `yaml:"concepts"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds key-value store connection settings. The store backs
// the embedding cache and the threshold archive; with Enabled false both
// fall back to in-process state.
type DatabaseConfig struct {
	Enabled          bool     `yaml:"enabled"`
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// CorpusConfig holds the embedded corpus layout: one parquet file per region.
type CorpusConfig struct {
	Regions []RegionConfig `yaml:"regions"`
}

// RegionConfig names one region and its paragraph file.
type RegionConfig struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// ConceptsConfig holds the concept definition directory.
type ConceptsConfig struct {
	Dir string `yaml:"dir"`
}

// RetrievalConfig holds retrieval tuning.
type RetrievalConfig struct {
	KPerPattern int `yaml:"k_per_pattern"`
	Concurrency int `yaml:"concurrency"`
}

// OutputConfig holds measurement output settings.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Providers   map[string]ProviderConfig   `yaml:"providers"`
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"`
	// Vectorizer selects the active entry in Vectorizers.
	Vectorizer string `yaml:"vectorizer"`
}

// ProviderConfig holds embedding provider settings.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

// VectorizerConfig holds vectorizer settings.
type VectorizerConfig struct {
	Provider         string `yaml:"provider"`
	Model            string `yaml:"model"`
	Dimensions       int    `yaml:"dimensions"`
	QueryInstruction string `yaml:"query_instruction"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		// Calibration responses carry full ROC curves.
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Concepts.Dir == "" {
		c.Concepts.Dir = "concepts"
	}
	if c.Retrieval.KPerPattern <= 0 {
		c.Retrieval.KPerPattern = 100
	}
	if c.Retrieval.Concurrency <= 0 {
		c.Retrieval.Concurrency = 4
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "out"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.Database.Enabled && len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required when database.enabled is set")
	}
	if len(c.Corpus.Regions) == 0 {
		return fmt.Errorf("corpus.regions is required")
	}
	seen := make(map[string]struct{}, len(c.Corpus.Regions))
	for i, r := range c.Corpus.Regions {
		if r.Name == "" {
			return fmt.Errorf("corpus.regions[%d].name is required", i)
		}
		if r.Path == "" {
			return fmt.Errorf("corpus.regions[%d].path is required", i)
		}
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("corpus.regions: duplicate region %q", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	if c.Embedding.Vectorizer != "" {
		v, ok := c.Embedding.Vectorizers[c.Embedding.Vectorizer]
		if !ok {
			return fmt.Errorf("embedding.vectorizer %q not found in embedding.vectorizers", c.Embedding.Vectorizer)
		}
		if _, ok := c.Embedding.Providers[v.Provider]; !ok {
			return fmt.Errorf("embedding.vectorizers.%s.provider %q not found in embedding.providers",
				c.Embedding.Vectorizer, v.Provider)
		}
	}
	return nil
}

// ActiveVectorizer returns the selected vectorizer and its provider settings.
// ok is false when no vectorizer is configured.
func (c *Config) ActiveVectorizer() (VectorizerConfig, ProviderConfig, bool) {
	if c.Embedding.Vectorizer == "" {
		return VectorizerConfig{}, ProviderConfig{}, false
	}
	v := c.Embedding.Vectorizers[c.Embedding.Vectorizer]
	return v, c.Embedding.Providers[v.Provider], true
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
