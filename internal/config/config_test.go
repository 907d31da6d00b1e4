package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() Config {
	return Config{
		HTTP: HTTPConfig{Port: 8080},
		Corpus: CorpusConfig{Regions: []RegionConfig{
			{Name: "sp500", Path: "data/sp500.parquet"},
		}},
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := validConfig()
	cfg.HTTP.Port = 0

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid port")
	}
}

func TestValidate_MissingRegions(t *testing.T) {
	cfg := validConfig()
	cfg.Corpus.Regions = nil

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing corpus regions")
	}
}

func TestValidate_DuplicateRegion(t *testing.T) {
	cfg := validConfig()
	cfg.Corpus.Regions = append(cfg.Corpus.Regions, RegionConfig{Name: "sp500", Path: "other.parquet"})

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for duplicate region name")
	}
}

func TestValidate_DatabaseAddrsRequiredWhenEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Enabled = true

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled database without addrs")
	}

	cfg.Database.Addrs = []string{"localhost:6379"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error with addrs set: %v", err)
	}
}

func TestValidate_DatabaseOptional(t *testing.T) {
	cfg := validConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("database must be optional: %v", err)
	}
}

func TestValidate_UnknownVectorizer(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Vectorizer = "missing"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown vectorizer")
	}
}

func TestValidate_VectorizerProviderMustExist(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Vectorizer = "main"
	cfg.Embedding.Vectorizers = map[string]VectorizerConfig{
		"main": {Provider: "nebius", Model: "test-model"},
	}

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for vectorizer referencing a missing provider")
	}

	cfg.Embedding.Providers = map[string]ProviderConfig{
		"nebius": {APIKey: "test-key"},
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error with provider present: %v", err)
	}
}

func TestActiveVectorizer(t *testing.T) {
	cfg := validConfig()
	if _, _, ok := cfg.ActiveVectorizer(); ok {
		t.Error("expected no active vectorizer by default")
	}

	cfg.Embedding.Vectorizer = "main"
	cfg.Embedding.Vectorizers = map[string]VectorizerConfig{
		"main": {Provider: "nebius", Model: "test-model", Dimensions: 1536},
	}
	cfg.Embedding.Providers = map[string]ProviderConfig{
		"nebius": {APIKey: "test-key", BaseURL: "https://api.example.com/v1/"},
	}

	v, p, ok := cfg.ActiveVectorizer()
	if !ok {
		t.Fatal("expected an active vectorizer")
	}
	if v.Model != "test-model" || v.Dimensions != 1536 {
		t.Errorf("unexpected vectorizer: %+v", v)
	}
	if p.APIKey != "test-key" {
		t.Errorf("unexpected provider: %+v", p)
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 10 {
		t.Errorf("expected ReadTimeoutSec=10, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 30 {
		t.Errorf("expected WriteTimeoutSec=30, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.HTTP.ShutdownSec != 10 {
		t.Errorf("expected ShutdownSec=10, got %d", cfg.HTTP.ShutdownSec)
	}
	if cfg.Database.ReadinessTimeout != 10 {
		t.Errorf("expected ReadinessTimeout=10, got %d", cfg.Database.ReadinessTimeout)
	}
	if cfg.Concepts.Dir != "concepts" {
		t.Errorf("expected Concepts.Dir='concepts', got %q", cfg.Concepts.Dir)
	}
	if cfg.Retrieval.KPerPattern != 100 {
		t.Errorf("expected KPerPattern=100, got %d", cfg.Retrieval.KPerPattern)
	}
	if cfg.Retrieval.Concurrency != 4 {
		t.Errorf("expected Concurrency=4, got %d", cfg.Retrieval.Concurrency)
	}
	if cfg.Output.Dir != "out" {
		t.Errorf("expected Output.Dir='out', got %q", cfg.Output.Dir)
	}
}

func TestApplyDefaults_NoOverride(t *testing.T) {
	cfg := Config{
		HTTP:      HTTPConfig{ReadTimeoutSec: 30, WriteTimeoutSec: 60, ShutdownSec: 5},
		Database:  DatabaseConfig{ReadinessTimeout: 15},
		Retrieval: RetrievalConfig{KPerPattern: 50, Concurrency: 2},
		Concepts:  ConceptsConfig{Dir: "topics"},
	}
	cfg.ApplyDefaults()

	if cfg.HTTP.ReadTimeoutSec != 30 {
		t.Errorf("expected ReadTimeoutSec=30, got %d", cfg.HTTP.ReadTimeoutSec)
	}
	if cfg.HTTP.WriteTimeoutSec != 60 {
		t.Errorf("expected WriteTimeoutSec=60, got %d", cfg.HTTP.WriteTimeoutSec)
	}
	if cfg.Retrieval.KPerPattern != 50 {
		t.Errorf("expected KPerPattern=50, got %d", cfg.Retrieval.KPerPattern)
	}
	if cfg.Concepts.Dir != "topics" {
		t.Errorf("expected Concepts.Dir='topics', got %q", cfg.Concepts.Dir)
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	content := `
http:
  port: ${SEMDEX_TEST_PORT:-9090}
corpus:
  regions:
    - name: sp500
      path: ${SEMDEX_TEST_CORPUS:-data/sp500.parquet}
`
	if err := os.MkdirAll(filepath.Join(dir, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config", "test.yaml"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	t.Setenv("SEMDEX_TEST_PORT", "8123")

	cfg, err := Load("test")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTP.Port != 8123 {
		t.Errorf("expected env-substituted port 8123, got %d", cfg.HTTP.Port)
	}
	if cfg.Corpus.Regions[0].Path != "data/sp500.parquet" {
		t.Errorf("expected default-substituted path, got %q", cfg.Corpus.Regions[0].Path)
	}
}
