package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cinesearch.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestDefaultIsValidAfterMode(t *testing.T) {
	cfg := Default()
	cfg.ApplyMode()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Ingest.IDPolicy != "ordinal" || cfg.Ingest.Weighting != "plain" || cfg.RecreateCollection() {
		t.Fatalf("demo preset not applied: %+v", cfg.Ingest)
	}
}

func TestProductionPreset(t *testing.T) {
	cfg := Default()
	cfg.Mode = ModeProduction
	cfg.Ingest.Weighting = "title:3,overview"
	cfg.ApplyMode()
	if cfg.Ingest.IDPolicy != "external" || !cfg.RecreateCollection() {
		t.Fatalf("production preset not applied: %+v", cfg.Ingest)
	}
	if cfg.Ingest.Weighting != "title:3,overview" {
		t.Fatal("explicit weighting must win over the preset")
	}
}

func TestLoadFile(t *testing.T) {
	path := writeYAML(t, `
mode: production
data:
  movies: tmdb_5000_movies.csv
  credits: tmdb_5000_credits.csv
ingest:
  recreate: false
  batch_size: 50
search:
  timeout: 3s
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Data.Credits != "tmdb_5000_credits.csv" || cfg.Ingest.BatchSize != 50 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.RecreateCollection() {
		t.Fatal("explicit recreate=false must win over the production preset")
	}
	if cfg.Search.Timeout != 3*time.Second {
		t.Fatalf("timeout = %v", cfg.Search.Timeout)
	}
	if cfg.Qdrant.Collection != "movies" {
		t.Fatal("defaults must survive a partial file")
	}
}

func TestLoadUnknownField(t *testing.T) {
	if _, err := Load(writeYAML(t, "qdrant:\n  collecton: typo\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing explicit file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("QDRANT_URL", "http://qdrant:6334")
	t.Setenv("OLLAMA_URL", "http://ollama:11434")
	t.Setenv("CINESEARCH_BATCH_SIZE", "25")
	t.Setenv("CINESEARCH_MODE", "production")
	t.Setenv("NEO4J_URL", "neo4j://graph:7687")

	cfg, err := Load(writeYAML(t, "ingest:\n  batch_size: 50\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ingest.BatchSize != 25 {
		t.Fatalf("env must override file, batch = %d", cfg.Ingest.BatchSize)
	}
	if cfg.Qdrant.Addr() != "qdrant:6334" || cfg.Ollama.URL != "http://ollama:11434" || cfg.Neo4j.URL != "neo4j://graph:7687" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Ingest.IDPolicy != "external" {
		t.Fatal("mode from env must select the preset")
	}
}

func TestLoadEnvErrors(t *testing.T) {
	env := map[string]string{"CINESEARCH_BATCH_SIZE": "lots"}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }
	if err := Default().loadEnv(lookup); err == nil || !strings.Contains(err.Error(), "CINESEARCH_BATCH_SIZE") {
		t.Fatalf("err = %v", err)
	}
	env = map[string]string{"CINESEARCH_RECREATE": "maybe"}
	if err := Default().loadEnv(lookup); err == nil {
		t.Fatal("expected bool parse error")
	}
	env = map[string]string{"CINESEARCH_RECREATE": "true", "CINESEARCH_MODEL": ""}
	cfg := Default()
	if err := cfg.loadEnv(lookup); err != nil || !cfg.RecreateCollection() || cfg.Ollama.Model != "all-minilm:l6-v2" {
		t.Fatalf("cfg=%+v err=%v", cfg.Ingest, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"mode", func(c *Config) { c.Mode = "staging" }},
		{"policy", func(c *Config) { c.Ingest.IDPolicy = "uuid" }},
		{"batch", func(c *Config) { c.Ingest.BatchSize = 0 }},
		{"cast limit", func(c *Config) { c.Ingest.CastLimit = 0 }},
		{"retries", func(c *Config) { c.Ingest.Retries = -1 }},
		{"limit", func(c *Config) { c.Search.Limit = 101 }},
		{"collection", func(c *Config) { c.Qdrant.Collection = "" }},
		{"model", func(c *Config) { c.Ollama.Model = "" }},
		{"rate", func(c *Config) { c.Ollama.RateLimit = -1 }},
		{"level", func(c *Config) { c.Logging.Level = "loud" }},
		{"format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.ApplyMode()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestQdrantAddr(t *testing.T) {
	for in, want := range map[string]string{
		"localhost:6334":         "localhost:6334",
		"http://localhost:6334/": "localhost:6334",
		"grpc://q:6334":          "q:6334",
	} {
		if got := (QdrantConfig{URL: in}).Addr(); got != want {
			t.Errorf("Addr(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestQdrantRESTPort(t *testing.T) {
	for in, want := range map[string]bool{
		"localhost:6333":        true,
		"http://qdrant:6333/":   true,
		"localhost:6334":        false,
		"qdrant":                false,
		"grpc://10.0.0.1:16333": false,
	} {
		if got := (QdrantConfig{URL: in}).RESTPort(); got != want {
			t.Errorf("RESTPort(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	LoggingConfig{Level: "warn", Format: "text"}.NewLogger(&buf).Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info must be filtered at warn: %q", buf.String())
	}
	LoggingConfig{Level: "debug", Format: "json"}.NewLogger(&buf).Debug("shown", "k", "v")
	if !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("json output = %q", buf.String())
	}
}

func TestLoadOverridesBeforePreset(t *testing.T) {
	cfg, err := Load(writeYAML(t, "mode: demo\n"), func(c *Config) { c.Mode = ModeProduction })
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.IDPolicy != "external" || !cfg.RecreateCollection() {
		t.Fatalf("override must select the production preset: %+v", cfg.Ingest)
	}
}
