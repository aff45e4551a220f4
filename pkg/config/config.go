// Package config loads cinesearch settings. Precedence, lowest first:
// defaults, YAML file, environment (a .env file is read first), mode preset
// for fields still unset, command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is read when Load is given no path and the file exists.
const DefaultPath = "cinesearch.yaml"

// Modes.
const (
	ModeDemo       = "demo"
	ModeProduction = "production"
)

// Config is the full cinesearch configuration.
type Config struct {
	Mode    string        `yaml:"mode"`
	Data    DataConfig    `yaml:"data"`
	Qdrant  QdrantConfig  `yaml:"qdrant"`
	Ollama  OllamaConfig  `yaml:"ollama"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Search  SearchConfig  `yaml:"search"`
	Server  ServerConfig  `yaml:"server"`
	NATS    NATSConfig    `yaml:"nats"`
	Neo4j   Neo4jConfig   `yaml:"neo4j"`
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig names the dataset files. Credits is optional.
type DataConfig struct {
	Movies  string `yaml:"movies"`
	Credits string `yaml:"credits"`
}

// QdrantRESTPort is the Qdrant HTTP port. The client speaks gRPC, served on 6334.
const QdrantRESTPort = "6333"

type QdrantConfig struct {
	// URL is the gRPC endpoint (default port 6334), not the REST one.
	URL        string `yaml:"url"`
	Collection string `yaml:"collection"`
}

// Addr returns URL as a gRPC host:port target.
func (q QdrantConfig) Addr() string {
	addr := q.URL
	for _, scheme := range []string{"http://", "https://", "grpc://"} {
		addr = strings.TrimPrefix(addr, scheme)
	}
	return strings.TrimSuffix(addr, "/")
}

// RESTPort reports whether URL points at the Qdrant REST port, which the
// gRPC client cannot dial.
func (q QdrantConfig) RESTPort() bool {
	_, port, err := net.SplitHostPort(q.Addr())
	return err == nil && port == QdrantRESTPort
}

type OllamaConfig struct {
	URL     string        `yaml:"url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit caps embedding requests per second; 0 is unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// IngestConfig controls ingestion. IDPolicy, Weighting and Recreate are
// filled from the mode preset when left empty.
type IngestConfig struct {
	IDPolicy  string `yaml:"id_policy"`
	Weighting string `yaml:"weighting"`
	Recreate  *bool  `yaml:"recreate"`
	BatchSize int    `yaml:"batch_size"`
	CastLimit int    `yaml:"cast_limit"`
	Retries   int    `yaml:"retries"`
	StatePath string `yaml:"state_path"`
	// CacheEmbeddings stores vectors in the state file.
	CacheEmbeddings bool `yaml:"cache_embeddings"`
}

type SearchConfig struct {
	Limit   int           `yaml:"limit"`
	Timeout time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// NATSConfig enables ingestion events when URL is set.
type NATSConfig struct {
	URL string `yaml:"url"`
}

// Neo4jConfig enables the catalog graph when URL is set.
type Neo4jConfig struct {
	URL  string `yaml:"url"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Mode: ModeDemo,
		Data: DataConfig{Movies: "data/movies.csv"},
		Qdrant: QdrantConfig{
			URL:        "localhost:6334",
			Collection: "movies",
		},
		Ollama: OllamaConfig{
			URL:     "http://localhost:11434",
			Model:   "all-minilm:l6-v2",
			Timeout: 30 * time.Second,
		},
		Ingest: IngestConfig{
			BatchSize: 100,
			CastLimit: 10,
			Retries:   3,
			StatePath: ".cinesearch/state.db",
		},
		Search: SearchConfig{
			Limit:   10,
			Timeout: 10 * time.Second,
		},
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

// Preset is the mode-dependent part of IngestConfig.
type Preset struct {
	IDPolicy  string
	Weighting string
	Recreate  bool
}

// Presets by mode.
var Presets = map[string]Preset{
	ModeDemo:       {IDPolicy: "ordinal", Weighting: "plain", Recreate: false},
	ModeProduction: {IDPolicy: "external", Weighting: "boosted", Recreate: true},
}

// Load builds the configuration from path (or DefaultPath when empty and
// present), the environment, overrides and the mode preset, then validates it.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	if err := cfg.loadFile(path); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	if err := cfg.loadEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("config: env: %w", err)
	}
	for _, o := range overrides {
		o(cfg)
	}
	cfg.ApplyMode()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return c.Decode(f)
}

// Decode merges YAML from r into c.
func (c *Config) Decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

type lookupFunc func(string) (string, bool)

// loadEnv applies environment overrides. Numeric variables that do not
// parse are an error.
func (c *Config) loadEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("CINESEARCH_MODE", &c.Mode)
	str("CINESEARCH_MOVIES", &c.Data.Movies)
	str("CINESEARCH_CREDITS", &c.Data.Credits)
	str("CINESEARCH_COLLECTION", &c.Qdrant.Collection)
	str("CINESEARCH_MODEL", &c.Ollama.Model)
	str("CINESEARCH_ID_POLICY", &c.Ingest.IDPolicy)
	str("CINESEARCH_WEIGHTING", &c.Ingest.Weighting)
	str("CINESEARCH_STATE_PATH", &c.Ingest.StatePath)
	str("CINESEARCH_ADDR", &c.Server.Addr)
	str("CINESEARCH_LOG_LEVEL", &c.Logging.Level)
	str("CINESEARCH_LOG_FORMAT", &c.Logging.Format)
	str("QDRANT_URL", &c.Qdrant.URL)
	str("OLLAMA_URL", &c.Ollama.URL)
	str("NATS_URL", &c.NATS.URL)
	str("NEO4J_URL", &c.Neo4j.URL)
	str("NEO4J_USER", &c.Neo4j.User)
	str("NEO4J_PASS", &c.Neo4j.Pass)

	if err := num("CINESEARCH_BATCH_SIZE", &c.Ingest.BatchSize); err != nil {
		return err
	}
	if err := num("CINESEARCH_SEARCH_LIMIT", &c.Search.Limit); err != nil {
		return err
	}
	if v, ok := lookup("CINESEARCH_RECREATE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CINESEARCH_RECREATE: %w", err)
		}
		c.Ingest.Recreate = &b
	}
	return nil
}

// ApplyMode fills unset ingest fields from the preset of c.Mode. Unknown
// modes are left for Validate to report.
func (c *Config) ApplyMode() {
	p, ok := Presets[c.Mode]
	if !ok {
		return
	}
	if c.Ingest.IDPolicy == "" {
		c.Ingest.IDPolicy = p.IDPolicy
	}
	if c.Ingest.Weighting == "" {
		c.Ingest.Weighting = p.Weighting
	}
	if c.Ingest.Recreate == nil {
		r := p.Recreate
		c.Ingest.Recreate = &r
	}
}

// RecreateCollection reports whether ingestion drops the collection first.
func (c *Config) RecreateCollection() bool {
	return c.Ingest.Recreate != nil && *c.Ingest.Recreate
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, ok := Presets[c.Mode]; !ok {
		return fmt.Errorf("invalid mode %q (want %s or %s)", c.Mode, ModeDemo, ModeProduction)
	}
	switch c.Ingest.IDPolicy {
	case "ordinal", "external":
	default:
		return fmt.Errorf("invalid ingest.id_policy %q", c.Ingest.IDPolicy)
	}
	if c.Ingest.Weighting == "" {
		return errors.New("ingest.weighting is required")
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("invalid ingest.batch_size %d", c.Ingest.BatchSize)
	}
	if c.Ingest.CastLimit < 1 {
		return fmt.Errorf("invalid ingest.cast_limit %d", c.Ingest.CastLimit)
	}
	if c.Ingest.Retries < 0 {
		return fmt.Errorf("invalid ingest.retries %d", c.Ingest.Retries)
	}
	if c.Search.Limit < 1 || c.Search.Limit > 100 {
		return fmt.Errorf("invalid search.limit %d (want 1-100)", c.Search.Limit)
	}
	if c.Qdrant.URL == "" || c.Qdrant.Collection == "" {
		return errors.New("qdrant.url and qdrant.collection are required")
	}
	if c.Ollama.URL == "" || c.Ollama.Model == "" {
		return errors.New("ollama.url and ollama.model are required")
	}
	if c.Ollama.RateLimit < 0 {
		return fmt.Errorf("invalid ollama.rate_limit %g", c.Ollama.RateLimit)
	}
	if _, err := c.Logging.level(); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q", c.Logging.Format)
	}
	return nil
}

func (l LoggingConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid logging.level %q", l.Level)
	}
	return lvl, nil
}

// NewLogger builds the process logger writing to w.
func (l LoggingConfig) NewLogger(w io.Writer) *slog.Logger {
	lvl, err := l.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if l.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
