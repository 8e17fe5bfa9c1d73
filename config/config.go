// Package config loads the application configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/poiesic/transcripts/ai"
	"github.com/poiesic/transcripts/chunk"
	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/ingestion"
	"github.com/poiesic/transcripts/search"
	"github.com/poiesic/transcripts/storage/file"
	"github.com/poiesic/transcripts/storage/pgvector"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "transcripts.yaml"

// Manifest backends.
const (
	ManifestFile   = "file"
	ManifestBadger = "badger"
)

// Vector store backends.
const (
	VectorsBadger   = "badger"
	VectorsPinecone = "pinecone"
	VectorsPgvector = "pgvector"
)

// DefaultDataDir holds local state when no paths are configured.
const DefaultDataDir = ".transcripts"

// CorpusConfig describes where transcripts live.
type CorpusConfig struct {
	Roots      []string `yaml:"roots"`
	Extensions []string `yaml:"extensions"`
	Ignore     []string `yaml:"ignore"`
}

// ChunkingConfig sets the chunk window in words.
type ChunkingConfig struct {
	MaxUnitSize int `yaml:"max_unit_size"`
	Overlap     int `yaml:"overlap"`
}

// PipelineConfig tunes ingestion runs.
type PipelineConfig struct {
	Workers        int           `yaml:"workers"`
	BatchSize      int           `yaml:"batch_size"`
	EmbedBatchSize int           `yaml:"embed_batch_size"`
	MaxAttempts    int           `yaml:"max_attempts"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	MaxIDLength    int           `yaml:"max_id_length"`
	ExcerptLength  int           `yaml:"excerpt_length"`
	Hash           string        `yaml:"hash"`
	AllowWeakHash  bool          `yaml:"allow_weak_hash"`
	// Dimension, when set, must match the vector store before a run starts.
	Dimension int `yaml:"dimension"`
}

// AIConfig selects the embedding and answering provider.
type AIConfig struct {
	Provider          string  `yaml:"provider"`
	BaseURL           string  `yaml:"base_url"`
	APIKey            string  `yaml:"api_key"`
	EmbeddingModel    string  `yaml:"embedding_model"`
	ChatModel         string  `yaml:"chat_model"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Temperature       float64 `yaml:"temperature"`
}

// ManifestConfig selects the manifest store.
type ManifestConfig struct {
	Backend string `yaml:"backend"`
	// Path is the JSON file for the file backend or the database directory
	// for the badger backend.
	Path string `yaml:"path"`
}

// BadgerConfig configures the local vector store.
type BadgerConfig struct {
	Path string `yaml:"path"`
}

// PineconeConfig configures a Pinecone index.
type PineconeConfig struct {
	Host      string `yaml:"host"`
	APIKey    string `yaml:"api_key"`
	Namespace string `yaml:"namespace"`
}

// PgvectorConfig configures a Postgres table.
type PgvectorConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// VectorsConfig selects the vector store.
type VectorsConfig struct {
	Backend  string         `yaml:"backend"`
	Badger   BadgerConfig   `yaml:"badger"`
	Pinecone PineconeConfig `yaml:"pinecone"`
	Pgvector PgvectorConfig `yaml:"pgvector"`
}

// SearchConfig tunes search and ask. A zero verbatim boost selects the default.
type SearchConfig struct {
	TopK          int     `yaml:"top_k"`
	VerbatimBoost float32 `yaml:"verbatim_boost"`
	MinScore      float32 `yaml:"min_score"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Corpus   CorpusConfig   `yaml:"corpus"`
	Chunking ChunkingConfig `yaml:"chunking"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	AI       AIConfig       `yaml:"ai"`
	Manifest ManifestConfig `yaml:"manifest"`
	Vectors  VectorsConfig  `yaml:"vectors"`
	Search   SearchConfig   `yaml:"search"`
}

// Default returns the configuration used when no file exists: a JSON
// manifest and a local badger vector store under DefaultDataDir, embeddings
// from the hosted OpenAI API.
func Default() *AppConfig {
	cfg := &AppConfig{}
	cfg.applyDefaults()
	return cfg
}

// Load reads a config from path. If the file does not exist, returns defaults.
// ${VAR} and ${VAR:-fallback} references are expanded from the environment
// before parsing, and well known variables fill empty credentials.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			cfg.applyEnv()
			return cfg, nil
		}
		return nil, fmt.Errorf("%w: reading %s: %w", core.ErrConfiguration, path, err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration. Unknown keys are rejected.
func Parse(data []byte) (*AppConfig, error) {
	expanded := expandEnv(string(data))

	var cfg AppConfig
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return &cfg, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// expandEnv replaces ${VAR} and ${VAR:-fallback}. Bare $VAR is left alone so
// passwords and DSNs containing '$' survive.
func expandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(ref string) string {
		m := envRef.FindStringSubmatch(ref)
		if v, ok := os.LookupEnv(m[1]); ok && v != "" {
			return v
		}
		return m[2]
	})
}

// applyEnv fills empty credentials from the variables the sync scripts used.
func (c *AppConfig) applyEnv() {
	fill := func(dst *string, key string) {
		if *dst == "" {
			*dst = os.Getenv(key)
		}
	}
	fill(&c.AI.APIKey, "OPENAI_API_KEY")
	fill(&c.Vectors.Pinecone.APIKey, "PINECONE_API_KEY")
	fill(&c.Vectors.Pinecone.Host, "PINECONE_HOST")
	fill(&c.Vectors.Pgvector.DSN, "DATABASE_URL")
}

func (c *AppConfig) applyDefaults() {
	if len(c.Corpus.Extensions) == 0 {
		c.Corpus.Extensions = slices.Clone(ingestion.DefaultExtensions)
	}
	if c.Corpus.Ignore == nil {
		c.Corpus.Ignore = slices.Clone(ingestion.DefaultIgnorePatterns)
	}

	if c.Chunking.MaxUnitSize == 0 {
		c.Chunking.MaxUnitSize = chunk.DefaultMaxUnitSize
	}

	p := &c.Pipeline
	if p.Workers == 0 {
		p.Workers = ingestion.DefaultPoolSize
	}
	if p.BatchSize == 0 {
		p.BatchSize = ingestion.DefaultBatchSize
	}
	if p.EmbedBatchSize == 0 {
		p.EmbedBatchSize = ingestion.DefaultEmbedBatchSize
	}
	if p.MaxAttempts == 0 {
		p.MaxAttempts = ingestion.DefaultMaxAttempts
	}
	if p.RetryDelay == 0 {
		p.RetryDelay = ingestion.DefaultRetryDelay
	}
	if p.CallTimeout == 0 {
		p.CallTimeout = ingestion.DefaultCallTimeout
	}
	if p.MaxIDLength == 0 {
		p.MaxIDLength = core.DefaultMaxIDLength
	}
	if p.ExcerptLength == 0 {
		p.ExcerptLength = core.DefaultExcerptLength
	}
	if p.Hash == "" {
		p.Hash = string(core.DefaultHashAlgorithm)
	}

	defaults := ai.DefaultConfig()
	if c.AI.Provider == "" {
		c.AI.Provider = string(defaults.Provider)
	}
	if c.AI.EmbeddingModel == "" {
		c.AI.EmbeddingModel = defaults.EmbeddingModel
	}
	if c.AI.ChatModel == "" {
		c.AI.ChatModel = defaults.ChatModel
	}
	if c.AI.Temperature == 0 {
		c.AI.Temperature = defaults.Temperature
	}

	if c.Manifest.Backend == "" {
		c.Manifest.Backend = ManifestFile
	}
	if c.Manifest.Path == "" {
		switch c.Manifest.Backend {
		case ManifestFile:
			c.Manifest.Path = filepath.Join(DefaultDataDir, file.DefaultManifestName)
		case ManifestBadger:
			c.Manifest.Path = filepath.Join(DefaultDataDir, "db")
		}
	}

	if c.Vectors.Backend == "" {
		c.Vectors.Backend = VectorsBadger
	}
	if c.Vectors.Badger.Path == "" {
		c.Vectors.Badger.Path = filepath.Join(DefaultDataDir, "db")
	}
	if c.Vectors.Pgvector.Table == "" {
		c.Vectors.Pgvector.Table = pgvector.DefaultTable
	}

	if c.Search.TopK == 0 {
		c.Search.TopK = search.DefaultTopK
	}
	if c.Search.VerbatimBoost == 0 {
		c.Search.VerbatimBoost = search.DefaultVerbatimBoost
	}
}

// AIConfig returns the provider configuration.
func (c *AppConfig) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithProvider(ai.ProviderKind(c.AI.Provider)),
		ai.WithBaseURL(c.AI.BaseURL),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithChatModel(c.AI.ChatModel),
		ai.WithRequestsPerSecond(c.AI.RequestsPerSecond),
		ai.WithTemperature(c.AI.Temperature),
	)
}

// Fingerprinter builds the configured content hash.
func (c *AppConfig) Fingerprinter() (*core.Fingerprinter, error) {
	alg, err := core.ParseHashAlgorithm(c.Pipeline.Hash)
	if err != nil {
		return nil, err
	}
	return core.NewFingerprinter(alg, c.Pipeline.AllowWeakHash)
}

// Validate checks everything that can be checked without contacting a
// service. AI credentials are checked when the provider is first needed so
// that commands which never embed do not require them.
func (c *AppConfig) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{core.ErrConfiguration}, args...)...))
	}

	if c.Chunking.MaxUnitSize <= 0 {
		invalid("chunking.max_unit_size must be positive")
	}
	if c.Chunking.Overlap < 0 || (c.Chunking.MaxUnitSize > 0 && c.Chunking.Overlap >= c.Chunking.MaxUnitSize) {
		invalid("chunking.overlap must be between 0 and max_unit_size-1")
	}

	p := c.Pipeline
	if p.Workers < 1 {
		invalid("pipeline.workers must be at least 1")
	}
	if p.BatchSize < 1 || p.EmbedBatchSize < 1 {
		invalid("pipeline batch sizes must be positive")
	}
	if p.MaxAttempts < 1 {
		invalid("pipeline.max_attempts must be at least 1")
	}
	if p.RetryDelay < 0 || p.CallTimeout <= 0 {
		invalid("pipeline.retry_delay must not be negative and call_timeout must be positive")
	}
	if p.MaxIDLength < core.MinVectorIDLength || p.MaxIDLength > core.MaxVectorIDLength {
		invalid("pipeline.max_id_length must be between %d and %d", core.MinVectorIDLength, core.MaxVectorIDLength)
	}
	if p.ExcerptLength < 1 {
		invalid("pipeline.excerpt_length must be positive")
	}
	if p.Dimension < 0 {
		invalid("pipeline.dimension must not be negative")
	}
	if _, err := c.Fingerprinter(); err != nil {
		errs = append(errs, fmt.Errorf("%w: pipeline.hash: %w", core.ErrConfiguration, err))
	}

	switch ai.ProviderKind(c.AI.Provider) {
	case ai.ProviderOpenAI, ai.ProviderCompatible:
	default:
		invalid("unknown ai.provider %q", c.AI.Provider)
	}

	switch c.Manifest.Backend {
	case ManifestFile, ManifestBadger:
		if c.Manifest.Path == "" {
			invalid("manifest.path is required")
		}
	default:
		invalid("unknown manifest.backend %q", c.Manifest.Backend)
	}

	switch c.Vectors.Backend {
	case VectorsBadger:
		if c.Vectors.Badger.Path == "" {
			invalid("vectors.badger.path is required")
		}
	case VectorsPinecone:
		if c.Vectors.Pinecone.Host == "" || c.Vectors.Pinecone.APIKey == "" {
			invalid("vectors.pinecone needs host and api_key (or PINECONE_HOST and PINECONE_API_KEY)")
		}
	case VectorsPgvector:
		if c.Vectors.Pgvector.DSN == "" {
			invalid("vectors.pgvector.dsn is required (or DATABASE_URL)")
		}
	default:
		invalid("unknown vectors.backend %q", c.Vectors.Backend)
	}

	// Badger holds an exclusive directory lock, so a manifest and a vector
	// store on badger must share one database.
	if c.Manifest.Backend == ManifestBadger && c.Vectors.Backend == VectorsBadger &&
		filepath.Clean(c.Manifest.Path) != filepath.Clean(c.Vectors.Badger.Path) {
		invalid("manifest.path and vectors.badger.path must be the same badger directory")
	}

	if c.Search.TopK < 1 {
		invalid("search.top_k must be positive")
	}
	if c.Search.VerbatimBoost < 0 {
		invalid("search.verbatim_boost must not be negative")
	}

	return errors.Join(errs...)
}
