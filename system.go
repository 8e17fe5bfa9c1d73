// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package transcripts wires the configured stores and AI provider together
// and hands out ingestion pipelines and searchers.
package transcripts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/poiesic/transcripts/ai"
	"github.com/poiesic/transcripts/ai/openai"
	"github.com/poiesic/transcripts/chunk"
	"github.com/poiesic/transcripts/config"
	"github.com/poiesic/transcripts/ingestion"
	"github.com/poiesic/transcripts/search"
	"github.com/poiesic/transcripts/storage"
	"github.com/poiesic/transcripts/storage/badger"
	"github.com/poiesic/transcripts/storage/file"
	"github.com/poiesic/transcripts/storage/pgvector"
	"github.com/poiesic/transcripts/storage/pinecone"
)

// System owns the stores and the AI provider built from one configuration.
type System struct {
	cfg      *config.AppConfig
	backend  *badger.Backend
	manifest storage.ManifestStore
	vectors  storage.VectorStore
	logger   *slog.Logger

	providerMu sync.Mutex
	provider   ai.AIProvider
}

// Option configures a System.
type Option func(*systemOptions)

type systemOptions struct {
	provider ai.AIProvider
	logger   *slog.Logger
}

// WithProvider uses provider instead of building one from the AI config.
func WithProvider(provider ai.AIProvider) Option {
	return func(o *systemOptions) {
		o.provider = provider
	}
}

// WithLogger sets the logger handed to every component.
func WithLogger(logger *slog.Logger) Option {
	return func(o *systemOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Open validates cfg and opens the configured manifest and vector stores.
// The AI provider is created on first use.
func Open(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*System, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &systemOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}

	s := &System{
		cfg:      cfg,
		provider: options.provider,
		logger:   options.logger,
	}

	if cfg.Manifest.Backend == config.ManifestBadger || cfg.Vectors.Backend == config.VectorsBadger {
		path := cfg.Vectors.Badger.Path
		if cfg.Manifest.Backend == config.ManifestBadger {
			path = cfg.Manifest.Path
		}
		backend, err := badger.OpenBackend(path, false, badger.WithLogger(s.logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		s.backend = backend
	}

	if err := s.openManifest(); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.openVectors(ctx); err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Debug("system ready",
		"manifest", cfg.Manifest.Backend,
		"vectors", cfg.Vectors.Backend)
	return s, nil
}

func (s *System) openManifest() error {
	switch s.cfg.Manifest.Backend {
	case config.ManifestBadger:
		repo, err := badger.NewManifestRepository(s.backend)
		if err != nil {
			return fmt.Errorf("failed to create manifest repository: %w", err)
		}
		s.manifest = repo
	default:
		store, err := file.NewManifestStore(s.cfg.Manifest.Path, file.WithLogger(s.logger))
		if err != nil {
			return fmt.Errorf("failed to create manifest store: %w", err)
		}
		s.manifest = store
	}
	return nil
}

func (s *System) openVectors(ctx context.Context) error {
	vc := s.cfg.Vectors
	switch vc.Backend {
	case config.VectorsPinecone:
		store, err := pinecone.New(pinecone.Config{
			Host:      vc.Pinecone.Host,
			APIKey:    vc.Pinecone.APIKey,
			Namespace: vc.Pinecone.Namespace,
			Timeout:   s.cfg.Pipeline.CallTimeout,
		}, pinecone.WithLogger(s.logger))
		if err != nil {
			return err
		}
		s.vectors = store
	case config.VectorsPgvector:
		store, err := pgvector.Open(ctx, pgvector.Config{
			DSN:       vc.Pgvector.DSN,
			Table:     vc.Pgvector.Table,
			Dimension: s.cfg.Pipeline.Dimension,
		}, pgvector.WithLogger(s.logger))
		if err != nil {
			return err
		}
		s.vectors = store
	default:
		repo, err := badger.NewVectorRepository(s.backend)
		if err != nil {
			return fmt.Errorf("failed to create vector repository: %w", err)
		}
		s.vectors = repo
	}
	return nil
}

// Config returns the validated configuration.
func (s *System) Config() *config.AppConfig {
	return s.cfg
}

// Manifest returns the manifest store.
func (s *System) Manifest() storage.ManifestStore {
	return s.manifest
}

// Vectors returns the vector store.
func (s *System) Vectors() storage.VectorStore {
	return s.vectors
}

// Provider returns the AI provider, creating it from the AI config on first
// call. Missing credentials are reported here.
func (s *System) Provider() (ai.AIProvider, error) {
	s.providerMu.Lock()
	defer s.providerMu.Unlock()

	if s.provider != nil {
		return s.provider, nil
	}
	provider, err := openai.NewProvider(s.cfg.AIConfig())
	if err != nil {
		return nil, fmt.Errorf("invalid AI configuration: %w", err)
	}
	s.provider = provider
	return provider, nil
}

// Roots returns args, or the configured corpus roots when args is empty.
func (s *System) Roots(args []string) []string {
	if len(args) > 0 {
		return args
	}
	return s.cfg.Corpus.Roots
}

// PipelineOptions translates the configuration into pipeline options.
func (s *System) PipelineOptions() ([]ingestion.Option, error) {
	fingerprinter, err := s.cfg.Fingerprinter()
	if err != nil {
		return nil, err
	}
	p := s.cfg.Pipeline
	return []ingestion.Option{
		ingestion.WithLogger(s.logger),
		ingestion.WithPoolSize(p.Workers),
		ingestion.WithChunking(s.cfg.Chunking.MaxUnitSize, s.cfg.Chunking.Overlap),
		ingestion.WithMaxIDLength(p.MaxIDLength),
		ingestion.WithFingerprinter(fingerprinter),
		ingestion.WithBatchSize(p.BatchSize),
		ingestion.WithEmbedBatchSize(p.EmbedBatchSize),
		ingestion.WithRetry(p.MaxAttempts, p.RetryDelay),
		ingestion.WithCallTimeout(p.CallTimeout),
		ingestion.WithExtensions(s.cfg.Corpus.Extensions...),
		ingestion.WithIgnorePatterns(s.cfg.Corpus.Ignore...),
		ingestion.WithExcerptLength(p.ExcerptLength),
		ingestion.WithExpectedDimension(p.Dimension),
	}, nil
}

// NewPipeline creates an ingestion pipeline. opts are applied after the
// configured options. The caller must Release it.
func (s *System) NewPipeline(opts ...ingestion.Option) (*ingestion.Pipeline, error) {
	provider, err := s.Provider()
	if err != nil {
		return nil, err
	}
	base, err := s.PipelineOptions()
	if err != nil {
		return nil, err
	}
	return ingestion.NewPipeline(s.manifest, s.vectors, provider.Embedder(), append(base, opts...)...)
}

// NewSearcher creates a searcher that can also answer questions.
func (s *System) NewSearcher(opts ...search.Option) (*search.Searcher, error) {
	provider, err := s.Provider()
	if err != nil {
		return nil, err
	}
	base := []search.Option{
		search.WithLogger(s.logger),
		search.WithAnswerer(provider.Answerer()),
		search.WithVerbatimBoost(s.cfg.Search.VerbatimBoost),
		search.WithMinScore(s.cfg.Search.MinScore),
	}
	return search.NewSearcher(s.vectors, provider.Embedder(), append(base, opts...)...)
}

// Stats reports corpus, manifest and index statistics. It needs no AI
// provider.
func (s *System) Stats(ctx context.Context, roots []string) (*ingestion.CorpusStats, error) {
	if len(roots) == 0 {
		return nil, ingestion.ErrNoRoots
	}
	chunker, err := chunk.New(s.cfg.Chunking.MaxUnitSize, chunk.WithOverlap(s.cfg.Chunking.Overlap))
	if err != nil {
		return nil, err
	}
	scanner := ingestion.NewScanner(s.cfg.Corpus.Extensions, s.cfg.Corpus.Ignore, s.logger)

	stats, err := ingestion.CollectStats(ctx, scanner, chunker, roots)
	if err != nil {
		return nil, err
	}
	return stats, stats.AddStoreStats(ctx, s.manifest, s.vectors, s.logger)
}

// Close closes the provider, the stores and the badger backend.
func (s *System) Close() error {
	var errs []error

	s.providerMu.Lock()
	if s.provider != nil {
		if err := s.provider.Close(); err != nil {
			s.logger.Error("error closing AI provider", "err", err)
			errs = append(errs, err)
		}
	}
	s.providerMu.Unlock()

	if s.vectors != nil {
		if err := s.vectors.Close(); err != nil {
			s.logger.Error("error closing vector store", "err", err)
			errs = append(errs, err)
		}
	}
	if s.manifest != nil {
		if err := s.manifest.Close(); err != nil {
			s.logger.Error("error closing manifest store", "err", err)
			errs = append(errs, err)
		}
	}
	if s.backend != nil {
		if err := s.backend.Close(); err != nil {
			s.logger.Error("error closing backend storage", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
