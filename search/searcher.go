package search

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/poiesic/transcripts/ai"
	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
)

const (
	// DefaultTopK is the number of results returned when topK is not positive.
	DefaultTopK = 5

	// DefaultVerbatimBoost is added to the score of a match whose excerpt
	// contains every meaningful query word.
	DefaultVerbatimBoost = 0.3

	// DefaultCandidateFactor controls how many candidates are fetched per
	// requested result so the verbatim boost can promote lower ranked hits.
	DefaultCandidateFactor = 2
)

// Answer is a generated answer and the passages it was based on.
type Answer struct {
	Text    string
	Sources []core.Match
}

// Searcher runs semantic search over ingested transcripts and answers
// questions from the best passages.
type Searcher struct {
	vectors         storage.VectorStore
	embedder        ai.Embedder
	answerer        ai.Answerer
	verbatimBoost   float32
	candidateFactor int
	minScore        float32
	logger          *slog.Logger
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithAnswerer enables Ask.
func WithAnswerer(answerer ai.Answerer) Option {
	return func(s *Searcher) error {
		s.answerer = answerer
		return nil
	}
}

// WithVerbatimBoost sets the score bonus for verbatim matches. Zero disables it.
func WithVerbatimBoost(boost float32) Option {
	return func(s *Searcher) error {
		if boost < 0 {
			return fmt.Errorf("%w: verbatim boost must not be negative", core.ErrConfiguration)
		}
		s.verbatimBoost = boost
		return nil
	}
}

// WithCandidateFactor sets how many candidates are fetched per result.
func WithCandidateFactor(factor int) Option {
	return func(s *Searcher) error {
		if factor < 1 {
			return fmt.Errorf("%w: candidate factor must be at least 1", core.ErrConfiguration)
		}
		s.candidateFactor = factor
		return nil
	}
}

// WithMinScore drops matches whose similarity is below score before boosting.
func WithMinScore(score float32) Option {
	return func(s *Searcher) error {
		s.minScore = score
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(vectors storage.VectorStore, embedder ai.Embedder, opts ...Option) (*Searcher, error) {
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	s := &Searcher{
		vectors:         vectors,
		embedder:        embedder,
		verbatimBoost:   DefaultVerbatimBoost,
		candidateFactor: DefaultCandidateFactor,
		logger:          slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.logger = s.logger.With("component", "searcher")

	return s, nil
}

// Search returns up to topK chunks most similar to query, optionally
// restricted by filter.
func (s *Searcher) Search(ctx context.Context, query string, topK int, filter *storage.Filter) ([]core.Match, error) {
	return s.SearchWithMonitor(ctx, query, topK, filter, nil)
}

// SearchWithMonitor is Search with callbacks at each stage.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, topK int, filter *storage.Filter, monitor SearchMonitor) ([]core.Match, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	monitor.Start(query)

	embedding, err := s.embedder.EmbedText(ctx, query)
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, fmt.Errorf("%w: %w", core.ErrEmbedding, err)
	}
	monitor.AfterEmbedding(len(embedding))

	matches, err := s.vectors.Query(ctx, embedding, topK*s.candidateFactor, filter)
	if err != nil {
		s.logger.Error("error querying vector store", "err", err)
		return nil, err
	}
	monitor.AfterVectorQuery(matches)

	results := make([]core.Match, 0, len(matches))
	for _, match := range matches {
		if match.Score < s.minScore {
			continue
		}
		if s.verbatimBoost > 0 && containsAllQueryWords(match.Metadata.Text, query) {
			match.Score += s.verbatimBoost
			monitor.VerbatimHit(match)
		}
		results = append(results, match)
	}

	// Stable so equal scores keep the store's order
	slices.SortStableFunc(results, func(a, b core.Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	if len(results) > topK {
		results = results[:topK]
	}
	monitor.Finish(results)

	s.logger.Debug("search complete", "query", query, "candidates", len(matches), "results", len(results))
	return results, nil
}

// Ask answers question from the topK best passages.
func (s *Searcher) Ask(ctx context.Context, question string, topK int) (*Answer, error) {
	if s.answerer == nil {
		return nil, ErrAnswererRequired
	}

	matches, err := s.Search(ctx, question, topK, nil)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return &Answer{}, ErrNoMatches
	}

	passages := make([]ai.Passage, len(matches))
	for i, m := range matches {
		passages[i] = ai.Passage{Source: m.Metadata.Source, Score: m.Score, Text: m.Metadata.Text}
	}

	text, err := s.answerer.Answer(ctx, question, passages)
	if err != nil {
		s.logger.Error("error generating answer", "err", err)
		return nil, err
	}
	return &Answer{Text: text, Sources: matches}, nil
}
