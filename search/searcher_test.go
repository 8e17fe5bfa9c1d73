package search

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/transcripts/ai"
	"github.com/poiesic/transcripts/ai/mock"
	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
	"github.com/poiesic/transcripts/storage/badger"
)

// setupStore returns a vector store holding three chunks at known angles to
// the x axis.
func setupStore(t *testing.T) storage.VectorStore {
	t.Helper()
	_, vectors, backend, err := badger.NewMemoryStores()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	err = vectors.Upsert(context.Background(), []core.VectorRecord{
		{ID: "a-0", Embedding: []float32{1, 0, 0}, Metadata: core.Metadata{
			Source: "@weather/a.txt", Channel: "@weather", Text: "The weather is nice today."}},
		{ID: "b-0", Embedding: []float32{0.9, 0.43589, 0}, Metadata: core.Metadata{
			Source: "@code/b.txt", Channel: "@code", Text: "We talked about Rust generics for an hour."}},
		{ID: "c-0", Embedding: []float32{0.5, 0.86603, 0}, Metadata: core.Metadata{
			Source: "@code/c.txt", Channel: "@code", Text: "A deep dive into rust, generics and traits."}},
	})
	require.NoError(t, err)
	return vectors
}

// axisEmbedder embeds every text as the x axis.
func axisEmbedder() *mock.MockEmbedder {
	return mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	})
}

func ids(matches []core.Match) []string {
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.ID
	}
	return out
}

type recordingMonitor struct {
	noopMonitor
	query     string
	dimension int
	fetched   int
	verbatim  []string
	finished  []core.Match
}

func (r *recordingMonitor) Start(query string)              { r.query = query }
func (r *recordingMonitor) AfterEmbedding(dimension int)    { r.dimension = dimension }
func (r *recordingMonitor) AfterVectorQuery(m []core.Match) { r.fetched = len(m) }
func (r *recordingMonitor) VerbatimHit(m core.Match)        { r.verbatim = append(r.verbatim, m.ID) }
func (r *recordingMonitor) Finish(results []core.Match)     { r.finished = results }

func TestNewSearcher(t *testing.T) {
	vectors := setupStore(t)
	embedder := mock.NewMockEmbedder()

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(vectors, embedder)
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(vectors, embedder, WithLogger(nil), WithLogger(slog.Default()))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("nil vector store", func(t *testing.T) {
		_, err := NewSearcher(nil, embedder)
		assert.Equal(t, ErrVectorStoreRequired, err)
	})

	t.Run("nil embedder", func(t *testing.T) {
		_, err := NewSearcher(vectors, nil)
		assert.Equal(t, ErrEmbedderRequired, err)
	})

	t.Run("invalid options", func(t *testing.T) {
		_, err := NewSearcher(vectors, embedder, WithVerbatimBoost(-1))
		assert.ErrorIs(t, err, core.ErrConfiguration)

		_, err = NewSearcher(vectors, embedder, WithCandidateFactor(0))
		assert.ErrorIs(t, err, core.ErrConfiguration)
	})
}

func TestSearch_SimilarityOrder(t *testing.T) {
	searcher, err := NewSearcher(setupStore(t), axisEmbedder(), WithVerbatimBoost(0))
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "rust generics", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-0", "b-0", "c-0"}, ids(results))
	assert.InDelta(t, 1.0, results[0].Score, 1e-4)
	assert.InDelta(t, 0.9, results[1].Score, 1e-4)
}

func TestSearch_VerbatimBoost(t *testing.T) {
	searcher, err := NewSearcher(setupStore(t), axisEmbedder())
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "Rust generics?", 3, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b-0", "a-0", "c-0"}, ids(results))
	assert.InDelta(t, 1.2, results[0].Score, 1e-4)
	assert.InDelta(t, 0.8, results[2].Score, 1e-4)
}

func TestSearch_BoostPromotesCandidateBeyondTopK(t *testing.T) {
	searcher, err := NewSearcher(setupStore(t), axisEmbedder())
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "rust generics", 1, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"b-0"}, ids(results))
}

func TestSearch_Filter(t *testing.T) {
	searcher, err := NewSearcher(setupStore(t), axisEmbedder())
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "weather", 5, &storage.Filter{Channel: "@code"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b-0", "c-0"}, ids(results))

	results, err = searcher.Search(context.Background(), "weather", 5, &storage.Filter{Source: "@weather/a.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a-0"}, ids(results))
}

func TestSearch_MinScore(t *testing.T) {
	searcher, err := NewSearcher(setupStore(t), axisEmbedder(), WithMinScore(0.6))
	require.NoError(t, err)

	results, err := searcher.Search(context.Background(), "weather", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-0", "b-0"}, ids(results))
}

func TestSearch_DefaultTopKAndEmptyQuery(t *testing.T) {
	searcher, err := NewSearcher(setupStore(t), axisEmbedder())
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "   ", 5, nil)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	results, err := searcher.Search(context.Background(), "weather", 0, nil)
	require.NoError(t, err)
	assert.Len(t, results, 3)
}

func TestSearch_EmbeddingError(t *testing.T) {
	embedder := mock.NewMockEmbedder().WithEmbedTextFunc(func(ctx context.Context, text string) ([]float32, error) {
		return nil, errors.New("provider down")
	})
	searcher, err := NewSearcher(setupStore(t), embedder)
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "weather", 5, nil)
	assert.ErrorIs(t, err, core.ErrEmbedding)
}

func TestSearch_DimensionMismatch(t *testing.T) {
	searcher, err := NewSearcher(setupStore(t), mock.NewMockEmbedder().WithDimension(8))
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "weather", 5, nil)
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}

func TestSearchWithMonitor(t *testing.T) {
	searcher, err := NewSearcher(setupStore(t), axisEmbedder())
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	results, err := searcher.SearchWithMonitor(context.Background(), " rust generics ", 2, nil, monitor)
	require.NoError(t, err)

	assert.Equal(t, "rust generics", monitor.query)
	assert.Equal(t, 3, monitor.dimension)
	assert.Equal(t, 3, monitor.fetched)
	assert.Equal(t, []string{"b-0", "c-0"}, monitor.verbatim)
	assert.Equal(t, results, monitor.finished)
}

func TestAsk(t *testing.T) {
	answerer := mock.NewMockAnswerer()
	searcher, err := NewSearcher(setupStore(t), axisEmbedder(), WithAnswerer(answerer))
	require.NoError(t, err)

	answer, err := searcher.Ask(context.Background(), "What about rust generics?", 2)
	require.NoError(t, err)
	assert.Equal(t, `answer to "What about rust generics?" from 2 passages`, answer.Text)
	assert.Equal(t, []string{"b-0", "a-0"}, ids(answer.Sources))

	passages := answerer.LastPassages()
	require.Len(t, passages, 2)
	assert.Equal(t, ai.Passage{
		Source: "@code/b.txt",
		Score:  answer.Sources[0].Score,
		Text:   "We talked about Rust generics for an hour.",
	}, passages[0])
}

func TestAsk_Errors(t *testing.T) {
	t.Run("no answerer", func(t *testing.T) {
		searcher, err := NewSearcher(setupStore(t), axisEmbedder())
		require.NoError(t, err)
		_, err = searcher.Ask(context.Background(), "anything", 3)
		assert.ErrorIs(t, err, ErrAnswererRequired)
	})

	t.Run("no matches", func(t *testing.T) {
		_, vectors, backend, err := badger.NewMemoryStores()
		require.NoError(t, err)
		defer backend.Close()

		answerer := mock.NewMockAnswerer()
		searcher, err := NewSearcher(vectors, axisEmbedder(), WithAnswerer(answerer))
		require.NoError(t, err)
		_, err = searcher.Ask(context.Background(), "anything", 3)
		assert.ErrorIs(t, err, ErrNoMatches)
		assert.Equal(t, 0, answerer.CallCount())
	})

	t.Run("answerer failure", func(t *testing.T) {
		answerer := mock.NewMockAnswerer().WithAnswerFunc(func(context.Context, string, []ai.Passage) (string, error) {
			return "", ai.ErrEmptyResponse
		})
		searcher, err := NewSearcher(setupStore(t), axisEmbedder(), WithAnswerer(answerer))
		require.NoError(t, err)
		_, err = searcher.Ask(context.Background(), "weather", 3)
		assert.ErrorIs(t, err, ai.ErrEmptyResponse)
	})
}

func TestContainsAllQueryWords(t *testing.T) {
	tests := []struct {
		name     string
		document string
		query    string
		want     bool
	}{
		{"all words", "We talked about Rust generics.", "rust generics", true},
		{"punctuation and case", "(RUST) -- Generics!", "Rust, generics?", true},
		{"missing word", "We talked about Rust.", "rust generics", false},
		{"stop words ignored", "Rust generics", "what is the rust generics", true},
		{"only stop words", "the a an", "the a", false},
		{"unicode folding", "Señor Canal speaks", "SEÑOR", true},
		{"empty query", "text", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, containsAllQueryWords(tt.document, tt.query))
		})
	}
}
