package pgvector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
)

// openTestStore connects to TRANSCRIPTS_TEST_PG_DSN and creates a throwaway table.
func openTestStore(t *testing.T, dimension int) *Store {
	t.Helper()
	dsn := os.Getenv("TRANSCRIPTS_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TRANSCRIPTS_TEST_PG_DSN not set")
	}

	ctx := context.Background()
	table := fmt.Sprintf("test_chunks_%d", time.Now().UnixNano())
	s, err := Open(ctx, Config{DSN: dsn, Table: table, Dimension: dimension})
	require.NoError(t, err)
	t.Cleanup(func() {
		s.pool.Exec(context.Background(), "DROP TABLE IF EXISTS "+s.ident)
		s.Close()
	})
	return s
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = Open(context.Background(), Config{DSN: "postgres://localhost/x", Table: "bad-name; drop"})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestClassify(t *testing.T) {
	assert.Nil(t, classify(nil))
	assert.ErrorIs(t, classify(errors.New("dial tcp: connection refused")), storage.ErrStoreUnavailable)
	assert.ErrorIs(t, classify(&pgconn.PgError{Code: "08006", Message: "connection failure"}), storage.ErrStoreUnavailable)
	assert.ErrorIs(t, classify(&pgconn.PgError{Code: "22000", Message: "expected 3 dimensions, not 2"}), storage.ErrDimensionMismatch)

	err := classify(&pgconn.PgError{Code: "42601", Message: "syntax error"})
	assert.NotErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
}

func TestStore_RoundTrip(t *testing.T) {
	s := openTestStore(t, 3)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, []core.VectorRecord{
		{ID: "a-0", Embedding: []float32{1, 0, 0}, Metadata: core.Metadata{Source: "@x/a.txt", Channel: "@x", Text: "alpha"}},
		{ID: "b-0", Embedding: []float32{0, 1, 0}, Metadata: core.Metadata{Source: "b.txt", Text: "beta"}},
	}))
	require.NoError(t, s.Upsert(ctx, []core.VectorRecord{
		{ID: "a-0", Embedding: []float32{1, 0, 0}, Metadata: core.Metadata{Source: "@x/a.txt", Channel: "@x", Text: "alpha v2"}},
	}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, int64(2), stats.VectorCount)

	matches, err := s.Query(ctx, []float32{1, 0, 0}, 5, nil)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a-0", matches[0].ID)
	assert.Equal(t, "alpha v2", matches[0].Metadata.Text)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-5)

	matches, err = s.Query(ctx, []float32{1, 0, 0}, 5, &storage.Filter{Source: "b.txt"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b-0", matches[0].ID)

	require.NoError(t, s.Delete(ctx, []string{"a-0"}))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.VectorCount)
}

func TestStore_DimensionMismatch(t *testing.T) {
	s := openTestStore(t, 3)

	err := s.Upsert(context.Background(), []core.VectorRecord{
		{ID: "a-0", Embedding: []float32{1, 0}, Metadata: core.Metadata{Source: "a.txt"}},
	})
	assert.ErrorIs(t, err, storage.ErrDimensionMismatch)
}
