package pinecone

import (
	"context"
	"errors"
	"sync"
	"testing"

	pc "github.com/pinecone-io/go-pinecone/pinecone"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
)

// fakeIndex records calls and answers with canned responses.
type fakeIndex struct {
	mu       sync.Mutex
	upserts  [][]*pc.Vector
	queries  []*pc.QueryByVectorValuesRequest
	deletes  [][]string
	matches  []*pc.ScoredVector
	stats    *pc.DescribeIndexStatsResponse
	err      error
	closed   bool
	deadline bool
}

func (f *fakeIndex) UpsertVectors(ctx context.Context, in []*pc.Vector) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, f.deadline = ctx.Deadline()
	if f.err != nil {
		return 0, f.err
	}
	f.upserts = append(f.upserts, in)
	return uint32(len(in)), nil
}

func (f *fakeIndex) QueryByVectorValues(ctx context.Context, in *pc.QueryByVectorValuesRequest) (*pc.QueryVectorsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.queries = append(f.queries, in)
	return &pc.QueryVectorsResponse{Matches: f.matches}, nil
}

func (f *fakeIndex) DeleteVectorsById(ctx context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.deletes = append(f.deletes, ids)
	return nil
}

func (f *fakeIndex) DescribeIndexStats(ctx context.Context) (*pc.DescribeIndexStatsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.stats, nil
}

func (f *fakeIndex) Close() error {
	f.closed = true
	return nil
}

func scored(t *testing.T, id string, score float32, meta map[string]any) *pc.ScoredVector {
	t.Helper()
	s, err := structpb.NewStruct(meta)
	require.NoError(t, err)
	return &pc.ScoredVector{Vector: &pc.Vector{Id: id, Metadata: s}, Score: score}
}

func TestNew_RequiresHostAndKey(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, err = New(Config{Host: "idx.pinecone.io"})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestIndexHost(t *testing.T) {
	assert.Equal(t, "idx.pinecone.io", indexHost("https://idx.pinecone.io/"))
	assert.Equal(t, "idx.pinecone.io", indexHost("http://idx.pinecone.io"))
	assert.Equal(t, "idx.pinecone.io", indexHost("idx.pinecone.io"))
}

func TestStore_Upsert(t *testing.T) {
	f := &fakeIndex{}
	s := newStore(f, "transcripts", 0)

	err := s.Upsert(context.Background(), []core.VectorRecord{{
		ID:        "ch-ep1.txt-0",
		Embedding: []float32{0.25, 0.5},
		Metadata:  core.Metadata{Source: "@ch/ep1.txt", Sequence: 0, Channel: "@ch", Text: "hello"},
	}})
	require.NoError(t, err)
	assert.True(t, f.deadline, "calls are bounded by the store timeout")

	require.Len(t, f.upserts, 1)
	require.Len(t, f.upserts[0], 1)
	v := f.upserts[0][0]
	assert.Equal(t, "ch-ep1.txt-0", v.Id)
	assert.Equal(t, []float32{0.25, 0.5}, v.Values)

	meta := v.Metadata.AsMap()
	assert.Equal(t, "@ch/ep1.txt", meta["source"])
	assert.Equal(t, float64(0), meta["chunk_index"])
	assert.Equal(t, "hello", meta["text"])
	assert.Equal(t, "@ch", meta["channel"])
	_, hasFingerprint := meta["fingerprint"]
	assert.False(t, hasFingerprint)
}

func TestStore_UpsertRejectsInvalidRecord(t *testing.T) {
	f := &fakeIndex{}
	s := newStore(f, "", 0)

	err := s.Upsert(context.Background(), []core.VectorRecord{{ID: "bad id", Embedding: []float32{1}, Metadata: core.Metadata{Source: "a"}}})
	assert.ErrorIs(t, err, core.ErrInvalidVectorRecord)
	assert.Empty(t, f.upserts)
}

func TestStore_Query(t *testing.T) {
	f := &fakeIndex{matches: []*pc.ScoredVector{
		scored(t, "a-0", 0.91, map[string]any{"source": "@ch/a.txt", "chunk_index": 0, "text": "alpha", "channel": "@ch"}),
		scored(t, "b-2", 0.5, map[string]any{"source": "b.txt", "chunk_index": 2, "text": "beta"}),
		nil,
	}}
	s := newStore(f, "", 0)

	matches, err := s.Query(context.Background(), []float32{1, 0}, 2, &storage.Filter{Channel: "@ch"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a-0", matches[0].ID)
	assert.InDelta(t, 0.91, matches[0].Score, 1e-6)
	assert.Equal(t, "@ch/a.txt", matches[0].Metadata.Source)
	assert.Equal(t, "@ch", matches[0].Metadata.Channel)
	assert.Equal(t, 2, matches[1].Metadata.Sequence)
	assert.Equal(t, "beta", matches[1].Metadata.Text)

	require.Len(t, f.queries, 1)
	req := f.queries[0]
	assert.Equal(t, uint32(2), req.TopK)
	assert.True(t, req.IncludeMetadata)
	require.NotNil(t, req.MetadataFilter)
	assert.Equal(t, map[string]any{"$eq": "@ch"}, req.MetadataFilter.AsMap()["channel"])
}

func TestStore_QueryWithoutFilter(t *testing.T) {
	f := &fakeIndex{}
	s := newStore(f, "", 0)

	matches, err := s.Query(context.Background(), []float32{1}, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Nil(t, f.queries[0].MetadataFilter)
}

func TestStore_QueryValidation(t *testing.T) {
	s := newStore(&fakeIndex{}, "", 0)

	_, err := s.Query(context.Background(), []float32{1}, 0, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = s.Query(context.Background(), nil, 3, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestStore_DeleteSplitsRequests(t *testing.T) {
	f := &fakeIndex{}
	s := newStore(f, "", 0)

	ids := make([]string, 2500)
	for i := range ids {
		ids[i] = "id"
	}
	require.NoError(t, s.Delete(context.Background(), ids))

	require.Len(t, f.deletes, 3)
	assert.Len(t, f.deletes[0], 1000)
	assert.Len(t, f.deletes[2], 500)
}

func TestStore_Stats(t *testing.T) {
	f := &fakeIndex{stats: &pc.DescribeIndexStatsResponse{
		Dimension:        1536,
		TotalVectorCount: 42,
		Namespaces: map[string]*pc.NamespaceSummary{
			"transcripts": {VectorCount: 40},
			"other":       {VectorCount: 2},
		},
	}}

	stats, err := newStore(f, "", 0).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1536, stats.Dimension)
	assert.Equal(t, int64(42), stats.VectorCount)

	stats, err = newStore(f, "transcripts", 0).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(40), stats.VectorCount)

	stats, err = newStore(f, "empty", 0).Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.VectorCount)
}

func TestStore_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr error
	}{
		{"rate limited", status.Error(codes.ResourceExhausted, "slow down"), storage.ErrStoreUnavailable},
		{"unavailable", status.Error(codes.Unavailable, "connection refused"), storage.ErrStoreUnavailable},
		{"deadline", status.Error(codes.DeadlineExceeded, "timeout"), storage.ErrStoreUnavailable},
		{"dimension", status.Error(codes.InvalidArgument, "Vector dimension 3 does not match the dimension of the index 1536"), storage.ErrDimensionMismatch},
		{"bad request", status.Error(codes.InvalidArgument, "bad"), ErrRequestRejected},
		{"unauthenticated", status.Error(codes.Unauthenticated, "bad key"), ErrRequestRejected},
		{"cancelled", context.Canceled, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(&fakeIndex{err: tt.err}, "", 0)
			err := s.Upsert(context.Background(), []core.VectorRecord{{
				ID: "a-0", Embedding: []float32{1, 2, 3}, Metadata: core.Metadata{Source: "a"},
			}})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStore_StatsUnavailable(t *testing.T) {
	s := newStore(&fakeIndex{err: status.Error(codes.Unavailable, "down")}, "", 0)
	_, err := s.Stats(context.Background())
	assert.ErrorIs(t, err, storage.ErrStoreUnavailable)
	assert.False(t, errors.Is(err, ErrRequestRejected))
}

func TestStore_Close(t *testing.T) {
	f := &fakeIndex{}
	require.NoError(t, newStore(f, "", 0).Close())
	assert.True(t, f.closed)
}
