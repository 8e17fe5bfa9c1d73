// Package pinecone implements storage.VectorStore against a Pinecone index
// through the official Go SDK.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	pc "github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
)

const (
	// DefaultTimeout bounds every data plane call.
	DefaultTimeout = 30 * time.Second

	// maxDeleteIDs is the data plane limit for ids per delete request.
	maxDeleteIDs = 1000
)

// ErrRequestRejected indicates Pinecone refused a request for a reason that
// retrying will not fix.
var ErrRequestRejected = errors.New("pinecone rejected request")

// Metadata keys. source, chunk_index and text match vectors written by the
// earlier sync scripts so existing indexes stay queryable.
const (
	metaSource      = "source"
	metaChunkIndex  = "chunk_index"
	metaChannel     = "channel"
	metaFingerprint = "fingerprint"
	metaText        = "text"
)

// Config holds connection settings for one index.
type Config struct {
	// Host is the index host, e.g. my-index-abc123.svc.us-east-1.pinecone.io
	Host      string
	APIKey    string
	Namespace string
	Timeout   time.Duration
}

// indexConnection is the part of *pc.IndexConnection the store uses.
type indexConnection interface {
	UpsertVectors(ctx context.Context, in []*pc.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pc.QueryByVectorValuesRequest) (*pc.QueryVectorsResponse, error)
	DeleteVectorsById(ctx context.Context, ids []string) error
	DescribeIndexStats(ctx context.Context) (*pc.DescribeIndexStatsResponse, error)
	Close() error
}

// Store is a Pinecone-backed vector store.
type Store struct {
	index     indexConnection
	namespace string
	timeout   time.Duration
	logger    *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New connects to the index at cfg.Host. Host and APIKey are required.
func New(cfg Config, opts ...Option) (*Store, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("%w: pinecone host is required", core.ErrConfiguration)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: pinecone api key is required", core.ErrConfiguration)
	}

	client, err := pc.NewClient(pc.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrConfiguration, err)
	}
	host := indexHost(cfg.Host)
	index, err := client.Index(pc.NewIndexConnParams{Host: host, Namespace: cfg.Namespace})
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to %s: %w", storage.ErrStoreUnavailable, host, err)
	}

	s := newStore(index, cfg.Namespace, cfg.Timeout, opts...)
	s.logger = s.logger.With("host", host)
	return s, nil
}

func newStore(index indexConnection, namespace string, timeout time.Duration, opts ...Option) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	s := &Store{
		index:     index,
		namespace: namespace,
		timeout:   timeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "pinecone")
	return s
}

// indexHost strips the scheme and trailing slash the SDK does not expect.
func indexHost(host string) string {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

// Upsert writes records in a single request.
func (s *Store) Upsert(ctx context.Context, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	vectors := make([]*pc.Vector, len(records))
	for i := range records {
		if err := core.ValidateVectorRecord(&records[i]); err != nil {
			return err
		}
		meta, err := structpb.NewStruct(encodeMetadata(records[i].Metadata))
		if err != nil {
			return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
		}
		vectors[i] = &pc.Vector{
			Id:       records[i].ID,
			Values:   records[i].Embedding,
			Metadata: meta,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if _, err := s.index.UpsertVectors(ctx, vectors); err != nil {
		return s.classify("upsert", err)
	}
	return nil
}

// Query returns the topK nearest vectors with metadata.
func (s *Store) Query(ctx context.Context, vec []float32, topK int, filter *storage.Filter) ([]core.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", storage.ErrInvalidQuery)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", storage.ErrInvalidQuery)
	}

	req := &pc.QueryByVectorValuesRequest{
		Vector:          vec,
		TopK:            uint32(topK),
		IncludeMetadata: true,
	}
	if f := encodeFilter(filter); f != nil {
		mf, err := structpb.NewStruct(f)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", storage.ErrInvalidQuery, err)
		}
		req.MetadataFilter = mf
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.index.QueryByVectorValues(ctx, req)
	if err != nil {
		return nil, s.classify("query", err)
	}

	matches := make([]core.Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		var raw map[string]any
		if m.Vector.Metadata != nil {
			raw = m.Vector.Metadata.AsMap()
		}
		matches = append(matches, core.Match{
			ID:       m.Vector.Id,
			Score:    m.Score,
			Metadata: decodeMetadata(raw),
		})
	}
	return matches, nil
}

// Delete removes vectors by id, splitting into requests of at most 1000 ids.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	for start := 0; start < len(ids); start += maxDeleteIDs {
		end := min(start+maxDeleteIDs, len(ids))
		callCtx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.index.DeleteVectorsById(callCtx, ids[start:end])
		cancel()
		if err != nil {
			return s.classify("delete", err)
		}
	}
	return nil
}

// Stats reports the index dimension and the vector count of the configured namespace.
func (s *Store) Stats(ctx context.Context) (storage.IndexStats, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.index.DescribeIndexStats(ctx)
	if err != nil {
		return storage.IndexStats{}, s.classify("describe index stats", err)
	}

	stats := storage.IndexStats{
		Dimension:   int(resp.Dimension),
		VectorCount: int64(resp.TotalVectorCount),
	}
	if s.namespace != "" {
		stats.VectorCount = 0
		if ns := resp.Namespaces[s.namespace]; ns != nil {
			stats.VectorCount = int64(ns.VectorCount)
		}
	}
	return stats, nil
}

// Close closes the index connection.
func (s *Store) Close() error {
	return s.index.Close()
}

// classify maps gRPC status codes onto storage errors. Throttling, server
// faults and timeouts are retryable.
func (s *Store) classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	code := status.Code(err)
	s.logger.Debug("request failed", "op", op, "code", code.String(), "err", err)

	switch code {
	case codes.Unavailable, codes.ResourceExhausted, codes.DeadlineExceeded,
		codes.Internal, codes.Aborted:
		return fmt.Errorf("%w: %s: %w", storage.ErrStoreUnavailable, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", storage.ErrStoreUnavailable, op, err)
	}
	if code == codes.InvalidArgument && strings.Contains(strings.ToLower(err.Error()), "dimension") {
		return fmt.Errorf("%w: %w", storage.ErrDimensionMismatch, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrRequestRejected, op, err)
}

func encodeMetadata(m core.Metadata) map[string]any {
	out := map[string]any{
		metaSource:     m.Source,
		metaChunkIndex: m.Sequence,
		metaText:       m.Text,
	}
	if m.Channel != "" {
		out[metaChannel] = m.Channel
	}
	if m.Fingerprint != "" {
		out[metaFingerprint] = m.Fingerprint
	}
	return out
}

func decodeMetadata(raw map[string]any) core.Metadata {
	var m core.Metadata
	if v, ok := raw[metaSource].(string); ok {
		m.Source = v
	}
	if v, ok := raw[metaChunkIndex].(float64); ok {
		m.Sequence = int(v)
	}
	if v, ok := raw[metaChannel].(string); ok {
		m.Channel = v
	}
	if v, ok := raw[metaFingerprint].(string); ok {
		m.Fingerprint = v
	}
	if v, ok := raw[metaText].(string); ok {
		m.Text = v
	}
	return m
}

func encodeFilter(f *storage.Filter) map[string]any {
	if f.IsEmpty() {
		return nil
	}
	out := make(map[string]any)
	if f.Source != "" {
		out[metaSource] = map[string]any{"$eq": f.Source}
	}
	if f.Channel != "" {
		out[metaChannel] = map[string]any{"$eq": f.Channel}
	}
	return out
}
