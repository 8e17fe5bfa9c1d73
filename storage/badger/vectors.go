package badger

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
)

// VectorRepository is a local storage.VectorStore that keeps records in
// BadgerDB and answers queries by scanning every vector.
// The index dimension is fixed by the first upsert.
type VectorRepository struct {
	backend *Backend
}

var _ storage.VectorStore = (*VectorRepository)(nil)

// NewVectorRepository creates a new VectorRepository.
func NewVectorRepository(backend *Backend) (*VectorRepository, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", storage.ErrInvalidQuery)
	}
	return &VectorRepository{backend: backend}, nil
}

// Upsert writes records in one transaction. Every embedding must match the
// index dimension.
func (r *VectorRepository) Upsert(ctx context.Context, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		dim, err := readDimension(tx)
		if err != nil {
			return err
		}
		if dim == 0 {
			dim = len(records[0].Embedding)
			if err := tx.Set([]byte(vectorDimensionKey), encodeDimension(dim)); err != nil {
				return err
			}
		}

		for i := range records {
			record := &records[i]
			if err := core.ValidateVectorRecord(record); err != nil {
				return err
			}
			if len(record.Embedding) != dim {
				return fmt.Errorf("%w: record %s has %d values, index has %d",
					storage.ErrDimensionMismatch, record.ID, len(record.Embedding), dim)
			}
			if err := tx.Set(makeVectorKey(record.ID), storage.MarshalVectorRecord(record)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Query ranks stored vectors by cosine similarity to vector.
func (r *VectorRepository) Query(ctx context.Context, vector []float32, topK int, filter *storage.Filter) ([]core.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", storage.ErrInvalidQuery)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", storage.ErrInvalidQuery)
	}
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var results []core.Match
	err := r.backend.scanPrefix([]byte(vectorRecordPrefix), func(_, val []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		record, err := storage.UnmarshalVectorRecord(val)
		if err != nil {
			return err
		}
		if !filter.Matches(record.Metadata) {
			return nil
		}
		if len(record.Embedding) != len(vector) {
			return fmt.Errorf("%w: query has %d values, index has %d",
				storage.ErrDimensionMismatch, len(vector), len(record.Embedding))
		}
		results = append(results, core.Match{
			ID:       record.ID,
			Score:    cosineSimilarity(vector, record.Embedding),
			Metadata: record.Metadata,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Sort by similarity descending
	slices.SortFunc(results, func(a, b core.Match) int {
		if a.Score > b.Score {
			return -1
		}
		if a.Score < b.Score {
			return 1
		}
		return 0
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Delete removes vectors by id.
func (r *VectorRepository) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range ids {
			if err := tx.Delete(makeVectorKey(id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Stats reports the fixed dimension (0 before the first upsert) and the vector count.
func (r *VectorRepository) Stats(ctx context.Context) (storage.IndexStats, error) {
	if r.backend.IsClosed() {
		return storage.IndexStats{}, storage.ErrStorageClosed
	}

	var stats storage.IndexStats
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		dim, err := readDimension(tx)
		stats.Dimension = dim
		return err
	}, false)
	if err != nil {
		return stats, err
	}

	stats.VectorCount, err = r.backend.countPrefix([]byte(vectorRecordPrefix))
	return stats, err
}

// Close is a no-op. The backend is closed by its owner.
func (r *VectorRepository) Close() error {
	return nil
}

func readDimension(tx *badger.Txn) (int, error) {
	item, err := tx.Get([]byte(vectorDimensionKey))
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return 0, nil
		}
		return 0, err
	}
	var dim int
	err = item.Value(func(val []byte) error {
		if len(val) != 4 {
			return storage.ErrTruncatedData
		}
		dim = int(binary.BigEndian.Uint32(val))
		return nil
	})
	return dim, err
}

func encodeDimension(dim int) []byte {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(dim))
	return buf
}

// cosineSimilarity returns 0 when either vector has zero magnitude.
func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
