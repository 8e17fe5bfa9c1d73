package storage

import (
	"context"

	"github.com/poiesic/transcripts/core"
)

// ManifestStore persists the mapping from document identity to its last
// successful ingestion. Implementations must serialize writes.
type ManifestStore interface {
	// Load returns every manifest entry keyed by identity.
	// A missing manifest yields an empty map. An unreadable one returns
	// an error wrapping ErrManifestCorrupt.
	Load(ctx context.Context) (map[string]core.ManifestEntry, error)

	// Put creates or overwrites the entry for entry.Identity and persists it.
	Put(ctx context.Context, entry core.ManifestEntry) error

	// Delete removes entries. Unknown identities are ignored.
	Delete(ctx context.Context, identities ...string) error

	// Lock acquires exclusive use of the manifest for one run.
	// It returns ErrManifestLocked if another holder exists.
	Lock(ctx context.Context) (release func() error, err error)

	// Close releases resources.
	Close() error
}

// Filter restricts a vector query by exact metadata match. Empty fields match anything.
type Filter struct {
	Source  string
	Channel string
}

// IsEmpty reports whether the filter places no restriction.
func (f *Filter) IsEmpty() bool {
	return f == nil || (f.Source == "" && f.Channel == "")
}

// Matches reports whether metadata satisfies the filter.
func (f *Filter) Matches(m core.Metadata) bool {
	if f == nil {
		return true
	}
	if f.Source != "" && f.Source != m.Source {
		return false
	}
	if f.Channel != "" && f.Channel != m.Channel {
		return false
	}
	return true
}

// IndexStats describes a vector index.
type IndexStats struct {
	// Dimension is the index dimension, or 0 when not yet known.
	Dimension   int
	VectorCount int64
}

// VectorStore is the vector database collaborator.
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// Upsert inserts or overwrites records keyed by ID.
	Upsert(ctx context.Context, records []core.VectorRecord) error

	// Query returns up to topK matches ranked by descending score.
	Query(ctx context.Context, vector []float32, topK int, filter *Filter) ([]core.Match, error)

	// Delete removes vectors by ID. Unknown ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// Stats reports the index dimension and vector count.
	Stats(ctx context.Context) (IndexStats, error)

	// Close releases resources.
	Close() error
}
