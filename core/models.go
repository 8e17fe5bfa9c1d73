package core

import (
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

// DefaultExcerptLength is the number of bytes of chunk text kept in vector metadata.
const DefaultExcerptLength = 1500

// SourceDocument is a single transcript read from the corpus during a run.
// It is immutable once read.
type SourceDocument struct {
	Identity    string // slash-separated path relative to its corpus root
	Path        string // absolute or root-joined filesystem path
	Channel     string // first path element of Identity, empty for root-level files
	Content     string
	Fingerprint string
}

// ManifestEntry records the last successful ingestion of a document identity.
type ManifestEntry struct {
	Identity       string
	Fingerprint    string
	ChunkCount     int
	LastIngestedAt time.Time
}

// Chunk is a bounded slice of a document's text.
type Chunk struct {
	SourceIdentity string
	Sequence       int
	Text           string
	VectorID       string
}

// Metadata is the typed metadata stored alongside every vector.
type Metadata struct {
	Source      string
	Sequence    int
	Channel     string
	Fingerprint string
	Text        string // excerpt of the chunk text
}

// VectorRecord is the unit written to a vector store.
type VectorRecord struct {
	ID        string
	Embedding []float32
	Metadata  Metadata
}

// Match is a single ranked result returned by a vector store query.
type Match struct {
	ID       string
	Score    float32
	Metadata Metadata
}

// ChannelOf returns the channel (top-level folder) for an identity.
func ChannelOf(identity string) string {
	dir := path.Dir(identity)
	if dir == "." || dir == "/" {
		return ""
	}
	if i := strings.IndexByte(dir, '/'); i >= 0 {
		return dir[:i]
	}
	return dir
}

// Excerpt truncates text to at most maxBytes without splitting a rune.
func Excerpt(text string, maxBytes int) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}
	cut := maxBytes
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
