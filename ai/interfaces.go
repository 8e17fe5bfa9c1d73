package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	// Returns an error if any embedding generation fails.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Passage is a retrieved excerpt handed to an Answerer as context.
type Passage struct {
	Source string
	Score  float32
	Text   string
}

// Answerer produces a natural-language answer grounded in retrieved passages.
// Implementations must be thread-safe for concurrent use.
type Answerer interface {
	// Answer responds to question using only the supplied passages.
	Answer(ctx context.Context, question string, passages []Passage) (string, error)
}

// AIProvider aggregates AI services for convenient initialization and lifecycle management.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// Answerer returns the question answering service.
	Answerer() Answerer

	// Close releases resources held by the provider and its services.
	// After Close is called, the provider and its services should not be used.
	Close() error
}
