package ingestion

import (
	"errors"
	"fmt"

	"github.com/poiesic/transcripts/core"
)

var (
	// ErrManifestStoreRequired is returned when a manifest store is not provided.
	ErrManifestStoreRequired = errors.New("manifest store required")

	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrInvalidMaxAttempts is returned when maxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("maxAttempts must be greater than 0")

	// ErrNoRoots is returned when a run is started without corpus roots.
	ErrNoRoots = fmt.Errorf("%w: at least one corpus root is required", core.ErrConfiguration)

	// ErrInvalidOption is returned when a pipeline option has an unusable value.
	ErrInvalidOption = fmt.Errorf("%w: invalid pipeline option", core.ErrConfiguration)

	// ErrEmptyCorpus is returned by Prune when the roots contain no documents
	// but the manifest does. Pruning would remove everything.
	ErrEmptyCorpus = errors.New("corpus is empty, refusing to prune every manifest entry")
)
