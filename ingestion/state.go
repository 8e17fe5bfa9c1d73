package ingestion

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
)

// runState is the mutable state shared by the workers of one run.
type runState struct {
	wg       sync.WaitGroup
	previous map[string]core.ManifestEntry
	progress *ProgressTracker

	mu        sync.Mutex
	summary   *RunSummary
	dimension int
	fatal     error
	stopped   atomic.Bool
}

func newRunState(summary *RunSummary, previous map[string]core.ManifestEntry, dimension int) *runState {
	return &runState{
		summary:   summary,
		previous:  previous,
		dimension: dimension,
	}
}

// checkDimension fixes the run's dimension on the first vector when the store
// did not report one, and rejects vectors that differ from it.
func (s *runState) checkDimension(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension == 0 {
		s.dimension = n
		return nil
	}
	if n != s.dimension {
		return fmt.Errorf("%w: embedding has %d dimensions, store expects %d", storage.ErrDimensionMismatch, n, s.dimension)
	}
	return nil
}

// abort records the first fatal error and stops new documents from starting.
func (s *runState) abort(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fatal == nil {
		s.fatal = err
	}
	s.stopped.Store(true)
}

func (s *runState) aborted() bool {
	return s.stopped.Load()
}

func (s *runState) fatalErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

func (s *runState) fail(identity string, kind, err error, chunksFailed int) {
	s.mu.Lock()
	s.summary.FilesFailed++
	s.summary.ChunksFailed += chunksFailed
	s.summary.Failures = append(s.summary.Failures, Failure{Identity: identity, Kind: kind, Err: err})
	s.mu.Unlock()

	if s.progress != nil {
		s.progress.Done(false)
	}
}

func (s *runState) ingested() {
	s.mu.Lock()
	s.summary.FilesIngested++
	s.mu.Unlock()

	if s.progress != nil {
		s.progress.Done(true)
	}
}

func (s *runState) embedded(n int) {
	s.mu.Lock()
	s.summary.ChunksEmbedded += n
	s.mu.Unlock()
}

func (s *runState) upserted(n int) {
	s.mu.Lock()
	s.summary.VectorsUpserted += n
	s.mu.Unlock()
}

func (s *runState) deleted(n int) {
	s.mu.Lock()
	s.summary.VectorsDeleted += n
	s.mu.Unlock()
}
