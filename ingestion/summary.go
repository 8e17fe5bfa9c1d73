package ingestion

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/poiesic/transcripts/core"
)

// Failure is a contained, per-document error recorded in a summary.
// Kind is one of the core run failure kinds (core.ErrRead, core.ErrEmbedding,
// core.ErrUpsert, core.ErrConfiguration).
type Failure struct {
	Identity string
	Kind     error
	Err      error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v: %v", f.Identity, f.Kind, f.Err)
}

// Unwrap exposes both Kind and Err to errors.Is.
func (f Failure) Unwrap() []error {
	return []error{f.Kind, f.Err}
}

// RunSummary reports the outcome of one ingestion run. It is returned even
// when the run aborts. ChunksFailed counts chunks of failed documents that
// did not reach the vector store.
type RunSummary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	FilesScanned          int
	FilesChanged          int
	FilesSkippedUnchanged int
	FilesIngested         int
	FilesFailed           int

	ChunksEmbedded  int
	ChunksFailed    int
	VectorsUpserted int
	VectorsDeleted  int

	// ManifestRecovered is set when a corrupt manifest was replaced by an
	// empty one, forcing full re-ingestion.
	ManifestRecovered bool
	Cancelled         bool
	Aborted           bool

	Failures []Failure
}

func newRunSummary(now time.Time) *RunSummary {
	return &RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: now,
	}
}

// FilesNotStarted is the number of changed documents left untouched because
// the run was cancelled or aborted.
func (s *RunSummary) FilesNotStarted() int {
	n := s.FilesChanged - s.FilesIngested - s.changedFailures()
	if n < 0 {
		return 0
	}
	return n
}

// changedFailures counts failures of changed documents, excluding read
// failures which happen before change detection.
func (s *RunSummary) changedFailures() int {
	n := 0
	for _, f := range s.Failures {
		if !errors.Is(f.Kind, core.ErrRead) {
			n++
		}
	}
	return n
}

// Duration is the wall time of the run.
func (s *RunSummary) Duration() time.Duration {
	if s.FinishedAt.IsZero() {
		return 0
	}
	return s.FinishedAt.Sub(s.StartedAt)
}

// Err joins all failures, or returns nil.
func (s *RunSummary) Err() error {
	if len(s.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(s.Failures))
	for i, f := range s.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}

// String renders a human readable report.
func (s *RunSummary) String() string {
	var b strings.Builder

	status := "completed"
	switch {
	case s.Aborted:
		status = "aborted"
	case s.Cancelled:
		status = "cancelled"
	}
	fmt.Fprintf(&b, "Run %s %s in %s\n", s.RunID, status, s.Duration().Round(time.Millisecond))
	fmt.Fprintf(&b, "  files scanned:    %s\n", humanize.Comma(int64(s.FilesScanned)))
	fmt.Fprintf(&b, "  files changed:    %s\n", humanize.Comma(int64(s.FilesChanged)))
	fmt.Fprintf(&b, "  files unchanged:  %s\n", humanize.Comma(int64(s.FilesSkippedUnchanged)))
	fmt.Fprintf(&b, "  files ingested:   %s\n", humanize.Comma(int64(s.FilesIngested)))
	fmt.Fprintf(&b, "  files failed:     %s\n", humanize.Comma(int64(s.FilesFailed)))
	if n := s.FilesNotStarted(); n > 0 {
		fmt.Fprintf(&b, "  files not started: %s\n", humanize.Comma(int64(n)))
	}
	fmt.Fprintf(&b, "  chunks embedded:  %s\n", humanize.Comma(int64(s.ChunksEmbedded)))
	fmt.Fprintf(&b, "  chunks failed:    %s\n", humanize.Comma(int64(s.ChunksFailed)))
	fmt.Fprintf(&b, "  vectors upserted: %s\n", humanize.Comma(int64(s.VectorsUpserted)))
	fmt.Fprintf(&b, "  vectors deleted:  %s\n", humanize.Comma(int64(s.VectorsDeleted)))
	if s.ManifestRecovered {
		b.WriteString("  manifest was unreadable and has been rebuilt\n")
	}
	if len(s.Failures) > 0 {
		b.WriteString("Failures:\n")
		for _, f := range s.Failures {
			fmt.Fprintf(&b, "  - %s\n", f.Error())
		}
	}
	return b.String()
}
