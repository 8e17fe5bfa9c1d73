package ingestion

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/poiesic/transcripts/core"
)

func TestRunSummary_FilesNotStarted(t *testing.T) {
	s := &RunSummary{
		FilesChanged:  10,
		FilesIngested: 4,
		FilesFailed:   3,
		Failures: []Failure{
			{Identity: "r", Kind: core.ErrRead, Err: errors.New("io")},
			{Identity: "e", Kind: core.ErrEmbedding, Err: errors.New("rate limited")},
			{Identity: "u", Kind: core.ErrUpsert, Err: errors.New("rejected")},
		},
	}
	// Read failures never reach change detection.
	assert.Equal(t, 4, s.FilesNotStarted())

	s.FilesIngested = 12
	assert.Equal(t, 0, s.FilesNotStarted())
}

func TestRunSummary_Err(t *testing.T) {
	s := &RunSummary{}
	assert.NoError(t, s.Err())

	cause := errors.New("rate limited")
	s.Failures = append(s.Failures, Failure{Identity: "a.txt", Kind: core.ErrEmbedding, Err: cause})
	err := s.Err()
	assert.ErrorIs(t, err, core.ErrEmbedding)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "a.txt")
}

func TestRunSummary_String(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := newRunSummary(start)
	s.FinishedAt = start.Add(1500 * time.Millisecond)
	s.FilesScanned = 12345
	s.ManifestRecovered = true

	out := s.String()
	assert.Contains(t, out, s.RunID)
	assert.Contains(t, out, "completed in 1.5s")
	assert.Contains(t, out, "12,345")
	assert.Contains(t, out, "rebuilt")
	assert.NotContains(t, out, "Failures")

	s.Cancelled = true
	assert.Contains(t, s.String(), "cancelled")
	s.Aborted = true
	assert.Contains(t, s.String(), "aborted")
}

func TestRunSummary_Duration(t *testing.T) {
	s := newRunSummary(time.Now())
	assert.Zero(t, s.Duration())
	assert.Len(t, s.RunID, 36)
}
