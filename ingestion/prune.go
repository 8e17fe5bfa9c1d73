package ingestion

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/poiesic/transcripts/core"
)

// PruneSummary reports the outcome of Prune.
type PruneSummary struct {
	DryRun         bool
	FilesScanned   int
	Stale          []string
	EntriesRemoved int
	VectorsDeleted int
	Failures       []Failure
}

// Prune removes manifest entries, and their vectors, for identities that are
// no longer present under roots. With dryRun only the stale identities are
// reported. An entry is kept when deleting its vectors fails so a later prune
// can retry.
func (p *Pipeline) Prune(ctx context.Context, roots []string, dryRun bool) (*PruneSummary, error) {
	summary := &PruneSummary{DryRun: dryRun}
	if len(roots) == 0 {
		return summary, ErrNoRoots
	}

	release, err := p.manifest.Lock(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to lock manifest: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			p.logger.Warn("failed to release manifest lock", "err", err)
		}
	}()

	entries, err := p.manifest.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load manifest: %w", err)
	}

	files, failures, err := p.Scanner().Scan(ctx, roots)
	if err != nil {
		return summary, err
	}
	summary.FilesScanned = len(files) + len(failures)

	present := make(map[string]struct{}, len(files)+len(failures))
	for _, f := range files {
		present[f.Identity] = struct{}{}
	}
	// Files that exist but could not be read are not stale.
	for _, f := range failures {
		present[f.Identity] = struct{}{}
	}

	for identity := range entries {
		if _, ok := present[identity]; !ok {
			summary.Stale = append(summary.Stale, identity)
		}
	}
	slices.Sort(summary.Stale)

	if len(present) == 0 && len(entries) > 0 {
		return summary, ErrEmptyCorpus
	}
	if dryRun || len(summary.Stale) == 0 {
		return summary, nil
	}

	for _, identity := range summary.Stale {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		logger := p.logger.With("identity", identity)

		entry := entries[identity]
		ids := make([]string, entry.ChunkCount)
		for i := range ids {
			ids[i] = core.VectorID(identity, i, p.maxIDLength)
		}

		if len(ids) > 0 {
			err := RetryWithBackoff(ctx, logger, func() error {
				callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
				defer cancel()
				return p.vectors.Delete(callCtx, ids)
			}, p.maxAttempts, p.retryDelay)
			if err != nil {
				logger.Error("failed to delete vectors, keeping manifest entry", "err", err)
				summary.Failures = append(summary.Failures, Failure{Identity: identity, Kind: core.ErrUpsert, Err: err})
				continue
			}
			summary.VectorsDeleted += len(ids)
		}

		if err := p.manifest.Delete(ctx, identity); err != nil {
			logger.Error("failed to remove manifest entry", "err", err)
			summary.Failures = append(summary.Failures, Failure{Identity: identity, Kind: core.ErrUpsert, Err: err})
			continue
		}
		summary.EntriesRemoved++
		logger.Info("pruned", "vectors", len(ids))
	}

	if len(summary.Failures) > 0 {
		errs := make([]error, len(summary.Failures))
		for i, f := range summary.Failures {
			errs[i] = f
		}
		return summary, errors.Join(errs...)
	}
	return summary, nil
}
