package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/transcripts/ai"
	"github.com/poiesic/transcripts/chunk"
	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
)

// Defaults for pipeline options.
const (
	DefaultPoolSize       = 1
	DefaultBatchSize      = 100
	DefaultEmbedBatchSize = 16
	DefaultMaxAttempts    = 3
	DefaultRetryDelay     = 500 * time.Millisecond
	DefaultCallTimeout    = 60 * time.Second
)

// Pipeline ingests transcript corpora into a vector store. Documents whose
// fingerprint matches the manifest are skipped; changed documents are
// chunked, embedded, upserted and then recorded in the manifest.
type Pipeline struct {
	manifest storage.ManifestStore
	vectors  storage.VectorStore
	embedder ai.Embedder

	pool          *ants.Pool
	poolSize      int
	chunker       *chunk.Chunker
	maxUnitSize   int
	overlap       int
	fingerprinter *core.Fingerprinter
	extensions    []string
	ignore        []string

	maxIDLength       int
	batchSize         int
	embedBatchSize    int
	maxAttempts       int
	retryDelay        time.Duration
	callTimeout       time.Duration
	excerptLength     int
	expectedDimension int
	force             bool
	progress          io.Writer
	now               func() time.Time
	logger            *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithPoolSize sets how many documents are processed concurrently.
// Default is 1, processing documents sequentially.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		p.poolSize = size
		return nil
	}
}

// WithChunking sets the chunk size in words and the overlap between chunks.
func WithChunking(maxUnitSize, overlap int) Option {
	return func(p *Pipeline) error {
		if maxUnitSize <= 0 {
			return fmt.Errorf("%w: %w", ErrInvalidOption, chunk.ErrInvalidUnitSize)
		}
		if overlap < 0 {
			return fmt.Errorf("%w: overlap must not be negative", ErrInvalidOption)
		}
		p.maxUnitSize = maxUnitSize
		p.overlap = overlap
		return nil
	}
}

// WithMaxIDLength sets the maximum vector id length. It must lie between
// core.MinVectorIDLength and core.MaxVectorIDLength so every id fits.
func WithMaxIDLength(n int) Option {
	return func(p *Pipeline) error {
		if n < core.MinVectorIDLength || n > core.MaxVectorIDLength {
			return fmt.Errorf("%w: max id length must be between %d and %d", ErrInvalidOption, core.MinVectorIDLength, core.MaxVectorIDLength)
		}
		p.maxIDLength = n
		return nil
	}
}

// WithFingerprinter sets the content hash used for change detection.
func WithFingerprinter(f *core.Fingerprinter) Option {
	return func(p *Pipeline) error {
		if f == nil {
			return fmt.Errorf("%w: fingerprinter is nil", ErrInvalidOption)
		}
		p.fingerprinter = f
		return nil
	}
}

// WithBatchSize sets the number of records per vector store upsert.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("%w: batch size must be positive", ErrInvalidOption)
		}
		p.batchSize = n
		return nil
	}
}

// WithEmbedBatchSize sets the number of chunks per embedding call.
func WithEmbedBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("%w: embed batch size must be positive", ErrInvalidOption)
		}
		p.embedBatchSize = n
		return nil
	}
}

// WithRetry sets the attempts and base backoff delay for provider and store calls.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(p *Pipeline) error {
		if maxAttempts <= 0 {
			return fmt.Errorf("%w: %w", ErrInvalidOption, ErrInvalidMaxAttempts)
		}
		if baseDelay < 0 {
			baseDelay = 0
		}
		p.maxAttempts = maxAttempts
		p.retryDelay = baseDelay
		return nil
	}
}

// WithCallTimeout bounds every individual embedding and store call.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d <= 0 {
			return fmt.Errorf("%w: call timeout must be positive", ErrInvalidOption)
		}
		p.callTimeout = d
		return nil
	}
}

// WithExtensions sets the transcript file extensions.
func WithExtensions(exts ...string) Option {
	return func(p *Pipeline) error {
		if len(exts) > 0 {
			p.extensions = exts
		}
		return nil
	}
}

// WithIgnorePatterns replaces the default ignore patterns (gitignore syntax).
func WithIgnorePatterns(patterns ...string) Option {
	return func(p *Pipeline) error {
		p.ignore = patterns
		return nil
	}
}

// WithExcerptLength sets how many bytes of chunk text are stored as metadata.
func WithExcerptLength(n int) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("%w: excerpt length must be positive", ErrInvalidOption)
		}
		p.excerptLength = n
		return nil
	}
}

// WithExpectedDimension makes a run fail before any work when the vector
// store reports a different dimension.
func WithExpectedDimension(n int) Option {
	return func(p *Pipeline) error {
		if n < 0 {
			return fmt.Errorf("%w: dimension must not be negative", ErrInvalidOption)
		}
		p.expectedDimension = n
		return nil
	}
}

// WithForce treats every document as changed.
func WithForce(force bool) Option {
	return func(p *Pipeline) error {
		p.force = force
		return nil
	}
}

// WithProgress writes a progress line to w while documents are processed.
func WithProgress(w io.Writer) Option {
	return func(p *Pipeline) error {
		p.progress = w
		return nil
	}
}

// WithClock overrides the time source used for summaries and manifest entries.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now != nil {
			p.now = now
		}
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	manifest storage.ManifestStore,
	vectors storage.VectorStore,
	embedder ai.Embedder,
	opts ...Option,
) (*Pipeline, error) {
	if manifest == nil {
		return nil, ErrManifestStoreRequired
	}
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	p := &Pipeline{
		manifest:       manifest,
		vectors:        vectors,
		embedder:       embedder,
		poolSize:       DefaultPoolSize,
		maxUnitSize:    chunk.DefaultMaxUnitSize,
		fingerprinter:  core.DefaultFingerprinter(),
		extensions:     DefaultExtensions,
		ignore:         DefaultIgnorePatterns,
		maxIDLength:    core.DefaultMaxIDLength,
		batchSize:      DefaultBatchSize,
		embedBatchSize: DefaultEmbedBatchSize,
		maxAttempts:    DefaultMaxAttempts,
		retryDelay:     DefaultRetryDelay,
		callTimeout:    DefaultCallTimeout,
		excerptLength:  core.DefaultExcerptLength,
		now:            time.Now,
		logger:         slog.Default(),
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}

	chunker, err := chunk.New(p.maxUnitSize, chunk.WithOverlap(p.overlap))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}
	p.chunker = chunker

	pool, err := ants.NewPool(p.poolSize)
	if err != nil {
		return nil, err
	}
	p.pool = pool
	p.logger = p.logger.With("component", "ingestion")

	return p, nil
}

// Release releases the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

// Scanner returns a scanner configured like the pipeline's own.
func (p *Pipeline) Scanner() *Scanner {
	return NewScanner(p.extensions, p.ignore, p.logger)
}

// Chunker returns the pipeline's chunker.
func (p *Pipeline) Chunker() *chunk.Chunker {
	return p.chunker
}

// Run ingests every changed transcript under roots.
//
// Configuration errors (missing roots, a held manifest lock, a dimension
// mismatch) and vector store exhaustion abort the run. Failures of single
// documents are recorded in the summary and the run continues. Cancelling
// ctx stops new documents from starting; documents already in progress are
// completed. The summary is returned in every case.
func (p *Pipeline) Run(ctx context.Context, roots []string) (*RunSummary, error) {
	summary := newRunSummary(p.now())
	defer func() { summary.FinishedAt = p.now() }()

	if len(roots) == 0 {
		summary.Aborted = true
		return summary, ErrNoRoots
	}

	release, err := p.manifest.Lock(ctx)
	if err != nil {
		summary.Aborted = true
		return summary, fmt.Errorf("failed to lock manifest: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			p.logger.Warn("failed to release manifest lock", "err", err)
		}
	}()

	dimension, err := p.storeDimension(ctx)
	if err != nil {
		summary.Aborted = true
		return summary, err
	}

	previous, err := p.manifest.Load(ctx)
	if errors.Is(err, storage.ErrManifestCorrupt) {
		p.logger.Warn("manifest is corrupt, re-ingesting everything", "err", err)
		summary.ManifestRecovered = true
		previous = map[string]core.ManifestEntry{}
	} else if err != nil {
		summary.Aborted = true
		return summary, fmt.Errorf("failed to load manifest: %w", err)
	}

	files, scanFailures, err := p.Scanner().Scan(ctx, roots)
	if err != nil {
		if ctx.Err() != nil {
			summary.Cancelled = true
		} else {
			summary.Aborted = true
		}
		return summary, err
	}
	summary.FilesScanned = len(files) + len(scanFailures)
	summary.Failures = append(summary.Failures, scanFailures...)
	summary.FilesFailed = len(scanFailures)

	docs := p.readDocuments(files, summary)

	changed, unchanged := DetectChanges(docs, previous)
	if p.force {
		changed, unchanged = docs, nil
	}
	summary.FilesChanged = len(changed)
	summary.FilesSkippedUnchanged = len(unchanged)

	p.logger.Info("starting run",
		"run_id", summary.RunID,
		"scanned", summary.FilesScanned,
		"changed", summary.FilesChanged,
		"unchanged", summary.FilesSkippedUnchanged)

	st := newRunState(summary, previous, dimension)
	if p.progress != nil && len(changed) > 0 {
		st.progress = NewProgressTracker(p.progress, len(changed), 1)
		st.progress.Start()
		defer st.progress.Finish()
	}

	// In-flight documents finish even if ctx is cancelled.
	workCtx := context.WithoutCancel(ctx)

	for _, doc := range changed {
		if ctx.Err() != nil {
			summary.Cancelled = true
			break
		}
		if st.aborted() {
			break
		}

		st.wg.Add(1)
		err := p.pool.Submit(func() {
			defer st.wg.Done()
			p.processDocument(workCtx, st, doc)
		})
		if err != nil {
			st.wg.Done()
			st.abort(fmt.Errorf("failed to schedule %s: %w", doc.Identity, err))
			break
		}
	}
	st.wg.Wait()

	if ctx.Err() != nil && !summary.Cancelled && summary.FilesNotStarted() > 0 {
		summary.Cancelled = true
	}

	if fatal := st.fatalErr(); fatal != nil {
		summary.Aborted = true
		p.logger.Error("run aborted", "run_id", summary.RunID, "err", fatal)
		return summary, fatal
	}
	if summary.Cancelled {
		p.logger.Warn("run cancelled", "run_id", summary.RunID, "not_started", summary.FilesNotStarted())
		return summary, ctx.Err()
	}

	p.logger.Info("run complete",
		"run_id", summary.RunID,
		"ingested", summary.FilesIngested,
		"failed", summary.FilesFailed,
		"chunks", summary.ChunksEmbedded,
		"upserted", summary.VectorsUpserted)
	return summary, nil
}

// storeDimension checks the vector store is reachable and that its
// dimension agrees with the expected one. It returns the dimension new
// vectors must have, or 0 if not yet known.
func (p *Pipeline) storeDimension(ctx context.Context) (int, error) {
	var stats storage.IndexStats
	err := RetryWithBackoff(ctx, p.logger, func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
		var err error
		stats, err = p.vectors.Stats(callCtx)
		return err
	}, p.maxAttempts, p.retryDelay)
	if err != nil {
		return 0, fmt.Errorf("failed to read vector store stats: %w", err)
	}

	if p.expectedDimension > 0 && stats.Dimension > 0 && stats.Dimension != p.expectedDimension {
		return 0, fmt.Errorf("%w: %w: store has %d, configured %d",
			core.ErrConfiguration, storage.ErrDimensionMismatch, stats.Dimension, p.expectedDimension)
	}
	if stats.Dimension > 0 {
		return stats.Dimension, nil
	}
	return p.expectedDimension, nil
}

// readDocuments reads and fingerprints files. Unreadable or non-UTF-8 files
// are recorded as read failures.
func (p *Pipeline) readDocuments(files []ScannedFile, summary *RunSummary) []core.SourceDocument {
	docs := make([]core.SourceDocument, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f.Path)
		if err == nil && !utf8.Valid(data) {
			err = errors.New("content is not valid UTF-8")
		}
		if err != nil {
			p.logger.Warn("skipping unreadable document", "identity", f.Identity, "err", err)
			summary.Failures = append(summary.Failures, Failure{Identity: f.Identity, Kind: core.ErrRead, Err: err})
			summary.FilesFailed++
			continue
		}
		docs = append(docs, core.SourceDocument{
			Identity:    f.Identity,
			Path:        f.Path,
			Channel:     core.ChannelOf(f.Identity),
			Content:     string(data),
			Fingerprint: p.fingerprinter.Fingerprint(data),
		})
	}
	return docs
}

// processDocument chunks, embeds and upserts one document, then records it in
// the manifest. Any failure leaves the manifest entry untouched.
func (p *Pipeline) processDocument(ctx context.Context, st *runState, doc core.SourceDocument) {
	logger := p.logger.With("identity", doc.Identity)
	if st.aborted() {
		return
	}

	chunks := p.chunker.Split(doc.Content)

	embeddings, err := p.embedChunks(ctx, st, logger, chunks)
	if err != nil {
		kind := core.ErrEmbedding
		if errors.Is(err, storage.ErrDimensionMismatch) {
			kind = core.ErrConfiguration
			st.abort(fmt.Errorf("%w: %w", core.ErrConfiguration, err))
		}
		logger.Error("embedding failed", "chunks", len(chunks), "err", err)
		st.fail(doc.Identity, kind, err, len(chunks))
		return
	}
	st.embedded(len(chunks))

	records := make([]core.VectorRecord, len(chunks))
	for i, text := range chunks {
		records[i] = core.VectorRecord{
			ID:        core.VectorID(doc.Identity, i, p.maxIDLength),
			Embedding: embeddings[i],
			Metadata: core.Metadata{
				Source:      doc.Identity,
				Sequence:    i,
				Channel:     doc.Channel,
				Fingerprint: doc.Fingerprint,
				Text:        core.Excerpt(text, p.excerptLength),
			},
		}
		if err := core.ValidateVectorRecord(&records[i]); err != nil {
			logger.Error("invalid vector record", "sequence", i, "err", err)
			st.fail(doc.Identity, core.ErrUpsert, err, len(records))
			return
		}
	}

	for start := 0; start < len(records); start += p.batchSize {
		batch := records[start:min(start+p.batchSize, len(records))]
		err := RetryWithBackoff(ctx, logger, func() error {
			callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
			defer cancel()
			err := p.vectors.Upsert(callCtx, batch)
			if errors.Is(err, storage.ErrDimensionMismatch) || errors.Is(err, core.ErrInvalidVectorRecord) {
				return Permanent(err)
			}
			return err
		}, p.maxAttempts, p.retryDelay)
		if err != nil {
			logger.Error("upsert failed", "batch_start", start, "batch_size", len(batch), "err", err)
			notStored := len(records) - start
			switch {
			case errors.Is(err, storage.ErrDimensionMismatch):
				st.abort(fmt.Errorf("%w: %w", core.ErrConfiguration, err))
				st.fail(doc.Identity, core.ErrConfiguration, err, notStored)
			case errors.Is(err, storage.ErrStoreUnavailable):
				st.abort(fmt.Errorf("vector store unavailable after %d attempts: %w", p.maxAttempts, err))
				st.fail(doc.Identity, core.ErrUpsert, err, notStored)
			default:
				st.fail(doc.Identity, core.ErrUpsert, err, notStored)
			}
			return
		}
		st.upserted(len(batch))
	}

	if prev, ok := st.previous[doc.Identity]; ok && prev.ChunkCount > len(chunks) {
		p.deleteStale(ctx, st, logger, doc.Identity, len(chunks), prev.ChunkCount)
	}

	entry := core.ManifestEntry{
		Identity:       doc.Identity,
		Fingerprint:    doc.Fingerprint,
		ChunkCount:     len(chunks),
		LastIngestedAt: p.now().UTC(),
	}
	if err := p.manifest.Put(ctx, entry); err != nil {
		logger.Error("failed to record manifest entry", "err", err)
		st.fail(doc.Identity, core.ErrUpsert, fmt.Errorf("failed to record manifest entry: %w", err), 0)
		return
	}

	logger.Debug("document ingested", "chunks", len(chunks))
	st.ingested()
}

// embedChunks embeds chunks in batches. It fails if any batch fails after
// retries or if a vector does not have the store's dimension.
func (p *Pipeline) embedChunks(ctx context.Context, st *runState, logger *slog.Logger, chunks []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(chunks))
	for start := 0; start < len(chunks); start += p.embedBatchSize {
		batch := chunks[start:min(start+p.embedBatchSize, len(chunks))]

		var out [][]float32
		err := RetryWithBackoff(ctx, logger, func() error {
			callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
			defer cancel()
			var err error
			out, err = p.embedder.EmbedTexts(callCtx, batch)
			if err == nil && len(out) != len(batch) {
				err = fmt.Errorf("embedding count mismatch: expected %d, got %d", len(batch), len(out))
			}
			return err
		}, p.maxAttempts, p.retryDelay)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d after %d attempts: %w",
				start, start+len(batch)-1, p.maxAttempts, err)
		}

		for _, vec := range out {
			if err := st.checkDimension(len(vec)); err != nil {
				return nil, err
			}
		}
		embeddings = append(embeddings, out...)
	}
	return embeddings, nil
}

// deleteStale removes vectors for sequences [from, to). Failures are logged
// only; the ids are overwritten if the document grows again.
func (p *Pipeline) deleteStale(ctx context.Context, st *runState, logger *slog.Logger, identity string, from, to int) {
	ids := make([]string, 0, to-from)
	for i := from; i < to; i++ {
		ids = append(ids, core.VectorID(identity, i, p.maxIDLength))
	}
	err := RetryWithBackoff(ctx, logger, func() error {
		callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
		defer cancel()
		return p.vectors.Delete(callCtx, ids)
	}, p.maxAttempts, p.retryDelay)
	if err != nil {
		logger.Warn("failed to delete stale vectors", "count", len(ids), "err", err)
		return
	}
	st.deleted(len(ids))
}
