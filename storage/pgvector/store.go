// Package pgvector implements storage.VectorStore on PostgreSQL with the
// pgvector extension.
package pgvector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"

	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
)

// DefaultTable is the table used when none is configured.
const DefaultTable = "transcript_chunks"

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Config holds connection settings.
type Config struct {
	DSN   string
	Table string
	// Dimension fixes the embedding column type when the table is created.
	// Zero creates an unconstrained vector column.
	Dimension int
}

// Store is a pgvector-backed vector store.
type Store struct {
	pool   *pgxpool.Pool
	table  string
	ident  string
	logger *slog.Logger
}

var _ storage.VectorStore = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Open connects to the database, verifies the connection and ensures the
// schema exists.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("%w: postgres dsn is required", core.ErrConfiguration)
	}
	table := cfg.Table
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("%w: invalid table name %q", core.ErrConfiguration, table)
	}

	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %w", core.ErrConfiguration, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %w", storage.ErrStoreUnavailable, err)
	}

	s := &Store{
		pool:   pool,
		table:  table,
		ident:  pgx.Identifier{table}.Sanitize(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "pgvector", "table", table)

	if err := s.EnsureSchema(ctx, cfg.Dimension); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates the extension, table and source index if missing.
func (s *Store) EnsureSchema(ctx context.Context, dimension int) error {
	column := "vector"
	if dimension > 0 {
		column = fmt.Sprintf("vector(%d)", dimension)
	}
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			embedding   %s NOT NULL,
			source      TEXT NOT NULL,
			sequence    INTEGER NOT NULL,
			channel     TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL DEFAULT '',
			excerpt     TEXT NOT NULL DEFAULT ''
		)`, s.ident, column),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (source)`,
			pgx.Identifier{s.table + "_source_idx"}.Sanitize(), s.ident),
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", classify(err))
		}
	}
	return nil
}

// Upsert writes records in one transaction.
func (s *Store) Upsert(ctx context.Context, records []core.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if err := core.ValidateVectorRecord(&records[i]); err != nil {
			return err
		}
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, embedding, source, sequence, channel, fingerprint, excerpt)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			source = EXCLUDED.source,
			sequence = EXCLUDED.sequence,
			channel = EXCLUDED.channel,
			fingerprint = EXCLUDED.fingerprint,
			excerpt = EXCLUDED.excerpt`, s.ident)

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, r := range records {
			batch.Queue(query, r.ID, pgvec.NewVector(r.Embedding), r.Metadata.Source,
				r.Metadata.Sequence, r.Metadata.Channel, r.Metadata.Fingerprint, r.Metadata.Text)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("failed to upsert %d records: %w", len(records), classify(err))
	}
	return nil
}

// Query ranks rows by cosine distance to vector.
func (s *Store) Query(ctx context.Context, vector []float32, topK int, filter *storage.Filter) ([]core.Match, error) {
	if topK <= 0 {
		return nil, fmt.Errorf("%w: topK must be positive", storage.ErrInvalidQuery)
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("%w: query vector is empty", storage.ErrInvalidQuery)
	}

	var source, channel string
	if filter != nil {
		source, channel = filter.Source, filter.Channel
	}

	query := fmt.Sprintf(`SELECT id, source, sequence, channel, fingerprint, excerpt,
			1 - (embedding <=> $1) AS score
		FROM %s
		WHERE ($2 = '' OR source = $2) AND ($3 = '' OR channel = $3)
		ORDER BY embedding <=> $1
		LIMIT $4`, s.ident)

	rows, err := s.pool.Query(ctx, query, pgvec.NewVector(vector), source, channel, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to query vectors: %w", classify(err))
	}
	defer rows.Close()

	var matches []core.Match
	for rows.Next() {
		var (
			m     core.Match
			seq   int32
			score float64
		)
		if err := rows.Scan(&m.ID, &m.Metadata.Source, &seq, &m.Metadata.Channel,
			&m.Metadata.Fingerprint, &m.Metadata.Text, &score); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.Metadata.Sequence = int(seq)
		m.Score = float32(score)
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matches: %w", classify(err))
	}
	return matches, nil
}

// Delete removes rows by id.
func (s *Store) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ANY($1)`, s.ident)
	if _, err := s.pool.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", classify(err))
	}
	return nil
}

// Stats reports the declared column dimension (0 if unconstrained) and row count.
func (s *Store) Stats(ctx context.Context) (storage.IndexStats, error) {
	var stats storage.IndexStats

	var typmod int32
	err := s.pool.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute WHERE attrelid = $1::regclass AND attname = 'embedding'`,
		s.ident).Scan(&typmod)
	if err != nil {
		return stats, fmt.Errorf("failed to read dimension: %w", classify(err))
	}
	if typmod > 0 {
		stats.Dimension = int(typmod)
	}

	query := fmt.Sprintf(`SELECT count(*) FROM %s`, s.ident)
	if err := s.pool.QueryRow(ctx, query).Scan(&stats.VectorCount); err != nil {
		return stats, fmt.Errorf("failed to count vectors: %w", classify(err))
	}
	return stats, nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// classify maps driver errors onto storage sentinels. Server-side errors keep
// their identity; anything else means the database could not be reached.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.Contains(pgErr.Message, "dimensions") {
			return fmt.Errorf("%w: %w", storage.ErrDimensionMismatch, err)
		}
		// Class 08 is connection exception, 53 insufficient resources, 57 operator intervention.
		if len(pgErr.Code) >= 2 {
			switch pgErr.Code[:2] {
			case "08", "53", "57":
				return fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
			}
		}
		return err
	}
	return fmt.Errorf("%w: %w", storage.ErrStoreUnavailable, err)
}
