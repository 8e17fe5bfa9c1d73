package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/poiesic/transcripts/chunk"
	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
)

// ChannelStats aggregates the transcripts of one channel (top-level folder).
// Root-level files are reported under the empty channel.
type ChannelStats struct {
	Channel string
	Files   int
	Words   int
	Bytes   int64
	Chunks  int
}

// CorpusStats summarizes a corpus and, when available, the vector index.
type CorpusStats struct {
	Channels []ChannelStats
	Files    int
	Words    int
	Bytes    int64
	Chunks   int

	// Manifest counts documents recorded as ingested.
	Manifest int
	Index    storage.IndexStats
}

// CollectStats walks roots with scanner and aggregates per-channel counts.
// Chunks are estimated with chunker; a nil chunker leaves them at zero.
func CollectStats(ctx context.Context, scanner *Scanner, chunker *chunk.Chunker, roots []string) (*CorpusStats, error) {
	files, _, err := scanner.Scan(ctx, roots)
	if err != nil {
		return nil, err
	}

	byChannel := make(map[string]*ChannelStats)
	stats := &CorpusStats{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(f.Path)
		if err != nil {
			continue
		}
		text := string(data)

		channel := core.ChannelOf(f.Identity)
		cs, ok := byChannel[channel]
		if !ok {
			cs = &ChannelStats{Channel: channel}
			byChannel[channel] = cs
		}
		words := chunk.WordCount(text)
		chunks := 0
		if chunker != nil {
			chunks = chunker.Count(text)
		}

		cs.Files++
		cs.Words += words
		cs.Bytes += int64(len(data))
		cs.Chunks += chunks

		stats.Files++
		stats.Words += words
		stats.Bytes += int64(len(data))
		stats.Chunks += chunks
	}

	for _, cs := range byChannel {
		stats.Channels = append(stats.Channels, *cs)
	}
	slices.SortFunc(stats.Channels, func(a, b ChannelStats) int {
		if a.Words != b.Words {
			return b.Words - a.Words
		}
		if a.Channel < b.Channel {
			return -1
		}
		if a.Channel > b.Channel {
			return 1
		}
		return 0
	})
	return stats, nil
}

// AddStoreStats records the manifest size and the vector index stats. An
// unreadable manifest is logged and left at zero.
func (s *CorpusStats) AddStoreStats(ctx context.Context, manifest storage.ManifestStore, vectors storage.VectorStore, logger *slog.Logger) error {
	entries, err := manifest.Load(ctx)
	if err != nil {
		logger.Warn("cannot read manifest for stats", "err", err)
	} else {
		s.Manifest = len(entries)
	}

	index, err := vectors.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read vector store stats: %w", err)
	}
	s.Index = index
	return nil
}

// Stats collects corpus statistics with the pipeline's scanner and chunker
// and adds the manifest size and vector index stats.
func (p *Pipeline) Stats(ctx context.Context, roots []string) (*CorpusStats, error) {
	stats, err := CollectStats(ctx, p.Scanner(), p.chunker, roots)
	if err != nil {
		return nil, err
	}
	return stats, stats.AddStoreStats(ctx, p.manifest, p.vectors, p.logger)
}
