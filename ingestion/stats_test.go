package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/transcripts/chunk"
)

func TestCollectStats(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "@big/a.txt", words(10))
	writeFile(t, root, "@big/b.txt", words(5))
	writeFile(t, root, "@small/c.txt", words(3))
	writeFile(t, root, "loose.txt", words(3))

	chunker, err := chunk.New(4)
	require.NoError(t, err)

	stats, err := CollectStats(context.Background(), NewScanner(nil, nil, nil), chunker, []string{root})
	require.NoError(t, err)

	assert.Equal(t, 4, stats.Files)
	assert.Equal(t, 21, stats.Words)
	assert.Equal(t, 3+2+1+1, stats.Chunks)

	require.Len(t, stats.Channels, 3)
	assert.Equal(t, "@big", stats.Channels[0].Channel)
	assert.Equal(t, 2, stats.Channels[0].Files)
	assert.Equal(t, 15, stats.Channels[0].Words)
	assert.Equal(t, 5, stats.Channels[0].Chunks)
	// Equal word counts are ordered by name; root-level files have no channel.
	assert.Equal(t, "", stats.Channels[1].Channel)
	assert.Equal(t, "@small", stats.Channels[2].Channel)
	assert.Equal(t, int64(len(words(3))), stats.Channels[2].Bytes)
}

func TestCollectStats_NilChunker(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", words(10))

	stats, err := CollectStats(context.Background(), NewScanner(nil, nil, nil), nil, []string{root})
	require.NoError(t, err)
	assert.Equal(t, 10, stats.Words)
	assert.Equal(t, 0, stats.Chunks)
}

func TestPipelineStats(t *testing.T) {
	env := setupEnv(t)
	writeFile(t, env.root, "@ch/a.txt", words(6))
	writeFile(t, env.root, "@ch/b.txt", words(2))

	p := env.pipeline(t, nil, WithChunking(3, 0))
	_, err := p.Run(context.Background(), []string{env.root})
	require.NoError(t, err)

	stats, err := p.Stats(context.Background(), []string{env.root})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 3, stats.Chunks)
	assert.Equal(t, 2, stats.Manifest)
	assert.Equal(t, testDim, stats.Index.Dimension)
	assert.Equal(t, int64(3), stats.Index.VectorCount)
}
