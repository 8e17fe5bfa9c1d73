package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/transcripts/core"
)

func identities(files []ScannedFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.Identity
	}
	return out
}

func TestScanner_DefaultRules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "root.txt", "x")
	writeFile(t, root, "@chan/ep1.txt", "x")
	writeFile(t, root, "@chan/nested/ep2.TXT", "x")
	writeFile(t, root, "@chan/notes.md", "x")
	writeFile(t, root, "master_manifest.txt", "x")
	writeFile(t, root, "file_index.json", "{}")
	writeFile(t, root, ".hidden.txt", "x")
	writeFile(t, root, ".cache/ep.txt", "x")

	s := NewScanner(nil, DefaultIgnorePatterns, nil)
	files, failures, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Empty(t, failures)
	assert.ElementsMatch(t, []string{"root.txt", "@chan/ep1.txt", "@chan/nested/ep2.TXT"}, identities(files))

	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path))
		assert.Equal(t, filepath.Join(f.Root, filepath.FromSlash(f.Identity)), f.Path)
	}
}

func TestScanner_IgnoreFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "x")
	writeFile(t, root, "drafts/wip.txt", "x")
	writeFile(t, root, "@chan/skip-me.txt", "x")
	writeFile(t, root, IgnoreFileName, "# comment\n\ndrafts/\n*skip*\n")

	s := NewScanner(nil, DefaultIgnorePatterns, nil)
	files, _, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt"}, identities(files))
}

func TestScanner_CustomExtensions(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "x")
	writeFile(t, root, "b.srt", "x")
	writeFile(t, root, "c.vtt", "x")

	s := NewScanner([]string{"srt", ".VTT"}, nil, nil)
	files, _, err := s.Scan(context.Background(), []string{root})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"b.srt", "c.vtt"}, identities(files))
	assert.True(t, s.Matches("/x/y.SRT"))
	assert.False(t, s.Matches("/x/y.txt"))
}

func TestScanner_DuplicateIdentityAcrossRoots(t *testing.T) {
	first, second := t.TempDir(), t.TempDir()
	writeFile(t, first, "@ch/ep.txt", "one")
	writeFile(t, second, "@ch/ep.txt", "two")
	writeFile(t, second, "@ch/other.txt", "three")

	s := NewScanner(nil, nil, nil)
	files, failures, err := s.Scan(context.Background(), []string{first, second})
	require.NoError(t, err)

	require.Len(t, files, 2)
	assert.Equal(t, "@ch/ep.txt", files[0].Identity)
	assert.Equal(t, first, files[0].Root)

	require.Len(t, failures, 1)
	assert.Equal(t, "@ch/ep.txt", failures[0].Identity)
	assert.ErrorIs(t, failures[0], core.ErrRead)
}

func TestScanner_InvalidRoots(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "file.txt", "x")
	s := NewScanner(nil, nil, nil)

	_, _, err := s.Scan(context.Background(), []string{filepath.Join(root, "missing")})
	assert.ErrorIs(t, err, core.ErrConfiguration)

	_, _, err = s.Scan(context.Background(), []string{filepath.Join(root, "file.txt")})
	assert.ErrorIs(t, err, core.ErrConfiguration)
}

func TestScanner_Cancelled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewScanner(nil, nil, nil).Scan(ctx, []string{root})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanner_UnreadableDirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	root := t.TempDir()
	writeFile(t, root, "ok.txt", "x")
	writeFile(t, root, "locked/ep.txt", "x")
	locked := filepath.Join(root, "locked")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	files, failures, err := NewScanner(nil, nil, nil).Scan(context.Background(), []string{root})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok.txt"}, identities(files))
	require.Len(t, failures, 1)
	assert.Equal(t, "locked", failures[0].Identity)
	assert.ErrorIs(t, failures[0], core.ErrRead)
}

func TestReadIgnoreFile_Missing(t *testing.T) {
	patterns, err := readIgnoreFile(filepath.Join(t.TempDir(), IgnoreFileName))
	require.NoError(t, err)
	assert.Nil(t, patterns)
}
