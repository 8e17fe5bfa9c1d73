package ingestion

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/poiesic/transcripts/core"
)

func TestDetectChanges(t *testing.T) {
	docs := []core.SourceDocument{
		{Identity: "new.txt", Fingerprint: "sha256:1"},
		{Identity: "same.txt", Fingerprint: "sha256:2"},
		{Identity: "edited.txt", Fingerprint: "sha256:3"},
		{Identity: "unhashed.txt"},
	}
	manifest := map[string]core.ManifestEntry{
		"same.txt":     {Identity: "same.txt", Fingerprint: "sha256:2"},
		"edited.txt":   {Identity: "edited.txt", Fingerprint: "sha256:old"},
		"unhashed.txt": {Identity: "unhashed.txt"},
		"gone.txt":     {Identity: "gone.txt", Fingerprint: "sha256:9"},
	}

	changed, unchanged := DetectChanges(docs, manifest)

	var ids []string
	for _, d := range changed {
		ids = append(ids, d.Identity)
	}
	assert.Equal(t, []string{"new.txt", "edited.txt", "unhashed.txt"}, ids)
	assert.Equal(t, []string{"same.txt"}, unchanged)
}

func TestDetectChanges_EmptyManifest(t *testing.T) {
	docs := []core.SourceDocument{{Identity: "a", Fingerprint: "x"}, {Identity: "b", Fingerprint: "y"}}

	changed, unchanged := DetectChanges(docs, nil)
	assert.Len(t, changed, 2)
	assert.Empty(t, unchanged)
}
