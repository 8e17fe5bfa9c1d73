package ingestion

import "github.com/poiesic/transcripts/core"

// DetectChanges partitions documents against the manifest. A document is
// changed when the manifest has no entry for its identity or the recorded
// fingerprint differs. Documents without a fingerprint are always changed.
// Input order is preserved in both results.
func DetectChanges(documents []core.SourceDocument, manifest map[string]core.ManifestEntry) (changed []core.SourceDocument, unchanged []string) {
	for _, doc := range documents {
		entry, ok := manifest[doc.Identity]
		if ok && doc.Fingerprint != "" && entry.Fingerprint == doc.Fingerprint {
			unchanged = append(unchanged, doc.Identity)
			continue
		}
		changed = append(changed, doc)
	}
	return changed, unchanged
}
