// Package ingestion turns directories of transcripts into vectors.
//
// A Pipeline run scans the corpus roots, fingerprints every transcript and
// compares it with the manifest. Changed documents are chunked, embedded and
// upserted into the vector store; the manifest entry of a document is only
// written after all its vectors are stored, so an interrupted run is resumed
// by simply running again.
//
// Documents are processed by a worker pool. Failures of single documents are
// collected in the RunSummary and never stop the run; configuration problems
// and an unreachable vector store abort it.
//
// Prune removes documents that disappeared from the corpus, Stats reports
// corpus and index statistics, and Watcher re-runs the pipeline on file
// system changes.
package ingestion
