// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package storage defines the persistence collaborators of the ingestion
// pipeline.
//
// # Architecture
//
//   - ManifestStore: identity -> last ingested fingerprint, chunk count and time
//   - VectorStore: upsert, query, delete and stats over embedded chunks
//
// Backends live in subpackages:
//
//   - file: JSON manifest file guarded by a lock file
//   - badger: embedded manifest and local vector store
//   - pinecone: hosted Pinecone index over its REST data plane
//   - pgvector: PostgreSQL with the pgvector extension
//
// Binary encodings used by embedded backends are in serialization.go.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use. Manifest writes are
// serialized by the store.
package storage
