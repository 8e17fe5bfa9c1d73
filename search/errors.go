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


package search

import "errors"

var (
	// ErrVectorStoreRequired is returned when a vector store is not provided.
	ErrVectorStoreRequired = errors.New("vector store required")

	// ErrEmbedderRequired is returned when an embedder is not provided.
	ErrEmbedderRequired = errors.New("embedder required")

	// ErrAnswererRequired is returned by Ask when the searcher has no answerer.
	ErrAnswererRequired = errors.New("answerer required")

	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query is empty")

	// ErrNoMatches is returned by Ask when no passage was found to answer from.
	ErrNoMatches = errors.New("no matching transcripts")
)
