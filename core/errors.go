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


package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidVectorRecord indicates a VectorRecord failed validation.
	ErrInvalidVectorRecord = errors.New("invalid vector record")

	// ErrInvalidVectorID indicates an id contains characters outside [A-Za-z0-9._-] or is too long.
	ErrInvalidVectorID = errors.New("invalid vector id")

	// ErrEmptyEmbedding indicates a record has no embedding values.
	ErrEmptyEmbedding = errors.New("embedding cannot be empty")

	// ErrEmptySource indicates metadata is missing the source identity.
	ErrEmptySource = errors.New("metadata source cannot be empty")

	// ErrInvalidSequence indicates a negative chunk sequence.
	ErrInvalidSequence = errors.New("chunk sequence cannot be negative")

	// ErrUnknownHashAlgorithm indicates an unsupported fingerprint algorithm.
	ErrUnknownHashAlgorithm = errors.New("unknown hash algorithm")

	// ErrWeakHashAlgorithm indicates a non-cryptographic algorithm was requested without opting in.
	ErrWeakHashAlgorithm = errors.New("hash algorithm is not collision resistant")
)

// Run failure kinds. Failures recorded in a run summary wrap one of these.
var (
	ErrRead               = errors.New("read error")
	ErrEmbedding          = errors.New("embedding error")
	ErrUpsert             = errors.New("upsert error")
	ErrManifestCorruption = errors.New("manifest corruption")
	ErrConfiguration      = errors.New("configuration error")
)
