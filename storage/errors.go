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


package storage

import "errors"

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrInvalidQuery indicates invalid query parameters.
	ErrInvalidQuery = errors.New("invalid query parameters")

	// ErrSerializationFailed indicates a serialization/deserialization failure.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTruncatedData indicates that data was truncated during reading.
	ErrTruncatedData = errors.New("truncated data")

	// ErrManifestCorrupt indicates the persisted manifest could not be decoded.
	ErrManifestCorrupt = errors.New("manifest is corrupt")

	// ErrManifestLocked indicates another run holds the manifest lock.
	ErrManifestLocked = errors.New("manifest is locked by another run")

	// ErrStoreUnavailable indicates the vector store could not be reached or
	// is refusing requests. Callers may retry.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrDimensionMismatch indicates an embedding does not match the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
