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

import (
	"fmt"
)

// ValidateVectorRecord validates a VectorRecord before it is handed to a store.
//
// Validation rules:
//   - ID must be a valid vector id (see IsValidVectorID)
//   - Embedding must not be empty
//   - Metadata.Source must not be empty
//   - Metadata.Sequence must not be negative
func ValidateVectorRecord(record *VectorRecord) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidVectorRecord)
	}

	if !IsValidVectorID(record.ID, MaxVectorIDLength) {
		return fmt.Errorf("%w: %w: %q", ErrInvalidVectorRecord, ErrInvalidVectorID, record.ID)
	}

	if len(record.Embedding) == 0 {
		return fmt.Errorf("%w: %w", ErrInvalidVectorRecord, ErrEmptyEmbedding)
	}

	if record.Metadata.Source == "" {
		return fmt.Errorf("%w: %w", ErrInvalidVectorRecord, ErrEmptySource)
	}

	if record.Metadata.Sequence < 0 {
		return fmt.Errorf("%w: %w", ErrInvalidVectorRecord, ErrInvalidSequence)
	}

	return nil
}

// IsValidVectorID reports whether id is non-empty, no longer than maxLength
// and made only of [A-Za-z0-9._-]. A maxLength <= 0 disables the length check.
func IsValidVectorID(id string, maxLength int) bool {
	if id == "" {
		return false
	}
	if maxLength > 0 && len(id) > maxLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if !isIDByte(id[i]) {
			return false
		}
	}
	return true
}
