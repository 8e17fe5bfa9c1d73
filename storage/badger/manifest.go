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


package badger

import (
	"context"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
)

// ManifestRepository implements storage.ManifestStore for BadgerDB.
// Each entry is stored under its own key so Put rewrites a single record.
type ManifestRepository struct {
	backend *Backend

	// writeMu serializes writers within the process.
	writeMu sync.Mutex

	lockMu sync.Mutex
	locked bool
}

var _ storage.ManifestStore = (*ManifestRepository)(nil)

// NewManifestRepository creates a new ManifestRepository.
func NewManifestRepository(backend *Backend) (*ManifestRepository, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: backend is required", storage.ErrInvalidQuery)
	}
	return &ManifestRepository{
		backend: backend,
	}, nil
}

// Load returns every manifest entry. Undecodable values make the whole
// manifest corrupt.
func (r *ManifestRepository) Load(ctx context.Context) (map[string]core.ManifestEntry, error) {
	if r.backend.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	entries := make(map[string]core.ManifestEntry)
	err := r.backend.scanPrefix([]byte(manifestEntryPrefix), func(key, val []byte) error {
		entry, err := storage.UnmarshalManifestEntry(val)
		if err != nil {
			return fmt.Errorf("%w: key %q: %w", storage.ErrManifestCorrupt, key, err)
		}
		entry.Identity = identityFromManifestKey(key)
		entries[entry.Identity] = entry
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Put creates or overwrites the entry for entry.Identity.
func (r *ManifestRepository) Put(ctx context.Context, entry core.ManifestEntry) error {
	if entry.Identity == "" {
		return fmt.Errorf("%w: manifest identity is empty", storage.ErrInvalidQuery)
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(makeManifestKey(entry.Identity), storage.MarshalManifestEntry(entry)); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

// Delete removes entries by identity.
func (r *ManifestRepository) Delete(ctx context.Context, identities ...string) error {
	if len(identities) == 0 {
		return nil
	}
	if r.backend.IsClosed() {
		return storage.ErrStorageClosed
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	return r.backend.WithTx(func(tx *badger.Txn) error {
		for _, id := range identities {
			if err := tx.Delete(makeManifestKey(id)); err != nil {
				return err
			}
		}
		return tx.Commit()
	}, true)
}

// Lock marks the manifest as held by a run in this process. Other processes
// are kept out by BadgerDB's directory lock.
func (r *ManifestRepository) Lock(ctx context.Context) (func() error, error) {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()

	if r.locked {
		return nil, storage.ErrManifestLocked
	}
	r.locked = true

	var once sync.Once
	return func() error {
		once.Do(func() {
			r.lockMu.Lock()
			r.locked = false
			r.lockMu.Unlock()
		})
		return nil
	}, nil
}

// Close is a no-op. The backend is closed by its owner.
func (r *ManifestRepository) Close() error {
	return nil
}
