// Package file implements storage.ManifestStore as a single JSON document
// on disk, guarded by an advisory lock on a sibling file.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/poiesic/transcripts/core"
	"github.com/poiesic/transcripts/storage"
)

// DefaultManifestName is the manifest file name used when only a directory is configured.
const DefaultManifestName = "file_index.json"

// entry is the on-disk shape of one manifest record.
type entry struct {
	Hash       string    `json:"hash"`
	Chunks     int       `json:"chunks"`
	LastUpload timestamp `json:"last_upload"`
}

// timestamp also accepts ISO-8601 times without a zone offset, which older
// manifests contain. Those are read as UTC.
type timestamp struct {
	time.Time
}

var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (t *timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	for _, layout := range legacyLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognized timestamp %q", s)
}

// ManifestStore keeps the manifest in memory and rewrites the whole file on
// every change. Writes are serialized by mu.
type ManifestStore struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]entry
	loaded  bool
	closed  bool
}

var _ storage.ManifestStore = (*ManifestStore)(nil)

// Option configures a ManifestStore.
type Option func(*ManifestStore)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *ManifestStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewManifestStore returns a store backed by the JSON file at path.
// The file and its directory are created on first write.
func NewManifestStore(path string, opts ...Option) (*ManifestStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: manifest path is required", storage.ErrInvalidQuery)
	}
	s := &ManifestStore{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "manifest", "path", path)
	return s, nil
}

// Path returns the manifest file path.
func (s *ManifestStore) Path() string {
	return s.path
}

// Load reads the manifest file. A missing file yields an empty manifest.
func (s *ManifestStore) Load(ctx context.Context) (map[string]core.ManifestEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, storage.ErrStorageClosed
	}

	entries, err := s.read()
	if err != nil {
		return nil, err
	}
	s.entries = entries
	s.loaded = true

	out := make(map[string]core.ManifestEntry, len(entries))
	for id, e := range entries {
		out[id] = core.ManifestEntry{
			Identity:       id,
			Fingerprint:    e.Hash,
			ChunkCount:     e.Chunks,
			LastIngestedAt: e.LastUpload.Time,
		}
	}
	return out, nil
}

// Put overwrites the entry for its identity and rewrites the file.
func (s *ManifestStore) Put(ctx context.Context, e core.ManifestEntry) error {
	if e.Identity == "" {
		return fmt.Errorf("%w: manifest identity is empty", storage.ErrInvalidQuery)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStorageClosed
	}
	s.ensureLoaded()

	s.entries[e.Identity] = entry{
		Hash:       e.Fingerprint,
		Chunks:     e.ChunkCount,
		LastUpload: timestamp{e.LastIngestedAt.UTC()},
	}
	return s.write()
}

// Delete removes entries and rewrites the file.
func (s *ManifestStore) Delete(ctx context.Context, identities ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStorageClosed
	}
	s.ensureLoaded()

	changed := false
	for _, id := range identities {
		if _, ok := s.entries[id]; ok {
			delete(s.entries, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return s.write()
}

// Lock takes an exclusive advisory lock on "<path>.lock". The kernel drops
// it when the holding process exits, so a crashed run never blocks the next.
// The lock file itself is left in place.
func (s *ManifestStore) Lock(ctx context.Context) (func() error, error) {
	lockPath := s.path + ".lock"
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, err
	}

	fl := flock.New(lockPath)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s: %w", lockPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s is held by another process", storage.ErrManifestLocked, lockPath)
	}

	var once sync.Once
	return func() error {
		var rerr error
		once.Do(func() {
			rerr = fl.Unlock()
		})
		return rerr
	}, nil
}

// Close marks the store closed.
func (s *ManifestStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ensureLoaded populates entries before the first write. A corrupt file is
// replaced by an empty manifest; Load has already reported it.
func (s *ManifestStore) ensureLoaded() {
	if s.loaded {
		return
	}
	entries, err := s.read()
	if err != nil {
		s.logger.Warn("discarding unreadable manifest", "error", err)
		entries = make(map[string]entry)
	}
	s.entries = entries
	s.loaded = true
}

func (s *ManifestStore) read() (map[string]entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]entry), nil
		}
		return nil, err
	}
	entries := make(map[string]entry)
	if len(data) == 0 {
		return entries, nil
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", storage.ErrManifestCorrupt, s.path, err)
	}
	return entries, nil
}

// write replaces the file atomically via a temp file and rename.
func (s *ManifestStore) write() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %w", storage.ErrSerializationFailed, err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, werr := tmp.Write(data)
	serr := tmp.Sync()
	cerr := tmp.Close()
	if err := errors.Join(werr, serr, cerr); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
