package badger

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
)

// Backend wraps a BadgerDB instance and provides low-level operations.
// BadgerDB holds a directory lock, so a second process opening the same
// path fails instead of sharing the manifest.
type Backend struct {
	db     *badger.DB
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// BackendOption configures OpenBackend.
type BackendOption func(*Backend)

// WithLogger sets the logger used by the backend and by BadgerDB itself.
func WithLogger(logger *slog.Logger) BackendOption {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// OpenBackend opens a BadgerDB database at the specified path.
// Creates the directory if it doesn't exist.
func OpenBackend(filePath string, inMemory bool, opts ...BackendOption) (*Backend, error) {
	b := &Backend{logger: slog.Default()}
	for _, opt := range opts {
		opt(b)
	}
	b.logger = b.logger.With("component", "badger")

	var dbOpts badger.Options
	if inMemory {
		dbOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		// Ensure directory exists
		info, err := os.Stat(filePath)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, err
			}
			if err := os.MkdirAll(filePath, 0755); err != nil {
				return nil, err
			}
			if info, err = os.Stat(filePath); err != nil {
				return nil, err
			}
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("%s is not a directory", filePath)
		}
		dbOpts = badger.DefaultOptions(filePath)
	}

	dbOpts.Logger = &badgerLoggerAdapter{logger: b.logger}
	dbOpts.Compression = options.None

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, err
	}
	b.db = db
	return b, nil
}

// Close closes the BadgerDB database.
func (b *Backend) Close() error {
	if b.db.IsClosed() {
		return nil
	}
	return b.db.Close()
}

// IsClosed returns true if the database is closed.
func (b *Backend) IsClosed() bool {
	return b.db.IsClosed()
}

// WithTx executes a function within a BadgerDB transaction.
// If isWrite is true, creates a read-write transaction.
// The transaction is automatically discarded if fn returns an error.
func (b *Backend) WithTx(fn func(tx *badger.Txn) error, isWrite bool) error {
	tx := b.db.NewTransaction(isWrite)
	defer tx.Discard()
	return fn(tx)
}

// scanPrefix calls fn with the value of every key under prefix.
func (b *Backend) scanPrefix(prefix []byte, fn func(key, val []byte) error) error {
	return b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			item := iter.Item()
			key := item.KeyCopy(nil)
			if err := item.Value(func(val []byte) error {
				return fn(key, val)
			}); err != nil {
				return err
			}
		}
		return nil
	}, false)
}

// countPrefix counts keys under prefix without reading values.
func (b *Backend) countPrefix(prefix []byte) (int64, error) {
	var count int64
	err := b.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}
