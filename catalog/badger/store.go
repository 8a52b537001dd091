// Package badger implements catalog.Catalog on top of BadgerDB.
package badger

import (
	"context"
	"encoding/json"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/go-playground/validator/v10"
	"github.com/nspcc-dev/hsm-http-gw/catalog"
	"github.com/nspcc-dev/hsm-http-gw/hsmerr"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Config configures the store. Path is ignored in memory mode.
type Config struct {
	Path     string `mapstructure:"path" validate:"required_without=InMemory"`
	InMemory bool   `mapstructure:"in_memory"`
}

// Store is a Badger backed catalog.
type Store struct {
	db  *badger.DB
	log *zap.Logger
}

var _ catalog.Catalog = (*Store)(nil)

// badgerLogger routes badger messages to zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...any) {
	l.Warnf(format, args...)
}

// Open opens (or creates) the catalog database.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrapf(hsmerr.ErrInvalidArgument, "catalog config: %v", err)
	}

	if log == nil {
		log = zap.NewNop()
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.
		WithLogger(badgerLogger{log.Named("badger").Sugar()}).
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open catalog at '%s'", cfg.Path)
	}

	log.Debug("catalog opened", zap.String("path", cfg.Path), zap.Bool("in_memory", cfg.InMemory))

	return &Store{db: db, log: log}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return hsmerr.ErrNotFound
	}
	if err != nil {
		return errors.Wrapf(err, "get '%s'", key)
	}

	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "get '%s'", key)
	}

	return true, nil
}

func putJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode '%s'", key)
	}

	return txn.Set(key, data)
}

// scan calls fn for the value of every key starting with prefix, in key
// order. Values are only valid inside fn.
func scan(txn *badger.Txn, prefix []byte, fn func(key, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		key := item.KeyCopy(nil)
		if err := item.Value(func(val []byte) error {
			return fn(key, val)
		}); err != nil {
			return err
		}
	}

	return nil
}

func scanJSON[T any](txn *badger.Txn, prefix []byte, fn func(key []byte, v *T) error) error {
	return scan(txn, prefix, func(key, val []byte) error {
		v := new(T)
		if err := json.Unmarshal(val, v); err != nil {
			return errors.Wrapf(err, "decode '%s'", key)
		}
		return fn(key, v)
	})
}
