// Package store wraps a badger key-value database as the node's persistent
// ledger, realizing spec §6's three logical column families (block,
// transaction, stake) as key prefixes — badger has no native column-family
// concept, and prefixing is the idiomatic substitute used across the
// ecosystem (the pattern enrichment for this node came from
// unclear0122-rosetta-ravencoin's go.mod, which carries the same driver;
// the teacher itself ships no embedded KV store). Writes are synchronous,
// matching spec §5's "store is written synchronously inside append before
// tree.insert" ordering requirement.
package store

import (
	"errors"

	"github.com/dgraph-io/badger/v2"
	logrus "github.com/sirupsen/logrus"

	"github.com/pea-chain/peacashd/internal/errs"
	"github.com/pea-chain/peacashd/internal/params"
)

// Family names the logical column family a key belongs to.
type Family byte

const (
	FamilyBlock Family = iota
	FamilyTransaction
	FamilyStake
)

func (f Family) prefix() byte {
	switch f {
	case FamilyBlock:
		return 'b'
	case FamilyTransaction:
		return 't'
	case FamilyStake:
		return 's'
	default:
		return 0
	}
}

// Store is a thin, synchronous wrapper around a badger database.
type Store struct {
	db *badger.DB
}

// Open opens (creating if absent) a badger database at dir. tempdb mirrors
// the --tempdb CLI flag: the caller is responsible for placing dir under a
// throwaway location and removing it on exit.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogAdapter{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errs.Wrap(errs.StoreIO, err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return errs.Wrap(errs.StoreIO, err)
	}
	return nil
}

func key(f Family, hash [params.HashSize]byte) []byte {
	out := make([]byte, 1+params.HashSize)
	out[0] = f.prefix()
	copy(out[1:], hash[:])
	return out
}

// Put writes value under hash in the given family. The write is
// synchronous: it returns only once durably committed, per spec §6
// ("writes are durable").
func (s *Store) Put(f Family, hash [params.HashSize]byte, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(f, hash), value)
	})
	if err != nil {
		return errs.Wrap(errs.StoreIO, err)
	}
	return nil
}

// Get reads the value stored under hash in family f. A missing key returns
// the ErrNotFound sentinel, which carries no errs.Kind; errs.StoreIO is
// reserved for I/O failures.
func (s *Store) Get(f Family, hash [params.HashSize]byte) ([]byte, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(f, hash))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errs.Wrap(errs.StoreIO, err)
	}
	return out, nil
}

// Has reports whether hash is present in family f.
func (s *Store) Has(f Family, hash [params.HashSize]byte) (bool, error) {
	_, err := s.Get(f, hash)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ForEach iterates every key/value pair in family f, in undefined order
// (badger does not guarantee insertion order); callers must not rely on it
// (internal/blocktree.Reload retries entries whose parent is not linked yet).
func (s *Store) ForEach(f Family, fn func(hash [params.HashSize]byte, value []byte) error) error {
	prefix := []byte{f.prefix()}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			k := item.KeyCopy(nil)
			if len(k) != 1+params.HashSize {
				continue
			}
			var hash [params.HashSize]byte
			copy(hash[:], k[1:])
			var value []byte
			if err := item.Value(func(val []byte) error {
				value = append([]byte(nil), val...)
				return nil
			}); err != nil {
				return err
			}
			if err := fn(hash, value); err != nil {
				return err
			}
		}
		return nil
	})
}

// ErrNotFound is returned by Get for a missing key, per spec §6.
var ErrNotFound = errors.New("store: key not found")

// badgerLogAdapter routes badger's internal logging through logrus, the
// ambient logging library this node uses everywhere else.
type badgerLogAdapter struct{}

func (badgerLogAdapter) Errorf(f string, v ...interface{})   { logrus.Errorf(f, v...) }
func (badgerLogAdapter) Warningf(f string, v ...interface{}) { logrus.Warnf(f, v...) }
func (badgerLogAdapter) Infof(f string, v ...interface{})    { logrus.Debugf(f, v...) }
func (badgerLogAdapter) Debugf(f string, v ...interface{})   { logrus.Debugf(f, v...) }
