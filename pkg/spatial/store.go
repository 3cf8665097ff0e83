// Package spatial implements the hybrid spatial index: a bulk-loaded
// in-memory R-tree over a persistent badger-backed AABB store, with
// staleness tracking, rebuild and KNN search.
package spatial

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/happyrust/plantgraph/pkg/element"
	"github.com/happyrust/plantgraph/pkg/geom"
	"github.com/vmihailenco/msgpack/v5"
)

// Errors returned by the spatial index.
var (
	// ErrIndexUnavailable means the backing store could not be searched.
	// Distinct from an empty result: empty means "genuinely nothing found".
	ErrIndexUnavailable = errors.New("spatial index unavailable")
	// ErrInvalidQuery means the query geometry contains NaN/Inf components.
	ErrInvalidQuery = errors.New("invalid query geometry")
)

// Entry is one indexed element: its reference, world-space bounds and type
// tag for filtered queries.
type Entry struct {
	Ref element.RefNo `msgpack:"ref"`
	Box geom.AABB     `msgpack:"box"`
	Tag string        `msgpack:"tag,omitempty"`
}

// Store is the persistent, authoritative AABB store underneath the in-memory
// tier. Scans are blocking I/O.
type Store interface {
	// Put inserts or replaces the entry for its reference.
	Put(ctx context.Context, e Entry) error
	// Delete removes the entry for ref; deleting a missing entry is a no-op.
	Delete(ctx context.Context, ref element.RefNo) error
	// Scan visits every entry until fn returns false.
	Scan(ctx context.Context, fn func(Entry) bool) error
	// Count returns the number of stored entries.
	Count(ctx context.Context) (int64, error)
	// Close releases store resources.
	Close() error
}

const prefixAABB = byte('s')

// BadgerStore is the badger-backed Store implementation. Entries are msgpack
// records keyed by reference; queries scan the keyspace, which keeps the
// store format trivial and pushes query acceleration to the in-memory tier.
type BadgerStore struct {
	db     *badger.DB
	ownsDB bool

	mu     sync.RWMutex
	closed bool
}

// OpenBadgerStore opens a store at path; empty path means in-memory badger.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open spatial store at %q: %w", path, err)
	}
	return &BadgerStore{db: db, ownsDB: true}, nil
}

// NewBadgerStoreOn shares an already-open badger database (the graph engine's)
// instead of opening a second one.
func NewBadgerStoreOn(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

func (s *BadgerStore) ensureOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrIndexUnavailable
	}
	return nil
}

func aabbKey(ref element.RefNo) []byte {
	key := make([]byte, 9)
	key[0] = prefixAABB
	key[1] = byte(uint32(ref.DB) >> 24)
	key[2] = byte(uint32(ref.DB) >> 16)
	key[3] = byte(uint32(ref.DB) >> 8)
	key[4] = byte(uint32(ref.DB))
	key[5] = byte(uint32(ref.Seq) >> 24)
	key[6] = byte(uint32(ref.Seq) >> 16)
	key[7] = byte(uint32(ref.Seq) >> 8)
	key[8] = byte(uint32(ref.Seq))
	return key
}

// Put implements Store.
func (s *BadgerStore) Put(ctx context.Context, e Entry) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	if e.Ref.IsNil() {
		return fmt.Errorf("%w: nil reference", ErrInvalidQuery)
	}
	if !e.Box.IsValid() {
		return fmt.Errorf("%w: box for %s", ErrInvalidQuery, e.Ref)
	}

	data, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode spatial entry %s: %w", e.Ref, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(aabbKey(e.Ref), data)
	})
	if err != nil {
		return fmt.Errorf("%w: put %s: %w", ErrIndexUnavailable, e.Ref, err)
	}
	return nil
}

// Delete implements Store.
func (s *BadgerStore) Delete(ctx context.Context, ref element.RefNo) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(aabbKey(ref))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrIndexUnavailable, ref, err)
	}
	return nil
}

// Scan implements Store.
func (s *BadgerStore) Scan(ctx context.Context, fn func(Entry) bool) error {
	if err := s.ensureOpen(); err != nil {
		return err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixAABB}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &e)
			}); err != nil {
				return fmt.Errorf("decode spatial entry: %w", err)
			}
			if !fn(e) {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return fmt.Errorf("%w: scan: %w", ErrIndexUnavailable, err)
	}
	return nil
}

// Count implements Store.
func (s *BadgerStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.Scan(ctx, func(Entry) bool { n++; return true })
	return n, err
}

// Close implements Store. A shared database (NewBadgerStoreOn) is left open
// for its owner.
func (s *BadgerStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}
