package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"
	"github.com/happyrust/plantgraph/pkg/element"
)

// BadgerEngine is the embedded persistent Engine backed by BadgerDB.
//
// Reads go through a bounded in-memory attribute cache that stores deep
// copies; Attributes returns copies so callers cannot mutate cached state.
// Writes batch the record plus its child/type index entries and update the
// cache only after a successful flush.
type BadgerEngine struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool

	attrCache           map[element.RefNo]*element.AttributeMap
	attrCacheMu         sync.RWMutex
	attrCacheMaxEntries int

	cacheHits    atomic.Int64
	cacheMisses  atomic.Int64
	elementCount atomic.Int64

	logger *slog.Logger

	notifier
}

// BadgerOptions configures OpenBadger.
type BadgerOptions struct {
	// Path is the badger directory. Empty means in-memory badger.
	Path string
	// AttrCacheMaxEntries bounds the attribute cache; 0 uses the default.
	AttrCacheMaxEntries int
	// Logger receives engine logs; nil uses slog.Default().
	Logger *slog.Logger
}

const defaultAttrCacheEntries = 100_000

// OpenBadger opens (creating if needed) a badger-backed engine at opts.Path.
func OpenBadger(opts BadgerOptions) (*BadgerEngine, error) {
	bopts := badger.DefaultOptions(opts.Path).WithLogger(nil)
	if opts.Path == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Path, err)
	}

	maxEntries := opts.AttrCacheMaxEntries
	if maxEntries <= 0 {
		maxEntries = defaultAttrCacheEntries
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &BadgerEngine{
		db:                  db,
		attrCache:           make(map[element.RefNo]*element.AttributeMap),
		attrCacheMaxEntries: maxEntries,
		logger:              logger,
	}
	e.elementCount.Store(e.countElements())
	return e, nil
}

// Name implements Engine.
func (b *BadgerEngine) Name() string { return "badger" }

// Ping implements Engine.
func (b *BadgerEngine) Ping(ctx context.Context) error {
	return b.ensureOpen()
}

func (b *BadgerEngine) ensureOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrStorageClosed
	}
	return nil
}

func (b *BadgerEngine) countElements() int64 {
	var n int64
	_ = b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte{prefixElement}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	return n
}

// Attributes implements Engine.
func (b *BadgerEngine) Attributes(ctx context.Context, ref element.RefNo) (*element.AttributeMap, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	b.attrCacheMu.RLock()
	if cached, ok := b.attrCache[ref]; ok {
		b.attrCacheMu.RUnlock()
		b.cacheHits.Add(1)
		return cached.Clone(), nil
	}
	b.attrCacheMu.RUnlock()
	b.cacheMisses.Add(1)

	var attrs *element.AttributeMap
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(elementKey(ref))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			var decodeErr error
			attrs, decodeErr = decodeAttributes(val)
			return decodeErr
		})
	})
	if err != nil {
		return nil, err
	}

	b.cacheStore(attrs)
	return attrs.Clone(), nil
}

func (b *BadgerEngine) cacheStore(attrs *element.AttributeMap) {
	if attrs == nil {
		return
	}
	b.attrCacheMu.Lock()
	// Simple eviction: if cache grows past the bound, drop it wholesale.
	if len(b.attrCache) > b.attrCacheMaxEntries {
		b.attrCache = make(map[element.RefNo]*element.AttributeMap, b.attrCacheMaxEntries)
	}
	b.attrCache[attrs.Ref] = attrs.Clone()
	b.attrCacheMu.Unlock()
}

func (b *BadgerEngine) cacheDelete(ref element.RefNo) {
	b.attrCacheMu.Lock()
	delete(b.attrCache, ref)
	b.attrCacheMu.Unlock()
}

// Children implements Engine.
func (b *BadgerEngine) Children(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	var out []element.RefNo
	err := b.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(elementKey(ref)); err == badger.ErrKeyNotFound {
			return ErrNotFound
		} else if err != nil {
			return err
		}

		prefix := childPrefix(ref)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			out = append(out, refFromIndexSuffix(it.Item().Key()))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Ancestors implements Engine. The chain is resolved inside a single badger
// read transaction, so a 10+ level chain costs one store round-trip, not N.
func (b *BadgerEngine) Ancestors(ctx context.Context, ref element.RefNo) ([]element.RefNo, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	var chain []element.RefNo
	err := b.db.View(func(txn *badger.Txn) error {
		var walkErr error
		chain, walkErr = walkAncestors(ref, func(r element.RefNo) (element.RefNo, error) {
			attrs, err := b.attrsInTxn(txn, r)
			if err != nil {
				return element.NilRef, err
			}
			return attrs.Owner(), nil
		})
		return walkErr
	})
	if err != nil {
		return nil, err
	}
	return chain, nil
}

func (b *BadgerEngine) attrsInTxn(txn *badger.Txn, ref element.RefNo) (*element.AttributeMap, error) {
	item, err := txn.Get(elementKey(ref))
	if err == badger.ErrKeyNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var attrs *element.AttributeMap
	err = item.Value(func(val []byte) error {
		var decodeErr error
		attrs, decodeErr = decodeAttributes(val)
		return decodeErr
	})
	return attrs, err
}

// QueryByType implements Engine. Single pass: iterate the type index and
// fetch matching records in the same transaction.
func (b *BadgerEngine) QueryByType(ctx context.Context, typeTags []string, dbNum int32, filter TypeFilter) ([]element.RefNo, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	var out []element.RefNo
	err := b.db.View(func(txn *badger.Txn) error {
		for _, tag := range typeTags {
			prefix := typePrefix(tag)
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			for it.Rewind(); it.Valid(); it.Next() {
				ref := refFromIndexSuffix(it.Item().Key())
				if dbNum > 0 && ref.DB != dbNum {
					continue
				}
				if filter != nil {
					attrs, err := b.attrsInTxn(txn, ref)
					if err != nil {
						continue // index entry for a concurrently deleted element
					}
					if !filter(attrs) {
						continue
					}
				}
				out = append(out, ref)
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// QuerySubtree implements Engine. Pre-order traversal of the child index in
// one read transaction.
func (b *BadgerEngine) QuerySubtree(ctx context.Context, ref element.RefNo, maxDepth int) ([]element.RefNo, error) {
	if ref.IsNil() {
		return nil, ErrInvalidRef
	}
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}

	var out []element.RefNo
	err := b.db.View(func(txn *badger.Txn) error {
		if _, err := txn.Get(elementKey(ref)); err == badger.ErrKeyNotFound {
			return ErrNotFound
		} else if err != nil {
			return err
		}

		type frame struct {
			ref   element.RefNo
			depth int
		}
		stack := []frame{{ref, 0}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			out = append(out, f.ref)
			if maxDepth > 0 && f.depth >= maxDepth {
				continue
			}

			kids := b.childrenInTxn(txn, f.ref)
			// Push in reverse so pre-order pops in child-index order.
			for i := len(kids) - 1; i >= 0; i-- {
				stack = append(stack, frame{kids[i], f.depth + 1})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (b *BadgerEngine) childrenInTxn(txn *badger.Txn, ref element.RefNo) []element.RefNo {
	prefix := childPrefix(ref)
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var kids []element.RefNo
	for it.Rewind(); it.Valid(); it.Next() {
		kids = append(kids, refFromIndexSuffix(it.Item().Key()))
	}
	return kids
}

// CreateElement implements Engine.
func (b *BadgerEngine) CreateElement(ctx context.Context, attrs *element.AttributeMap) error {
	if attrs == nil {
		return ErrInvalidData
	}
	if attrs.Ref.IsNil() {
		return ErrInvalidRef
	}
	if err := b.ensureOpen(); err != nil {
		return err
	}

	var exists bool
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(elementKey(attrs.Ref))
		if err == nil {
			exists = true
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if exists {
		return ErrAlreadyExists
	}

	if err := b.writeElement(attrs, nil); err != nil {
		return err
	}

	b.elementCount.Add(1)
	b.cacheStore(attrs)
	b.notifyCreated(attrs.Ref)
	return nil
}

// UpdateElement implements Engine. Missing elements are created (upsert).
func (b *BadgerEngine) UpdateElement(ctx context.Context, attrs *element.AttributeMap) error {
	if attrs == nil {
		return ErrInvalidData
	}
	if attrs.Ref.IsNil() {
		return ErrInvalidRef
	}
	if err := b.ensureOpen(); err != nil {
		return err
	}

	var old *element.AttributeMap
	err := b.db.View(func(txn *badger.Txn) error {
		existing, err := b.attrsInTxn(txn, attrs.Ref)
		if err == ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		old = existing
		return nil
	})
	if err != nil {
		return err
	}

	if err := b.writeElement(attrs, old); err != nil {
		return err
	}

	b.cacheStore(attrs)
	if old == nil {
		b.elementCount.Add(1)
		b.notifyCreated(attrs.Ref)
	} else {
		b.notifyUpdated(attrs.Ref)
	}
	return nil
}

// writeElement batches the record plus index maintenance. old carries the
// previous snapshot so stale child/type index entries get removed.
func (b *BadgerEngine) writeElement(attrs, old *element.AttributeMap) error {
	data, err := encodeAttributes(attrs)
	if err != nil {
		return err
	}

	wb := b.db.NewWriteBatch()
	defer wb.Cancel()

	if err := wb.Set(elementKey(attrs.Ref), data); err != nil {
		return fmt.Errorf("write element %s: %w", attrs.Ref, err)
	}

	if old != nil {
		if oldOwner := old.Owner(); !oldOwner.IsNil() && oldOwner != old.Ref && oldOwner != attrs.Owner() {
			if err := wb.Delete(childKey(oldOwner, old.Ref)); err != nil {
				return err
			}
		}
		if oldTag := old.TypeTag(); oldTag != "" && oldTag != attrs.TypeTag() {
			if err := wb.Delete(typeKey(oldTag, old.Ref)); err != nil {
				return err
			}
		}
	}

	if owner := attrs.Owner(); !owner.IsNil() && owner != attrs.Ref {
		if err := wb.Set(childKey(owner, attrs.Ref), nil); err != nil {
			return err
		}
	}
	if tag := attrs.TypeTag(); tag != "" {
		if err := wb.Set(typeKey(tag, attrs.Ref), nil); err != nil {
			return err
		}
	}

	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush element write %s: %w", attrs.Ref, err)
	}
	return nil
}

// DeleteElement implements Engine.
func (b *BadgerEngine) DeleteElement(ctx context.Context, ref element.RefNo) error {
	if ref.IsNil() {
		return ErrInvalidRef
	}
	if err := b.ensureOpen(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badger.Txn) error {
		attrs, err := b.attrsInTxn(txn, ref)
		if err != nil {
			return err
		}
		if err := txn.Delete(elementKey(ref)); err != nil {
			return err
		}
		if owner := attrs.Owner(); !owner.IsNil() && owner != ref {
			if err := txn.Delete(childKey(owner, ref)); err != nil {
				return err
			}
		}
		if tag := attrs.TypeTag(); tag != "" {
			if err := txn.Delete(typeKey(tag, ref)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.cacheDelete(ref)
	b.elementCount.Add(-1)
	b.notifyDeleted(ref)
	return nil
}

// Stats implements Engine.
func (b *BadgerEngine) Stats() Stats {
	return Stats{
		ElementCount: b.elementCount.Load(),
		CacheHits:    b.cacheHits.Load(),
		CacheMisses:  b.cacheMisses.Load(),
	}
}

// Close implements Engine.
func (b *BadgerEngine) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	return b.db.Close()
}
