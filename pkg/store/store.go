// Package store wraps goleveldb as the ordered, byte-keyed embedded KV
// engine spec.md §4.1 treats as an external collaborator contract: atomic
// write batches, prefix range iteration, consistent snapshots, and a
// bulk-load mode used during initial sync.
//
// goleveldb has no native column families, so the three logical CFs
// (txstore, history, cache) are multiplexed into one keyspace by prefixing
// every key with its CF's byte (cfKey); within a CF, rows are told apart by
// the single-byte row tags defined in pkg/txrow — grounded on the teacher's own
// prefix-tagged keys in pkg/core/chain/database.go ("HEADER", "TX", "Input"),
// generalized from a handful of ad hoc string prefixes to the full row-tag
// table.
package store

import (
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/syndtr/goleveldb/leveldb"
	lderrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
)

var log = logrus.WithFields(logrus.Fields{"prefix": "store"})

// CF names the logical column family a key belongs to. goleveldb stores
// everything in one LSM tree; each key is stored behind its CF's byte, so
// the three families occupy disjoint key ranges.
type CF int

const (
	CFTxStore CF = iota
	CFHistory
	CFCache
)

// Pair is a single row to be written atomically as part of a batch: a
// put if Delete is false, a tombstone if Delete is true. Mixing puts and
// deletes across CFs in one Pair slice is how cross-CF atomicity is
// achieved for operations (like reorg rollback) that both remove and
// update rows in a single batch.
type Pair struct {
	CF     CF
	Key    []byte
	Value  []byte
	Delete bool
}

// Store is the typed wrapper described above.
type Store struct {
	db       *leveldb.DB
	path     string
	bulkLoad bool
}

// Open opens (and recovers, if corrupted) the database at path, mirroring
// the teacher's NewDatabase recovery dance in pkg/core/chain/database.go.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if corrupted, ok := err.(*lderrors.ErrCorrupted); ok {
		log.WithField("err", corrupted).Warn("database corrupted, attempting recovery")
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "open store at "+path)
	}
	return &Store{db: db, path: path}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnableBulkLoad switches writes to bypass fsync-on-write (durability
// deferred), used during initial sync per spec.md §4.1. DisableBulkLoad
// restores durable (synced) writes; it does not compact, CompactRange is
// a separate call.
func (s *Store) EnableBulkLoad()  { s.bulkLoad = true }
func (s *Store) DisableBulkLoad() { s.bulkLoad = false }

func (s *Store) writeOpts() *opt.WriteOptions {
	if s.bulkLoad {
		return &opt.WriteOptions{Sync: false}
	}
	return &opt.WriteOptions{Sync: true}
}

// PutBatch writes pairs atomically: within a single call either all pairs
// are visible or none are (spec.md §4.1's cross-CF batch contract). A pair
// with Delete set is written as a tombstone rather than a put, so a single
// call can both remove rows from one CF and update rows in another as one
// atomic effect (spec.md §4.4 phase B's reorg rollback needs exactly this).
// Rows are sorted by (CF, Key) before write, matching spec.md §4.4's
// "sorted by key before write to accelerate bulk-load ingestion".
func (s *Store) PutBatch(pairs []Pair) error {
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].CF != pairs[j].CF {
			return pairs[i].CF < pairs[j].CF
		}
		return string(pairs[i].Key) < string(pairs[j].Key)
	})
	b := new(leveldb.Batch)
	for _, p := range pairs {
		if p.Delete {
			b.Delete(cfKey(p.CF, p.Key))
		} else {
			b.Put(cfKey(p.CF, p.Key), p.Value)
		}
	}
	if err := s.db.Write(b, s.writeOpts()); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "write batch")
	}
	return nil
}

// DeleteBatch atomically deletes the given keys within a single CF. Callers
// needing atomicity across CFs (e.g. reorg rollback, which must delete
// txstore/history rows and update the supply counter as one effect) must
// use PutBatch with Delete-tagged Pairs instead.
func (s *Store) DeleteBatch(cf CF, keys [][]byte) error {
	b := new(leveldb.Batch)
	for _, k := range keys {
		b.Delete(cfKey(cf, k))
	}
	if err := s.db.Write(b, s.writeOpts()); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "delete batch")
	}
	return nil
}

// Get reads a single key from cf.
func (s *Store) Get(cf CF, key []byte) ([]byte, error) {
	v, err := s.db.Get(cfKey(cf, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get")
	}
	return v, nil
}

// Has reports whether key exists in cf.
func (s *Store) Has(cf CF, key []byte) (bool, error) {
	ok, err := s.db.Has(cfKey(cf, key), nil)
	if err != nil {
		return false, apperr.Wrap(apperr.KindStore, err, "has")
	}
	return ok, nil
}

// Flush does nothing and always returns nil; goleveldb writes its memtables
// out on its own.
func (s *Store) Flush() error {
	return nil // goleveldb auto-flushes memtables; kept for interface symmetry with spec.md §4.1.
}

// CompactRange compacts the given key range; called once after bulk-load
// sync completes (spec.md §4.1).
func (s *Store) CompactRange(cf CF, from, to []byte) error {
	var r *util.Range
	if from != nil || to != nil {
		r = &util.Range{Start: cfKey(cf, from), Limit: cfKey(cf, to)}
	}
	if err := s.db.CompactRange(*orFullRange(r, cf)); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "compact range")
	}
	return nil
}

func orFullRange(r *util.Range, cf CF) *util.Range {
	if r != nil {
		return r
	}
	return &util.Range{Start: []byte{byte(cf), 0x00}, Limit: []byte{byte(cf), 0xff}}
}

// Snapshot is a consistent point-in-time read view (spec.md §4.1).
type Snapshot struct {
	snap *leveldb.Snapshot
}

// Snapshot takes a consistent read view of the store.
func (s *Store) Snapshot() (*Snapshot, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "snapshot")
	}
	return &Snapshot{snap: snap}, nil
}

// Release frees the snapshot's resources.
func (sn *Snapshot) Release() { sn.snap.Release() }

// Get reads a key under the snapshot's fixed point in time.
func (sn *Snapshot) Get(cf CF, key []byte) ([]byte, error) {
	v, err := sn.snap.Get(cfKey(cf, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "snapshot get")
	}
	return v, nil
}

// KV is a single key (with its CF prefix stripped) and value, yielded by
// iteration.
type KV struct {
	Key   []byte
	Value []byte
}

// IterPrefix returns every key matching prefix within cf, under the
// snapshot's fixed view, in ascending key order. The returned keys have the
// CF byte stripped back off.
func (sn *Snapshot) IterPrefix(cf CF, prefix []byte) []KV {
	it := sn.snap.NewIterator(util.BytesPrefix(cfKey(cf, prefix)), nil)
	defer it.Release()
	return drain(it, false)
}

// IterPrefixReverse is IterPrefix but descending, used for newest-first
// history scans (spec.md §4.7 address_history).
func (sn *Snapshot) IterPrefixReverse(cf CF, prefix []byte) []KV {
	it := sn.snap.NewIterator(util.BytesPrefix(cfKey(cf, prefix)), nil)
	defer it.Release()
	return drain(it, true)
}

func drain(it iterator.Iterator, reverse bool) []KV {
	var out []KV
	if reverse {
		for ok := it.Last(); ok; ok = it.Prev() {
			out = append(out, copyKV(it))
		}
	} else {
		for it.Next() {
			out = append(out, copyKV(it))
		}
	}
	return out
}

func copyKV(it iterator.Iterator) KV {
	k := make([]byte, len(it.Key())-1)
	copy(k, it.Key()[1:])
	v := make([]byte, len(it.Value()))
	copy(v, it.Value())
	return KV{Key: k, Value: v}
}

func cfKey(cf CF, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = byte(cf)
	copy(out[1:], key)
	return out
}
