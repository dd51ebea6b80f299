package store

import (
	"encoding/binary"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/apperr"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

// CheckOrInitVersion enforces spec.md §6's "version key... on mismatch the
// server refuses to start" contract. On a fresh database it writes the
// current OnDiskVersion.
func (s *Store) CheckOrInitVersion() error {
	v, err := s.Get(CFTxStore, txrow.VersionKey())
	if err != nil {
		return err
	}
	if v == nil {
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, txrow.OnDiskVersion)
		return s.PutBatch([]Pair{{CF: CFTxStore, Key: txrow.VersionKey(), Value: buf}})
	}
	got := binary.BigEndian.Uint32(v)
	if got != txrow.OnDiskVersion {
		return apperr.New(apperr.KindIndexing, "on-disk format version mismatch")
	}
	return nil
}

// Tip returns the last fully-indexed block hash, or nil if the database is
// empty (pre-genesis).
func (s *Store) Tip() ([]byte, error) {
	return s.Get(CFTxStore, txrow.TipKey())
}
