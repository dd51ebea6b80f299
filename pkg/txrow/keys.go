// Package txrow defines the byte-level key/value encoding for every row kind
// persisted by the indexer, per spec.md §3's invariants: single-byte type
// tags so every per-scripthash or per-txid scan is one contiguous range
// scan, and big-endian height embedding so forward iteration yields
// ascending chronological order.
package txrow

import (
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/chainparams"
)

// Row type tags (spec.md §3 invariants).
const (
	TagBlockHeader   byte = 'B' // blockhash -> header+meta
	TagHeightToHash  byte = 'H' // height -> blockhash
	TagRawTx         byte = 'T' // txid -> raw tx bytes
	TagTxMeta        byte = 'M' // txid -> metadata (block hash, confirmed)
	TagTxBlock       byte = 'b' // txid -> blockhash
	TagHistory       byte = 'S' // scripthash|height|pos|txid -> membership marker
	TagSpend         byte = 'O' // txid|vout -> spender
	TagCachedStats   byte = 'X' // scripthash -> cached AddressStats
	TagAddressPrefix byte = 'P' // address-prefix search index (opt-in)
	TagTip           byte = 't' // singleton: last fully-indexed block hash
	TagVersion       byte = 'v' // singleton: on-disk format version
	TagSupply        byte = 'c' // singleton: running total-supply counter
	TagBlockTx       byte = 'x' // blockhash|pos(be32) -> txid, block's canonical tx ordering for merkle proofs
)

// MempoolHeight is the sentinel height used for unconfirmed entries so that
// they always sort after every confirmed height in a history scan
// (spec.md §4.4's tie-break rule).
const MempoolHeight uint32 = 0x7FFFFFFF

// OnDiskVersion is bumped whenever the row layout changes incompatibly; the
// server refuses to start against a mismatched existing database
// (spec.md §6, "Persisted state layout").
const OnDiskVersion = 1

func putU32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// BlockHeaderKey: B|blockhash
func BlockHeaderKey(hash chainhash.Hash) []byte {
	k := make([]byte, 1+32)
	k[0] = TagBlockHeader
	copy(k[1:], hash[:])
	return k
}

// HeightKey: H|height(be32)
func HeightKey(height uint32) []byte {
	k := make([]byte, 1+4)
	k[0] = TagHeightToHash
	putU32(k[1:], height)
	return k
}

// RawTxKey: T|txid
func RawTxKey(txid chainhash.Hash) []byte {
	k := make([]byte, 1+32)
	k[0] = TagRawTx
	copy(k[1:], txid[:])
	return k
}

// TxMetaKey: M|txid
func TxMetaKey(txid chainhash.Hash) []byte {
	k := make([]byte, 1+32)
	k[0] = TagTxMeta
	copy(k[1:], txid[:])
	return k
}

// TxBlockKey: b|txid
func TxBlockKey(txid chainhash.Hash) []byte {
	k := make([]byte, 1+32)
	k[0] = TagTxBlock
	copy(k[1:], txid[:])
	return k
}

// HistoryPrefix: S|scripthash — the range-scan prefix for one scripthash's
// full history (spec.md §4.7 address_history).
func HistoryPrefix(sh chainparams.Scripthash) []byte {
	k := make([]byte, 1+32)
	k[0] = TagHistory
	copy(k[1:], sh[:])
	return k
}

// HistoryKey: S|scripthash|height(be32)|pos(be32)|txid — total order
// respecting block height then intra-block position (spec.md §4.4).
func HistoryKey(sh chainparams.Scripthash, height uint32, pos uint32, txid chainhash.Hash) []byte {
	k := make([]byte, 1+32+4+4+32)
	k[0] = TagHistory
	off := 1
	copy(k[off:], sh[:])
	off += 32
	putU32(k[off:], height)
	off += 4
	putU32(k[off:], pos)
	off += 4
	copy(k[off:], txid[:])
	return k
}

// DecodeHistoryKey splits a full history key back into its fields. Returns
// false if k is not a well-formed TagHistory key.
func DecodeHistoryKey(k []byte) (sh chainparams.Scripthash, height, pos uint32, txid chainhash.Hash, ok bool) {
	if len(k) != 1+32+4+4+32 || k[0] != TagHistory {
		return sh, 0, 0, txid, false
	}
	off := 1
	copy(sh[:], k[off:off+32])
	off += 32
	height = binary.BigEndian.Uint32(k[off:])
	off += 4
	pos = binary.BigEndian.Uint32(k[off:])
	off += 4
	copy(txid[:], k[off:off+32])
	return sh, height, pos, txid, true
}

// Outpoint identifies a prior output being spent.
type Outpoint struct {
	Txid chainhash.Hash
	Vout uint32
}

// SpendKey: O|funding_txid|vout
func SpendKey(op Outpoint) []byte {
	k := make([]byte, 1+32+4)
	k[0] = TagSpend
	copy(k[1:], op.Txid[:])
	putU32(k[33:], op.Vout)
	return k
}

// Sub-kind bytes for rows that extend a HistoryKey. Funding rows live in
// the history keyspace tagged with a sub-kind byte so they can be told apart
// from plain membership rows during a UTXO scan without a second CF.
const subKindFunding byte = 'F'
const subKindTxIn byte = 'I'
const subKindTxOut byte = 'o'

// FundingRowKey: S|scripthash|height(be32)|pos(be32)|txid|'F'|vout(be32);
// the output's value is the row value (FundingRowValue).
func FundingRowKey(sh chainparams.Scripthash, height, pos uint32, txid chainhash.Hash, vout uint32) []byte {
	base := HistoryKey(sh, height, pos, txid)
	k := make([]byte, len(base)+1+4)
	copy(k, base)
	k[len(base)] = subKindFunding
	putU32(k[len(base)+1:], vout)
	return k
}

// FundingRowValue encodes the output value (satoshis) carried by a funding row.
func FundingRowValue(value int64) []byte {
	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(value))
	return v
}

// DecodeFundingRowValue decodes a funding row's value.
func DecodeFundingRowValue(v []byte) int64 {
	return int64(binary.BigEndian.Uint64(v))
}

// TxOutRowKey: S|scripthash|height|pos|txid|'o'|vout — membership marker for
// the output side of a tx touching a scripthash.
func TxOutRowKey(sh chainparams.Scripthash, height, pos uint32, txid chainhash.Hash, vout uint32) []byte {
	base := HistoryKey(sh, height, pos, txid)
	k := make([]byte, len(base)+1+4)
	copy(k, base)
	k[len(base)] = subKindTxOut
	putU32(k[len(base)+1:], vout)
	return k
}

// TxInRowKey: S|scripthash|height|pos|txid|'I'|vin — membership marker for
// the input side of a tx touching a scripthash.
func TxInRowKey(sh chainparams.Scripthash, height, pos uint32, txid chainhash.Hash, vin uint32) []byte {
	base := HistoryKey(sh, height, pos, txid)
	k := make([]byte, len(base)+1+4)
	copy(k, base)
	k[len(base)] = subKindTxIn
	putU32(k[len(base)+1:], vin)
	return k
}

// IsFundingRow reports whether a full history-prefixed key is a FundingRow,
// returning its vout if so.
func IsFundingRow(k []byte) (vout uint32, ok bool) {
	return subKindVout(k, subKindFunding)
}

// IsTxOutRow reports whether a key is a TxOutRow membership marker.
func IsTxOutRow(k []byte) (vout uint32, ok bool) {
	return subKindVout(k, subKindTxOut)
}

// IsTxInRow reports whether a key is a TxInRow membership marker.
func IsTxInRow(k []byte) (vin uint32, ok bool) {
	return subKindVout(k, subKindTxIn)
}

func subKindVout(k []byte, want byte) (uint32, bool) {
	const baseLen = 1 + 32 + 4 + 4 + 32
	if len(k) != baseLen+1+4 {
		return 0, false
	}
	if k[0] != TagHistory || k[baseLen] != want {
		return 0, false
	}
	return binary.BigEndian.Uint32(k[baseLen+1:]), true
}

// CachedStatsKey: X|scripthash
func CachedStatsKey(sh chainparams.Scripthash) []byte {
	k := make([]byte, 1+32)
	k[0] = TagCachedStats
	copy(k[1:], sh[:])
	return k
}

// AddressPrefixKey: P|prefix. No code writes or reads P rows; the indexer
// does not build an address-prefix index.
func AddressPrefixKey(prefix string) []byte {
	k := make([]byte, 1+len(prefix))
	k[0] = TagAddressPrefix
	copy(k[1:], prefix)
	return k
}

// TipKey and VersionKey and SupplyKey are singleton keys in txstore.
func TipKey() []byte    { return []byte{TagTip} }
func VersionKey() []byte { return []byte{TagVersion} }
func SupplyKey() []byte  { return []byte{TagSupply} }

// BlockTxKey: x|blockhash|pos(be32) -> txid, giving each block's canonical
// transaction ordering without re-parsing the block (spec.md §4.7
// merkle_proof and the §6 `/block/{hash}/txs` and `/block/{hash}/txids`
// listings all need this same ordering).
func BlockTxKey(blockHash chainhash.Hash, pos uint32) []byte {
	k := make([]byte, 1+32+4)
	k[0] = TagBlockTx
	copy(k[1:], blockHash[:])
	putU32(k[33:], pos)
	return k
}

// BlockTxPrefix is the range-scan prefix for every tx of one block, in
// ascending position order.
func BlockTxPrefix(blockHash chainhash.Hash) []byte {
	k := make([]byte, 1+32)
	k[0] = TagBlockTx
	copy(k[1:], blockHash[:])
	return k
}
