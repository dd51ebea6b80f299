package txrow

import (
	"encoding/binary"
	"encoding/json"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// BlockMeta is the value stored at TagBlockHeader: a raw header plus the
// bookkeeping the indexer needs without re-parsing the header each time.
type BlockMeta struct {
	Height    uint32          `json:"height"`
	HeaderRaw []byte          `json:"header_raw"`
	PrevHash  chainhash.Hash  `json:"prev_hash"`
	Time      uint32          `json:"time"`
	TxCount   uint32          `json:"tx_count"`
}

// Encode/Decode use JSON rather than a hand-rolled binary format: these rows
// are written once per block (not per-tx, where density matters), so the
// teacher's own preference for straightforward encodings (its database.go
// stores raw encoded bytes via each domain type's own Encode method) is
// better served here by plain encoding/json than by inventing a bespoke
// binary layout with no spec-mandated shape.
func (m BlockMeta) Encode() ([]byte, error) { return json.Marshal(m) }

func DecodeBlockMeta(b []byte) (BlockMeta, error) {
	var m BlockMeta
	err := json.Unmarshal(b, &m)
	return m, err
}

// TxMeta is the value stored at TagTxMeta: spec.md §4.7 get_tx_status reads
// this to answer {confirmed, height, block_hash}.
type TxMeta struct {
	BlockHash chainhash.Hash `json:"block_hash"`
	Height    uint32         `json:"height"`
	Confirmed bool           `json:"confirmed"`
}

func (m TxMeta) Encode() ([]byte, error) { return json.Marshal(m) }

func DecodeTxMeta(b []byte) (TxMeta, error) {
	var m TxMeta
	err := json.Unmarshal(b, &m)
	return m, err
}

// AddressStats is the cache CF value at TagCachedStats (spec.md §3 and §9's
// first_seen_tx_time open question).
type AddressStats struct {
	FundedCount     uint64 `json:"funded_count"`
	FundedSum       int64  `json:"funded_sum"`
	SpentCount      uint64 `json:"spent_count"`
	SpentSum        int64  `json:"spent_sum"`
	TxCount         uint64 `json:"tx_count"`
	LastIndexedTxid string `json:"last_indexed_txid"`
	LastHeight      uint32 `json:"last_height"`
	LastPos         uint32 `json:"last_pos"`
	FirstSeen       int64  `json:"first_seen,omitempty"`
}

func (s AddressStats) Encode() ([]byte, error) { return json.Marshal(s) }

func DecodeAddressStats(b []byte) (AddressStats, error) {
	var s AddressStats
	err := json.Unmarshal(b, &s)
	return s, err
}

// SpenderInfo is the value stored at a SpendKey (TagSpend): who spent a
// given output, and at what height (0 / MempoolHeight if unconfirmed).
type SpenderInfo struct {
	Txid   chainhash.Hash `json:"txid"`
	Vin    uint32         `json:"vin"`
	Height uint32         `json:"height"`
}

func (s SpenderInfo) Encode() []byte {
	b := make([]byte, 32+4+4)
	copy(b, s.Txid[:])
	binary.BigEndian.PutUint32(b[32:], s.Vin)
	binary.BigEndian.PutUint32(b[36:], s.Height)
	return b
}

func DecodeSpenderInfo(b []byte) (SpenderInfo, bool) {
	if len(b) != 40 {
		return SpenderInfo{}, false
	}
	var s SpenderInfo
	copy(s.Txid[:], b[:32])
	s.Vin = binary.BigEndian.Uint32(b[32:36])
	s.Height = binary.BigEndian.Uint32(b[36:40])
	return s, true
}
