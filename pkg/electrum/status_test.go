package electrum

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/stretchr/testify/assert"

	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/query"
	"github.com/dedooxyz/dedoo-electrs-oldchain/pkg/txrow"
)

func hashFromByte(b byte) chainhash.Hash {
	var h chainhash.Hash
	h[0] = b
	return h
}

func TestStatusOfEmptyHistory(t *testing.T) {
	assert := assert.New(t)
	status, ok := statusOf(nil)
	assert.False(ok)
	assert.Empty(status)
}

func TestStatusOfIsDeterministic(t *testing.T) {
	assert := assert.New(t)
	history := []query.HistoryEntry{
		{Txid: hashFromByte(1), Height: 100},
		{Txid: hashFromByte(2), Height: 101},
	}
	a, ok := statusOf(history)
	assert.True(ok)
	b, _ := statusOf(history)
	assert.Equal(a, b)
}

func TestStatusOfOrderSensitive(t *testing.T) {
	assert := assert.New(t)
	forward := []query.HistoryEntry{
		{Txid: hashFromByte(1), Height: 100},
		{Txid: hashFromByte(2), Height: 101},
	}
	reversed := []query.HistoryEntry{
		{Txid: hashFromByte(2), Height: 101},
		{Txid: hashFromByte(1), Height: 100},
	}
	a, _ := statusOf(forward)
	b, _ := statusOf(reversed)
	assert.NotEqual(a, b, "status hash must depend on ordering, not just set membership")
}

func TestStatusOfMempoolEntryUsesSentinelHeight(t *testing.T) {
	assert := assert.New(t)
	confirmed := []query.HistoryEntry{{Txid: hashFromByte(1), Height: 100}}
	mempool := []query.HistoryEntry{{Txid: hashFromByte(1), Height: txrow.MempoolHeight}}
	a, _ := statusOf(confirmed)
	b, _ := statusOf(mempool)
	assert.NotEqual(a, b)
}
