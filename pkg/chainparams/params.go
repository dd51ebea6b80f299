// Package chainparams selects the per-network address format, magic bytes,
// and genesis hash used to interpret raw blocks and to convert addresses to
// scripthashes for indexing.
package chainparams

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
)

// Params bundles the btcd chain params with the network's genesis block
// hash (the hash of the block at height 0).
type Params struct {
	Name    string
	Net     *chaincfg.Params
	Genesis chainhash.Hash
}

// Known networks, selected at startup via the `network` config option
// (spec.md §6).
var (
	Mainnet = Params{
		Name:    "mainnet",
		Net:     &chaincfg.MainNetParams,
		Genesis: *chaincfg.MainNetParams.GenesisHash,
	}
	Testnet = Params{
		Name:    "testnet",
		Net:     &chaincfg.TestNet3Params,
		Genesis: *chaincfg.TestNet3Params.GenesisHash,
	}
	Regtest = Params{
		Name:    "regtest",
		Net:     &chaincfg.RegressionNetParams,
		Genesis: *chaincfg.RegressionNetParams.GenesisHash,
	}
)

// ByName resolves a network config string to its Params.
func ByName(name string) (Params, bool) {
	switch name {
	case "mainnet", "":
		return Mainnet, true
	case "testnet", "testnet3":
		return Testnet, true
	case "regtest":
		return Regtest, true
	default:
		return Params{}, false
	}
}

// Scripthash is the canonical, address-independent identity used for all
// indexing: SHA-256 of the serialized output script, stored big-endian (per
// the GLOSSARY; this matches the Electrum protocol's own scripthash
// definition, which additionally reverses the digest for wire
// representation — Electrum below produces that wire form on demand).
type Scripthash [32]byte

// NewScripthash hashes a raw output script into its scripthash.
func NewScripthash(pkScript []byte) Scripthash {
	return sha256.Sum256(pkScript)
}

// Electrum returns the little-endian ("reversed") hex form Electrum clients
// use on the wire for blockchain.scripthash.* calls.
func (s Scripthash) Electrum() [32]byte {
	var out [32]byte
	for i, b := range s {
		out[31-i] = b
	}
	return out
}

// ScripthashForAddress decodes addr under params and returns its scripthash.
func ScripthashForAddress(addr string, p Params) (Scripthash, error) {
	a, err := p.decodeAddress(addr)
	if err != nil {
		return Scripthash{}, err
	}
	script, err := txscript.PayToAddrScript(a)
	if err != nil {
		return Scripthash{}, err
	}
	return NewScripthash(script), nil
}

func (p Params) decodeAddress(addr string) (btcutilAddress, error) {
	return decodeAddress(addr, p.Net)
}
