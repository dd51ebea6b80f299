package chainparams

import (
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
)

// btcutilAddress is the interface txscript.PayToAddrScript needs; aliased so
// callers of this package never have to import btcutil directly.
type btcutilAddress = btcutil.Address

func decodeAddress(addr string, net *chaincfg.Params) (btcutilAddress, error) {
	return btcutil.DecodeAddress(addr, net)
}
