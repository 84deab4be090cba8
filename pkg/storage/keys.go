package storage

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema. Address-keyed records concatenate raw 20-byte addresses so
// prefix scans stay cheap; id/sequence-keyed records use 8-byte big-endian
// so iteration order equals numeric order.
//
//	pair:<base><quote>   -> Pair (JSON)
//	bal:<account><token> -> Balance (JSON)
//	ord:<id>             -> Order (JSON, terminal orders kept with status)
//	fill:<seq>           -> Fill (JSON, append-only)
//	meta:next_order_id   -> uint64 (big-endian)
//	meta:next_seq        -> uint64 (big-endian)
const (
	prefixPair = "pair:"
	prefixBal  = "bal:"
	prefixOrd  = "ord:"
	prefixFill = "fill:"
)

var (
	keyNextOrderID = []byte("meta:next_order_id")
	keyNextSeq     = []byte("meta:next_seq")
)

func pairKey(base, quote common.Address) []byte {
	k := append([]byte(prefixPair), base.Bytes()...)
	return append(k, quote.Bytes()...)
}

func balanceKey(acct, token common.Address) []byte {
	k := append([]byte(prefixBal), acct.Bytes()...)
	return append(k, token.Bytes()...)
}

func orderKey(id uint64) []byte {
	return append([]byte(prefixOrd), u64Key(id)...)
}

func fillKey(seq uint64) []byte {
	return append([]byte(prefixFill), u64Key(seq)...)
}

func u64Key(v uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], v)
	return k[:]
}

// prefixBounds returns [lower, upper) iterator bounds covering every key
// under prefix.
func prefixBounds(prefix string) ([]byte, []byte) {
	lower := []byte(prefix)
	upper := append([]byte(nil), lower...)
	upper[len(upper)-1]++
	return lower, upper
}
