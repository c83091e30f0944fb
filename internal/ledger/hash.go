package ledger

import (
	"encoding/hex"

	"github.com/zeebo/blake3"

	"housekeeping/pkg/codec"
)

// txDomainKey separates ledger hashes from any other keyed BLAKE3 use.
var txDomainKey = [32]byte{
	'h', 'o', 'u', 's', 'e', 'k', 'e', 'e', 'p', 'i', 'n', 'g', '.',
	'l', 'e', 'd', 'g', 'e', 'r', '.', 't', 'x',
}

// hashInput is the canonical content of a transaction. Times are reduced to
// microseconds so a row read back from Postgres hashes identically.
type hashInput struct {
	Prev      string `cbor:"1,keyasint"`
	ItemID    string `cbor:"2,keyasint"`
	Seq       int64  `cbor:"3,keyasint"`
	Type      string `cbor:"4,keyasint"`
	Delta     int64  `cbor:"5,keyasint"`
	Requested int64  `cbor:"6,keyasint"`
	Forced    bool   `cbor:"7,keyasint"`
	Reference string `cbor:"8,keyasint"`
	Note      string `cbor:"9,keyasint"`
	Actor     string `cbor:"10,keyasint"`
	At        int64  `cbor:"11,keyasint"`
}

// ChainHash computes the hash of tx linked to its predecessor's hash.
func ChainHash(tx Transaction) (string, error) {
	data, err := codec.Marshal(hashInput{
		Prev:      tx.PrevHash,
		ItemID:    tx.ItemID,
		Seq:       tx.Seq,
		Type:      string(tx.Type),
		Delta:     tx.Delta,
		Requested: tx.Requested,
		Forced:    tx.Forced,
		Reference: tx.Reference,
		Note:      tx.Note,
		Actor:     tx.Actor,
		At:        tx.CreatedAt.UTC().UnixMicro(),
	})
	if err != nil {
		return "", err
	}
	h, err := blake3.NewKeyed(txDomainKey[:])
	if err != nil {
		return "", err
	}
	_, _ = h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fold replays a log in sequence order. It returns the quantity the log
// implies and the index of the first transaction whose sequence or hash
// link is broken, or -1 when the chain is intact.
func Fold(txs []Transaction) (qty int64, lastHash string, broken int) {
	prev := ""
	for i, tx := range txs {
		if tx.Seq != int64(i+1) || tx.PrevHash != prev {
			return qty, prev, i
		}
		want, err := ChainHash(tx)
		if err != nil || want != tx.Hash {
			return qty, prev, i
		}
		qty += tx.Delta
		prev = tx.Hash
	}
	return qty, prev, -1
}
