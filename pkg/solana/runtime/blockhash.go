package runtime

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/code-payments/code-vault/pkg/solana"
)

// blockhashQueue holds the most recent blockhashes, oldest first.
type blockhashQueue struct {
	maxAge int
	hashes []solana.Blockhash
	index  map[solana.Blockhash]uint64
	next   uint64
}

func newBlockhashQueue(maxAge int, genesis solana.Blockhash) *blockhashQueue {
	q := &blockhashQueue{
		maxAge: maxAge,
		index:  make(map[solana.Blockhash]uint64),
	}
	q.register(genesis)
	return q
}

// register appends hash and returns the blockhashes that aged out.
func (q *blockhashQueue) register(hash solana.Blockhash) []solana.Blockhash {
	q.hashes = append(q.hashes, hash)
	q.index[hash] = q.next
	q.next++

	var expired []solana.Blockhash
	for len(q.hashes) > q.maxAge {
		expired = append(expired, q.hashes[0])
		delete(q.index, q.hashes[0])
		q.hashes = q.hashes[1:]
	}
	return expired
}

// isValid reports whether hash is one of the last maxAge blockhashes.
func (q *blockhashQueue) isValid(hash solana.Blockhash) bool {
	_, ok := q.index[hash]
	return ok
}

func (q *blockhashQueue) latest() solana.Blockhash {
	return q.hashes[len(q.hashes)-1]
}

// nextBlockhash chains the previous blockhash with the signatures committed
// in a slot.
func nextBlockhash(prev solana.Blockhash, slot uint64, sigs ...solana.Signature) solana.Blockhash {
	h := sha256.New()
	h.Write(prev[:])
	var slotBytes [8]byte
	binary.LittleEndian.PutUint64(slotBytes[:], slot)
	h.Write(slotBytes[:])
	for _, sig := range sigs {
		h.Write(sig[:])
	}

	var next solana.Blockhash
	copy(next[:], h.Sum(nil))
	return next
}
