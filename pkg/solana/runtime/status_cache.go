package runtime

import (
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/code-payments/code-vault/pkg/solana"
)

const statusCacheFalsePositiveRate = 0.001

// statusCache remembers the slot every committed signature landed in, for as
// long as the blockhash it referenced can still be used. The bloom filter
// answers most lookups for unseen signatures without touching the map.
type statusCache struct {
	filter      *bloom.BloomFilter
	statuses    map[solana.Signature]uint64
	byBlockhash map[solana.Blockhash][]solana.Signature

	// The filter can't forget entries, so it is rebuilt from the live
	// statuses once rebuildAfter of them have been pruned.
	pruned       int
	rebuildAfter int
}

func newStatusCache(capacity uint, rebuildAfter int) *statusCache {
	return &statusCache{
		filter:       bloom.NewWithEstimates(capacity, statusCacheFalsePositiveRate),
		statuses:     make(map[solana.Signature]uint64),
		byBlockhash:  make(map[solana.Blockhash][]solana.Signature),
		rebuildAfter: rebuildAfter,
	}
}

func (c *statusCache) add(sig solana.Signature, slot uint64, recent solana.Blockhash) {
	c.filter.Add(sig[:])
	c.statuses[sig] = slot
	c.byBlockhash[recent] = append(c.byBlockhash[recent], sig)
}

func (c *statusCache) get(sig solana.Signature) (uint64, bool) {
	if !c.filter.Test(sig[:]) {
		return 0, false
	}
	slot, ok := c.statuses[sig]
	return slot, ok
}

// prune forgets the signatures of transactions that referenced an expired
// blockhash. Those transactions can no longer be replayed.
func (c *statusCache) prune(expired ...solana.Blockhash) {
	for _, hash := range expired {
		sigs := c.byBlockhash[hash]
		for _, sig := range sigs {
			delete(c.statuses, sig)
		}
		delete(c.byBlockhash, hash)
		c.pruned += len(sigs)
	}

	if c.pruned < c.rebuildAfter {
		return
	}

	c.filter.ClearAll()
	for sig := range c.statuses {
		c.filter.Add(sig[:])
	}
	c.pruned = 0
}

func (c *statusCache) size() int {
	return len(c.statuses)
}
