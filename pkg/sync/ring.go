package sync

import (
	"encoding/binary"

	"github.com/emirpasic/gods/maps/treemap"
	"github.com/emirpasic/gods/utils"
	"github.com/spaolacci/murmur3"
)

// ring maps arbitrary keys onto a fixed set of nodes using consistent hashing.
// Each node is placed on the ring at several virtual points so that keys are
// spread evenly even when there are few nodes.
type ring[V any] struct {
	points *treemap.Map // int64 point -> V
	first  V
}

func newRing[V any](nodes map[string]V, virtualPoints uint) *ring[V] {
	points := treemap.NewWith(utils.Int64Comparator)
	for name, node := range nodes {
		seed := make([]byte, 12)
		nameHash, _ := murmur3.Sum128([]byte(name))
		binary.LittleEndian.PutUint64(seed, nameHash)

		for i := uint32(0); i < uint32(virtualPoints); i++ {
			binary.LittleEndian.PutUint32(seed[8:], i)
			points.Put(ringPoint(seed), node)
		}
	}

	r := &ring[V]{points: points}
	if _, first := points.Min(); first != nil {
		r.first = first.(V)
	}
	return r
}

// lookup returns the node owning key: the first point at or after the key's
// hash, wrapping around to the lowest point.
func (r *ring[V]) lookup(key []byte) V {
	if _, node := r.points.Ceiling(ringPoint(key)); node != nil {
		return node.(V)
	}
	return r.first
}

func ringPoint(data []byte) int64 {
	h, _ := murmur3.Sum128(data)
	return int64(h)
}
