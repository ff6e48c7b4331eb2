package store

import (
	"sync"

	"github.com/dchest/siphash"
)

// chunkCache keys in-process, per-run append-dim coordinate reads by a
// fast non-cryptographic hash of (store identity, variable name),
// avoiding repeat remote reads of the same append-dim coordinate
// across the many Locate calls a single append-mode write makes (spec
// §4.5/§4.6: appendReplaceOrRetain calls existingCoordTicks once per
// input row). The Writer keeps the cached ticks current itself,
// updating them after every write that touches the append-dim
// coordinate rather than invalidating and re-reading from the store.
type chunkCache struct {
	mu    sync.Mutex
	k0    uint64
	k1    uint64
	ticks map[uint64][]float64
}

func newChunkCache(identity string) *chunkCache {
	k0, k1 := siphash.Hash128(0x6e63327a, 0x61727272, []byte(identity))
	return &chunkCache{k0: k0, k1: k1, ticks: map[uint64][]float64{}}
}

func (c *chunkCache) key(variable string) uint64 {
	lo, _ := siphash.Hash128(c.k0, c.k1, []byte(variable))
	return lo
}

// ticksOf returns the cached coordinate ticks for variable, if any.
func (c *chunkCache) ticksOf(variable string) ([]float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.ticks[c.key(variable)]
	return t, ok
}

// noteTicks records variable's current coordinate ticks, overwriting
// whatever was cached before.
func (c *chunkCache) noteTicks(variable string, ticks []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ticks[c.key(variable)] = append([]float64(nil), ticks...)
}
