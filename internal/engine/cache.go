package engine

import (
	"math/bits"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pbnjay/memory"

	"github.com/hailam/trout/internal/board"
)

// Bound tells how a cached score relates to the true score.
type Bound uint8

const (
	BoundNone  Bound = iota
	BoundExact       // exact score
	BoundLower       // failed high (beta cutoff)
	BoundUpper       // failed low
)

// Number of lock shards (power of 2 for fast modulo)
const cacheShardCount = 256
const cacheShardMask = cacheShardCount - 1

const generationMask = 0x3F

// CacheEntry is one slot of the cache.
type CacheEntry struct {
	Key      uint64     // full key, verified on probe
	Move     board.Move // best or refuting move, may be stale
	Score    int16
	Depth    int8
	genBound uint8 // generation in the low 6 bits, bound in the high 2
}

func (e CacheEntry) Bound() Bound      { return Bound(e.genBound >> 6) }
func (e CacheEntry) Generation() uint8 { return e.genBound & generationMask }

// EntrySize is the memory footprint of one cache slot in bytes.
const EntrySize = int(unsafe.Sizeof(CacheEntry{}))

// Cache is a fixed-capacity transposition cache. One slot per index,
// guarded by sharded locks so concurrent readers never see torn entries.
type Cache struct {
	entries    []CacheEntry
	shards     [cacheShardCount]sync.RWMutex
	size       uint64
	generation atomic.Uint32

	hits   atomic.Uint64
	probes atomic.Uint64
}

// NewCache creates a cache that uses at most sizeMB megabytes. The budget
// is clamped to half of the physical memory when that can be determined.
func NewCache(sizeMB int) *Cache {
	budget := uint64(max(sizeMB, 1)) << 20
	if total := memory.TotalMemory(); total > 0 && budget > total/2 {
		budget = total / 2
	}
	return NewCacheEntries(budget / uint64(EntrySize))
}

// NewCacheEntries creates a cache with exactly n slots.
func NewCacheEntries(n uint64) *Cache {
	n = max(n, 1)
	return &Cache{
		entries: make([]CacheEntry, n),
		size:    n,
	}
}

// index maps a key onto [0, size) without requiring a power-of-two size.
func (c *Cache) index(key uint64) uint64 {
	hi, _ := bits.Mul64(key, c.size)
	return hi
}

// Probe looks up key. It never fails; ok is false on a miss.
func (c *Cache) Probe(key uint64) (CacheEntry, bool) {
	c.probes.Add(1)

	idx := c.index(key)
	shard := &c.shards[idx&cacheShardMask]

	shard.RLock()
	entry := c.entries[idx]
	shard.RUnlock()

	if entry.Key == key && entry.Bound() != BoundNone {
		c.hits.Add(1)
		return entry, true
	}
	return CacheEntry{}, false
}

// Store records a search result. The slot is overwritten unless it holds
// a deeper result from the current generation.
func (c *Cache) Store(key uint64, move board.Move, score, depth int, bound Bound) {
	idx := c.index(key)
	shard := &c.shards[idx&cacheShardMask]
	gen := uint8(c.generation.Load()) & generationMask

	shard.Lock()
	entry := &c.entries[idx]
	if entry.Bound() == BoundNone || entry.Generation() != gen || depth >= int(entry.Depth) {
		entry.Key = key
		entry.Move = move
		entry.Score = int16(score)
		entry.Depth = int8(depth)
		entry.genBound = uint8(bound)<<6 | gen
	}
	shard.Unlock()
}

// NewSearch starts a new generation. Entries from older generations
// stay usable but lose their protection against replacement.
func (c *Cache) NewSearch() {
	c.generation.Add(1)
}

// Clear empties the cache.
func (c *Cache) Clear() {
	for i := range c.shards {
		c.shards[i].Lock()
	}
	clear(c.entries)
	for i := range c.shards {
		c.shards[i].Unlock()
	}
	c.generation.Store(0)
	c.hits.Store(0)
	c.probes.Store(0)
}

// HashFull returns the permille of sampled slots written in the current generation.
func (c *Cache) HashFull() int {
	sampleSize := min(uint64(1000), c.size)
	gen := uint8(c.generation.Load()) & generationMask

	used := 0
	for i := uint64(0); i < sampleSize; i++ {
		shard := &c.shards[i&cacheShardMask]
		shard.RLock()
		e := c.entries[i]
		shard.RUnlock()
		if e.Bound() != BoundNone && e.Generation() == gen {
			used++
		}
	}
	return used * 1000 / int(sampleSize)
}

// HitRate returns the probe hit rate as a percentage.
func (c *Cache) HitRate() float64 {
	probes := c.probes.Load()
	if probes == 0 {
		return 0
	}
	return float64(c.hits.Load()) / float64(probes) * 100
}

// Capacity returns the number of slots.
func (c *Cache) Capacity() uint64 {
	return c.size
}

// scoreToCache makes mate scores relative to the node being stored.
func scoreToCache(score, ply int) int {
	if score > MateScore-MaxPly {
		return score + ply
	}
	if score < -MateScore+MaxPly {
		return score - ply
	}
	return score
}

// scoreFromCache makes a stored mate score relative to the root again.
func scoreFromCache(score, ply int) int {
	if score > MateScore-MaxPly {
		return score - ply
	}
	if score < -MateScore+MaxPly {
		return score + ply
	}
	return score
}
