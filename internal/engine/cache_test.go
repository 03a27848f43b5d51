package engine

import (
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/assert"

	"github.com/hailam/trout/internal/board"
)

func TestCacheEntryIsCompact(t *testing.T) {
	assert.Equal(t, 16, EntrySize)
}

func TestCacheCapacityFromBudget(t *testing.T) {
	c := NewCache(1)
	assert.Equal(t, uint64(1<<20/EntrySize), c.Capacity())

	assert.Equal(t, uint64(1), NewCacheEntries(0).Capacity())
	assert.Equal(t, uint64(1000), NewCacheEntries(1000).Capacity())
}

func TestCacheProbeStore(t *testing.T) {
	is := is.New(t)
	c := NewCacheEntries(1024)
	m := board.New()
	e2e4, err := m.ParseMove("e2e4")
	is.NoErr(err)

	_, ok := c.Probe(12345)
	is.True(!ok) // empty cache misses

	c.Store(12345, e2e4, -42, 5, BoundLower)
	e, ok := c.Probe(12345)
	is.True(ok)
	is.Equal(e.Move, e2e4)
	is.Equal(int(e.Score), -42)
	is.Equal(int(e.Depth), 5)
	is.Equal(e.Bound(), BoundLower)

	// A different key in the same slot is a miss.
	_, ok = c.Probe(12345 ^ 1<<40)
	is.True(!ok)
}

func TestCacheZeroKey(t *testing.T) {
	c := NewCacheEntries(16)
	_, ok := c.Probe(0)
	assert.False(t, ok, "empty slot must not match key 0")

	c.Store(0, board.NoMove, 7, 1, BoundExact)
	e, ok := c.Probe(0)
	assert.True(t, ok)
	assert.Equal(t, int16(7), e.Score)
}

func TestCacheReplacement(t *testing.T) {
	const key = 0xDEADBEEF

	t.Run("deeper entry of current generation is kept", func(t *testing.T) {
		c := NewCacheEntries(1)
		c.Store(key, board.NoMove, 100, 8, BoundExact)
		c.Store(key+1, board.NoMove, 5, 3, BoundExact)

		e, ok := c.Probe(key)
		assert.True(t, ok)
		assert.Equal(t, int8(8), e.Depth)
		_, ok = c.Probe(key + 1)
		assert.False(t, ok)
	})

	t.Run("equal depth overwrites", func(t *testing.T) {
		c := NewCacheEntries(1)
		c.Store(key, board.NoMove, 100, 4, BoundExact)
		c.Store(key, board.NoMove, 50, 4, BoundUpper)

		e, _ := c.Probe(key)
		assert.Equal(t, int16(50), e.Score)
		assert.Equal(t, BoundUpper, e.Bound())
	})

	t.Run("older generation is replaced", func(t *testing.T) {
		c := NewCacheEntries(1)
		c.Store(key, board.NoMove, 100, 12, BoundExact)
		c.NewSearch()
		c.Store(key+1, board.NoMove, 5, 1, BoundLower)

		e, ok := c.Probe(key + 1)
		assert.True(t, ok)
		assert.Equal(t, int8(1), e.Depth)
		assert.Equal(t, uint8(1), e.Generation())
	})

	t.Run("entries survive a new search", func(t *testing.T) {
		c := NewCacheEntries(64)
		c.Store(key, board.NoMove, 100, 12, BoundExact)
		c.NewSearch()
		_, ok := c.Probe(key)
		assert.True(t, ok)
	})
}

func TestCacheGenerationWraps(t *testing.T) {
	c := NewCacheEntries(4)
	for i := 0; i < 70; i++ {
		c.NewSearch()
	}
	c.Store(1, board.NoMove, 0, 1, BoundExact)
	e, ok := c.Probe(1)
	assert.True(t, ok)
	assert.Equal(t, uint8(70&generationMask), e.Generation())
	assert.Equal(t, BoundExact, e.Bound())
}

func TestCacheClearAndHashFull(t *testing.T) {
	c := NewCacheEntries(1000)
	assert.Equal(t, 0, c.HashFull())

	for k := uint64(1); k <= 5000; k++ {
		c.Store(k*0x9E3779B97F4A7C15, board.NoMove, 0, 1, BoundExact)
	}
	assert.Greater(t, c.HashFull(), 500)

	c.NewSearch()
	assert.Equal(t, 0, c.HashFull(), "old generation does not count")

	c.Clear()
	_, ok := c.Probe(0x9E3779B97F4A7C15)
	assert.False(t, ok)
	assert.Equal(t, 0.0, c.HitRate())
}

func TestMateScoreAdjustment(t *testing.T) {
	tests := []struct {
		score, ply int
	}{
		{MateScore - 5, 3},
		{-MateScore + 8, 6},
		{150, 10},
		{-75, 2},
	}
	for _, tt := range tests {
		stored := scoreToCache(tt.score, tt.ply)
		assert.Equal(t, tt.score, scoreFromCache(stored, tt.ply))
	}

	// A mate in 2 plies seen 3 plies below the root is stored relative
	// to the node and read back relative to another root.
	stored := scoreToCache(MateScore-5, 3)
	assert.Equal(t, MateScore-2, stored)
	assert.Equal(t, MateScore-3, scoreFromCache(stored, 1))
}
