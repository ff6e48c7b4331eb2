package store

import "testing"

func TestChunkCacheMissThenHit(t *testing.T) {
	c := newChunkCache("/tmp/out.zarr")
	if _, ok := c.ticksOf("time"); ok {
		t.Fatal("expected a miss before noteTicks")
	}
	c.noteTicks("time", []float64{1, 2, 3})
	got, ok := c.ticksOf("time")
	if !ok {
		t.Fatal("expected a hit after noteTicks")
	}
	want := []float64{1, 2, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestChunkCacheKeysDoNotCollideAcrossVariables(t *testing.T) {
	c := newChunkCache("/tmp/out.zarr")
	c.noteTicks("time", []float64{1, 2, 3})
	if _, ok := c.ticksOf("lat"); ok {
		t.Fatal("expected lat to still be a miss")
	}
}

func TestChunkCacheNoteTicksOverwritesPreviousValue(t *testing.T) {
	c := newChunkCache("/tmp/out.zarr")
	c.noteTicks("time", []float64{1, 2, 3})
	c.noteTicks("time", []float64{1, 2, 3, 4})
	got, _ := c.ticksOf("time")
	if len(got) != 4 {
		t.Errorf("got %v, want the updated 4-element slice", got)
	}
}

func TestChunkCacheMutatingReturnedSliceDoesNotCorruptCache(t *testing.T) {
	c := newChunkCache("/tmp/out.zarr")
	ticks := []float64{1, 2, 3}
	c.noteTicks("time", ticks)
	ticks[0] = 999
	got, _ := c.ticksOf("time")
	if got[0] != 1 {
		t.Errorf("cache should have copied the input slice, got[0] = %v", got[0])
	}
}
