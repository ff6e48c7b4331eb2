package convert

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/bcdev/nc2zarr/store"
)

// Verify is the supplemental post-write consistency check carried
// over from the original's verifier.py (not in spec.md's component
// table, but not excluded by its Non-goals either). It re-opens the
// target store and checks that the append-dimension coordinate is
// monotone non-decreasing and that every variable's declared shape
// agrees with the store's dimension sizes.
func Verify(s store.Store, appendDim string) error {
	names, err := s.VariableNames()
	if err != nil {
		return err
	}
	// Object-store directory listings aren't guaranteed stably
	// ordered; sort so repeated runs report disagreements in the
	// same order.
	slices.Sort(names)

	dimSizes := map[string]int{}
	for _, name := range names {
		v, err := s.ReadVariable(name)
		if err != nil {
			return err
		}
		for i, dim := range v.Dims {
			if existing, ok := dimSizes[dim]; ok && existing != v.Shape[i] {
				known := maps.Keys(dimSizes)
				slices.Sort(known)
				return fmt.Errorf("store: dimension %q disagrees between variables (%d vs %d); known dimensions: %v", dim, existing, v.Shape[i], known)
			}
			dimSizes[dim] = v.Shape[i]
		}
	}

	coord, err := s.ReadVariable(appendDim)
	if err != nil {
		return err
	}
	ticks := store.CoordTicks(coord.Data)
	for i := 1; i < len(ticks); i++ {
		if ticks[i] < ticks[i-1] {
			return fmt.Errorf("store: %s coordinate is not monotone non-decreasing at index %d", appendDim, i)
		}
	}
	return nil
}
