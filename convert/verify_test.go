package convert

import (
	"path/filepath"
	"testing"

	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/store"
)

func newVerifiableStore(t *testing.T, ticks []float64) (store.Store, string) {
	t.Helper()
	root := filepath.Join(t.TempDir(), "out.zarr")
	s, err := store.Open("local", root, store.S3Config{})
	if err != nil {
		t.Fatal(err)
	}
	ds := dataset.New()
	timeArr, err := dataset.NewArray(dataset.Float64, []int{len(ticks)}, dataset.EncodeFloat64(ticks))
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.Put(&dataset.Variable{Name: "time", Dims: []string{"time"}, Shape: []int{len(ticks)}, DType: dataset.Float64, Data: timeArr}); err != nil {
		t.Fatal(err)
	}
	vals := make([]float64, len(ticks))
	valArr, err := dataset.NewArray(dataset.Float64, []int{len(ticks)}, dataset.EncodeFloat64(vals))
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.Put(&dataset.Variable{Name: "temp", Dims: []string{"time"}, Shape: []int{len(ticks)}, DType: dataset.Float64, Data: valArr}); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ds, nil); err != nil {
		t.Fatal(err)
	}
	return s, root
}

func TestVerifyPassesForMonotoneCoordinate(t *testing.T) {
	s, _ := newVerifiableStore(t, []float64{1, 2, 3})
	if err := Verify(s, "time"); err != nil {
		t.Fatal(err)
	}
}

func TestVerifyFailsForNonMonotoneCoordinate(t *testing.T) {
	s, _ := newVerifiableStore(t, []float64{1, 3, 2})
	if err := Verify(s, "time"); err == nil {
		t.Error("expected an error for a non-monotone append-dimension coordinate")
	}
}
