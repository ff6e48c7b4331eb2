package store

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/nzerr"
)

func timeSeriesDataset(t *testing.T, ticks []float64, values []float64) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	timeArr, err := dataset.NewArray(dataset.Float64, []int{len(ticks)}, dataset.EncodeFloat64(ticks))
	if err != nil {
		t.Fatal(err)
	}
	valArr, err := dataset.NewArray(dataset.Float64, []int{len(values)}, dataset.EncodeFloat64(values))
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.Put(&dataset.Variable{Name: "time", Dims: []string{"time"}, Shape: []int{len(ticks)}, DType: dataset.Float64, Data: timeArr}); err != nil {
		t.Fatal(err)
	}
	if err := ds.Put(&dataset.Variable{Name: "temp", Dims: []string{"time"}, Shape: []int{len(values)}, DType: dataset.Float64, Data: valArr}); err != nil {
		t.Fatal(err)
	}
	return ds
}

func newTestWriter(t *testing.T, root string, mode AppendMode) (*Writer, *localStore) {
	t.Helper()
	s := newLocalStore(root)
	w, err := NewWriter(s, root, "time", mode, false, true, RetryPolicy{Tries: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	// DefaultTolerance (1ms in nanosecond units) assumes datetime ticks;
	// these tests use small-magnitude ticks, so narrow it to keep
	// replace/insert/append decisions distinguishable.
	w.Tolerance = 0.5
	return w, s
}

func readTemp(t *testing.T, s *localStore) []float64 {
	t.Helper()
	v, err := s.ReadVariable("temp")
	if err != nil {
		t.Fatal(err)
	}
	return CoordTicks(v.Data)
}

func TestNewWriterRejectsOverwriteAndAppend(t *testing.T) {
	s := newLocalStore(t.TempDir())
	if _, err := NewWriter(s, "id", "time", ModeAll, true, true, RetryPolicy{}, nil); err != nzerr.OverwriteAndAppend {
		t.Errorf("got %v, want OverwriteAndAppend", err)
	}
}

func TestWriterCreatesOnFirstWrite(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out.zarr")
	w, s := newTestWriter(t, root, ModeAll)
	ds := timeSeriesDataset(t, []float64{1, 2}, []float64{10, 20})
	if err := w.Write(ds, nil, true); err != nil {
		t.Fatal(err)
	}
	got := readTemp(t, s)
	want := dataset.EncodeFloat64([]float64{10, 20})
	if !bytes.Equal(dataset.EncodeFloat64(got), want) {
		t.Errorf("got %v", got)
	}
}

func TestWriterAppendAll(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out.zarr")
	w, s := newTestWriter(t, root, ModeAll)
	first := timeSeriesDataset(t, []float64{1, 2}, []float64{10, 20})
	if err := w.Write(first, nil, true); err != nil {
		t.Fatal(err)
	}
	second := timeSeriesDataset(t, []float64{3}, []float64{30})
	if err := w.Write(second, nil, false); err != nil {
		t.Fatal(err)
	}
	got := readTemp(t, s)
	want := []float64{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWriterAppendNoOverlapRejectsOverlap(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out.zarr")
	w, _ := newTestWriter(t, root, ModeNoOverlap)
	first := timeSeriesDataset(t, []float64{1, 2}, []float64{10, 20})
	if err := w.Write(first, nil, true); err != nil {
		t.Fatal(err)
	}
	overlapping := timeSeriesDataset(t, []float64{2, 3}, []float64{99, 30})
	if err := w.Write(overlapping, nil, false); err == nil {
		t.Error("expected an append-order violation for overlapping coordinates")
	}
}

func TestWriterAppendNewerDropsOlder(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out.zarr")
	w, s := newTestWriter(t, root, ModeNewer)
	first := timeSeriesDataset(t, []float64{1, 2}, []float64{10, 20})
	if err := w.Write(first, nil, true); err != nil {
		t.Fatal(err)
	}
	next := timeSeriesDataset(t, []float64{1, 3}, []float64{999, 30})
	if err := w.Write(next, nil, false); err != nil {
		t.Fatal(err)
	}
	got := readTemp(t, s)
	want := []float64{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v (stale tick 1 should have been dropped)", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWriterReplace(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out.zarr")
	w, s := newTestWriter(t, root, ModeReplace)
	first := timeSeriesDataset(t, []float64{1, 2, 3}, []float64{10, 20, 30})
	if err := w.Write(first, nil, true); err != nil {
		t.Fatal(err)
	}
	replacement := timeSeriesDataset(t, []float64{2}, []float64{999})
	if err := w.Write(replacement, nil, false); err != nil {
		t.Fatal(err)
	}
	got := readTemp(t, s)
	want := []float64{10, 999, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWriterRetainSkipsExisting(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out.zarr")
	w, s := newTestWriter(t, root, ModeRetain)
	first := timeSeriesDataset(t, []float64{1, 2, 3}, []float64{10, 20, 30})
	if err := w.Write(first, nil, true); err != nil {
		t.Fatal(err)
	}
	attempted := timeSeriesDataset(t, []float64{2}, []float64{999})
	if err := w.Write(attempted, nil, false); err != nil {
		t.Fatal(err)
	}
	got := readTemp(t, s)
	want := []float64{10, 20, 30}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("retain mode should have kept the existing slice: got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestWriterInsert(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out.zarr")
	w, s := newTestWriter(t, root, ModeReplace)
	first := timeSeriesDataset(t, []float64{1, 3}, []float64{10, 30})
	if err := w.Write(first, nil, true); err != nil {
		t.Fatal(err)
	}
	inserted := timeSeriesDataset(t, []float64{2}, []float64{20})
	if err := w.Write(inserted, nil, false); err != nil {
		t.Fatal(err)
	}
	got := readTemp(t, s)
	want := []float64{10, 20, 30}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestScratchVariableNameIsStableAndCollisionFreeAcrossPositions(t *testing.T) {
	a := scratchVariableName("temp", 2)
	b := scratchVariableName("temp", 2)
	if a != b {
		t.Error("scratchVariableName should be deterministic for the same inputs")
	}
	c := scratchVariableName("temp", 3)
	if a == c {
		t.Error("scratchVariableName should differ across insertion positions")
	}
}

// readCountingStore wraps a Store and counts ReadVariable calls
// against the append-dim coordinate, to check that existingCoordTicks
// actually consults the Writer's cache instead of re-reading the
// store on every call.
type readCountingStore struct {
	Store
	name  string
	reads int
}

func (s *readCountingStore) ReadVariable(name string) (*dataset.Variable, error) {
	if name == s.name {
		s.reads++
	}
	return s.Store.ReadVariable(name)
}

func TestWriterCachesAppendDimTicksAcrossRetainIterations(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out.zarr")
	backing := newLocalStore(root)
	counting := &readCountingStore{Store: backing, name: "time"}
	w, err := NewWriter(counting, root, "time", ModeRetain, false, true, RetryPolicy{Tries: 1}, nil)
	if err != nil {
		t.Fatal(err)
	}
	w.Tolerance = 0.5

	first := timeSeriesDataset(t, []float64{1, 2, 3}, []float64{10, 20, 30})
	if err := w.Write(first, nil, true); err != nil {
		t.Fatal(err)
	}

	attempted := timeSeriesDataset(t, []float64{1, 2, 3}, []float64{11, 21, 31})
	if err := w.Write(attempted, nil, false); err != nil {
		t.Fatal(err)
	}

	if counting.reads != 0 {
		t.Errorf("appendReplaceOrRetain read the append-dim coordinate from the store %d times, want 0 (cache should have served every Locate call)", counting.reads)
	}
}
