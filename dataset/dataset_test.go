package dataset

import "testing"

func TestDatasetPutSharedDimensionInvariant(t *testing.T) {
	ds := New()
	if err := ds.Put(&Variable{Name: "lat", Dims: []string{"lat"}, Shape: []int{4}, DType: Float64}); err != nil {
		t.Fatal(err)
	}
	if err := ds.Put(&Variable{Name: "temp", Dims: []string{"lat"}, Shape: []int{4}, DType: Float64}); err != nil {
		t.Fatal(err)
	}
	// conflicting size for the same dimension name must be rejected
	if err := ds.Put(&Variable{Name: "bad", Dims: []string{"lat"}, Shape: []int{5}, DType: Float64}); err == nil {
		t.Error("expected a shared-dimension size conflict error")
	}
}

func TestDatasetGetDeleteNames(t *testing.T) {
	ds := New()
	_ = ds.Put(&Variable{Name: "a", DType: Float64})
	_ = ds.Put(&Variable{Name: "b", DType: Float64})
	if got := ds.Names(); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Names() = %v, want insertion order [a b]", got)
	}
	ds.Delete("a")
	if ds.Get("a") != nil {
		t.Error("expected a to be gone after Delete")
	}
	if got := ds.Names(); len(got) != 1 || got[0] != "b" {
		t.Errorf("Names() after delete = %v", got)
	}
}

func TestDatasetIsCoordinate(t *testing.T) {
	ds := New()
	_ = ds.Put(&Variable{Name: "time", Dims: []string{"time"}, Shape: []int{3}, DType: Float64})
	_ = ds.Put(&Variable{Name: "temp", Dims: []string{"time"}, Shape: []int{3}, DType: Float64})
	if !ds.IsCoordinate("time") {
		t.Error("expected time to be a coordinate (name matches its sole dimension)")
	}
	if ds.IsCoordinate("temp") {
		t.Error("temp is not a coordinate")
	}
	if ds.Coordinate("time") == nil {
		t.Error("Coordinate(\"time\") should return the variable")
	}
}

func TestDatasetClone(t *testing.T) {
	ds := New()
	_ = ds.Put(&Variable{Name: "a", DType: Float64, Attrs: Attrs{"units": "K"}})
	ds.Attrs["title"] = "test"

	cp := ds.Clone()
	cp.Get("a").Attrs["units"] = "C"
	cp.Attrs["title"] = "changed"

	if ds.Get("a").Attrs["units"] != "K" {
		t.Error("Clone should be independent of the original variable attrs")
	}
	if ds.Attrs["title"] != "test" {
		t.Error("Clone should be independent of the original dataset attrs")
	}
}

func TestDTypeElemSize(t *testing.T) {
	cases := map[DType]int{
		Int16: 2, UInt16: 2, Int32: 4, UInt32: 4, Float32: 4, Float64: 8, Bytes: 1,
	}
	for dt, want := range cases {
		if got := dt.ElemSize(); got != want {
			t.Errorf("%s.ElemSize() = %d, want %d", dt, got, want)
		}
	}
}
