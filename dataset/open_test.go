package dataset

import "testing"

func ticksOf(a *Array) []float64 {
	out := make([]float64, a.Len())
	for i := range out {
		out[i] = a.Scalar(i)
	}
	return out
}

func coordDataset(t *testing.T, dim string, ticks []float64, varName string, values []float64) *Dataset {
	t.Helper()
	ds := New()
	coordArr, err := NewArray(Float64, []int{len(ticks)}, EncodeFloat64(ticks))
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.Put(&Variable{Name: dim, Dims: []string{dim}, Shape: []int{len(ticks)}, DType: Float64, Data: coordArr}); err != nil {
		t.Fatal(err)
	}
	valArr, err := NewArray(Float64, []int{len(values)}, EncodeFloat64(values))
	if err != nil {
		t.Fatal(err)
	}
	if err := ds.Put(&Variable{Name: varName, Dims: []string{dim}, Shape: []int{len(values)}, DType: Float64, Data: valArr}); err != nil {
		t.Fatal(err)
	}
	return ds
}

func TestUnionByCoordinatesMergesVariablesWhenCoordinatesAgree(t *testing.T) {
	a := coordDataset(t, "x", []float64{1, 2, 3}, "temp", []float64{10, 20, 30})
	b := coordDataset(t, "x", []float64{1, 2, 3}, "wind", []float64{1, 1, 1})

	out, err := unionByCoordinates([]*Dataset{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Get("temp") == nil || out.Get("wind") == nil {
		t.Fatalf("expected both temp and wind in the union, got %v", out.Names())
	}
}

func TestUnionByCoordinatesFallsBackToConcatWhenCoordinatesDisagree(t *testing.T) {
	a := coordDataset(t, "x", []float64{1, 2, 3}, "temp", []float64{10, 20, 30})
	b := coordDataset(t, "x", []float64{4, 5, 6}, "temp", []float64{40, 50, 60})

	out, err := unionByCoordinates([]*Dataset{a, b}, nil)
	if err != nil {
		t.Fatal(err)
	}
	got := ticksOf(out.Get("x").Data)
	want := []float64{1, 2, 3, 4, 5, 6}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestFirstDisagreeingCoordinateReportsNoneWhenAllAgree(t *testing.T) {
	a := coordDataset(t, "x", []float64{1, 2, 3}, "temp", []float64{10, 20, 30})
	b := coordDataset(t, "x", []float64{1, 2, 3}, "temp", []float64{11, 21, 31})
	if got := firstDisagreeingCoordinate([]*Dataset{a, b}); got != "" {
		t.Errorf("got %q, want no disagreement", got)
	}
}

func TestFirstDisagreeingCoordinateReportsTheDimension(t *testing.T) {
	a := coordDataset(t, "x", []float64{1, 2, 3}, "temp", []float64{10, 20, 30})
	b := coordDataset(t, "x", []float64{9, 9, 9}, "temp", []float64{40, 50, 60})
	if got := firstDisagreeingCoordinate([]*Dataset{a, b}); got != "x" {
		t.Errorf("got %q, want \"x\"", got)
	}
}
