package convert

import (
	"testing"

	"github.com/bcdev/nc2zarr/dataset"
)

func scalarVar(t *testing.T, name string, dims []string, shape []int, vals []float64) *dataset.Variable {
	t.Helper()
	arr, err := dataset.NewArray(dataset.Float64, shape, dataset.EncodeFloat64(vals))
	if err != nil {
		t.Fatal(err)
	}
	return &dataset.Variable{Name: name, Dims: dims, Shape: shape, DType: dataset.Float64, Data: arr}
}

func TestProcessRenamesVariablesAndDims(t *testing.T) {
	ds := dataset.New()
	v := scalarVar(t, "sst", []string{"sst"}, []int{1}, []float64{1})
	if err := ds.Put(v); err != nil {
		t.Fatal(err)
	}
	_, _, err := Process(ds, ProcessOptions{Rename: map[string]string{"sst": "temperature"}})
	if err != nil {
		t.Fatal(err)
	}
	if ds.Get("sst") != nil {
		t.Error("old name should be gone after rename")
	}
	got := ds.Get("temperature")
	if got == nil {
		t.Fatal("expected renamed variable to exist")
	}
	if got.Dims[0] != "temperature" {
		t.Errorf("rename should also update matching dimension names, got %v", got.Dims)
	}
}

func TestProcessRechunkUniformInt(t *testing.T) {
	ds := dataset.New()
	v := scalarVar(t, "temp", []string{"x"}, []int{10}, make([]float64, 10))
	if err := ds.Put(v); err != nil {
		t.Fatal(err)
	}
	_, enc, err := Process(ds, ProcessOptions{Rechunk: map[string]RechunkRule{"*": 4}})
	if err != nil {
		t.Fatal(err)
	}
	chunks, ok := enc["temp"].Chunks()
	if !ok || len(chunks) != 1 || chunks[0] != 4 {
		t.Errorf("got %v, %v", chunks, ok)
	}
	if ds.Get("temp").Chunks[0] != 4 {
		t.Errorf("variable's own Chunks field should also be updated, got %v", ds.Get("temp").Chunks)
	}
}

func TestProcessRechunkPerDimensionMap(t *testing.T) {
	ds := dataset.New()
	v := scalarVar(t, "temp", []string{"time", "x"}, []int{5, 10}, make([]float64, 50))
	if err := ds.Put(v); err != nil {
		t.Fatal(err)
	}
	rule := map[string]RechunkRule{"time": 1, "x": nil}
	_, enc, err := Process(ds, ProcessOptions{Rechunk: map[string]RechunkRule{"temp": rule}})
	if err != nil {
		t.Fatal(err)
	}
	chunks, _ := enc["temp"].Chunks()
	if chunks[0] != 1 || chunks[1] != 10 {
		t.Errorf("got %v, want [1 10]", chunks)
	}
}

func TestProcessUserEncodingMergesButComputedChunksWin(t *testing.T) {
	ds := dataset.New()
	v := scalarVar(t, "temp", []string{"x"}, []int{10}, make([]float64, 10))
	if err := ds.Put(v); err != nil {
		t.Fatal(err)
	}
	opts := ProcessOptions{
		Rechunk:      map[string]RechunkRule{"*": 4},
		UserEncoding: map[string]dataset.Encoding{"temp": {"chunks": []int{999}, "compressor": "gzip"}},
	}
	_, enc, err := Process(ds, opts)
	if err != nil {
		t.Fatal(err)
	}
	chunks, _ := enc["temp"].Chunks()
	if chunks[0] != 4 {
		t.Errorf("computed chunks should win over user chunks, got %v", chunks)
	}
	if enc["temp"]["compressor"] != "gzip" {
		t.Errorf("user compressor should still be merged in, got %v", enc["temp"]["compressor"])
	}
}

func TestProcessInvalidRechunkRuleType(t *testing.T) {
	ds := dataset.New()
	v := scalarVar(t, "temp", []string{"x"}, []int{10}, make([]float64, 10))
	if err := ds.Put(v); err != nil {
		t.Fatal(err)
	}
	_, _, err := Process(ds, ProcessOptions{Rechunk: map[string]RechunkRule{"*": 3.14}})
	if err == nil {
		t.Error("expected an error for an unsupported rechunk rule type")
	}
}
