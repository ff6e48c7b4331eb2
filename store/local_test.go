package store

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/bcdev/nc2zarr/dataset"
)

func newTestDataset(t *testing.T) *dataset.Dataset {
	t.Helper()
	ds := dataset.New()
	arr, err := dataset.NewArray(dataset.Float64, []int{3}, dataset.EncodeFloat64([]float64{1, 2, 3}))
	if err != nil {
		t.Fatal(err)
	}
	v := &dataset.Variable{Name: "temp", Dims: []string{"x"}, Shape: []int{3}, DType: dataset.Float64, Data: arr}
	if err := ds.Put(v); err != nil {
		t.Fatal(err)
	}
	ds.Attrs["title"] = "test store"
	return ds
}

func TestLocalStoreRoundTrip(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out.zarr")
	s := newLocalStore(root)

	if exists, err := s.Exists(); err != nil || exists {
		t.Fatalf("Exists() = %v, %v, want false, nil", exists, err)
	}

	ds := newTestDataset(t)
	enc := map[string]dataset.Encoding{"temp": {"compressor": "zstd"}}
	if err := s.Create(ds, enc); err != nil {
		t.Fatal(err)
	}

	exists, err := s.Exists()
	if err != nil || !exists {
		t.Fatalf("Exists() after Create = %v, %v, want true, nil", exists, err)
	}

	names, err := s.VariableNames()
	if err != nil || len(names) != 1 || names[0] != "temp" {
		t.Fatalf("VariableNames() = %v, %v", names, err)
	}

	v, err := s.ReadVariable("temp")
	if err != nil {
		t.Fatal(err)
	}
	want := dataset.EncodeFloat64([]float64{1, 2, 3})
	if !bytes.Equal(v.Data.Data, want) {
		t.Errorf("ReadVariable after zstd round-trip: got %v, want %v", v.Data.Data, want)
	}

	attrs, err := s.RootAttrs()
	if err != nil || attrs["title"] != "test store" {
		t.Errorf("RootAttrs() = %v, %v", attrs, err)
	}

	if err := s.SetRootAttrs(dataset.Attrs{"title": "changed"}); err != nil {
		t.Fatal(err)
	}
	attrs, _ = s.RootAttrs()
	if attrs["title"] != "changed" {
		t.Errorf("RootAttrs() after SetRootAttrs = %v", attrs)
	}

	if consolidated, _ := s.IsConsolidated(); consolidated {
		t.Error("should not be consolidated yet")
	}
	if err := s.Consolidate(); err != nil {
		t.Fatal(err)
	}
	if consolidated, err := s.IsConsolidated(); err != nil || !consolidated {
		t.Errorf("IsConsolidated() after Consolidate = %v, %v", consolidated, err)
	}

	if err := s.DeleteVariable("temp"); err != nil {
		t.Fatal(err)
	}
	names, _ = s.VariableNames()
	if len(names) != 0 {
		t.Errorf("expected no variables after delete, got %v", names)
	}
}

func TestLocalStoreGzipEncoding(t *testing.T) {
	root := filepath.Join(t.TempDir(), "out.zarr")
	s := newLocalStore(root)
	ds := newTestDataset(t)
	enc := map[string]dataset.Encoding{"temp": {"compressor": "gzip"}}
	if err := s.Create(ds, enc); err != nil {
		t.Fatal(err)
	}
	v, err := s.ReadVariable("temp")
	if err != nil {
		t.Fatal(err)
	}
	want := dataset.EncodeFloat64([]float64{1, 2, 3})
	if !bytes.Equal(v.Data.Data, want) {
		t.Errorf("ReadVariable after gzip round-trip: got %v, want %v", v.Data.Data, want)
	}
}
