package convert

import (
	"testing"

	"github.com/bcdev/nc2zarr/dataset"
)

func TestPreProcessFiltersVariables(t *testing.T) {
	ds := dataset.New()
	_ = ds.Put(&dataset.Variable{Name: "keep", DType: dataset.Float64})
	_ = ds.Put(&dataset.Variable{Name: "drop", DType: dataset.Float64})
	ds, err := PreProcess(ds, PreProcessOptions{Variables: []string{"keep"}})
	if err != nil {
		t.Fatal(err)
	}
	if ds.Get("drop") != nil {
		t.Error("drop should have been filtered out")
	}
	if ds.Get("keep") == nil {
		t.Error("keep should remain")
	}
}

func TestPreProcessSynthesizesConcatDimFromTimeCoverage(t *testing.T) {
	ds := dataset.New()
	ds.Attrs["time_coverage_start"] = "2022-01-01T00:00:00Z"
	ds.Attrs["time_coverage_end"] = "2022-01-03T00:00:00Z"
	ds, err := PreProcess(ds, PreProcessOptions{ConcatDim: "time"})
	if err != nil {
		t.Fatal(err)
	}
	timeVar := ds.Get("time")
	if timeVar == nil {
		t.Fatal("expected a synthesized time variable")
	}
	if timeVar.Data.Len() != 1 {
		t.Errorf("synthesized time should have length 1, got %d", timeVar.Data.Len())
	}
	if ds.Get("time_bnds") == nil {
		t.Error("expected a synthesized time_bnds variable")
	}
}

func TestPreProcessMissingConcatDimWithoutCoverageFails(t *testing.T) {
	ds := dataset.New()
	if _, err := PreProcess(ds, PreProcessOptions{ConcatDim: "time"}); err == nil {
		t.Error("expected an error: no time dimension and no time_coverage_* attrs")
	}
}

func TestPreProcessExpandsByConcatDim(t *testing.T) {
	ds := dataset.New()
	ds.Attrs["time_coverage_start"] = "2022-01-01T00:00:00Z"
	ds.Attrs["time_coverage_end"] = "2022-01-01T00:00:00Z"
	temp := scalarVar(t, "temp", []string{"x"}, []int{2}, []float64{10, 20})
	if err := ds.Put(temp); err != nil {
		t.Fatal(err)
	}
	ds, err := PreProcess(ds, PreProcessOptions{ConcatDim: "time"})
	if err != nil {
		t.Fatal(err)
	}
	got := ds.Get("temp")
	if got == nil || len(got.Dims) != 2 || got.Dims[0] != "time" {
		t.Fatalf("expected temp to gain a leading time dim, got %+v", got)
	}
	if got.Shape[0] != 1 || got.Shape[1] != 2 {
		t.Errorf("got shape %v", got.Shape)
	}
}
