package convert

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/nzerr"
	"github.com/bcdev/nc2zarr/store"
)

func TestNewRejectsOverwriteAndAppend(t *testing.T) {
	_, err := New(Options{Inputs: []string{"a.nc"}, Overwrite: true, Append: true}, nil, nil)
	if err != nzerr.OverwriteAndAppend {
		t.Errorf("got %v, want OverwriteAndAppend", err)
	}
}

func TestNewRejectsEmptyInputsUnlessFinalizeOnly(t *testing.T) {
	if _, err := New(Options{}, nil, nil); err == nil {
		t.Error("expected an error for empty inputs without FinalizeOnly")
	}
	if _, err := New(Options{FinalizeOnly: true}, nil, nil); err != nil {
		t.Errorf("FinalizeOnly should not require inputs: %v", err)
	}
}

func TestNewDefaultsAppendDimAndMode(t *testing.T) {
	c, err := New(Options{Inputs: []string{"a.nc"}}, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if c.opts.AppendDim != "time" {
		t.Errorf("got %q, want default time", c.opts.AppendDim)
	}
	if c.opts.AppendMode != store.ModeAll {
		t.Errorf("got %q, want default all", c.opts.AppendMode)
	}
}

func jsonFixture(t *testing.T, ticks []float64, values []float64) []byte {
	t.Helper()
	doc := map[string]interface{}{
		"dims":  map[string]int{"time": len(ticks)},
		"order": []string{"time", "temp"},
		"attrs": map[string]interface{}{},
		"variables": map[string]interface{}{
			"time": map[string]interface{}{"dims": []string{"time"}, "dtype": "f8", "data": ticks},
			"temp": map[string]interface{}{"dims": []string{"time"}, "dtype": "f8", "data": values},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestConverterRunEndToEnd(t *testing.T) {
	fsys := fstest.MapFS{
		"a.nc.json": &fstest.MapFile{Data: jsonFixture(t, []float64{1}, []float64{10})},
		"b.nc.json": &fstest.MapFile{Data: jsonFixture(t, []float64{2}, []float64{20})},
	}
	opener := &dataset.Opener{Engine: dataset.JSONEngine{}, FS: fsys}

	root := filepath.Join(t.TempDir(), "out.zarr")
	target, err := store.Open("local", root, store.S3Config{})
	if err != nil {
		t.Fatal(err)
	}

	c, err := New(Options{
		Inputs:      []string{"a.nc.json", "b.nc.json"},
		ToolName:    "nc2zarr",
		ToolVersion: "test",
		Verify:      true,
	}, opener, target)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	v, err := target.ReadVariable("temp")
	if err != nil {
		t.Fatal(err)
	}
	got := store.CoordTicks(v.Data)
	want := []float64{10, 20}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}
