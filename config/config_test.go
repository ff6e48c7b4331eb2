package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestMergeMapsMergeKeyByKey(t *testing.T) {
	dst := map[string]interface{}{"a": map[string]interface{}{"x": 1, "y": 2}}
	src := map[string]interface{}{"a": map[string]interface{}{"y": 3, "z": 4}}
	got := Merge(dst, src)
	a := got["a"].(map[string]interface{})
	if a["x"] != 1 || a["y"] != 3 || a["z"] != 4 {
		t.Errorf("Merge map-by-key = %v", a)
	}
}

func TestMergeListsConcatenate(t *testing.T) {
	dst := map[string]interface{}{"paths": []interface{}{"a", "b"}}
	src := map[string]interface{}{"paths": []interface{}{"c"}}
	got := Merge(dst, src)
	want := []interface{}{"a", "b", "c"}
	list := got["paths"].([]interface{})
	if len(list) != len(want) {
		t.Fatalf("got %v, want %v", list, want)
	}
	for i := range want {
		if list[i] != want[i] {
			t.Errorf("got[%d]=%v, want %v", i, list[i], want[i])
		}
	}
}

func TestMergeScalarsOverwrite(t *testing.T) {
	dst := map[string]interface{}{"overwrite": false}
	src := map[string]interface{}{"overwrite": true}
	got := Merge(dst, src)
	if got["overwrite"] != true {
		t.Errorf("scalar should have been overwritten, got %v", got["overwrite"])
	}
}

func TestMergeNilDst(t *testing.T) {
	got := Merge(nil, map[string]interface{}{"a": 1})
	if got["a"] != 1 {
		t.Errorf("got %v", got)
	}
}

func TestLoadMergesMultipleFilesLaterWins(t *testing.T) {
	dir := t.TempDir()
	base := writeTemp(t, dir, "base.yml", "input:\n  paths: [a.nc]\noutput:\n  overwrite: false\n")
	override := writeTemp(t, dir, "override.yml", "input:\n  paths: [b.nc]\noutput:\n  overwrite: true\n")

	cfg, err := Load(base, override)
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.Input.Paths) != 2 || cfg.Input.Paths[0] != "a.nc" || cfg.Input.Paths[1] != "b.nc" {
		t.Errorf("Input.Paths = %v, want concatenated [a.nc b.nc]", cfg.Input.Paths)
	}
	if !cfg.Output.Overwrite {
		t.Error("later file's scalar should win: Output.Overwrite = false")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("expected an error for a missing config path")
	}
}

func TestOverlayMergesCLIOverridesOnTopOfBase(t *testing.T) {
	base := &Config{}
	base.Output.Path = "out.zarr"
	base.Output.Overwrite = false

	overrides := map[string]interface{}{
		"output": map[string]interface{}{"overwrite": true},
		"dry_run": true,
	}
	cfg, err := Overlay(base, overrides)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Output.Path != "out.zarr" {
		t.Errorf("Overlay should preserve base fields not mentioned in overrides, got %q", cfg.Output.Path)
	}
	if !cfg.Output.Overwrite {
		t.Error("Overlay override should win over base scalar")
	}
	if !cfg.DryRun {
		t.Error("Overlay should apply top-level override keys")
	}
}
