package batch

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestNewRejectsMissingPlaceholder(t *testing.T) {
	opts := Options{
		ConfigTemplate:     "input:\n  paths: [${year}.nc]\n",
		ConfigPathTemplate: "configs/fixed.yml",
		Vars:               []map[string]string{{"year": "2020"}},
		Kind:               KindDryRun,
	}
	if _, err := New(opts); err == nil {
		t.Error("expected an error: config_path_template has no ${year} placeholder")
	}
}

func TestRunnerDryRunSubmitAndObserve(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		ConfigTemplate:     "input:\n  paths: [${year}.nc]\n",
		ConfigPathTemplate: filepath.Join(dir, "${year}.yml"),
		Vars: []map[string]string{
			{"year": "2020"},
			{"year": "2021"},
		},
		Kind:       KindDryRun,
		PollPeriod: 10 * time.Millisecond,
	}
	r, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	statuses, err := r.Observe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %v", statuses)
	}
	for _, st := range statuses {
		if st != StatusCompleted {
			t.Errorf("dry-run job should report completed immediately, got %s", st)
		}
	}
}

func TestRunnerLocalKindRunsConverter(t *testing.T) {
	dir := t.TempDir()
	opts := Options{
		ConfigTemplate:     "ok\n",
		ConfigPathTemplate: filepath.Join(dir, "config.yml"),
		Vars:               []map[string]string{{}},
		Kind:               KindLocal,
		ConverterBinary:    "true",
		ScratchDir:         dir,
		PollPeriod:         10 * time.Millisecond,
	}
	r, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Submit(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	statuses, err := r.Observe(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 1 || statuses[0] != StatusCompleted {
		t.Errorf("got %v, want [completed]", statuses)
	}
}
