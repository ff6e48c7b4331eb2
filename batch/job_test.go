package batch

import (
	"context"
	"testing"
	"time"
)

func TestDryRunJobAlwaysCompleted(t *testing.T) {
	var j Job = dryRunJob{}
	if j.Status() != StatusCompleted {
		t.Errorf("Status() = %s, want completed", j.Status())
	}
	st, err := j.Poll(context.Background())
	if err != nil || st != StatusCompleted {
		t.Errorf("Poll() = %s, %v", st, err)
	}
}

func TestNewDescriptorHasUniqueID(t *testing.T) {
	a := NewDescriptor()
	b := NewDescriptor()
	if a.ID == "" || b.ID == "" || a.ID == b.ID {
		t.Errorf("expected distinct non-empty IDs, got %q and %q", a.ID, b.ID)
	}
}

func TestLocalJobRunsToCompletion(t *testing.T) {
	j, err := startLocalJob(Descriptor{Command: []string{"sh", "-c", "exit 0"}})
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, err := j.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll returned an error for a zero-exit command: %v", err)
		}
		if st == StatusCompleted {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("local job never reached completed status")
}

func TestLocalJobReportsFailure(t *testing.T) {
	j, err := startLocalJob(Descriptor{Command: []string{"sh", "-c", "exit 1"}})
	if err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		st, _ := j.Poll(context.Background())
		if st == StatusFailed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("local job never reached failed status")
}

func TestStartLocalJobRejectsEmptyCommand(t *testing.T) {
	if _, err := startLocalJob(Descriptor{}); err == nil {
		t.Error("expected an error for an empty command")
	}
}

func TestParseSqueue(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   Status
		ok     bool
	}{
		{"running", "JOBID PARTITION NAME USER ST TIME NODES\n123 batch job user R 0:01 1\n", StatusRunning, true},
		{"completed", "JOBID ST\n123 CD\n", StatusCompleted, true},
		{"unknown-code", "JOBID ST\n123 ZZ\n", "", false},
		{"no-data-line", "JOBID ST\n", "", false},
		{"empty", "", "", false},
	}
	for _, c := range cases {
		got, ok := parseSqueue(c.output)
		if ok != c.ok || (ok && got != c.want) {
			t.Errorf("%s: parseSqueue() = (%v, %v), want (%v, %v)", c.name, got, ok, c.want, c.ok)
		}
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusFailed, StatusTerminated, StatusStopped, StatusUnknown} {
		if !terminal(s) {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPending, StatusRunning, StatusCompleting, StatusSuspended} {
		if terminal(s) {
			t.Errorf("%s should not be terminal", s)
		}
	}
}
