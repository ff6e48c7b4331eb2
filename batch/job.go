// Package batch implements the BatchRunner of spec §4.9: template
// expansion across a Cartesian product of ranges/values, three job
// kinds (dry-run, local, cluster), and the job status state machine.
package batch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is one state of the job status machine (spec §3/§4.9).
type Status string

const (
	StatusPending    Status = "pending"
	StatusRunning    Status = "running"
	StatusCompleting Status = "completing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
	StatusSuspended  Status = "suspended"
	StatusStopped    Status = "stopped"
	StatusUnknown    Status = "unknown"
)

// Kind is one of the three job kinds of spec §4.9.
type Kind string

const (
	KindDryRun  Kind = "dry_run"
	KindLocal   Kind = "local"
	KindCluster Kind = "cluster"
)

// Descriptor is the job descriptor tuple of spec §3.
type Descriptor struct {
	Command         []string
	StdoutPath      string
	StderrPath      string
	Cwd             string
	Env             map[string]string
	SchedulerParams map[string]string

	// ID uniquely scopes this job's scratch files so concurrently
	// expanded jobs never collide even if two Cartesian-product
	// expansions produce identical template substitutions.
	ID string
}

// NewDescriptor fills in a fresh UUID-tagged ID.
func NewDescriptor() Descriptor {
	return Descriptor{ID: uuid.NewString()}
}

// Job is a handle to one submitted job: its current status and a way
// to advance it (Poll).
type Job interface {
	Status() Status
	Poll(ctx context.Context) (Status, error)
}

// dryRunJob never executes; its status is immediately completed, per
// spec §4.9.
type dryRunJob struct{}

func (dryRunJob) Status() Status                            { return StatusCompleted }
func (dryRunJob) Poll(context.Context) (Status, error)      { return StatusCompleted, nil }

// localJob runs the converter as a child OS process, polled via a
// background goroutine that calls cmd.Wait and records the outcome
// (Go's os/exec has no native non-blocking wait, so the observer loop
// of spec §4.9/§5 is implemented with a buffered done channel).
type localJob struct {
	cmd  *exec.Cmd
	done chan error
	mu   sync.Mutex
	st   Status
}

func startLocalJob(d Descriptor) (*localJob, error) {
	if len(d.Command) == 0 {
		return nil, fmt.Errorf("batch: local job: empty command")
	}
	cmd := exec.Command(d.Command[0], d.Command[1:]...)
	cmd.Dir = d.Cwd
	cmd.Env = os.Environ()
	for k, v := range d.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}
	if d.StdoutPath != "" {
		out, err := os.Create(d.StdoutPath)
		if err != nil {
			return nil, err
		}
		cmd.Stdout = out
	}
	if d.StderrPath != "" {
		errFile, err := os.Create(d.StderrPath)
		if err != nil {
			return nil, err
		}
		cmd.Stderr = errFile
	}
	j := &localJob{cmd: cmd, done: make(chan error, 1), st: StatusPending}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	j.st = StatusRunning
	go func() {
		j.done <- cmd.Wait()
	}()
	return j, nil
}

func (j *localJob) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.st
}

// Poll performs a non-blocking check of the child process's exit
// state.
func (j *localJob) Poll(ctx context.Context) (Status, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.st == StatusCompleted || j.st == StatusFailed {
		return j.st, nil
	}
	select {
	case err := <-j.done:
		if err != nil {
			j.st = StatusFailed
			return j.st, err
		}
		j.st = StatusCompleted
		return j.st, nil
	default:
		j.st = StatusRunning
		return j.st, nil
	}
}

// clusterJob submits via an sbatch-style command and polls via an
// squeue-style command, per spec §4.9.
type clusterJob struct {
	submit      []string
	pollCmd     func(jobID string) []string
	jobID       string
	st          Status
	badPolls    int
	pollTimeout time.Duration
}

var submittedPrefix = "Submitted batch job "

func startClusterJob(submit []string, pollCmd func(jobID string) []string, pollPeriod time.Duration) (*clusterJob, error) {
	out, err := exec.Command(submit[0], submit[1:]...).Output()
	if err != nil {
		return nil, err
	}
	line := strings.TrimSpace(string(out))
	if !strings.HasPrefix(line, submittedPrefix) {
		return nil, fmt.Errorf("batch: could not parse job id from %q", line)
	}
	id := strings.TrimSpace(strings.TrimPrefix(line, submittedPrefix))
	return &clusterJob{submit: submit, pollCmd: pollCmd, jobID: id, st: StatusPending, pollTimeout: (pollPeriod * 9) / 10}, nil
}

// squeueStatus maps the ST column of an squeue-style response to a
// Status, per spec §4.9's table.
var squeueStatus = map[string]Status{
	"PD": StatusPending,
	"R":  StatusRunning,
	"CG": StatusCompleting,
	"CD": StatusCompleted,
	"F":  StatusFailed,
	"TO": StatusTerminated,
	"S":  StatusSuspended,
	"ST": StatusStopped,
}

func (j *clusterJob) Status() Status { return j.st }

// Poll runs the squeue-style poll command with a timeout equal to 90%
// of the poll period (spec §5), parsing a header line and one data
// line. Three consecutive unparseable polls end observation with
// StatusUnknown.
func (j *clusterJob) Poll(ctx context.Context) (Status, error) {
	if terminal(j.st) {
		return j.st, nil
	}
	cctx, cancel := context.WithTimeout(ctx, j.pollTimeout)
	defer cancel()
	args := j.pollCmd(j.jobID)
	out, err := exec.CommandContext(cctx, args[0], args[1:]...).Output()
	st, ok := parseSqueue(string(out))
	if err != nil || !ok {
		j.badPolls++
		if j.badPolls >= 3 {
			j.st = StatusUnknown
			return j.st, nil
		}
		return j.st, nil
	}
	j.badPolls = 0
	j.st = st
	return j.st, nil
}

func terminal(s Status) bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated, StatusStopped, StatusUnknown:
		return true
	}
	return false
}

// parseSqueue parses a two-line squeue-style response (header + one
// data line) and maps its ST token to a Status.
func parseSqueue(output string) (Status, bool) {
	scanner := bufio.NewScanner(strings.NewReader(output))
	var lines []string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) < 2 {
		return "", false
	}
	header := strings.Fields(lines[0])
	data := strings.Fields(lines[1])
	stIdx := -1
	for i, h := range header {
		if h == "ST" {
			stIdx = i
			break
		}
	}
	if stIdx < 0 || stIdx >= len(data) {
		return "", false
	}
	st, ok := squeueStatus[data[stIdx]]
	return st, ok
}
