package batch

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bcdev/nc2zarr/logging"
)

// Options configures a Runner: the two templates, the expansion
// variable maps, and which job kind to submit (spec §4.9).
type Options struct {
	ConfigTemplate     string
	ConfigPathTemplate string
	Vars               []map[string]string
	Kind               Kind

	// ClusterSubmit/ClusterPoll build the sbatch-/squeue-style
	// command lines for a given expanded config path / job id.
	ClusterSubmit func(configPath string) []string
	ClusterPoll   func(jobID string) []string

	ConverterBinary string
	ScratchDir      string
	PollPeriod      time.Duration
	Log             *logging.Logger
}

// Runner is the BatchRunner of spec §4.9.
type Runner struct {
	opts Options
	jobs []*trackedJob
}

type trackedJob struct {
	vars       map[string]string
	configPath string
	job        Job
}

// New validates the templates and returns a ready Runner. It checks
// that config_path_template references every key present across the
// variable maps. The check does not tell range (-R) keys from fixed
// (-V) keys: a fixed value's key must be referenced as well.
func New(opts Options) (*Runner, error) {
	if opts.PollPeriod <= 0 {
		opts.PollPeriod = time.Second
	}
	placeholders := Placeholders(opts.ConfigPathTemplate)
	for _, vars := range opts.Vars {
		for k := range vars {
			if !placeholders[k] {
				return nil, fmt.Errorf("batch: config_path_template is missing a placeholder for key %q", k)
			}
		}
	}
	return &Runner{opts: opts}, nil
}

// Submit expands every variable map into a configuration file and a
// job, launching each per its Kind.
func (r *Runner) Submit(ctx context.Context) error {
	for _, vars := range r.opts.Vars {
		configBody, err := Expand(r.opts.ConfigTemplate, vars)
		if err != nil {
			return err
		}
		configPath, err := Expand(r.opts.ConfigPathTemplate, vars)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(configPath, []byte(configBody), 0o644); err != nil {
			return err
		}
		if r.opts.Log != nil {
			r.opts.Log.Info("wrote expanded config %s", configPath)
		}

		job, err := r.launch(configPath)
		if err != nil {
			return err
		}
		r.jobs = append(r.jobs, &trackedJob{vars: vars, configPath: configPath, job: job})
	}
	return nil
}

func (r *Runner) launch(configPath string) (Job, error) {
	switch r.opts.Kind {
	case KindDryRun:
		return dryRunJob{}, nil
	case KindLocal:
		d := NewDescriptor()
		d.Command = []string{r.opts.ConverterBinary, "-c", configPath}
		d.StdoutPath = filepath.Join(r.opts.ScratchDir, d.ID+".out")
		d.StderrPath = filepath.Join(r.opts.ScratchDir, d.ID+".err")
		return startLocalJob(d)
	case KindCluster:
		submit := r.opts.ClusterSubmit(configPath)
		return startClusterJob(submit, r.opts.ClusterPoll, r.opts.PollPeriod)
	default:
		return nil, fmt.Errorf("batch: unknown job kind %q", r.opts.Kind)
	}
}

// Observe polls every job at PollPeriod until all reach a terminal
// status. A single loop observes all jobs: each round polls the jobs
// one after another, in submission order.
func (r *Runner) Observe(ctx context.Context) ([]Status, error) {
	statuses := make([]Status, len(r.jobs))
	pending := len(r.jobs)
	for pending > 0 {
		pending = 0
		for i, tj := range r.jobs {
			st, err := tj.job.Poll(ctx)
			if err != nil && r.opts.Log != nil {
				r.opts.Log.Warn("job %s: %s", tj.configPath, err)
			}
			statuses[i] = st
			if !terminal(st) {
				pending++
			}
		}
		if pending == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return statuses, ctx.Err()
		case <-time.After(r.opts.PollPeriod):
		}
	}
	return statuses, nil
}

// Statuses returns the current status of every submitted job without
// blocking.
func (r *Runner) Statuses() []Status {
	out := make([]Status, len(r.jobs))
	for i, tj := range r.jobs {
		out[i] = tj.job.Status()
	}
	return out
}
