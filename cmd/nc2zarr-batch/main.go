// Command nc2zarr-batch drives the BatchRunner of spec §4.9: it
// expands a configuration template and a config-path template across
// a Cartesian product of ranges/values, and submits one converter job
// per expansion (dry-run, local, or cluster).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/bcdev/nc2zarr/batch"
	"github.com/bcdev/nc2zarr/logging"
)

const version = "0.1.0"

// rangeFlags collects repeated "-R key min max" occurrences.
type rangeFlags []batch.Range

func (r *rangeFlags) String() string {
	var parts []string
	for _, rr := range *r {
		parts = append(parts, fmt.Sprintf("%s:%d-%d", rr.Key, rr.Min, rr.Max))
	}
	return strings.Join(parts, ",")
}

func (r *rangeFlags) Set(v string) error {
	fields := strings.Fields(v)
	if len(fields) != 3 {
		return fmt.Errorf("-R expects \"key min max\", got %q", v)
	}
	min, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Errorf("-R %s: bad min: %w", fields[0], err)
	}
	max, err := strconv.Atoi(fields[2])
	if err != nil {
		return fmt.Errorf("-R %s: bad max: %w", fields[0], err)
	}
	*r = append(*r, batch.Range{Key: fields[0], Min: min, Max: max})
	return nil
}

// valueFlags collects repeated "-V key value" occurrences.
type valueFlags map[string]string

func (v valueFlags) String() string {
	var parts []string
	for k, val := range v {
		parts = append(parts, k+"="+val)
	}
	return strings.Join(parts, ",")
}

func (v valueFlags) Set(s string) error {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return fmt.Errorf("-V expects \"key value\", got %q", s)
	}
	v[fields[0]] = fields[1]
	return nil
}

var (
	dashRanges     rangeFlags
	dashValues     = valueFlags{}
	dashScheduler  string
	dashDryRun     bool
	dashVerbose    int
	dashConverter  string
	dashScratchDir string
	dashPollPeriod float64
	dashVersion    bool
)

func init() {
	flag.Var(&dashRanges, "R", "expansion range \"key min max\" (may be repeated)")
	flag.Var(dashValues, "V", "fixed expansion value \"key value\" (may be repeated)")
	flag.StringVar(&dashScheduler, "s", "", "cluster scheduler parameter file")
	flag.BoolVar(&dashDryRun, "dry-run", false, "expand configs and exit without submitting jobs")
	flag.IntVar(&dashVerbose, "v", 0, "verbosity level")
	flag.StringVar(&dashConverter, "converter", "nc2zarr", "converter binary to invoke for local jobs")
	flag.StringVar(&dashScratchDir, "scratch-dir", os.TempDir(), "scratch directory for local job stdout/stderr")
	flag.Float64Var(&dashPollPeriod, "poll-period", 5, "job status poll period, in seconds")
	flag.BoolVar(&dashVersion, "version", false, "print version and exit")
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	flag.Parse()

	if dashVersion {
		fmt.Println(version)
		return
	}

	args := flag.Args()
	if len(args) != 2 {
		exitf("usage: nc2zarr-batch <config_template> <config_path_template> [-R key min max]... [-V key value]...")
	}
	configTemplate, configPathTemplate := args[0], args[1]

	log := logging.New(os.Stderr, logging.FromVerbosity(dashVerbose))

	kind := batch.KindLocal
	if dashDryRun {
		kind = batch.KindDryRun
	} else if dashScheduler != "" {
		kind = batch.KindCluster
	}

	opts := batch.Options{
		ConfigTemplate:     mustReadFile(configTemplate),
		ConfigPathTemplate: configPathTemplate,
		Vars:               batch.CartesianProduct(dashRanges, dashValues),
		Kind:               kind,
		ConverterBinary:    dashConverter,
		ScratchDir:         dashScratchDir,
		PollPeriod:         time.Duration(dashPollPeriod * float64(time.Second)),
		Log:                log,
	}
	if kind == batch.KindCluster {
		params := mustReadLines(dashScheduler)
		opts.ClusterSubmit = func(configPath string) []string {
			return append(append([]string{"sbatch"}, params...), configPath)
		}
		opts.ClusterPoll = func(jobID string) []string {
			return []string{"squeue", "-j", jobID}
		}
	}

	runner, err := batch.New(opts)
	if err != nil {
		exitf("%s", err)
	}
	if err := runner.Submit(context.Background()); err != nil {
		exitf("%s", err)
	}
	if kind == batch.KindDryRun {
		log.Info("dry run: %d config(s) expanded, no jobs submitted", len(opts.Vars))
		return
	}

	statuses, err := runner.Observe(context.Background())
	if err != nil {
		exitf("%s", err)
	}
	failed := 0
	for i, st := range statuses {
		log.Info("job %d: %s", i, st)
		if st == batch.StatusFailed || st == batch.StatusUnknown {
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func mustReadFile(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		exitf("%s", err)
	}
	return string(raw)
}

func mustReadLines(path string) []string {
	if path == "" {
		return nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		exitf("%s", err)
	}
	var out []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}
