// Command nc2zarr converts a set of self-describing array files into
// a single chunked, cloud-friendly array store (spec §1/§6).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bcdev/nc2zarr/config"
	"github.com/bcdev/nc2zarr/convert"
	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/logging"
	"github.com/bcdev/nc2zarr/pathresolve"
	"github.com/bcdev/nc2zarr/store"
)

const version = "0.1.0"

// stringList collects repeated -c flag occurrences, the flag.Value
// idiom cmd/sdb/main.go uses for its own repeatable flags.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }
func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// verboseCount is a flag.Value that increments each time -v appears,
// so "-v -v -v" raises verbosity the way cmd/sdb/main.go's logf level
// is gated by repeated flags.
type verboseCount int

func (v *verboseCount) String() string { return fmt.Sprintf("%d", *v) }
func (v *verboseCount) Set(string) error {
	*v++
	return nil
}
func (v *verboseCount) IsBoolFlag() bool { return true }

var (
	configPaths    stringList
	dashOutput     string
	dashConcatDim  string
	dashMultiFile  bool
	dashOverwrite  bool
	dashAppend     bool
	dashDecodeCF   bool
	dashSortBy     string
	dashAdjustMeta bool
	dashFinalize   bool
	dashDryRun     bool
	dashVerify     bool
	dashVerbose    verboseCount
	dashVersion    bool
)

func init() {
	flag.Var(&configPaths, "c", "configuration file (may be repeated)")
	flag.StringVar(&dashOutput, "o", "", "output store path")
	flag.StringVar(&dashConcatDim, "concat-dim", "", "dimension to concatenate multi-file inputs along")
	flag.BoolVar(&dashMultiFile, "multi-file", false, "combine all inputs into one dataset before writing")
	flag.BoolVar(&dashOverwrite, "overwrite", false, "overwrite an existing output store")
	flag.BoolVar(&dashAppend, "append", false, "append to an existing output store")
	flag.BoolVar(&dashDecodeCF, "decode-cf", false, "CF-decode inputs on open")
	flag.StringVar(&dashSortBy, "sort-by", "", "sort resolved inputs by \"path\" or \"name\"")
	flag.BoolVar(&dashAdjustMeta, "adjust-metadata", false, "update history/source/time_coverage_* on finalize")
	flag.BoolVar(&dashFinalize, "finalize-only", false, "only run the finalizer against an existing store")
	flag.BoolVar(&dashDryRun, "dry-run", false, "validate options and exit without writing")
	flag.BoolVar(&dashVerify, "verify", false, "run post-write consistency checks against the output store")
	flag.Var(&dashVerbose, "v", "increase verbosity (repeatable)")
	flag.BoolVar(&dashVersion, "version", false, "print version and exit")
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	flag.Parse()
	inputs := flag.Args()

	if dashVersion {
		fmt.Println(version)
		return
	}

	log := logging.New(os.Stderr, logging.FromVerbosity(int(dashVerbose)))

	var cfg *config.Config
	var err error
	if len(configPaths) > 0 {
		cfg, err = config.Load(configPaths...)
	} else {
		cfg = &config.Config{}
	}
	if err != nil {
		exitf("%s", err)
	}

	cfg, err = config.Overlay(cfg, cliOverrides(inputs))
	if err != nil {
		exitf("%s", err)
	}

	if err := run(log, cfg); err != nil {
		exitf("%s", err)
	}
}

func cliOverrides(inputs []string) map[string]interface{} {
	out := map[string]interface{}{}
	input := map[string]interface{}{}
	output := map[string]interface{}{}
	if len(inputs) > 0 {
		input["paths"] = toInterfaceSlice(inputs)
	}
	if dashConcatDim != "" {
		input["concat_dim"] = dashConcatDim
	}
	if dashMultiFile {
		input["multi_file"] = true
	}
	if dashDecodeCF {
		input["decode_cf"] = true
	}
	if dashSortBy != "" {
		input["sort_by"] = dashSortBy
	}
	if dashOutput != "" {
		output["path"] = dashOutput
	}
	if dashOverwrite {
		output["overwrite"] = true
	}
	if dashAppend {
		output["append"] = true
	}
	if dashAdjustMeta {
		output["adjust_metadata"] = true
	}
	if len(input) > 0 {
		out["input"] = input
	}
	if len(output) > 0 {
		out["output"] = output
	}
	if dashFinalize {
		out["finalize_only"] = true
	}
	if dashDryRun {
		out["dry_run"] = true
	}
	if dashVerbose > 0 {
		out["verbosity"] = int(dashVerbose)
	}
	return out
}

func toInterfaceSlice(s []string) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func run(log *logging.Logger, cfg *config.Config) error {
	backend := "local"
	if cfg.Output.S3.Key != "" || cfg.Output.S3.Secret != "" || strings.HasPrefix(cfg.Output.Path, "s3://") {
		backend = "s3"
	}
	target, err := store.Open(backend, cfg.Output.Path, store.S3Config{
		Key: cfg.Output.S3.Key, Secret: cfg.Output.S3.Secret,
		EndpointURL: cfg.Output.S3.EndpointURL, Region: cfg.Output.S3.RegionName,
	})
	if err != nil {
		return err
	}

	resolvedInputs, err := resolveInputs(cfg)
	if err != nil {
		return err
	}

	opener := &dataset.Opener{
		Engine:   dataset.JSONEngine{},
		FS:       os.DirFS("/"),
		Opts:     dataset.OpenOptions{DecodeCF: cfg.Input.DecodeCF},
		Prefetch: cfg.Input.PrefetchChunks,
		Log:      log,
	}

	encoding := map[string]dataset.Encoding{}
	for name, raw := range cfg.Output.Encoding {
		encoding[name] = dataset.Encoding(raw)
	}

	opts := convert.Options{
		Inputs:    resolvedInputs,
		MultiFile: cfg.Input.MultiFile,
		ConcatDim: cfg.Input.ConcatDim,
		PreProcess: convert.PreProcessOptions{
			Variables:          cfg.Input.Variables,
			CustomPreprocessor: cfg.Input.CustomPreprocessor,
			DatetimeFormat:     cfg.Input.DatetimeFormat,
		},
		Process: convert.ProcessOptions{
			Rename:          cfg.Process.Rename,
			CustomProcessor: cfg.Process.CustomProcessor,
			Rechunk:         toRechunkRules(cfg.Process.Rechunk),
			UserEncoding:    encoding,
		},
		Overwrite:      cfg.Output.Overwrite,
		Append:         cfg.Output.Append,
		AppendDim:      cfg.Output.AppendDim,
		AppendMode:     store.AppendMode(cfg.Output.AppendMode),
		AdjustMetadata: cfg.Output.AdjustMetadata,
		Metadata:       toAttrs(cfg.Output.Metadata),
		Consolidated:   cfg.Output.Consolidated,
		Retry:          toRetryPolicy(cfg.Output.Retry),
		FinalizeOnly:   cfg.FinalizeOnly,
		Verify:         dashVerify,
		ToolName:       "nc2zarr",
		ToolVersion:    version,
		Log:            log,
	}

	if cfg.DryRun {
		log.Info("dry run: options validated, nothing written")
		_, err := convert.New(opts, opener, target)
		return err
	}

	converter, err := convert.New(opts, opener, target)
	if err != nil {
		return err
	}
	if err := converter.Run(context.Background()); err != nil {
		return err
	}
	log.Info("wrote %s", store.Describe(target))
	return nil
}

func resolveInputs(cfg *config.Config) ([]string, error) {
	if len(cfg.Input.Paths) == 0 {
		return nil, nil
	}
	var local, remote []string
	for _, p := range cfg.Input.Paths {
		if strings.HasPrefix(p, "s3://") {
			remote = append(remote, p)
		} else {
			local = append(local, p)
		}
	}
	var out []string
	if len(local) > 0 {
		resolved, err := pathresolve.Resolve(os.DirFS("/"), local, cfg.Input.SortBy)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved...)
	}
	if len(remote) > 0 {
		resolved, err := resolveS3Inputs(remote, cfg)
		if err != nil {
			return nil, err
		}
		out = append(out, resolved...)
	}
	return out, nil
}

// resolveS3Inputs expands "s3://bucket/..." input paths through
// objstore/s3's remote lister (spec's "for object-store schemes,
// expansion consults the remote lister"), grouping by bucket since
// the lister is rooted at a single bucket. It reuses output.s3's
// credentials, since the configuration has no separate input-side
// credential block.
func resolveS3Inputs(paths []string, cfg *config.Config) ([]string, error) {
	order := make([]string, 0, len(paths))
	byBucket := map[string][]string{}
	for _, p := range paths {
		bucket, rel := splitS3Input(p)
		if _, ok := byBucket[bucket]; !ok {
			order = append(order, bucket)
		}
		byBucket[bucket] = append(byBucket[bucket], rel)
	}

	s3cfg := store.S3Config{
		Key:         cfg.Output.S3.Key,
		Secret:      cfg.Output.S3.Secret,
		EndpointURL: cfg.Output.S3.EndpointURL,
		Region:      cfg.Output.S3.RegionName,
	}

	var out []string
	for _, bucket := range order {
		lister, err := store.S3Lister(bucket, s3cfg)
		if err != nil {
			return nil, fmt.Errorf("resolving s3://%s: %w", bucket, err)
		}
		resolved, err := pathresolve.Resolve(lister, byBucket[bucket], cfg.Input.SortBy)
		if err != nil {
			return nil, err
		}
		for _, r := range resolved {
			out = append(out, "s3://"+bucket+"/"+strings.TrimPrefix(r, "/"))
		}
	}
	return out, nil
}

func splitS3Input(p string) (bucket, rel string) {
	p = strings.TrimPrefix(p, "s3://")
	i := strings.IndexByte(p, '/')
	if i < 0 {
		return p, ""
	}
	return p[:i], p[i+1:]
}

func toRechunkRules(raw map[string]interface{}) map[string]convert.RechunkRule {
	if raw == nil {
		return nil
	}
	out := make(map[string]convert.RechunkRule, len(raw))
	for k, v := range raw {
		out[k] = normalizeRechunkValue(v)
	}
	return out
}

func normalizeRechunkValue(v interface{}) convert.RechunkRule {
	switch vv := v.(type) {
	case map[string]interface{}:
		out := map[string]convert.RechunkRule{}
		for k, sub := range vv {
			out[k] = normalizeRechunkValue(sub)
		}
		return out
	case int:
		return vv
	default:
		return v
	}
}

func toAttrs(m map[string]interface{}) dataset.Attrs {
	if m == nil {
		return nil
	}
	return dataset.Attrs(m)
}

func toRetryPolicy(r config.RetryConfig) store.RetryPolicy {
	p := store.DefaultRetryPolicy
	if r.Tries > 0 {
		p.Tries = r.Tries
	}
	if r.Delay > 0 {
		p.Delay = durationSeconds(r.Delay)
	}
	if r.Backoff > 0 {
		p.Backoff = r.Backoff
	}
	if r.MaxDelay > 0 {
		p.MaxDelay = durationSeconds(r.MaxDelay)
	}
	if r.Jitter > 0 {
		p.Jitter = r.Jitter
	}
	return p
}

func durationSeconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
