package convert

import (
	"fmt"
	"strings"
	"time"

	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/nzerr"
	"github.com/bcdev/nc2zarr/store"
)

// FinalizerOptions configures Finalizer, mirroring output.{adjust_metadata,
// metadata, consolidated} (spec §6).
type FinalizerOptions struct {
	AdjustMetadata bool
	Metadata       dataset.Attrs
	Consolidated   bool
	ToolName       string
	ToolVersion    string
	Inputs         []string
	SelfDescribingExt string
}

// Finalizer runs once after all writes (or standalone under
// finalize_only), implementing spec §4.7.
type Finalizer struct {
	Store store.Store
	Opts  FinalizerOptions
	Now   func() time.Time
}

func NewFinalizer(s store.Store, opts FinalizerOptions) *Finalizer {
	return &Finalizer{Store: s, Opts: opts, Now: time.Now}
}

// Run executes the finalization steps of spec §4.7.
func (f *Finalizer) Run() error {
	exists, err := f.Store.Exists()
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w", nzerr.StoreNotFound)
	}

	attrs, err := f.Store.RootAttrs()
	if err != nil {
		return err
	}
	if attrs == nil {
		attrs = dataset.Attrs{}
	}
	updates := dataset.Attrs{}

	if f.Opts.AdjustMetadata {
		history := fmt.Sprintf("%s - converted by %s, version %s", f.Now().UTC().Format("2006-01-02 15:04:05"), f.Opts.ToolName, f.Opts.ToolVersion)
		updates["history"] = appendLine(attrs["history"], history)

		var sources []string
		for _, in := range f.Opts.Inputs {
			if f.Opts.SelfDescribingExt == "" || strings.HasSuffix(in, f.Opts.SelfDescribingExt) {
				sources = append(sources, in)
			}
		}
		updates["source"] = appendLine(attrs["source"], strings.Join(sources, ", "))

		start, end, err := f.timeCoverage()
		if err != nil {
			return err
		}
		updates["time_coverage_start"] = dataset.FormatCoverage(start)
		updates["time_coverage_end"] = dataset.FormatCoverage(end)
	}

	for k, v := range f.Opts.Metadata {
		updates[k] = v
	}

	if len(updates) > 0 {
		for k, v := range updates {
			attrs[k] = v
		}
		if err := f.Store.SetRootAttrs(attrs); err != nil {
			return err
		}
	}

	consolidated, err := f.Store.IsConsolidated()
	if err != nil {
		return err
	}
	if f.Opts.Consolidated || consolidated {
		return f.Store.Consolidate()
	}
	return nil
}

func appendLine(existing interface{}, line string) string {
	s, _ := existing.(string)
	if s == "" {
		return line
	}
	return s + "\n" + line
}

// timeCoverage computes the store's time_coverage_start/end per spec
// §4.7 step 1: from the "time" variable's bounds attribute if present,
// otherwise from time[0]/time[-1].
func (f *Finalizer) timeCoverage() (start, end time.Time, err error) {
	timeVar, err := f.Store.ReadVariable("time")
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if boundsName, ok := timeVar.Attrs["bounds"].(string); ok && boundsName != "" {
		if bounds, berr := f.Store.ReadVariable(boundsName); berr == nil && len(bounds.Shape) == 2 {
			n := bounds.Shape[0]
			lower := bounds.Data.Scalar(0)
			upper := bounds.Data.Scalar((n-1)*2 + 1)
			return nanosToTime(lower), nanosToTime(upper), nil
		}
	}
	n := timeVar.Data.Len()
	if n == 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("store: time variable is empty")
	}
	return nanosToTime(timeVar.Data.Scalar(0)), nanosToTime(timeVar.Data.Scalar(n - 1)), nil
}

func nanosToTime(nanos float64) time.Time {
	return time.Unix(0, int64(nanos)).UTC()
}
