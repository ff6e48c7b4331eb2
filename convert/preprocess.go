// Package convert implements the PreProcessor, Processor, Finalizer
// and Converter of spec §4.3-§4.4 and §4.7-§4.8.
package convert

import (
	"fmt"
	"time"

	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/nzerr"
)

// PreProcessOptions configures PreProcess, mirroring the input.*
// config keys of spec §6.
type PreProcessOptions struct {
	Variables          []string // if non-nil, keep only these
	CustomPreprocessor string   // "<module>:<function>" hook reference
	ConcatDim           string
	DatetimeFormat      string
}

// PreProcess implements spec §4.3: variable selection, the custom
// hook, concatenation-dimension synthesis, and expanding data
// variables by the concat dimension when it exists but isn't used.
func PreProcess(ds *dataset.Dataset, opts PreProcessOptions) (*dataset.Dataset, error) {
	if opts.Variables != nil {
		keep := map[string]bool{}
		for _, v := range opts.Variables {
			keep[v] = true
		}
		for _, name := range ds.Names() {
			if !keep[name] {
				ds.Delete(name)
			}
		}
	}

	if opts.CustomPreprocessor != "" {
		fn, err := ResolveHook(opts.CustomPreprocessor)
		if err != nil {
			return nil, err
		}
		ds, err = fn(ds)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", nzerr.CustomHookError, err)
		}
	}

	if opts.ConcatDim != "" {
		if _, ok := ds.DimSizes[opts.ConcatDim]; !ok {
			if err := synthesizeConcatDim(ds, opts.ConcatDim, opts.DatetimeFormat); err != nil {
				return nil, err
			}
		}
		if err := expandByConcatDim(ds, opts.ConcatDim); err != nil {
			return nil, err
		}
	}

	return ds, nil
}

func synthesizeConcatDim(ds *dataset.Dataset, dim, datetimeFormat string) error {
	if v := ds.Get(dim); v != nil && len(v.Dims) == 0 {
		// promote a dimensionless variable of the same name to a
		// one-length dimension.
		v.Dims = []string{dim}
		v.Shape = []int{1}
		ds.DimSizes[dim] = 1
		return nil
	}

	if dim != "time" {
		return fmt.Errorf("%w: %s", nzerr.MissingConcatDim, dim)
	}

	start, hasStart := findTimestamp(ds.Attrs, "time_coverage_start", datetimeFormat)
	end, hasEnd := findTimestamp(ds.Attrs, "time_coverage_end", datetimeFormat)
	if !hasStart && !hasEnd {
		return fmt.Errorf("%w: time", nzerr.MissingConcatDim)
	}
	if !hasStart {
		start = end
	}
	if !hasEnd {
		end = start
	}
	mid, lower, upper := dataset.MidpointBounds(start, end)

	ds.DimSizes[dim] = 1
	ds.DimSizes["bnds"] = 2

	timeArr, err := dataset.NewArray(dataset.Float64, []int{1}, dataset.EncodeFloat64([]float64{float64(mid.UnixNano())}))
	if err != nil {
		return err
	}
	timeVar := &dataset.Variable{
		Name: dim, Dims: []string{dim}, Shape: []int{1}, DType: dataset.Float64,
		Attrs: dataset.Attrs{"bounds": dim + "_bnds", "units": "nanoseconds since 1970-01-01T00:00:00Z"},
		Data:  timeArr,
	}
	if err := ds.Put(timeVar); err != nil {
		return err
	}

	boundsArr, err := dataset.NewArray(dataset.Float64, []int{1, 2}, dataset.EncodeFloat64([]float64{float64(lower.UnixNano()), float64(upper.UnixNano())}))
	if err != nil {
		return err
	}
	boundsVar := &dataset.Variable{
		Name: dim + "_bnds", Dims: []string{dim, "bnds"}, Shape: []int{1, 2}, DType: dataset.Float64,
		Data: boundsArr,
	}
	return ds.Put(boundsVar)
}

func findTimestamp(attrs dataset.Attrs, key, format string) (time.Time, bool) {
	raw, ok := attrs[key]
	if !ok {
		return time.Time{}, false
	}
	s, ok := raw.(string)
	if !ok {
		return time.Time{}, false
	}
	if format != "" {
		t, err := dataset.ParseTimestampFormat(s, format)
		if err == nil {
			return t, true
		}
		return time.Time{}, false
	}
	return dataset.ParseTimestamp(s)
}

func expandByConcatDim(ds *dataset.Dataset, dim string) error {
	size, ok := ds.DimSizes[dim]
	if !ok {
		return nil
	}
	boundsName := dim + "_bnds"
	used := false
	for _, v := range ds.Variables() {
		if ds.IsCoordinate(v.Name) || v.Name == boundsName {
			continue
		}
		if v.HasDim(dim) {
			used = true
			break
		}
	}
	if used {
		return nil
	}
	var savedBounds *dataset.Variable
	if b := ds.Get(boundsName); b != nil {
		savedBounds = b
		ds.Delete(boundsName)
	}
	for _, name := range ds.Names() {
		v := ds.Get(name)
		if ds.IsCoordinate(name) {
			continue
		}
		expanded, err := expandVariable(v, dim, size)
		if err != nil {
			return err
		}
		if err := ds.Put(expanded); err != nil {
			return err
		}
	}
	if savedBounds != nil {
		return ds.Put(savedBounds)
	}
	return nil
}

func expandVariable(v *dataset.Variable, dim string, size int) (*dataset.Variable, error) {
	newDims := append([]string{dim}, v.Dims...)
	newShape := append([]int{size}, v.Shape...)
	reps := make([]*dataset.Array, size)
	for i := range reps {
		reps[i] = v.Data
	}
	merged, err := dataset.ConcatDim(0, prependAxis(reps)...)
	if err != nil {
		return nil, err
	}
	cp := v.Clone()
	cp.Dims = newDims
	cp.Shape = newShape
	cp.Data = merged
	return cp, nil
}

// prependAxis reshapes each array to have a new leading axis of
// length 1, so they can be concatenated along axis 0.
func prependAxis(arrays []*dataset.Array) []*dataset.Array {
	out := make([]*dataset.Array, len(arrays))
	for i, a := range arrays {
		shape := append([]int{1}, a.Shape...)
		out[i] = &dataset.Array{DType: a.DType, Shape: shape, Data: a.Data}
	}
	return out
}
