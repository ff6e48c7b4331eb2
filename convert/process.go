package convert

import (
	"fmt"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/nzerr"
)

// RechunkRule is one entry of the process.rechunk mapping (spec §4.4
// step 3): "*" gives the default, per-variable keys override it. A
// rule value is one of nil (None/whole-variable), an int (uniform
// chunk size), the string "input" (inherit source chunking), or a
// dim->value map using the same special values.
type RechunkRule interface{}

// ProcessOptions configures Process, mirroring the process.* config
// keys of spec §6.
type ProcessOptions struct {
	Rename          map[string]string
	CustomProcessor string
	Rechunk         map[string]RechunkRule
	UserEncoding    map[string]dataset.Encoding
}

// Process implements spec §4.4: rename, custom hook, rechunk, and
// encoding merge. It returns the (possibly mutated) dataset and the
// resolved per-variable encoding to hand the Writer.
func Process(ds *dataset.Dataset, opts ProcessOptions) (*dataset.Dataset, map[string]dataset.Encoding, error) {
	if len(opts.Rename) > 0 {
		renameVariables(ds, opts.Rename)
	}

	if opts.CustomProcessor != "" {
		fn, err := ResolveHook(opts.CustomProcessor)
		if err != nil {
			return nil, nil, err
		}
		ds, err = fn(ds)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %s", nzerr.CustomHookError, err)
		}
	}

	encodings := map[string]dataset.Encoding{}
	if len(opts.Rechunk) > 0 {
		if err := rechunkDataset(ds, opts.Rechunk, encodings); err != nil {
			return nil, nil, err
		}
	}

	for name, user := range opts.UserEncoding {
		merged := encodings[name].Clone()
		if merged == nil {
			merged = dataset.Encoding{}
		}
		for k, v := range user {
			if k == "chunks" {
				if _, hasComputed := merged["chunks"]; hasComputed {
					continue // computed chunks win over user chunks
				}
			}
			merged[k] = v
		}
		encodings[name] = merged
	}

	return ds, encodings, nil
}

func renameVariables(ds *dataset.Dataset, rename map[string]string) {
	// Go map iteration order is randomized, but a chained rename
	// ("a"->"b", "b"->"c" in the same mapping) is order-sensitive, so
	// apply renames in a fixed, deterministic key order.
	oldNames := maps.Keys(rename)
	slices.Sort(oldNames)
	for _, oldName := range oldNames {
		newName := rename[oldName]
		v := ds.Get(oldName)
		if v == nil || oldName == newName {
			continue
		}
		ds.Delete(oldName)
		v.Name = newName
		for i, dim := range v.Dims {
			if dim == oldName {
				v.Dims[i] = newName
			}
		}
		ds.Put(v)
	}
}

func rechunkDataset(ds *dataset.Dataset, rules map[string]RechunkRule, out map[string]dataset.Encoding) error {
	defaultRule := rules["*"]
	for _, v := range ds.Variables() {
		rule, has := rules[v.Name]
		if !has {
			if defaultRule == nil {
				continue
			}
			rule = defaultRule
		}
		chunks, err := resolveChunks(v, rule)
		if err != nil {
			return err
		}
		rechunked, err := rechunkVariable(v, chunks)
		if err != nil {
			return err
		}
		*v = *rechunked
		enc := out[v.Name]
		if enc == nil {
			enc = dataset.Encoding{}
		}
		enc["chunks"] = chunks
		out[v.Name] = enc
	}
	return nil
}

// resolveChunks resolves one variable's rule into a concrete
// per-dimension chunk size list, per spec §4.4 step 3.
func resolveChunks(v *dataset.Variable, rule RechunkRule) ([]int, error) {
	chunks := make([]int, len(v.Dims))
	switch r := rule.(type) {
	case nil:
		copy(chunks, v.Shape)
	case int:
		for i := range chunks {
			chunks[i] = r
		}
	case string:
		if r != "input" {
			return nil, fmt.Errorf("%w: %q", nzerr.InvalidChunkSize, r)
		}
		for i := range chunks {
			chunks[i] = inputChunkSize(v, i)
		}
	case map[string]RechunkRule:
		for i, dim := range v.Dims {
			dv, ok := r[dim]
			if !ok {
				chunks[i] = v.Shape[i]
				continue
			}
			size, err := resolveDimValue(v, i, dv)
			if err != nil {
				return nil, err
			}
			chunks[i] = size
		}
	default:
		return nil, fmt.Errorf("%w: unsupported rule type %T", nzerr.InvalidChunkSize, rule)
	}
	return chunks, nil
}

func resolveDimValue(v *dataset.Variable, dimIdx int, value RechunkRule) (int, error) {
	switch val := value.(type) {
	case nil:
		return v.Shape[dimIdx], nil
	case int:
		return val, nil
	case string:
		if val == "input" {
			return inputChunkSize(v, dimIdx), nil
		}
		return 0, fmt.Errorf("%w: %q", nzerr.InvalidChunkSize, val)
	default:
		return 0, fmt.Errorf("%w: unsupported value type %T", nzerr.InvalidChunkSize, value)
	}
}

func inputChunkSize(v *dataset.Variable, dimIdx int) int {
	if v.Chunks != nil && dimIdx < len(v.Chunks) && v.Chunks[dimIdx] > 0 {
		return v.Chunks[dimIdx]
	}
	return v.Shape[dimIdx]
}

func rechunkVariable(v *dataset.Variable, chunks []int) (*dataset.Variable, error) {
	cp := v.Clone()
	cp.Chunks = chunks
	return cp, nil
}
