package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"sort"

	"github.com/bcdev/nc2zarr/logging"
)

// OpenOptions carries the per-open knobs the opener forwards to an
// Engine: whether to CF-decode on read, and an optional default
// per-dimension chunk-size hint (the "chunk prefetch" step of
// spec §4.2, computed from the first input and reused for the rest so
// lazy arrays stay identically chunked).
type OpenOptions struct {
	DecodeCF       bool
	DefaultChunks  map[string]int
}

// Engine opens one self-describing input file and returns its
// Dataset. Concrete backends (a local single-file format, an object-
// store-backed store engine, etc.) implement this; the opener is
// engine-agnostic and safe to use with any fs.FS, including remote
// ones, per spec §4.2 ("open must be safe to call on remote URLs").
type Engine interface {
	Open(ctx context.Context, fsys fs.FS, path string, opts OpenOptions) (*Dataset, error)
}

// jsonDoc is the on-disk shape read by JSONEngine: a minimal,
// self-describing stand-in for the scientific array file formats this
// tool targets. Reimplementing those wire formats is explicitly out of
// scope (spec §1 Non-goals); JSONEngine exists so the rest of the
// pipeline (preprocess/process/write) has a concrete, round-trippable
// input to operate on in tests and in the native CLI engine.
type jsonDoc struct {
	Dims       map[string]int            `json:"dims"`
	Attrs      Attrs                     `json:"attrs"`
	Variables  map[string]jsonVariable   `json:"variables"`
	Order      []string                  `json:"order"` // variable iteration order
}

type jsonVariable struct {
	Dims     []string `json:"dims"`
	DType    DType    `json:"dtype"`
	Attrs    Attrs    `json:"attrs"`
	Encoding Encoding `json:"encoding"`
	Data     []float64 `json:"data"`
}

// JSONEngine implements Engine over jsonDoc-shaped files.
type JSONEngine struct{}

func (JSONEngine) Open(_ context.Context, fsys fs.FS, path string, opts OpenOptions) (*Dataset, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	var doc jsonDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("dataset: %s: %w", path, err)
	}
	ds := New()
	if doc.Attrs != nil {
		ds.Attrs = doc.Attrs
	}
	order := doc.Order
	if order == nil {
		for name := range doc.Variables {
			order = append(order, name)
		}
		sort.Strings(order)
	}
	for _, name := range order {
		jv, ok := doc.Variables[name]
		if !ok {
			continue
		}
		shape := make([]int, len(jv.Dims))
		for i, d := range jv.Dims {
			shape[i] = doc.Dims[d]
		}
		data, err := encodeFloats(jv.DType, jv.Data)
		if err != nil {
			return nil, fmt.Errorf("dataset: %s: variable %s: %w", path, name, err)
		}
		arr, err := NewArray(jv.DType, shape, data)
		if err != nil {
			return nil, fmt.Errorf("dataset: %s: variable %s: %w", path, name, err)
		}
		v := &Variable{
			Name:     name,
			Dims:     jv.Dims,
			Shape:    shape,
			DType:    jv.DType,
			Attrs:    jv.Attrs,
			Encoding: jv.Encoding,
			Data:     arr,
		}
		if opts.DefaultChunks != nil {
			v.Chunks = chunksFromDefaults(v, opts.DefaultChunks)
		}
		if err := ds.Put(v); err != nil {
			return nil, fmt.Errorf("dataset: %s: %w", path, err)
		}
	}
	return ds, nil
}

func chunksFromDefaults(v *Variable, defaults map[string]int) []int {
	chunks := make([]int, len(v.Dims))
	any := false
	for i, d := range v.Dims {
		if c, ok := defaults[d]; ok {
			chunks[i] = c
			any = true
		} else {
			chunks[i] = v.Shape[i]
		}
	}
	if !any {
		return nil
	}
	return chunks
}

func encodeFloats(dtype DType, vals []float64) ([]byte, error) {
	out := make([]byte, len(vals)*dtype.ElemSize())
	for i, v := range vals {
		putScalar(out[i*dtype.ElemSize():], dtype, v)
	}
	return out, nil
}

// Opener produces a lazy sequence of opened datasets, per spec §4.2.
type Opener struct {
	Engine Engine
	FS     fs.FS
	Opts   OpenOptions

	// Prefetch, if true, opens the first path to compute a default
	// per-dimension chunk size (the maximum chunk observed across its
	// data variables) before opening the rest.
	Prefetch bool
	Log      *logging.Logger
}

// Sequence is a single-pass iterator over opened datasets, consumed
// one at a time so memory use stays bounded (spec §4.2, §5). It cannot
// be restarted: once exhausted, Next keeps returning io.EOF.
type Sequence struct {
	o     *Opener
	paths []string
	idx   int
}

// Open begins a per-file lazy sequence over paths, performing the
// chunk-prefetch step first if configured.
func (o *Opener) Open(ctx context.Context, paths []string) (*Sequence, error) {
	if o.Prefetch && len(paths) > 0 {
		first, err := o.Engine.Open(ctx, o.FS, paths[0], o.Opts)
		if err != nil {
			return nil, fmt.Errorf("dataset: prefetch %s: %w", paths[0], err)
		}
		defaults := map[string]int{}
		for _, v := range first.Variables() {
			if first.IsCoordinate(v.Name) {
				continue
			}
			for i, d := range v.Dims {
				if v.Chunks != nil && v.Chunks[i] > defaults[d] {
					defaults[d] = v.Chunks[i]
				}
			}
		}
		if len(defaults) > 0 {
			o.Opts.DefaultChunks = defaults
		}
	}
	return &Sequence{o: o, paths: paths}, nil
}

// Next returns the next dataset in the sequence, or io.EOF once
// exhausted.
func (s *Sequence) Next(ctx context.Context) (*Dataset, error) {
	if s.idx >= len(s.paths) {
		return nil, io.EOF
	}
	p := s.paths[s.idx]
	s.idx++
	ds, err := s.o.Engine.Open(ctx, s.o.FS, p, s.o.Opts)
	if err != nil {
		return nil, fmt.Errorf("dataset: open %s: %w", p, err)
	}
	if s.o.Log != nil {
		s.o.Log.Debug("opened %s", p)
	}
	return ds, nil
}

// OpenCombined opens every path, applies preprocess to each (per spec
// §4.2 "the preprocess function is applied per file before
// concatenation"), and concatenates them into one logical dataset
// along concatDim ("nested" mode), or unions them "by coordinates"
// when concatDim is empty.
func (o *Opener) OpenCombined(ctx context.Context, paths []string, concatDim string, preprocess func(*Dataset) (*Dataset, error)) (*Dataset, error) {
	seq, err := o.Open(ctx, paths)
	if err != nil {
		return nil, err
	}
	var datasets []*Dataset
	for {
		ds, err := seq.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if preprocess != nil {
			ds, err = preprocess(ds)
			if err != nil {
				return nil, err
			}
		}
		datasets = append(datasets, ds)
	}
	if len(datasets) == 0 {
		return New(), nil
	}
	if concatDim != "" {
		return concatNested(datasets, concatDim)
	}
	return unionByCoordinates(datasets, o.Log)
}

func concatNested(datasets []*Dataset, dim string) (*Dataset, error) {
	out := datasets[0].Clone()
	for _, name := range out.Names() {
		v := out.Get(name)
		idx := v.DimIndex(dim)
		if idx < 0 {
			continue
		}
		arrays := []*Array{v.Data}
		for _, ds := range datasets[1:] {
			other := ds.Get(name)
			if other == nil {
				return nil, fmt.Errorf("dataset: combine: variable %q missing from one input", name)
			}
			arrays = append(arrays, other.Data)
		}
		merged, err := ConcatDim(idx, arrays...)
		if err != nil {
			return nil, fmt.Errorf("dataset: combine: variable %q: %w", name, err)
		}
		v.Data = merged
		v.Shape = merged.Shape
	}
	return out, nil
}

// unionByCoordinates implements the Open Question in spec §9: combine
// datasets "by coordinates" with no explicit concat_dim. It compares
// every coordinate variable of the first input against the other
// inputs; a coordinate missing from another input counts as a
// disagreement. If every dataset carries every such coordinate with
// the same values, the inputs describe the same
// grid and are unioned by copying in any variable missing from the
// first dataset. If a coordinate disagrees across inputs, that
// coordinate's dimension is the only reasonable concatenation axis,
// so this warns and falls back to nested concatenation along it
// (matching the "prefer to make progress, log loudly" posture the
// rest of the pipeline takes on ingest anomalies), rather than
// failing outright.
func unionByCoordinates(datasets []*Dataset, log *logging.Logger) (*Dataset, error) {
	if dim := firstDisagreeingCoordinate(datasets); dim != "" {
		if log != nil {
			log.Warn("combine by-coordinates: datasets disagree on coordinate %q, falling back to nested concatenation along it", dim)
		}
		return concatNested(datasets, dim)
	}

	out := datasets[0].Clone()
	for _, ds := range datasets[1:] {
		for _, name := range ds.Names() {
			if out.Get(name) == nil {
				if err := out.Put(ds.Get(name).Clone()); err != nil {
					return nil, fmt.Errorf("dataset: combine by-coordinates: %w", err)
				}
			}
		}
	}
	return out, nil
}

// firstDisagreeingCoordinate returns the name of the first coordinate
// of the first dataset that is missing from another dataset or whose
// values are not byte-identical across all of them, or "" if every
// coordinate of the first dataset is present and identical everywhere.
func firstDisagreeingCoordinate(datasets []*Dataset) string {
	first := datasets[0]
	for _, name := range first.Names() {
		if !first.IsCoordinate(name) {
			continue
		}
		ref := first.Get(name)
		for _, ds := range datasets[1:] {
			other := ds.Get(name)
			if other == nil || !other.Data.SameValues(ref.Data) {
				return name
			}
		}
	}
	return ""
}
