// Package store implements the Store abstraction of spec §3/§9: a
// persistent key→bytes map, organized as a directory of per-variable
// chunked arrays plus a root attribute block and optional consolidated
// metadata, reachable over a local filesystem or object storage. It
// also implements the SliceLocator (§4.5).
package store

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/bcdev/nc2zarr/dataset"
	"github.com/bcdev/nc2zarr/nzerr"
)

// ErrNotExist is returned, wrapped, by a Store's reads when the store
// or the requested variable does not exist; callers compare with
// errors.Is.
var ErrNotExist = errors.New("store does not exist")

// ErrIOSentinel marks any store I/O failure as a nzerr.StoreIOError,
// so the writer's retry loop (spec §4.6) can recognize it.
var ErrIOSentinel = nzerr.StoreIOError

// VariableMeta is the persisted shape describing one stored variable:
// its dimensions, shape, dtype, chunking and encoding, independent of
// its data bytes.
type VariableMeta struct {
	Name     string            `json:"name"`
	Dims     []string          `json:"dims"`
	Shape    []int             `json:"shape"`
	DType    dataset.DType     `json:"dtype"`
	Chunks   []int             `json:"chunks,omitempty"`
	Attrs    dataset.Attrs     `json:"attrs,omitempty"`
	Encoding dataset.Encoding  `json:"encoding,omitempty"`
}

// Store is the pluggable backend every converter writes through. Only
// the operations the core needs are exposed (spec §9): existence,
// create-from-scratch, per-variable read/write/delete, root
// attributes, and consolidation.
type Store interface {
	// Exists reports whether the store has been created yet.
	Exists() (bool, error)

	// Create writes ds as a brand-new store, using enc as the
	// per-variable encoding (spec §4.6 "create it from scratch with
	// the full encoding").
	Create(ds *dataset.Dataset, enc map[string]dataset.Encoding) error

	// VariableNames lists the stored variables.
	VariableNames() ([]string, error)

	// ReadVariable reads one stored variable in full.
	ReadVariable(name string) (*dataset.Variable, error)

	// WriteVariable overwrites one stored variable's metadata and
	// data wholesale (used by append/insert/replace, which first
	// read, then splice, then write back).
	WriteVariable(v *dataset.Variable) error

	// DeleteVariable removes a stored variable entirely (used to remove
	// the Writer's insert scratch variables and by nc2zarr-fs rm).
	DeleteVariable(name string) error

	// RootAttrs reads the store's root attribute block.
	RootAttrs() (dataset.Attrs, error)

	// SetRootAttrs overwrites the store's root attribute block.
	SetRootAttrs(dataset.Attrs) error

	// IsConsolidated reports whether a consolidated metadata file
	// exists at the store root.
	IsConsolidated() (bool, error)

	// Consolidate writes a fresh consolidated metadata snapshot
	// capturing every variable's metadata and the root attributes.
	Consolidate() error
}

// SliceAction is the decision SliceLocator returns for a candidate
// slice, per spec §4.5.
type SliceAction string

const (
	ActionCreate  SliceAction = "create"
	ActionReplace SliceAction = "replace"
	ActionInsert  SliceAction = "insert"
	ActionAppend  SliceAction = "append"
)

// DefaultTolerance is the default equality tolerance for datetime
// coordinates (spec §4.5): 1 millisecond.
const DefaultTolerance = time.Millisecond

// Locate implements the SliceLocator of spec §4.5: given an existing
// store's coordinate values along the append dimension (already read
// and decoded to float64 "ticks", e.g. Unix nanoseconds for datetimes)
// and a candidate coordinate value v, with tolerance eps in the same
// units, decide where it belongs.
//
// exists reports whether the store exists at all; when it does not,
// the result is always (-1, create) regardless of coords.
func Locate(exists bool, coords []float64, v float64, eps float64) (int, SliceAction) {
	if !exists {
		return -1, ActionCreate
	}
	for i, c := range coords {
		if math.Abs(v-c) < eps {
			return i, ActionReplace
		}
		if v < c {
			return i, ActionInsert
		}
	}
	return -1, ActionAppend
}

// CoordTicks converts a coordinate Array to float64 "ticks" suitable
// for Locate, reading every element in flat order.
func CoordTicks(a *dataset.Array) []float64 {
	out := make([]float64, a.Len())
	for i := range out {
		out[i] = a.Scalar(i)
	}
	return out
}

// Open opens a Store of the given kind ("local" or "s3") rooted at
// path, forwarding S3 credentials from cfg when kind is "s3".
func Open(kind, path string, cfg S3Config) (Store, error) {
	switch kind {
	case "s3":
		return newS3Store(path, cfg)
	case "", "local":
		return newLocalStore(path), nil
	default:
		return nil, fmt.Errorf("store: unknown backend kind %q", kind)
	}
}

// describer is implemented by Store backends that can produce a
// human-readable location string for logging, distinct from
// fmt.Stringer since not every caller that holds a Store wants a
// String() method to satisfy.
type describer interface {
	Describe() string
}

// Describe returns a human-readable location for s, falling back to
// a generic label for Store implementations that don't opt in.
func Describe(s Store) string {
	if d, ok := s.(describer); ok {
		return d.Describe()
	}
	return "store"
}
