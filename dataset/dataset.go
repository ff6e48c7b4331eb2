// Package dataset implements the in-memory data model of spec §3: an
// ordered mapping of named variables, each with dimensions, shape,
// element type, optional chunking, attributes, and encoding; plus the
// top-level attribute mapping and the notion of coordinate variables.
package dataset

import "fmt"

// DType is a variable's scalar element type.
type DType string

const (
	Int16   DType = "i2"
	UInt16  DType = "u2"
	Int32   DType = "i4"
	UInt32  DType = "u4"
	Float32 DType = "f4"
	Float64 DType = "f8"
	Bytes   DType = "S1" // byte-string dtype; opaque, never sliced along append_dim
)

// ElemSize returns the width in bytes of one scalar of this type. Bytes
// (byte-string) variables are opaque blobs and report 1.
func (d DType) ElemSize() int {
	switch d {
	case Int16, UInt16:
		return 2
	case Int32, UInt32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 1
	}
}

// Attrs is a scalar-or-list attribute mapping, keyed by name.
type Attrs map[string]interface{}

func (a Attrs) Clone() Attrs {
	if a == nil {
		return nil
	}
	out := make(Attrs, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// Encoding is the recognized per-variable encoding mapping of spec §3:
// chunks, compressor, fill_value, dtype, filters, calendar, units.
type Encoding map[string]interface{}

func (e Encoding) Clone() Encoding {
	if e == nil {
		return nil
	}
	out := make(Encoding, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

// Chunks reads the "chunks" key as a []int, if present.
func (e Encoding) Chunks() ([]int, bool) {
	v, ok := e["chunks"]
	if !ok {
		return nil, false
	}
	c, ok := v.([]int)
	return c, ok
}

// Variable is a named N-D array with an ordered tuple of dimension
// names, a shape, a scalar element type, optional per-dimension
// chunking, attributes and encoding.
type Variable struct {
	Name     string
	Dims     []string
	Shape    []int
	DType    DType
	Chunks   []int // nil if unset
	Attrs    Attrs
	Encoding Encoding
	Data     *Array
}

// HasDim reports whether name appears among v's dimensions.
func (v *Variable) HasDim(name string) bool {
	for _, d := range v.Dims {
		if d == name {
			return true
		}
	}
	return false
}

// DimIndex returns the position of name in v.Dims, or -1.
func (v *Variable) DimIndex(name string) int {
	for i, d := range v.Dims {
		if d == name {
			return i
		}
	}
	return -1
}

func (v *Variable) Clone() *Variable {
	cp := *v
	cp.Dims = append([]string(nil), v.Dims...)
	cp.Shape = append([]int(nil), v.Shape...)
	cp.Chunks = append([]int(nil), v.Chunks...)
	cp.Attrs = v.Attrs.Clone()
	cp.Encoding = v.Encoding.Clone()
	if v.Data != nil {
		cp.Data = v.Data.Clone()
	}
	return &cp
}

// Dataset is an ordered mapping of named variables plus a top-level
// attribute mapping. Order is preserved as variables are added so
// iteration order matches insertion (opener/preprocessor) order.
type Dataset struct {
	names     []string
	variables map[string]*Variable
	Attrs     Attrs
	// DimSizes is the dataset-wide agreed size for each named
	// dimension; spec §3 invariant: variables sharing a dimension
	// name agree on its length.
	DimSizes map[string]int
}

func New() *Dataset {
	return &Dataset{
		variables: make(map[string]*Variable),
		Attrs:     Attrs{},
		DimSizes:  map[string]int{},
	}
}

// Put inserts or replaces a variable, validating the shared-dimension
// invariant from spec §3.
func (d *Dataset) Put(v *Variable) error {
	for i, dim := range v.Dims {
		size := v.Shape[i]
		if existing, ok := d.DimSizes[dim]; ok && existing != size {
			return fmt.Errorf("dataset: dimension %q: size %d conflicts with existing size %d", dim, size, existing)
		}
		d.DimSizes[dim] = size
	}
	if _, exists := d.variables[v.Name]; !exists {
		d.names = append(d.names, v.Name)
	}
	d.variables[v.Name] = v
	return nil
}

// Delete removes a variable by name, if present.
func (d *Dataset) Delete(name string) {
	if _, ok := d.variables[name]; !ok {
		return
	}
	delete(d.variables, name)
	for i, n := range d.names {
		if n == name {
			d.names = append(d.names[:i], d.names[i+1:]...)
			break
		}
	}
}

// Get returns the named variable, or nil.
func (d *Dataset) Get(name string) *Variable {
	return d.variables[name]
}

// Names returns variable names in insertion order.
func (d *Dataset) Names() []string {
	out := make([]string, len(d.names))
	copy(out, d.names)
	return out
}

// Variables returns variables in insertion order.
func (d *Dataset) Variables() []*Variable {
	out := make([]*Variable, 0, len(d.names))
	for _, n := range d.names {
		out = append(out, d.variables[n])
	}
	return out
}

// IsCoordinate reports whether name is a coordinate: a variable whose
// name matches its single dimension.
func (d *Dataset) IsCoordinate(name string) bool {
	v := d.variables[name]
	return v != nil && len(v.Dims) == 1 && v.Dims[0] == name
}

// Coordinate returns the coordinate variable for dim, or nil.
func (d *Dataset) Coordinate(dim string) *Variable {
	v := d.variables[dim]
	if v == nil || len(v.Dims) != 1 || v.Dims[0] != dim {
		return nil
	}
	return v
}

func (d *Dataset) Clone() *Dataset {
	out := New()
	out.Attrs = d.Attrs.Clone()
	for k, v := range d.DimSizes {
		out.DimSizes[k] = v
	}
	for _, n := range d.names {
		// Put validates each variable against DimSizes; DimSizes was
		// copied above, so add variables directly instead to avoid
		// re-validating an already-consistent dataset.
		out.names = append(out.names, n)
		out.variables[n] = d.variables[n].Clone()
	}
	return out
}
