package dataset

import (
	"bytes"
	"fmt"
)

// Array is a dense, row-major, N-dimensional block of raw element
// bytes. It backs Variable.Data and is the unit the processor rechunks
// and the writer slices/concatenates along the append dimension.
type Array struct {
	DType DType
	Shape []int
	Data  []byte
}

// NewArray wraps raw row-major bytes with a shape and element type.
// len(data) must equal the product of shape times the element size.
func NewArray(dtype DType, shape []int, data []byte) (*Array, error) {
	want := elemCount(shape) * dtype.ElemSize()
	if len(data) != want {
		return nil, fmt.Errorf("dataset: array data length %d does not match shape %v dtype %s (want %d)", len(data), shape, dtype, want)
	}
	return &Array{DType: dtype, Shape: append([]int(nil), shape...), Data: data}, nil
}

func elemCount(shape []int) int {
	n := 1
	for _, s := range shape {
		n *= s
	}
	return n
}

func (a *Array) Clone() *Array {
	cp := &Array{DType: a.DType, Shape: append([]int(nil), a.Shape...)}
	cp.Data = append([]byte(nil), a.Data...)
	return cp
}

// SameValues reports whether a and b have the same type, shape, and
// raw bytes.
func (a *Array) SameValues(b *Array) bool {
	if a.DType != b.DType || len(a.Shape) != len(b.Shape) {
		return false
	}
	for i := range a.Shape {
		if a.Shape[i] != b.Shape[i] {
			return false
		}
	}
	return bytes.Equal(a.Data, b.Data)
}

// strides returns (outer, dimSize, inner) for dimIdx: outer is the
// product of shape before dimIdx, inner is the product of shape after
// dimIdx times the element size in bytes.
func (a *Array) strides(dimIdx int) (outer, dimSize, innerBytes int) {
	outer = 1
	for i := 0; i < dimIdx; i++ {
		outer *= a.Shape[i]
	}
	dimSize = a.Shape[dimIdx]
	inner := 1
	for i := dimIdx + 1; i < len(a.Shape); i++ {
		inner *= a.Shape[i]
	}
	innerBytes = inner * a.DType.ElemSize()
	return
}

// SliceDim returns the contiguous cross-section [start, start+length)
// along dimIdx.
func (a *Array) SliceDim(dimIdx, start, length int) (*Array, error) {
	if dimIdx < 0 || dimIdx >= len(a.Shape) {
		return nil, fmt.Errorf("dataset: dimension index %d out of range for shape %v", dimIdx, a.Shape)
	}
	outer, dimSize, innerBytes := a.strides(dimIdx)
	if start < 0 || length < 0 || start+length > dimSize {
		return nil, fmt.Errorf("dataset: slice [%d:%d) out of range for dimension size %d", start, start+length, dimSize)
	}
	newShape := append([]int(nil), a.Shape...)
	newShape[dimIdx] = length
	out := make([]byte, outer*length*innerBytes)
	rowBytes := dimSize * innerBytes
	sliceBytes := length * innerBytes
	for o := 0; o < outer; o++ {
		src := o*rowBytes + start*innerBytes
		dst := o * sliceBytes
		copy(out[dst:dst+sliceBytes], a.Data[src:src+sliceBytes])
	}
	return &Array{DType: a.DType, Shape: newShape, Data: out}, nil
}

// ConcatDim concatenates arrays along dimIdx, in order.
func ConcatDim(dimIdx int, arrays ...*Array) (*Array, error) {
	if len(arrays) == 0 {
		return nil, fmt.Errorf("dataset: concat requires at least one array")
	}
	first := arrays[0]
	total := 0
	for i, a := range arrays {
		if a.DType != first.DType {
			return nil, fmt.Errorf("dataset: concat: dtype mismatch at index %d", i)
		}
		if len(a.Shape) != len(first.Shape) {
			return nil, fmt.Errorf("dataset: concat: rank mismatch at index %d", i)
		}
		for d := range a.Shape {
			if d == dimIdx {
				continue
			}
			if a.Shape[d] != first.Shape[d] {
				return nil, fmt.Errorf("dataset: concat: shape mismatch at index %d, dim %d", i, d)
			}
		}
		total += a.Shape[dimIdx]
	}
	outer, _, innerBytes := first.strides(dimIdx)
	newShape := append([]int(nil), first.Shape...)
	newShape[dimIdx] = total
	out := make([]byte, outer*total*innerBytes)
	rowBytes := total * innerBytes
	for o := 0; o < outer; o++ {
		dstOff := o * rowBytes
		for _, a := range arrays {
			_, dSize, _ := a.strides(dimIdx)
			n := dSize * innerBytes
			srcOff := o * n
			copy(out[dstOff:dstOff+n], a.Data[srcOff:srcOff+n])
			dstOff += n
		}
	}
	return &Array{DType: first.DType, Shape: newShape, Data: out}, nil
}

// ReplaceAt overwrites the cross-section at index `at` along dimIdx
// (which must have length 1 in repl) in a copy of a, returning the new
// Array; a itself is left unchanged.
func (a *Array) ReplaceAt(dimIdx, at int, repl *Array) (*Array, error) {
	if repl.Shape[dimIdx] != 1 {
		return nil, fmt.Errorf("dataset: replace requires a length-1 slice along dimension %d, got %d", dimIdx, repl.Shape[dimIdx])
	}
	outer, dimSize, innerBytes := a.strides(dimIdx)
	if at < 0 || at >= dimSize {
		return nil, fmt.Errorf("dataset: replace index %d out of range for dimension size %d", at, dimSize)
	}
	out := append([]byte(nil), a.Data...)
	rowBytes := dimSize * innerBytes
	for o := 0; o < outer; o++ {
		dst := o*rowBytes + at*innerBytes
		src := o * innerBytes
		copy(out[dst:dst+innerBytes], repl.Data[src:src+innerBytes])
	}
	return &Array{DType: a.DType, Shape: append([]int(nil), a.Shape...), Data: out}, nil
}

// InsertAt inserts a length-1 cross-section repl before index `at`
// along dimIdx, shifting everything from `at` onward by one.
func (a *Array) InsertAt(dimIdx, at int, repl *Array) (*Array, error) {
	if repl.Shape[dimIdx] != 1 {
		return nil, fmt.Errorf("dataset: insert requires a length-1 slice along dimension %d, got %d", dimIdx, repl.Shape[dimIdx])
	}
	dimSize := a.Shape[dimIdx]
	if at < 0 || at > dimSize {
		return nil, fmt.Errorf("dataset: insert index %d out of range for dimension size %d", at, dimSize)
	}
	head, err := a.SliceDim(dimIdx, 0, at)
	if err != nil {
		return nil, err
	}
	tail, err := a.SliceDim(dimIdx, at, dimSize-at)
	if err != nil {
		return nil, err
	}
	return ConcatDim(dimIdx, head, repl, tail)
}
