package dataset

import (
	"encoding/binary"
	"math"
)

// putScalar writes v into buf (which must have at least dtype.ElemSize()
// bytes available) encoded as dtype, little-endian.
func putScalar(buf []byte, dtype DType, v float64) {
	switch dtype {
	case Int16:
		binary.LittleEndian.PutUint16(buf, uint16(int16(v)))
	case UInt16:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case Int32:
		binary.LittleEndian.PutUint32(buf, uint32(int32(v)))
	case UInt32:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	case Float32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
	case Float64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	default:
		if len(buf) > 0 {
			buf[0] = byte(v)
		}
	}
}

// Scalar reads the scalar at index i (row-major, flat) out of a as a
// float64, regardless of its underlying dtype.
func (a *Array) Scalar(i int) float64 {
	sz := a.DType.ElemSize()
	buf := a.Data[i*sz : i*sz+sz]
	switch a.DType {
	case Int16:
		return float64(int16(binary.LittleEndian.Uint16(buf)))
	case UInt16:
		return float64(binary.LittleEndian.Uint16(buf))
	case Int32:
		return float64(int32(binary.LittleEndian.Uint32(buf)))
	case UInt32:
		return float64(binary.LittleEndian.Uint32(buf))
	case Float32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(buf)))
	case Float64:
		return math.Float64frombits(binary.LittleEndian.Uint64(buf))
	default:
		return float64(buf[0])
	}
}

// Len returns the flat element count of a.
func (a *Array) Len() int {
	return elemCount(a.Shape)
}

// EncodeFloat64 packs vals as little-endian float64 bytes, the raw
// backing store for a Float64 Array.
func EncodeFloat64(vals []float64) []byte {
	out := make([]byte, len(vals)*8)
	for i, v := range vals {
		putScalar(out[i*8:], Float64, v)
	}
	return out
}
