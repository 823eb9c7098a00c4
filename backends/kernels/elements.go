// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package kernels holds the host reference kernels that realize the native accelerator kernels
// of the neon and cuda plugins on the simulated device.
//
// Kernels operate on raw little-endian device memory (see device.Pointer.Bytes). Most of them
// compute in float64 through the per-dtype accessors of this file, which is exact for every
// supported dtype except 64-bit integers beyond 2^53. GEMM in f32/f64 goes through gonum's BLAS.
//
// Kernels don't validate their descriptors beyond what is needed to avoid out-of-bounds accesses:
// legality checks belong to the conversion layer.
package kernels

import (
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/internal/workerspool"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/exceptions"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Workers is the pool used by kernels to parallelize their outer loops.
var Workers = workerspool.New()

type (
	getFn func(data []byte, index int) float64
	setFn func(data []byte, index int, value float64)
)

var (
	getters [dtypes.NumDTypes]getFn
	setters [dtypes.NumDTypes]setFn
)

func init() {
	le := binary.LittleEndian
	getters[dtypes.Bool] = func(d []byte, i int) float64 {
		if d[i] != 0 {
			return 1
		}
		return 0
	}
	setters[dtypes.Bool] = func(d []byte, i int, v float64) {
		d[i] = 0
		if v != 0 {
			d[i] = 1
		}
	}
	getters[dtypes.Int8] = func(d []byte, i int) float64 { return float64(int8(d[i])) }
	setters[dtypes.Int8] = func(d []byte, i int, v float64) { d[i] = byte(int8(wrapInt(v, 8))) }
	getters[dtypes.Uint8] = func(d []byte, i int) float64 { return float64(d[i]) }
	setters[dtypes.Uint8] = func(d []byte, i int, v float64) { d[i] = byte(wrapInt(v, 8)) }
	getters[dtypes.Int16] = func(d []byte, i int) float64 { return float64(int16(le.Uint16(d[2*i:]))) }
	setters[dtypes.Int16] = func(d []byte, i int, v float64) { le.PutUint16(d[2*i:], uint16(wrapInt(v, 16))) }
	getters[dtypes.Uint16] = func(d []byte, i int) float64 { return float64(le.Uint16(d[2*i:])) }
	setters[dtypes.Uint16] = setters[dtypes.Int16]
	getters[dtypes.Int32] = func(d []byte, i int) float64 { return float64(int32(le.Uint32(d[4*i:]))) }
	setters[dtypes.Int32] = func(d []byte, i int, v float64) { le.PutUint32(d[4*i:], uint32(wrapInt(v, 32))) }
	getters[dtypes.Uint32] = func(d []byte, i int) float64 { return float64(le.Uint32(d[4*i:])) }
	setters[dtypes.Uint32] = setters[dtypes.Int32]
	getters[dtypes.Int64] = func(d []byte, i int) float64 { return float64(int64(le.Uint64(d[8*i:]))) }
	setters[dtypes.Int64] = func(d []byte, i int, v float64) { le.PutUint64(d[8*i:], uint64(wrapInt(v, 64))) }
	getters[dtypes.Uint64] = func(d []byte, i int) float64 { return float64(le.Uint64(d[8*i:])) }
	setters[dtypes.Uint64] = func(d []byte, i int, v float64) {
		if v >= math.MaxInt64 {
			le.PutUint64(d[8*i:], uint64(v))
			return
		}
		le.PutUint64(d[8*i:], uint64(wrapInt(v, 64)))
	}
	getters[dtypes.Float16] = func(d []byte, i int) float64 {
		return float64(float16.Frombits(le.Uint16(d[2*i:])).Float32())
	}
	setters[dtypes.Float16] = func(d []byte, i int, v float64) {
		le.PutUint16(d[2*i:], float16.Fromfloat32(float32(v)).Bits())
	}
	getters[dtypes.Float32] = func(d []byte, i int) float64 { return float64(math.Float32frombits(le.Uint32(d[4*i:]))) }
	setters[dtypes.Float32] = func(d []byte, i int, v float64) { le.PutUint32(d[4*i:], math.Float32bits(float32(v))) }
	getters[dtypes.Float64] = func(d []byte, i int) float64 { return math.Float64frombits(le.Uint64(d[8*i:])) }
	setters[dtypes.Float64] = func(d []byte, i int, v float64) { le.PutUint64(d[8*i:], math.Float64bits(v)) }
}

// wrapInt truncates v toward zero and wraps it to the given number of bits, the way a C cast of a
// float to an integer type followed by a narrowing integer cast does on common hardware.
// NaN maps to 0.
func wrapInt(v float64, bits int) int64 {
	if math.IsNaN(v) {
		return 0
	}
	if v >= math.MaxInt64 || v <= math.MinInt64 {
		return math.MinInt64
	}
	i := int64(v)
	if bits == 64 {
		return i
	}
	shift := 64 - bits
	return (i << shift) >> shift
}

func accessors(dtype dtypes.DType) (getFn, setFn) {
	if !dtype.IsValid() || getters[dtype] == nil {
		exceptions.Panicf("kernels: dtype %s not supported", dtype)
	}
	return getters[dtype], setters[dtype]
}

// view is a typed window over n elements of device memory.
type view struct {
	data []byte
	get  getFn
	set  setFn
}

func newView(dtype dtypes.DType, ptr device.Pointer, numElements int) view {
	get, set := accessors(dtype)
	return view{data: ptr.Bytes(numElements * dtype.Size()), get: get, set: set}
}

func (v view) At(index int) float64         { return v.get(v.data, index) }
func (v view) Set(index int, value float64) { v.set(v.data, index, value) }

// Load reads numElements values of dtype at ptr, converted to float64.
func Load(dtype dtypes.DType, ptr device.Pointer, numElements int) []float64 {
	v := newView(dtype, ptr, numElements)
	values := make([]float64, numElements)
	for ii := range values {
		values[ii] = v.At(ii)
	}
	return values
}

// Store writes values to ptr converted to dtype. Integer destinations truncate and wrap.
func Store(dtype dtypes.DType, ptr device.Pointer, values []float64) {
	v := newView(dtype, ptr, len(values))
	for ii, value := range values {
		v.Set(ii, value)
	}
}

// saturate clamps value to the representable range of an integer type, rounding to nearest even.
// Float types are returned unchanged.
func saturate(dtype dtypes.DType, value float64) float64 {
	if !dtype.IsInt() {
		return value
	}
	if math.IsNaN(value) {
		return 0
	}
	lo, hi := intRange(dtype)
	return math.Min(math.Max(math.RoundToEven(value), lo), hi)
}

func intRange(dtype dtypes.DType) (lo, hi float64) {
	switch dtype {
	case dtypes.Int8:
		return rangeOf[int8]()
	case dtypes.Int16:
		return rangeOf[int16]()
	case dtypes.Int32:
		return rangeOf[int32]()
	case dtypes.Int64:
		return rangeOf[int64]()
	case dtypes.Uint8:
		return rangeOf[uint8]()
	case dtypes.Uint16:
		return rangeOf[uint16]()
	case dtypes.Uint32:
		return rangeOf[uint32]()
	case dtypes.Uint64:
		return rangeOf[uint64]()
	}
	exceptions.Panicf("intRange(%s): not an integer dtype", dtype)
	return
}

func rangeOf[T constraints.Integer]() (lo, hi float64) {
	var zero T
	minusOne := zero - 1
	if minusOne > zero {
		// Unsigned: all bits set is the max.
		return 0, float64(minusOne)
	}
	bits := 8 * int(unsafe.Sizeof(zero))
	return -math.Ldexp(1, bits-1), math.Ldexp(1, bits-1) - 1
}
