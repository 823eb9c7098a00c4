// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"encoding/binary"
	"math"

	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/exceptions"
	"github.com/x448/float16"
)

// EncodeFloat64s converts values to dtype and returns their little-endian encoding.
// Conversions follow Go's conversion rules; booleans are true for non-zero values.
func EncodeFloat64s(dtype dtypes.DType, values []float64) []byte {
	size := dtype.Size()
	data := make([]byte, size*len(values))
	for ii, v := range values {
		raw := data[ii*size : (ii+1)*size]
		switch dtype {
		case dtypes.Bool:
			if v != 0 {
				raw[0] = 1
			}
		case dtypes.Int8:
			raw[0] = byte(int8(v))
		case dtypes.Uint8:
			raw[0] = uint8(v)
		case dtypes.Int16:
			binary.LittleEndian.PutUint16(raw, uint16(int16(v)))
		case dtypes.Uint16:
			binary.LittleEndian.PutUint16(raw, uint16(v))
		case dtypes.Int32:
			binary.LittleEndian.PutUint32(raw, uint32(int32(v)))
		case dtypes.Uint32:
			binary.LittleEndian.PutUint32(raw, uint32(v))
		case dtypes.Int64:
			binary.LittleEndian.PutUint64(raw, uint64(int64(v)))
		case dtypes.Uint64:
			binary.LittleEndian.PutUint64(raw, uint64(v))
		case dtypes.Float16:
			binary.LittleEndian.PutUint16(raw, float16.Fromfloat32(float32(v)).Bits())
		case dtypes.Float32:
			binary.LittleEndian.PutUint32(raw, math.Float32bits(float32(v)))
		case dtypes.Float64:
			binary.LittleEndian.PutUint64(raw, math.Float64bits(v))
		default:
			exceptions.Panicf("EncodeFloat64s: invalid dtype %s", dtype)
		}
	}
	return data
}

// DecodeFloat64s is the inverse of EncodeFloat64s.
func DecodeFloat64s(dtype dtypes.DType, data []byte) []float64 {
	size := dtype.Size()
	values := make([]float64, len(data)/size)
	for ii := range values {
		raw := data[ii*size : (ii+1)*size]
		switch dtype {
		case dtypes.Bool:
			if raw[0] != 0 {
				values[ii] = 1
			}
		case dtypes.Int8:
			values[ii] = float64(int8(raw[0]))
		case dtypes.Uint8:
			values[ii] = float64(raw[0])
		case dtypes.Int16:
			values[ii] = float64(int16(binary.LittleEndian.Uint16(raw)))
		case dtypes.Uint16:
			values[ii] = float64(binary.LittleEndian.Uint16(raw))
		case dtypes.Int32:
			values[ii] = float64(int32(binary.LittleEndian.Uint32(raw)))
		case dtypes.Uint32:
			values[ii] = float64(binary.LittleEndian.Uint32(raw))
		case dtypes.Int64:
			values[ii] = float64(int64(binary.LittleEndian.Uint64(raw)))
		case dtypes.Uint64:
			values[ii] = float64(binary.LittleEndian.Uint64(raw))
		case dtypes.Float16:
			values[ii] = float64(float16.Frombits(binary.LittleEndian.Uint16(raw)).Float32())
		case dtypes.Float32:
			values[ii] = float64(math.Float32frombits(binary.LittleEndian.Uint32(raw)))
		case dtypes.Float64:
			values[ii] = math.Float64frombits(binary.LittleEndian.Uint64(raw))
		default:
			exceptions.Panicf("DecodeFloat64s: invalid dtype %s", dtype)
		}
	}
	return values
}
