// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package dtypes includes the DType enum for the element types an accelerator backend handles.
//
// The set is fixed: signed and unsigned integers of 8, 16, 32 and 64 bits, IEEE float16/32/64 and
// booleans. Float16 values are represented in Go by github.com/x448/float16.
package dtypes

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// DType is an enum with the element type of a tensor.
type DType int32

const (
	// InvalidDType is the zero value, used for unset fields.
	InvalidDType DType = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float16
	Float32
	Float64

	// lastDType is used to size tables indexed by DType.
	lastDType
)

// NumDTypes is the number of valid DType values plus one (InvalidDType), to size dispatch tables.
const NumDTypes = int(lastDType)

// Aliases.
const (
	I8  = Int8
	I16 = Int16
	I32 = Int32
	I64 = Int64
	U8  = Uint8
	U16 = Uint16
	U32 = Uint32
	U64 = Uint64
	F16 = Float16
	F32 = Float32
	F64 = Float64
)

var dtypeNames = [NumDTypes]string{
	InvalidDType: "InvalidDType",
	Bool:         "Bool",
	Int8:         "Int8",
	Int16:        "Int16",
	Int32:        "Int32",
	Int64:        "Int64",
	Uint8:        "Uint8",
	Uint16:       "Uint16",
	Uint32:       "Uint32",
	Uint64:       "Uint64",
	Float16:      "Float16",
	Float32:      "Float32",
	Float64:      "Float64",
}

var dtypeSizes = [NumDTypes]int{
	Bool:    1,
	Int8:    1,
	Int16:   2,
	Int32:   4,
	Int64:   8,
	Uint8:   1,
	Uint16:  2,
	Uint32:  4,
	Uint64:  8,
	Float16: 2,
	Float32: 4,
	Float64: 8,
}

// MapOfNames maps names (long, short and lower-case variations) to DType values.
// It is used when parsing graphs and configuration files.
var MapOfNames = map[string]DType{
	"bool": Bool, "boolean": Bool,
	"i8": Int8, "i16": Int16, "i32": Int32, "i64": Int64,
	"u8": Uint8, "u16": Uint16, "u32": Uint32, "u64": Uint64,
	"f16": Float16, "f32": Float32, "f64": Float64,
}

func init() {
	for dtype := Bool; dtype < lastDType; dtype++ {
		MapOfNames[dtypeNames[dtype]] = dtype
	}
	keys := slices.Collect(maps.Keys(MapOfNames))
	for _, key := range keys {
		lowerKey := strings.ToLower(key)
		if _, found := MapOfNames[lowerKey]; !found {
			MapOfNames[lowerKey] = MapOfNames[key]
		}
	}
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if dtype < InvalidDType || dtype >= lastDType {
		return fmt.Sprintf("DType(%d)", int(dtype))
	}
	return dtypeNames[dtype]
}

// Parse returns the DType for the given name, accepting long ("Float32"), short ("f32") and lower-case forms.
func Parse(name string) (DType, error) {
	dtype, found := MapOfNames[name]
	if !found {
		dtype, found = MapOfNames[strings.ToLower(name)]
	}
	if !found {
		return InvalidDType, errors.Errorf("unknown dtype %q", name)
	}
	return dtype, nil
}

// IsValid returns whether dtype is one of the enumerated element types.
func (dtype DType) IsValid() bool {
	return dtype > InvalidDType && dtype < lastDType
}

// Size returns the number of bytes of one element. It panics for invalid dtypes.
func (dtype DType) Size() int {
	if !dtype.IsValid() {
		exceptions.Panicf("DType.Size() called for invalid dtype %d", int(dtype))
	}
	return dtypeSizes[dtype]
}

// SizeForDimensions returns the number of bytes of an array of the given dimensions.
func (dtype DType) SizeForDimensions(dimensions ...int) int {
	size := dtype.Size()
	for _, dim := range dimensions {
		size *= dim
	}
	return size
}

// IsFloat returns whether dtype is a floating-point type.
func (dtype DType) IsFloat() bool {
	return dtype == Float16 || dtype == Float32 || dtype == Float64
}

// IsInt returns whether dtype is a signed or unsigned integer type.
func (dtype DType) IsInt() bool {
	return dtype.IsSigned() || dtype.IsUnsigned()
}

// IsSigned returns whether dtype is a signed integer.
func (dtype DType) IsSigned() bool {
	return dtype >= Int8 && dtype <= Int64
}

// IsUnsigned returns whether dtype is an unsigned integer.
func (dtype DType) IsUnsigned() bool {
	return dtype >= Uint8 && dtype <= Uint64
}

// ShortName returns the compact name used in graph files ("f32", "u8", ...).
func (dtype DType) ShortName() string {
	switch dtype {
	case Bool:
		return "bool"
	case Float16, Float32, Float64:
		return "f" + strconv.Itoa(8*dtype.Size())
	}
	if dtype.IsSigned() {
		return "i" + strconv.Itoa(8*dtype.Size())
	} else if dtype.IsUnsigned() {
		return "u" + strconv.Itoa(8*dtype.Size())
	}
	return dtype.String()
}

// Values returns all valid DType values, in enum order.
func Values() []DType {
	values := make([]DType, 0, NumDTypes-1)
	for dtype := Bool; dtype < lastDType; dtype++ {
		values = append(values, dtype)
	}
	return values
}

// Supported lists the Go types that map to a DType.
type Supported interface {
	bool | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float16.Float16 | float32 | float64
}

// FromGenericsType returns the DType for the generic Go type T.
func FromGenericsType[T Supported]() DType {
	var t T
	switch any(t).(type) {
	case bool:
		return Bool
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float16.Float16:
		return Float16
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return InvalidDType
}

// FromAny returns the DType of the given Go value, or InvalidDType if it's not a supported type.
func FromAny(value any) DType {
	switch value.(type) {
	case bool:
		return Bool
	case int8:
		return Int8
	case int16:
		return Int16
	case int32:
		return Int32
	case int64:
		return Int64
	case uint8:
		return Uint8
	case uint16:
		return Uint16
	case uint32:
		return Uint32
	case uint64:
		return Uint64
	case float16.Float16:
		return Float16
	case float32:
		return Float32
	case float64:
		return Float64
	}
	return InvalidDType
}
