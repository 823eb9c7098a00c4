// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"encoding/binary"
	"slices"

	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/x448/float16"
)

// The builder methods below panic (with exceptions.Panicf) on malformed inputs: building a graph
// with inconsistent shapes is a bug of the caller.

func must(shape shapes.Shape, err error) shapes.Shape {
	if err != nil {
		exceptions.Panicf("%+v", err)
	}
	return shape
}

// Parameter creates a graph input.
func (g *Graph) Parameter(name string, shape shapes.Shape) Value {
	return g.addNode(OpTypeParameter, name, nil, nil, shape.Clone()).Output(0)
}

// Constant creates a constant from its raw little-endian payload.
func (g *Graph) Constant(name string, shape shapes.Shape, data []byte) Value {
	if len(data) != shape.ByteSize() {
		exceptions.Panicf("Constant(%q): shape %s requires %d bytes, got %d", name, shape, shape.ByteSize(), len(data))
	}
	node := g.addNode(OpTypeConstant, name, nil, nil, shape.Clone())
	node.Data = slices.Clone(data)
	return node.Output(0)
}

// ConstantOf creates a constant with the given dimensions and values.
func ConstantOf[T dtypes.Supported](g *Graph, name string, dimensions []int, values ...T) Value {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if shape.Size() != len(values) {
		exceptions.Panicf("ConstantOf(%q): shape %s requires %d values, got %d", name, shape, shape.Size(), len(values))
	}
	data, err := binary.Append(nil, binary.LittleEndian, values)
	if err != nil {
		exceptions.Panicf("ConstantOf(%q): %+v", name, err)
	}
	return g.Constant(name, shape, data)
}

// ScalarConstant creates a rank-0 constant of the given dtype holding value.
func ScalarConstant(g *Graph, name string, dtype dtypes.DType, value float64) Value {
	switch dtype {
	case dtypes.Float16:
		return ConstantOf(g, name, nil, float16.Fromfloat32(float32(value)))
	case dtypes.Float32:
		return ConstantOf(g, name, nil, float32(value))
	case dtypes.Float64:
		return ConstantOf(g, name, nil, value)
	case dtypes.Int8:
		return ConstantOf(g, name, nil, int8(value))
	case dtypes.Int16:
		return ConstantOf(g, name, nil, int16(value))
	case dtypes.Int32:
		return ConstantOf(g, name, nil, int32(value))
	case dtypes.Int64:
		return ConstantOf(g, name, nil, int64(value))
	case dtypes.Uint8:
		return ConstantOf(g, name, nil, uint8(value))
	case dtypes.Uint16:
		return ConstantOf(g, name, nil, uint16(value))
	case dtypes.Uint32:
		return ConstantOf(g, name, nil, uint32(value))
	case dtypes.Uint64:
		return ConstantOf(g, name, nil, uint64(value))
	case dtypes.Bool:
		return ConstantOf(g, name, nil, value != 0)
	}
	exceptions.Panicf("ScalarConstant(%q): invalid dtype %s", name, dtype)
	return Value{}
}

// Result marks value as a graph output.
func (g *Graph) Result(name string, value Value) *Node {
	return g.addNode(OpTypeResult, name, nil, []Value{value}, value.Shape().Clone())
}

// Convolution creates a 2D NCHW convolution with weights [O, I, kh, kw] and an optional bias
// broadcastable to [1, O, 1, 1].
func (g *Graph) Convolution(name string, attrs ConvolutionAttrs, input, weights Value, bias ...Value) Value {
	return g.convolution(OpTypeConvolution, name, attrs, input, weights, bias)
}

// GroupConvolution creates a grouped 2D NCHW convolution with weights [G, O/G, I/G, kh, kw].
func (g *Graph) GroupConvolution(name string, attrs ConvolutionAttrs, input, weights Value, bias ...Value) Value {
	return g.convolution(OpTypeGroupConvolution, name, attrs, input, weights, bias)
}

func (g *Graph) convolution(op OpType, name string, attrs ConvolutionAttrs, input, weights Value, bias []Value) Value {
	if len(bias) > 1 {
		exceptions.Panicf("%s(%q): at most one bias, got %d", op, name, len(bias))
	}
	attrs = cloneConvAttrs(attrs)
	output := must(convolutionShape(&attrs, input.Shape(), weights.Shape(), op == OpTypeGroupConvolution))
	inputs := append([]Value{input, weights}, bias...)
	return g.addNode(op, name, &attrs, inputs, output).Output(0)
}

func cloneConvAttrs(attrs ConvolutionAttrs) ConvolutionAttrs {
	attrs.Strides = slices.Clone(attrs.Strides)
	attrs.Dilations = slices.Clone(attrs.Dilations)
	attrs.PadsBegin = slices.Clone(attrs.PadsBegin)
	attrs.PadsEnd = slices.Clone(attrs.PadsEnd)
	return attrs
}

// Convert casts input to dtype.
func (g *Graph) Convert(name string, input Value, dtype dtypes.DType) Value {
	if !dtype.IsValid() {
		exceptions.Panicf("Convert(%q): invalid dtype %s", name, dtype)
	}
	return g.addNode(OpTypeConvert, name, &ConvertAttrs{DType: dtype}, []Value{input}, input.Shape().WithDType(dtype)).Output(0)
}

// Interpolate resizes input to attrs.Sizes.
func (g *Graph) Interpolate(name string, attrs InterpolateAttrs, input Value) Value {
	shape := input.Shape()
	if len(attrs.Sizes) != shape.Rank() {
		exceptions.Panicf("Interpolate(%q): sizes %v must have the rank of the input %s", name, attrs.Sizes, shape)
	}
	attrs.Sizes = slices.Clone(attrs.Sizes)
	attrs.PadsBegin = slices.Clone(attrs.PadsBegin)
	attrs.PadsEnd = slices.Clone(attrs.PadsEnd)
	if attrs.Mode == "" {
		attrs.Mode = InterpolateNearest
	}
	if attrs.CoordinateTransform == "" {
		attrs.CoordinateTransform = CoordHalfPixel
	}
	if attrs.NearestMode == "" {
		attrs.NearestMode = NearestRoundPreferFloor
	}
	if attrs.CubeCoeff == 0 {
		attrs.CubeCoeff = -0.75
	}
	return g.addNode(OpTypeInterpolate, name, &attrs, []Value{input}, shapes.Make(shape.DType, attrs.Sizes...)).Output(0)
}

// Round rounds input to the nearest integer, breaking ties with mode.
func (g *Graph) Round(name string, input Value, mode RoundMode) Value {
	return g.addNode(OpTypeRound, name, &RoundAttrs{Mode: mode}, []Value{input}, input.Shape().Clone()).Output(0)
}

// Concat concatenates inputs along axis. Negative axes count from the end.
func (g *Graph) Concat(name string, axis int, inputs ...Value) Value {
	inputShapes := make([]shapes.Shape, len(inputs))
	for ii, input := range inputs {
		inputShapes[ii] = input.Shape()
	}
	output, axis, err := concatShape(axis, inputShapes)
	must(output, err)
	return g.addNode(OpTypeConcat, name, &ConcatAttrs{Axis: axis}, inputs, output).Output(0)
}

// MatMul multiplies a and b, with optional transposition of the last two axes of each.
func (g *Graph) MatMul(name string, a, b Value, transposeA, transposeB bool) Value {
	output := must(MatMulShape(a.Shape(), b.Shape(), transposeA, transposeB))
	attrs := &MatMulAttrs{TransposeA: transposeA, TransposeB: transposeB}
	return g.addNode(OpTypeMatMul, name, attrs, []Value{a, b}, output).Output(0)
}

// Transpose permutes the axes of input. The permutation, if given, must be a Constant; with no
// permutation the axes are reversed.
func (g *Graph) Transpose(name string, input Value, permutation ...Value) Value {
	if len(permutation) > 1 {
		exceptions.Panicf("Transpose(%q): at most one permutation input", name)
	}
	var axes []int
	if len(permutation) == 1 {
		var err error
		axes, err = ConstantInts(permutation[0].Node)
		if err != nil {
			exceptions.Panicf("Transpose(%q): use TransposeDynamic for runtime permutations: %+v", name, err)
		}
	}
	output := must(transposeShape(input.Shape(), axes))
	return g.addNode(OpTypeTranspose, name, nil, append([]Value{input}, permutation...), output).Output(0)
}

// TransposeDynamic permutes the axes of input by a permutation only known at runtime.
// The output shape must be given by the caller.
func (g *Graph) TransposeDynamic(name string, input, permutation Value, output shapes.Shape) Value {
	if output.DType != input.Shape().DType || output.Size() != input.Shape().Size() {
		exceptions.Panicf("TransposeDynamic(%q): output %s incompatible with input %s", name, output, input.Shape())
	}
	if permutation.Shape().Rank() != 1 || permutation.Shape().Size() != input.Shape().Rank() || !permutation.Shape().DType.IsInt() {
		exceptions.Panicf("TransposeDynamic(%q): permutation %s must be an integer vector of length %d",
			name, permutation.Shape(), input.Shape().Rank())
	}
	return g.addNode(OpTypeTranspose, name, nil, []Value{input, permutation}, output.Clone()).Output(0)
}

// Reshape changes the dimensions of input, keeping its elements.
func (g *Graph) Reshape(name string, input Value, dimensions ...int) Value {
	output := shapes.Make(input.Shape().DType, dimensions...)
	if output.Size() != input.Shape().Size() {
		exceptions.Panicf("Reshape(%q): %s can't be reshaped to %v", name, input.Shape(), dimensions)
	}
	return g.addNode(OpTypeReshape, name, nil, []Value{input}, output).Output(0)
}

// Select returns onTrue where cond is true, onFalse elsewhere, with broadcasting.
func (g *Graph) Select(name string, cond, onTrue, onFalse Value) Value {
	if cond.Shape().DType != dtypes.Bool {
		exceptions.Panicf("Select(%q): condition must be Bool, got %s", name, cond.Shape())
	}
	output := must(binaryOpShape(OpTypeSelect, onTrue.Shape(), onFalse.Shape()))
	output = must(BroadcastShapes(output, cond.Shape()))
	output.DType = onTrue.Shape().DType
	return g.addNode(OpTypeSelect, name, nil, []Value{cond, onTrue, onFalse}, output).Output(0)
}

// Binary creates an elementwise binary op with numpy broadcasting.
func (g *Graph) Binary(op OpType, name string, a, b Value) Value {
	if !op.IsBinary() {
		exceptions.Panicf("Binary(%q): %s is not a binary op", name, op)
	}
	return g.addNode(op, name, nil, []Value{a, b}, must(binaryOpShape(op, a.Shape(), b.Shape()))).Output(0)
}

// Add returns a+b.
func (g *Graph) Add(name string, a, b Value) Value { return g.Binary(OpTypeAdd, name, a, b) }

// Multiply returns a*b.
func (g *Graph) Multiply(name string, a, b Value) Value { return g.Binary(OpTypeMultiply, name, a, b) }

// Subtract returns a-b.
func (g *Graph) Subtract(name string, a, b Value) Value { return g.Binary(OpTypeSubtract, name, a, b) }

// Less returns a<b, as Bool.
func (g *Graph) Less(name string, a, b Value) Value { return g.Binary(OpTypeLess, name, a, b) }

// Unary creates an elementwise unary op (math or activation without attributes).
func (g *Graph) Unary(op OpType, name string, input Value) Value {
	if !op.IsUnary() && !op.IsActivation() {
		exceptions.Panicf("Unary(%q): %s is not a unary op", name, op)
	}
	if attrs := newAttrs(op); attrs != nil {
		exceptions.Panicf("Unary(%q): %s requires attributes, use Activation", name, op)
	}
	return g.addNode(op, name, nil, []Value{input}, input.Shape().Clone()).Output(0)
}

// Activation creates an activation op with its attributes (e.g. *ClampAttrs for OpTypeClamp).
func (g *Graph) Activation(op OpType, name string, attrs any, input Value) Value {
	if !op.IsActivation() {
		exceptions.Panicf("Activation(%q): %s is not an activation", name, op)
	}
	if want := newAttrs(op); (want == nil) != (attrs == nil) {
		exceptions.Panicf("Activation(%q): attributes %T don't match %s", name, attrs, op)
	}
	return g.addNode(op, name, attrs, []Value{input}, input.Shape().Clone()).Output(0)
}

// Clamp bounds input to [min, max].
func (g *Graph) Clamp(name string, input Value, minValue, maxValue float64) Value {
	return g.Activation(OpTypeClamp, name, &ClampAttrs{Min: minValue, Max: maxValue}, input)
}
