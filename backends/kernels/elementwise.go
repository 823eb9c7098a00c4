// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"math"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/gomlx/exceptions"
)

var binaryFns = map[ir.OpType]func(a, b float64) float64{
	ir.OpTypeAdd:      func(a, b float64) float64 { return a + b },
	ir.OpTypeSubtract: func(a, b float64) float64 { return a - b },
	ir.OpTypeMultiply: func(a, b float64) float64 { return a * b },
	ir.OpTypeDivide:   func(a, b float64) float64 { return a / b },
	ir.OpTypeMaximum:  math.Max,
	ir.OpTypeMinimum:  math.Min,
	ir.OpTypePower:    math.Pow,
	ir.OpTypeLess:     func(a, b float64) float64 { return boolToFloat(a < b) },
	ir.OpTypeGreater:  func(a, b float64) float64 { return boolToFloat(a > b) },
	ir.OpTypeEqual:    func(a, b float64) float64 { return boolToFloat(a == b) },
}

var unaryFns = map[ir.OpType]func(x float64) float64{
	ir.OpTypeAbs:      math.Abs,
	ir.OpTypeFloor:    math.Floor,
	ir.OpTypeCeiling:  math.Ceil,
	ir.OpTypeSqrt:     math.Sqrt,
	ir.OpTypeExp:      math.Exp,
	ir.OpTypeNegative: func(x float64) float64 { return -x },
	ir.OpTypeRound:    math.RoundToEven,
	ir.OpTypeSign: func(x float64) float64 {
		switch {
		case x > 0:
			return 1
		case x < 0:
			return -1
		}
		return x
	},
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// SupportedBinary returns whether op is implemented by Binary.
func SupportedBinary(op ir.OpType) bool {
	_, found := binaryFns[op]
	return found
}

// SupportedUnary returns whether op is implemented by Unary. OpTypeRound rounds half to even.
func SupportedUnary(op ir.OpType) bool {
	_, found := unaryFns[op]
	return found
}

// broadcastStrides returns the element strides of input when iterating over output, with 0 for
// broadcast axes. input is right-aligned to output.
func broadcastStrides(input, output shapes.Shape) []int {
	strides := make([]int, output.Rank())
	inputStrides := input.Strides()
	offset := output.Rank() - input.Rank()
	for axis := range output.Rank() {
		inAxis := axis - offset
		if inAxis < 0 || input.Dimensions[inAxis] == 1 {
			continue
		}
		strides[axis] = inputStrides[inAxis]
	}
	return strides
}

// broadcastIter calls fn for every flat index of output with the matching flat indices of the
// broadcast inputs.
func broadcastIter(output shapes.Shape, inputs []shapes.Shape, fn func(outIdx int, inIdx []int)) {
	size := output.Size()
	if size == 0 {
		return
	}
	strides := make([][]int, len(inputs))
	for ii, input := range inputs {
		strides[ii] = broadcastStrides(input, output)
	}
	rank := output.Rank()
	counter := make([]int, rank)
	inIdx := make([]int, len(inputs))
	for outIdx := range size {
		fn(outIdx, inIdx)
		// Increment counter from the last axis, updating input indices incrementally.
		for axis := rank - 1; axis >= 0; axis-- {
			counter[axis]++
			for ii := range inputs {
				inIdx[ii] += strides[ii][axis]
			}
			if counter[axis] < output.Dimensions[axis] {
				break
			}
			for ii := range inputs {
				inIdx[ii] -= strides[ii][axis] * counter[axis]
			}
			counter[axis] = 0
		}
	}
}

// Binary computes out = op(a, b) with numpy broadcasting. out's dtype is Bool for comparisons.
func Binary(op ir.OpType, aShape, bShape, outShape shapes.Shape, a, b, out device.Pointer) {
	fn, found := binaryFns[op]
	if !found {
		exceptions.Panicf("kernels.Binary: op %s not implemented", op)
	}
	va, vb := newView(aShape.DType, a, aShape.Size()), newView(bShape.DType, b, bShape.Size())
	vout := newView(outShape.DType, out, outShape.Size())
	broadcastIter(outShape, []shapes.Shape{aShape, bShape}, func(outIdx int, inIdx []int) {
		vout.Set(outIdx, fn(va.At(inIdx[0]), vb.At(inIdx[1])))
	})
}

// Unary computes out = op(src) elementwise over a tensor of the given shape.
func Unary(op ir.OpType, shape shapes.Shape, src, dst device.Pointer) {
	fn, found := unaryFns[op]
	if !found {
		exceptions.Panicf("kernels.Unary: op %s not implemented", op)
	}
	numElements := shape.Size()
	in, out := newView(shape.DType, src, numElements), newView(shape.DType, dst, numElements)
	Workers.ParallelFor(numElements, minElementsPerTask, func(start, end int) {
		for ii := start; ii < end; ii++ {
			out.Set(ii, fn(in.At(ii)))
		}
	})
}

// Select computes out = cond ? onTrue : onFalse with numpy broadcasting. cond is Bool.
func Select(condShape, trueShape, falseShape, outShape shapes.Shape, cond, onTrue, onFalse, out device.Pointer) {
	vc := newView(condShape.DType, cond, condShape.Size())
	vt := newView(trueShape.DType, onTrue, trueShape.Size())
	vf := newView(falseShape.DType, onFalse, falseShape.Size())
	vout := newView(outShape.DType, out, outShape.Size())
	broadcastIter(outShape, []shapes.Shape{condShape, trueShape, falseShape}, func(outIdx int, inIdx []int) {
		if vc.At(inIdx[0]) != 0 {
			vout.Set(outIdx, vt.At(inIdx[1]))
		} else {
			vout.Set(outIdx, vf.At(inIdx[2]))
		}
	})
}
