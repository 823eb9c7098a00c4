// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"slices"

	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/pkg/errors"
)

// BroadcastShapes returns the numpy-style broadcast of the dimensions of a and b.
// DType of the result is the dtype of a.
func BroadcastShapes(a, b shapes.Shape) (shapes.Shape, error) {
	rank := max(a.Rank(), b.Rank())
	dims := make([]int, rank)
	for ii := range rank {
		dimA, dimB := 1, 1
		if axis := ii - (rank - a.Rank()); axis >= 0 {
			dimA = a.Dimensions[axis]
		}
		if axis := ii - (rank - b.Rank()); axis >= 0 {
			dimB = b.Dimensions[axis]
		}
		switch {
		case dimA == dimB:
			dims[ii] = dimA
		case dimA == 1:
			dims[ii] = dimB
		case dimB == 1:
			dims[ii] = dimA
		default:
			return shapes.Invalid(), errors.Errorf("shapes %s and %s are not broadcastable", a, b)
		}
	}
	return shapes.Make(a.DType, dims...), nil
}

func binaryOpShape(op OpType, a, b shapes.Shape) (shapes.Shape, error) {
	if a.DType != b.DType {
		return shapes.Invalid(), errors.Errorf("%s: operands have different dtypes %s and %s", op, a.DType, b.DType)
	}
	output, err := BroadcastShapes(a, b)
	if err != nil {
		return output, errors.WithMessagef(err, "%s", op)
	}
	if op.IsComparison() {
		output.DType = dtypes.Bool
	}
	return output, nil
}

// normalizeConvAttrs fills defaults and resolves automatic paddings into explicit ones.
func normalizeConvAttrs(attrs *ConvolutionAttrs, input, kernel []int) error {
	const numSpatial = 2
	fill := func(values []int, def int) []int {
		if len(values) == 0 {
			values = make([]int, numSpatial)
			for ii := range values {
				values[ii] = def
			}
		}
		return values
	}
	attrs.Strides = fill(attrs.Strides, 1)
	attrs.Dilations = fill(attrs.Dilations, 1)
	attrs.PadsBegin = fill(attrs.PadsBegin, 0)
	attrs.PadsEnd = fill(attrs.PadsEnd, 0)
	for _, values := range [][]int{attrs.Strides, attrs.Dilations, attrs.PadsBegin, attrs.PadsEnd} {
		if len(values) != numSpatial {
			return errors.Errorf("convolution attributes must have %d spatial values, got %v", numSpatial, values)
		}
	}
	if attrs.AutoPad == "" {
		attrs.AutoPad = PadExplicit
	}
	for axis := range numSpatial {
		if attrs.Strides[axis] <= 0 || attrs.Dilations[axis] <= 0 {
			return errors.Errorf("convolution strides %v and dilations %v must be positive", attrs.Strides, attrs.Dilations)
		}
		effectiveKernel := (kernel[axis]-1)*attrs.Dilations[axis] + 1
		switch attrs.AutoPad {
		case PadExplicit:
		case PadValid:
			attrs.PadsBegin[axis], attrs.PadsEnd[axis] = 0, 0
		case PadSameUpper, PadSameLower:
			output := (input[axis] + attrs.Strides[axis] - 1) / attrs.Strides[axis]
			total := max(0, (output-1)*attrs.Strides[axis]+effectiveKernel-input[axis])
			small, large := total/2, total-total/2
			if attrs.AutoPad == PadSameUpper {
				attrs.PadsBegin[axis], attrs.PadsEnd[axis] = small, large
			} else {
				attrs.PadsBegin[axis], attrs.PadsEnd[axis] = large, small
			}
		default:
			return errors.Errorf("unknown auto_pad %q", attrs.AutoPad)
		}
	}
	return nil
}

// ConvOutputDim returns the output extent of one spatial axis, rounding down.
func ConvOutputDim(input, kernel, stride, dilation, padBegin, padEnd int) int {
	effectiveKernel := (kernel-1)*dilation + 1
	return (input+padBegin+padEnd-effectiveKernel)/stride + 1
}

func convolutionShape(attrs *ConvolutionAttrs, input, weights shapes.Shape, grouped bool) (shapes.Shape, error) {
	if input.Rank() != 4 {
		return shapes.Invalid(), errors.Errorf("convolution input must be rank 4 (NCHW), got %s", input)
	}
	if input.DType != weights.DType {
		return shapes.Invalid(), errors.Errorf("convolution input %s and weights %s have different dtypes", input, weights)
	}
	var outChannels, inChannels, kernelH, kernelW int
	if grouped {
		if weights.Rank() != 5 {
			return shapes.Invalid(), errors.Errorf("group convolution weights must be rank 5 [G, O, I, kh, kw], got %s", weights)
		}
		groups := weights.Dimensions[0]
		outChannels = groups * weights.Dimensions[1]
		inChannels = groups * weights.Dimensions[2]
		kernelH, kernelW = weights.Dimensions[3], weights.Dimensions[4]
	} else {
		if weights.Rank() != 4 {
			return shapes.Invalid(), errors.Errorf("convolution weights must be rank 4 [O, I, kh, kw], got %s", weights)
		}
		outChannels, inChannels = weights.Dimensions[0], weights.Dimensions[1]
		kernelH, kernelW = weights.Dimensions[2], weights.Dimensions[3]
	}
	if inChannels != input.Dimensions[1] {
		return shapes.Invalid(), errors.Errorf("convolution input %s has %d channels, weights %s expect %d",
			input, input.Dimensions[1], weights, inChannels)
	}
	spatial := input.Dimensions[2:]
	kernel := []int{kernelH, kernelW}
	if err := normalizeConvAttrs(attrs, spatial, kernel); err != nil {
		return shapes.Invalid(), err
	}
	dims := []int{input.Dimensions[0], outChannels, 0, 0}
	for axis := range 2 {
		dims[2+axis] = ConvOutputDim(spatial[axis], kernel[axis], attrs.Strides[axis], attrs.Dilations[axis],
			attrs.PadsBegin[axis], attrs.PadsEnd[axis])
		if dims[2+axis] <= 0 {
			return shapes.Invalid(), errors.Errorf("convolution of %s with kernel %s yields empty output", input, weights)
		}
	}
	return shapes.Make(input.DType, dims...), nil
}

// MatMulShape returns the output shape of a MatMul, following the IR broadcasting rules:
// 1D operands are promoted to matrices ([1, K] on the left, [K, 1] on the right), their
// transpose flags are ignored, and the added axes are removed from the output.
func MatMulShape(a, b shapes.Shape, transposeA, transposeB bool) (shapes.Shape, error) {
	if a.DType != b.DType {
		return shapes.Invalid(), errors.Errorf("MatMul operands have different dtypes: %s and %s", a, b)
	}
	if a.Rank() == 0 || b.Rank() == 0 {
		return shapes.Invalid(), errors.Errorf("MatMul operands can't be scalars: %s and %s", a, b)
	}
	dimsA, dimsB := slices.Clone(a.Dimensions), slices.Clone(b.Dimensions)
	vectorA, vectorB := len(dimsA) == 1, len(dimsB) == 1
	if vectorA {
		dimsA = []int{1, dimsA[0]}
		transposeA = false
	}
	if vectorB {
		dimsB = []int{dimsB[0], 1}
		transposeB = false
	}
	rowsA, colsA := dimsA[len(dimsA)-2], dimsA[len(dimsA)-1]
	if transposeA {
		rowsA, colsA = colsA, rowsA
	}
	rowsB, colsB := dimsB[len(dimsB)-2], dimsB[len(dimsB)-1]
	if transposeB {
		rowsB, colsB = colsB, rowsB
	}
	if colsA != rowsB {
		return shapes.Invalid(), errors.Errorf("MatMul contracting dimensions don't match: %s x %s (transposeA=%v, transposeB=%v)",
			a, b, transposeA, transposeB)
	}
	batchA := shapes.Make(a.DType, dimsA[:len(dimsA)-2]...)
	batchB := shapes.Make(b.DType, dimsB[:len(dimsB)-2]...)
	batch, err := BroadcastShapes(batchA, batchB)
	if err != nil {
		return shapes.Invalid(), errors.WithMessagef(err, "MatMul batch dimensions")
	}
	dims := append(batch.Dimensions, rowsA, colsB)
	if vectorB {
		dims = slices.Delete(dims, len(dims)-1, len(dims))
	}
	if vectorA {
		rowsAxis := len(dims) - 2
		if vectorB {
			rowsAxis = len(dims) - 1
		}
		dims = slices.Delete(dims, rowsAxis, rowsAxis+1)
	}
	return shapes.Make(a.DType, dims...), nil
}

func concatShape(axis int, inputs []shapes.Shape) (shapes.Shape, int, error) {
	if len(inputs) == 0 {
		return shapes.Invalid(), 0, errors.New("Concat requires at least one input")
	}
	first := inputs[0]
	if axis < 0 {
		axis += first.Rank()
	}
	if axis < 0 || axis >= first.Rank() {
		return shapes.Invalid(), 0, errors.Errorf("Concat axis %d out of range for %s", axis, first)
	}
	dims := slices.Clone(first.Dimensions)
	for _, input := range inputs[1:] {
		if input.DType != first.DType || input.Rank() != first.Rank() {
			return shapes.Invalid(), 0, errors.Errorf("Concat inputs %s and %s are incompatible", first, input)
		}
		for ii, dim := range input.Dimensions {
			if ii == axis {
				dims[ii] += dim
			} else if dim != dims[ii] {
				return shapes.Invalid(), 0, errors.Errorf("Concat inputs %s and %s differ on axis %d", first, input, ii)
			}
		}
	}
	return shapes.Make(first.DType, dims...), axis, nil
}

func transposeShape(input shapes.Shape, permutation []int) (shapes.Shape, error) {
	if len(permutation) == 0 {
		permutation = make([]int, input.Rank())
		for ii := range permutation {
			permutation[ii] = input.Rank() - 1 - ii
		}
	}
	if len(permutation) != input.Rank() {
		return shapes.Invalid(), errors.Errorf("Transpose permutation %v doesn't match rank of %s", permutation, input)
	}
	seen := make([]bool, input.Rank())
	dims := make([]int, input.Rank())
	for ii, axis := range permutation {
		if axis < 0 || axis >= input.Rank() || seen[axis] {
			return shapes.Invalid(), errors.Errorf("Transpose permutation %v is invalid for %s", permutation, input)
		}
		seen[axis] = true
		dims[ii] = input.Dimensions[axis]
	}
	return shapes.Make(input.DType, dims...), nil
}
