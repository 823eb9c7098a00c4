// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package common

import (
	"slices"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/backends/kernels"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/pkg/errors"
)

// GemmDescFor returns the strided batched GEMM computing the row-major product op(a)·op(b),
// following the MatMul broadcasting rules of the IR for 1D operands.
//
// The GEMM is column-major: the row-major C = op(A)·op(B) is issued as Cᵗ = op(B)ᵗ·op(A)ᵗ, so the
// kernel's first operand is b and its second is a.
//
// Batch axes must hold the same number of matrices on both sides, or a single matrix on one side,
// which is then reused for every batch.
func GemmDescFor(a, b shapes.Shape, transposeA, transposeB bool) (kernels.GemmDesc, error) {
	dimsA, dimsB := a.Dimensions, b.Dimensions
	if len(dimsA) == 0 || len(dimsB) == 0 {
		return kernels.GemmDesc{}, errors.Errorf("operands %s and %s can't be scalars", a, b)
	}
	if len(dimsA) == 1 {
		dimsA, transposeA = []int{1, dimsA[0]}, false
	}
	if len(dimsB) == 1 {
		dimsB, transposeB = []int{dimsB[0], 1}, false
	}
	rowsA, colsA := dimsA[len(dimsA)-2], dimsA[len(dimsA)-1]
	rowsB, colsB := dimsB[len(dimsB)-2], dimsB[len(dimsB)-1]
	m, k := rowsA, colsA
	if transposeA {
		m, k = k, m
	}
	kB, n := rowsB, colsB
	if transposeB {
		kB, n = n, kB
	}
	if k != kB {
		return kernels.GemmDesc{}, errors.Errorf("contracting dimensions of %s and %s don't match", a, b)
	}

	batchDimsA, batchDimsB := trimOnes(dimsA[:len(dimsA)-2]), trimOnes(dimsB[:len(dimsB)-2])
	batchA, batchB := product(batchDimsA), product(batchDimsB)
	if batchA != 1 && batchB != 1 && !slices.Equal(batchDimsA, batchDimsB) {
		return kernels.GemmDesc{}, errors.Errorf("batch axes of %s and %s must match, or one side must hold a single matrix", a, b)
	}
	strideA, strideB := 0, 0
	if batchA > 1 {
		strideA = rowsA * colsA
	}
	if batchB > 1 {
		strideB = rowsB * colsB
	}
	return kernels.GemmDesc{
		TransA: transposeB, TransB: transposeA,
		M: n, N: m, K: k,
		Alpha: 1, Beta: 0,
		LDA: colsB, LDB: colsA, LDC: n,
		StrideA: strideB, StrideB: strideA, StrideC: m * n,
		Batch: max(batchA, batchB),
	}, nil
}

func trimOnes(dims []int) []int {
	for len(dims) > 0 && dims[0] == 1 {
		dims = dims[1:]
	}
	return dims
}

func product(dims []int) int {
	p := 1
	for _, dim := range dims {
		p *= dim
	}
	return p
}

// NewMatMul binds MatMul to the strided batched GEMM kernel, with the compute type given by
// Options.GemmComputeTypes.
func NewMatMul(ctx *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	attrs := node.Attrs.(*ir.MatMulAttrs)
	aShape, bShape := node.Inputs[0].Shape(), node.Inputs[1].Shape()
	dtype := aShape.DType
	computeType, found := opts.GemmComputeTypes[dtype]
	if !found || (dtype.IsFloat() && !opts.IsFloat(ctx, dtype)) {
		return nil, engine.Unsupportedf("%s: GEMM doesn't support dtype %s", node, dtype)
	}
	desc, err := GemmDescFor(aShape, bShape, attrs.TransposeA, attrs.TransposeB)
	if err != nil {
		return nil, engine.Unsupportedf("%s: %v", node, err)
	}
	desc.DType, desc.OutDType, desc.ComputeType = dtype, node.Outputs[0].DType, computeType
	return NewKernelOp(opts, node, "gemm", func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.GemmStridedBatched(desc, inputs[1], inputs[0], outputs[0])
	}), nil
}
