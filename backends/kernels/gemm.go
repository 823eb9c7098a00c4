// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"fmt"
	"unsafe"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/exceptions"
	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
	"gonum.org/v1/gonum/blas/blas64"
)

// GemmDesc describes a strided batched GEMM in column-major layout, the convention of cuBLAS:
//
//	C[b] = Alpha * op(A[b]) * op(B[b]) + Beta * C[b],  for b in [0, Batch)
//
// op(A) is M x K, op(B) is K x N and C is M x N. A[b] starts at StrideA*b elements from A, and
// likewise for B and C; a stride of 0 reuses the same matrix for every batch.
type GemmDesc struct {
	// DType of A and B; OutDType of C. ComputeType is the accumulation type.
	DType, OutDType, ComputeType dtypes.DType

	TransA, TransB bool
	M, N, K        int
	Alpha, Beta    float64

	LDA, LDB, LDC             int
	StrideA, StrideB, StrideC int
	Batch                     int
}

// String implements fmt.Stringer.
func (d GemmDesc) String() string {
	return fmt.Sprintf("gemm(%s->%s compute=%s transA=%v transB=%v m=%d n=%d k=%d ld=[%d %d %d] strides=[%d %d %d] batch=%d)",
		d.DType, d.OutDType, d.ComputeType, d.TransA, d.TransB, d.M, d.N, d.K,
		d.LDA, d.LDB, d.LDC, d.StrideA, d.StrideB, d.StrideC, d.Batch)
}

// extent returns the number of elements spanned by a column-major matrix with rows x cols
// (as stored) and leading dimension ld, repeated batch times with the given stride.
func extent(rows, cols, ld, stride, batch int) int {
	if rows == 0 || cols == 0 || batch == 0 {
		return 0
	}
	return stride*(batch-1) + ld*(cols-1) + rows
}

func trans(t bool) blas.Transpose {
	if t {
		return blas.Trans
	}
	return blas.NoTrans
}

func typedSlice[T float32 | float64](ptr device.Pointer, numElements int) []T {
	if numElements == 0 {
		return nil
	}
	var zero T
	data := ptr.Bytes(numElements * int(unsafe.Sizeof(zero)))
	return unsafe.Slice((*T)(unsafe.Pointer(&data[0])), numElements)
}

// GemmStridedBatched runs the batched GEMM described by desc.
//
// Float32 and Float64 use gonum's BLAS. Since gonum is row-major, the column-major product
// C = op(A)·op(B) is computed as its row-major transpose Cᵗ = op(B)ᵗ·op(A)ᵗ, which reads the same
// buffers with the operands swapped. Other dtypes go through the float64 reference loop,
// accumulating in ComputeType.
func GemmStridedBatched(desc GemmDesc, a, b, c device.Pointer) {
	rowsA, colsA := desc.M, desc.K
	if desc.TransA {
		rowsA, colsA = colsA, rowsA
	}
	rowsB, colsB := desc.K, desc.N
	if desc.TransB {
		rowsB, colsB = colsB, rowsB
	}
	if desc.LDA < max(1, rowsA) || desc.LDB < max(1, rowsB) || desc.LDC < max(1, desc.M) {
		exceptions.Panicf("kernels.Gemm: invalid leading dimensions in %s", desc)
	}
	sizeA := extent(rowsA, colsA, desc.LDA, desc.StrideA, desc.Batch)
	sizeB := extent(rowsB, colsB, desc.LDB, desc.StrideB, desc.Batch)
	sizeC := extent(desc.M, desc.N, desc.LDC, desc.StrideC, desc.Batch)
	if sizeC == 0 {
		return
	}

	if desc.DType == desc.OutDType && desc.DType == desc.ComputeType {
		switch desc.DType {
		case dtypes.Float32:
			impl := blas32.Implementation()
			da, db, dc := typedSlice[float32](a, sizeA), typedSlice[float32](b, sizeB), typedSlice[float32](c, sizeC)
			Workers.ParallelFor(desc.Batch, 1, func(start, end int) {
				for batch := start; batch < end; batch++ {
					impl.Sgemm(trans(desc.TransB), trans(desc.TransA), desc.N, desc.M, desc.K, float32(desc.Alpha),
						db[batch*desc.StrideB:], desc.LDB, da[batch*desc.StrideA:], desc.LDA,
						float32(desc.Beta), dc[batch*desc.StrideC:], desc.LDC)
				}
			})
			return
		case dtypes.Float64:
			impl := blas64.Implementation()
			da, db, dc := typedSlice[float64](a, sizeA), typedSlice[float64](b, sizeB), typedSlice[float64](c, sizeC)
			Workers.ParallelFor(desc.Batch, 1, func(start, end int) {
				for batch := start; batch < end; batch++ {
					impl.Dgemm(trans(desc.TransB), trans(desc.TransA), desc.N, desc.M, desc.K, desc.Alpha,
						db[batch*desc.StrideB:], desc.LDB, da[batch*desc.StrideA:], desc.LDA,
						desc.Beta, dc[batch*desc.StrideC:], desc.LDC)
				}
			})
			return
		}
	}
	referenceGemm(desc, newView(desc.DType, a, sizeA), newView(desc.DType, b, sizeB), newView(desc.OutDType, c, sizeC))
}

func referenceGemm(desc GemmDesc, va, vb, vc view) {
	_, roundToCompute := accessors(desc.ComputeType)
	scratch := make([]byte, 8)
	accumulate := func(v float64) float64 {
		// Round through the compute type, so f16 accumulates in f16 and integers wrap.
		roundToCompute(scratch, 0, v)
		return getters[desc.ComputeType](scratch, 0)
	}
	elemA := func(batch, row, col int) float64 {
		if desc.TransA {
			row, col = col, row
		}
		return va.At(batch*desc.StrideA + col*desc.LDA + row)
	}
	elemB := func(batch, row, col int) float64 {
		if desc.TransB {
			row, col = col, row
		}
		return vb.At(batch*desc.StrideB + col*desc.LDB + row)
	}
	for batch := range desc.Batch {
		for col := range desc.N {
			for row := range desc.M {
				var sum float64
				for k := range desc.K {
					sum = accumulate(sum + elemA(batch, row, k)*elemB(batch, k, col))
				}
				idx := batch*desc.StrideC + col*desc.LDC + row
				value := desc.Alpha * sum
				if desc.Beta != 0 {
					value += desc.Beta * vc.At(idx)
				}
				vc.Set(idx, value)
			}
		}
	}
}
