// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"math"
	"testing"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDevice = device.New(0, device.Properties{Name: "kernels-test", Float16: true})

// upload allocates a buffer holding values converted to dtype.
func upload(t *testing.T, dtype dtypes.DType, values ...float64) device.Pointer {
	t.Helper()
	alloc, err := testDevice.Allocate(max(len(values), 1) * dtype.Size())
	require.NoError(t, err)
	ptr := alloc.Pointer(0)
	Store(dtype, ptr, values)
	return ptr
}

func zeros(t *testing.T, dtype dtypes.DType, n int) device.Pointer {
	return upload(t, dtype, make([]float64, n)...)
}

func TestConvert(t *testing.T) {
	src := upload(t, dtypes.Float32, 300.7, -5.5, 2.5, 3.5)
	dst := zeros(t, dtypes.Uint8, 4)
	DepthConvert(dtypes.Float32, dtypes.Uint8, src, dst, 4)
	assert.Equal(t, []float64{255, 0, 2, 4}, Load(dtypes.Uint8, dst, 4))

	ReferenceConvert(dtypes.Float32, dtypes.Uint8, src, dst, 4)
	assert.Equal(t, []float64{44, 251, 2, 3}, Load(dtypes.Uint8, dst, 4))

	ints := upload(t, dtypes.Int32, -1, 70000)
	unsigned := zeros(t, dtypes.Uint32, 2)
	ReferenceConvert(dtypes.Int32, dtypes.Uint32, ints, unsigned, 2)
	assert.Equal(t, []float64{math.MaxUint32, 70000}, Load(dtypes.Uint32, unsigned, 2))
	shorts := zeros(t, dtypes.Int16, 2)
	DepthConvert(dtypes.Int32, dtypes.Int16, ints, shorts, 2)
	assert.Equal(t, []float64{-1, math.MaxInt16}, Load(dtypes.Int16, shorts, 2))

	halves := zeros(t, dtypes.Float16, 4)
	DepthConvert(dtypes.Float32, dtypes.Float16, src, halves, 4)
	assert.InDeltaSlice(t, []float64{300.75, -5.5, 2.5, 3.5}, Load(dtypes.Float16, halves, 4), 0.01)

	same := zeros(t, dtypes.Float32, 4)
	DepthConvert(dtypes.Float32, dtypes.Float32, src, same, 4)
	assert.Equal(t, Load(dtypes.Float32, src, 4), Load(dtypes.Float32, same, 4))
}

func TestActivations(t *testing.T) {
	for _, tc := range []struct {
		act  Activation
		x    float64
		want float64
	}{
		{Activation{Kind: ir.ActivationRelu}, -2, 0},
		{Activation{Kind: ir.ActivationBoundedRelu, A: 6}, 7, 6},
		{Activation{Kind: ir.ActivationLuBoundedRelu, A: 1, B: -1}, -3, -1},
		{Activation{Kind: ir.ActivationLeakyRelu, A: 0.1}, -2, -0.2},
		{Activation{Kind: ir.ActivationElu, A: 1}, 0, 0},
		{Activation{Kind: ir.ActivationSigmoid}, 0, 0.5},
		{Activation{Kind: ir.ActivationHardSwish}, 3, 3},
		{Activation{Kind: ir.ActivationSoftRelu}, 0, math.Ln2},
		{Activation{}, 1.5, 1.5},
	} {
		assert.InDeltaf(t, tc.want, tc.act.Apply(tc.x), 1e-9, "%s(%g)", tc.act.Kind, tc.x)
	}
	assert.False(t, SupportedActivation(ir.ActivationGelu))
	require.NotNil(t, exceptions.Try(func() { Activation{Kind: ir.ActivationMish}.Apply(1) }))

	src := upload(t, dtypes.Float32, -2, 0.5, 3)
	Clamp(dtypes.Float32, src, src, 3, 0, 1)
	assert.Equal(t, []float64{0, 0.5, 1}, Load(dtypes.Float32, src, 3))
}

func TestBinaryBroadcast(t *testing.T) {
	aShape := shapes.Make(dtypes.Float32, 2, 3)
	bShape := shapes.Make(dtypes.Float32, 3)
	a := upload(t, dtypes.Float32, 1, 2, 3, 4, 5, 6)
	b := upload(t, dtypes.Float32, 10, 20, 30)
	out := zeros(t, dtypes.Float32, 6)
	Binary(ir.OpTypeAdd, aShape, bShape, aShape, a, b, out)
	assert.Equal(t, []float64{11, 22, 33, 14, 25, 36}, Load(dtypes.Float32, out, 6))

	column := upload(t, dtypes.Float32, 2, 5)
	mask := zeros(t, dtypes.Bool, 6)
	Binary(ir.OpTypeLess, aShape, shapes.Make(dtypes.Float32, 2, 1), shapes.Make(dtypes.Bool, 2, 3), a, column, mask)
	assert.Equal(t, []float64{1, 0, 0, 1, 0, 0}, Load(dtypes.Bool, mask, 6))

	Select(shapes.Make(dtypes.Bool, 2, 3), aShape, shapes.Scalar(dtypes.Float32), aShape,
		mask, a, upload(t, dtypes.Float32, -1), out)
	assert.Equal(t, []float64{1, -1, -1, 4, -1, -1}, Load(dtypes.Float32, out, 6))
}

func TestUnary(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 4)
	src := upload(t, dtypes.Float32, 0.5, 1.5, -2.5, -0.2)
	dst := zeros(t, dtypes.Float32, 4)
	Unary(ir.OpTypeRound, shape, src, dst)
	assert.Equal(t, []float64{0, 2, -2, 0}, Load(dtypes.Float32, dst, 4))
	Unary(ir.OpTypeSign, shape, src, dst)
	assert.Equal(t, []float64{1, 1, -1, -1}, Load(dtypes.Float32, dst, 4))
	assert.False(t, SupportedUnary(ir.OpTypeMatMul))
}

func TestConvolution(t *testing.T) {
	desc := ConvDesc{
		DType: dtypes.Float32, Batch: 1, InChannels: 1, InH: 3, InW: 3,
		OutChannels: 1, OutH: 2, OutW: 2, KernelH: 2, KernelW: 2, Groups: 1,
		Strides: [2]int{1, 1}, Dilations: [2]int{1, 1},
	}
	input := upload(t, dtypes.Float32, 1, 2, 3, 4, 5, 6, 7, 8, 9)
	weights := upload(t, dtypes.Float32, 1, 1, 1, 1)
	out := zeros(t, dtypes.Float32, 4)
	Convolution(desc, input, weights, device.Pointer{}, out)
	assert.Equal(t, []float64{12, 16, 24, 28}, Load(dtypes.Float32, out, 4))

	desc.Activation = Activation{Kind: ir.ActivationBoundedRelu, A: 20}
	Convolution(desc, input, weights, upload(t, dtypes.Float32, -13), out)
	assert.Equal(t, []float64{0, 3, 11, 15}, Load(dtypes.Float32, out, 4))

	// Depthwise, multiplier 1, with padding: a 1x1 kernel scaling each channel.
	depthwise := ConvDesc{
		DType: dtypes.Float32, Batch: 1, InChannels: 2, InH: 1, InW: 2,
		OutChannels: 2, OutH: 1, OutW: 2, KernelH: 1, KernelW: 1, Groups: 2,
		Strides: [2]int{1, 1}, Dilations: [2]int{1, 1},
	}
	input = upload(t, dtypes.Float32, 1, 2, 3, 4)
	out = zeros(t, dtypes.Float32, 4)
	Convolution(depthwise, input, upload(t, dtypes.Float32, 2, 3), device.Pointer{}, out)
	assert.Equal(t, []float64{2, 4, 9, 12}, Load(dtypes.Float32, out, 4))
}

func TestScale(t *testing.T) {
	src := upload(t, dtypes.Float32, 1, 2, 3, 4)
	dst := zeros(t, dtypes.Float32, 16)
	Scale(ScaleDesc{
		DType: dtypes.Float32, Planes: 1, InH: 2, InW: 2, OutH: 4, OutW: 4,
		Mode: ir.InterpolateNearest, CoordinateTransform: ir.CoordAsymmetric, NearestMode: ir.NearestFloor,
	}, src, dst)
	assert.Equal(t, []float64{1, 1, 2, 2, 1, 1, 2, 2, 3, 3, 4, 4, 3, 3, 4, 4}, Load(dtypes.Float32, dst, 16))

	Scale(ScaleDesc{
		DType: dtypes.Float32, Planes: 1, InH: 2, InW: 2, OutH: 3, OutW: 3,
		Mode: ir.InterpolateLinear, CoordinateTransform: ir.CoordAlignCorners,
	}, src, dst)
	assert.Equal(t, []float64{1, 1.5, 2, 2, 2.5, 3, 3, 3.5, 4}, Load(dtypes.Float32, dst, 9))

	// Cubic on a constant plane reproduces the constant: weights sum to 1.
	flat := upload(t, dtypes.Float32, 5, 5, 5, 5)
	Scale(ScaleDesc{
		DType: dtypes.Float32, Planes: 1, InH: 2, InW: 2, OutH: 3, OutW: 3,
		Mode: ir.InterpolateCubic, CoordinateTransform: ir.CoordHalfPixel, CubeCoeff: -0.75,
	}, flat, dst)
	assert.InDeltaSlice(t, []float64{5, 5, 5, 5, 5, 5, 5, 5, 5}, Load(dtypes.Float32, dst, 9), 1e-5)
}

func TestGemm(t *testing.T) {
	// Column-major A = [[1,2,3],[4,5,6]] and B = [[7,8],[9,10],[11,12]].
	for _, dtype := range []dtypes.DType{dtypes.Float32, dtypes.Float64, dtypes.Float16} {
		a := upload(t, dtype, 1, 4, 2, 5, 3, 6)
		b := upload(t, dtype, 7, 9, 11, 8, 10, 12)
		c := zeros(t, dtype, 4)
		GemmStridedBatched(GemmDesc{
			DType: dtype, OutDType: dtype, ComputeType: dtype,
			M: 2, N: 2, K: 3, Alpha: 1, LDA: 2, LDB: 3, LDC: 2, Batch: 1,
		}, a, b, c)
		assert.Equalf(t, []float64{58, 139, 64, 154}, Load(dtype, c, 4), "dtype=%s", dtype)
	}

	// int8 inputs accumulate in int32; transposed A stored as K x M; B shared across 2 batches.
	a := upload(t, dtypes.Int8, 1, 2, 3, 4, 5, 6, -1, -2, -3, -4, -5, -6)
	b := upload(t, dtypes.Int8, 7, 9, 11, 8, 10, 12)
	c := zeros(t, dtypes.Int32, 8)
	GemmStridedBatched(GemmDesc{
		DType: dtypes.Int8, OutDType: dtypes.Int32, ComputeType: dtypes.Int32, TransA: true,
		M: 2, N: 2, K: 3, Alpha: 1, LDA: 3, LDB: 3, LDC: 2,
		StrideA: 6, StrideB: 0, StrideC: 4, Batch: 2,
	}, a, b, c)
	assert.Equal(t, []float64{58, 139, 64, 154, -58, -139, -64, -154}, Load(dtypes.Int32, c, 8))

	require.NotNil(t, exceptions.Try(func() {
		GemmStridedBatched(GemmDesc{DType: dtypes.Float32, OutDType: dtypes.Float32, ComputeType: dtypes.Float32,
			M: 2, N: 2, K: 3, LDA: 1, LDB: 3, LDC: 2, Batch: 1}, a, b, c)
	}))
}

func TestPermuteAndConcat(t *testing.T) {
	input := shapes.Make(dtypes.Int32, 2, 3)
	src := upload(t, dtypes.Int32, 1, 2, 3, 4, 5, 6)
	dst := zeros(t, dtypes.Int32, 6)
	Permute(input, []int{1, 0}, src, dst)
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, Load(dtypes.Int32, dst, 6))
	require.NotNil(t, exceptions.Try(func() { Permute(input, []int{0, 0}, src, dst) }))

	other := upload(t, dtypes.Int32, 7, 8)
	out := zeros(t, dtypes.Int32, 8)
	Concat(1, []shapes.Shape{input, shapes.Make(dtypes.Int32, 2, 1)}, []device.Pointer{src, other}, out)
	assert.Equal(t, []float64{1, 2, 3, 7, 4, 5, 6, 8}, Load(dtypes.Int32, out, 8))
}
