// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"math"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/exceptions"
)

// ScaleDesc describes a resize of the two spatial axes of an NCHW tensor.
type ScaleDesc struct {
	DType dtypes.DType

	// Planes is batch * channels.
	Planes     int
	InH, InW   int
	OutH, OutW int

	Mode                ir.InterpolateMode
	CoordinateTransform ir.CoordinateTransformMode
	NearestMode         ir.NearestMode
	CubeCoeff           float64
}

// sourceCoordinate maps an output coordinate to the input coordinate space.
func sourceCoordinate(mode ir.CoordinateTransformMode, x float64, in, out int) float64 {
	scale := float64(out) / float64(in)
	switch mode {
	case ir.CoordHalfPixel:
		return (x+0.5)/scale - 0.5
	case ir.CoordPytorchHalfPixel:
		if out > 1 {
			return (x+0.5)/scale - 0.5
		}
		return 0
	case ir.CoordAsymmetric:
		return x / scale
	case ir.CoordTFHalfPixelForNN:
		return (x + 0.5) / scale
	case ir.CoordAlignCorners:
		if out == 1 {
			return 0
		}
		return x * float64(in-1) / float64(out-1)
	}
	exceptions.Panicf("coordinate transformation mode %q not implemented", mode)
	return 0
}

// nearestIndex rounds a source coordinate to an input index with the given nearest mode.
func nearestIndex(mode ir.NearestMode, x float64, in, out int) int {
	var idx float64
	switch mode {
	case ir.NearestRoundPreferFloor:
		if x-math.Floor(x) == 0.5 {
			idx = math.Floor(x)
		} else {
			idx = math.Round(x)
		}
	case ir.NearestRoundPreferCeil:
		idx = math.Floor(x + 0.5)
	case ir.NearestFloor:
		idx = math.Floor(x)
	case ir.NearestCeil:
		idx = math.Ceil(x)
	case ir.NearestSimple:
		if out < in {
			idx = math.Ceil(x)
		} else {
			idx = math.Trunc(x)
		}
	default:
		exceptions.Panicf("nearest mode %q not implemented", mode)
	}
	return min(max(int(idx), 0), in-1)
}

// cubicWeights returns the 4 weights of the cubic convolution for the fractional offset t.
func cubicWeights(a, t float64) [4]float64 {
	w := func(x float64) float64 {
		x = math.Abs(x)
		switch {
		case x <= 1:
			return ((a+2)*x-(a+3))*x*x + 1
		case x < 2:
			return ((a*x-5*a)*x+8*a)*x - 4*a
		}
		return 0
	}
	return [4]float64{w(t + 1), w(t), w(1 - t), w(2 - t)}
}

// axisSampler precomputes, for every output coordinate of one axis, the input indices and weights.
type axisSampler struct {
	indices [][]int
	weights [][]float64
}

func newAxisSampler(desc ScaleDesc, in, out int) axisSampler {
	s := axisSampler{indices: make([][]int, out), weights: make([][]float64, out)}
	clampIdx := func(i int) int { return min(max(i, 0), in-1) }
	for o := range out {
		x := sourceCoordinate(desc.CoordinateTransform, float64(o), in, out)
		switch desc.Mode {
		case ir.InterpolateNearest:
			s.indices[o] = []int{nearestIndex(desc.NearestMode, x, in, out)}
			s.weights[o] = []float64{1}
		case ir.InterpolateLinear, ir.InterpolateLinearOnnx:
			x = min(max(x, 0), float64(in-1))
			x0 := int(math.Floor(x))
			t := x - float64(x0)
			s.indices[o] = []int{x0, clampIdx(x0 + 1)}
			s.weights[o] = []float64{1 - t, t}
		case ir.InterpolateCubic:
			x0 := int(math.Floor(x))
			ws := cubicWeights(desc.CubeCoeff, x-float64(x0))
			s.indices[o] = []int{clampIdx(x0 - 1), clampIdx(x0), clampIdx(x0 + 1), clampIdx(x0 + 2)}
			s.weights[o] = ws[:]
		default:
			exceptions.Panicf("interpolate mode %q not implemented", desc.Mode)
		}
	}
	return s
}

// Scale resizes every plane of src (Planes x InH x InW) into dst (Planes x OutH x OutW).
// The resize is separable: each output value is the weighted sum over the H and W samplers.
func Scale(desc ScaleDesc, src, dst device.Pointer) {
	if desc.InH <= 0 || desc.InW <= 0 {
		exceptions.Panicf("kernels.Scale: empty input %dx%d", desc.InH, desc.InW)
	}
	rows := newAxisSampler(desc, desc.InH, desc.OutH)
	cols := newAxisSampler(desc, desc.InW, desc.OutW)
	inPlane, outPlane := desc.InH*desc.InW, desc.OutH*desc.OutW
	vin := newView(desc.DType, src, desc.Planes*inPlane)
	vout := newView(desc.DType, dst, desc.Planes*outPlane)
	Workers.ParallelFor(desc.Planes, 1, func(start, end int) {
		for plane := start; plane < end; plane++ {
			inBase, outBase := plane*inPlane, plane*outPlane
			for oy := range desc.OutH {
				for ox := range desc.OutW {
					var sum float64
					for ii, iy := range rows.indices[oy] {
						wy := rows.weights[oy][ii]
						for jj, ix := range cols.indices[ox] {
							sum += wy * cols.weights[ox][jj] * vin.At(inBase+iy*desc.InW+ix)
						}
					}
					vout.Set(outBase+oy*desc.OutW+ox, sum)
				}
			}
		}
	})
}
