// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package neon

import (
	"slices"

	"github.com/gomlx/accel/backends/common"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/pkg/core/ir"
)

// SamplingPolicy is where the scale kernel samples a pixel.
type SamplingPolicy int

const (
	SamplingTopLeft SamplingPolicy = iota
	SamplingCenter
)

// String implements fmt.Stringer.
func (s SamplingPolicy) String() string {
	if s == SamplingCenter {
		return "CENTER"
	}
	return "TOP_LEFT"
}

// Sampling returns the sampling policy for a coordinate transformation mode.
func Sampling(coord ir.CoordinateTransformMode, outH, outW int) SamplingPolicy {
	if coord == ir.CoordHalfPixel || (coord == ir.CoordPytorchHalfPixel && outH > 1 && outW > 1) {
		return SamplingCenter
	}
	return SamplingTopLeft
}

// NearestSupported returns whether the nearest neighbor kernel reproduces the combination of
// coordinate transformation and nearest mode for the given spatial sizes.
//
// The scale factors are truncated integer ratios, so any size counts as an integer factor, and
// growing a single axis (or growing by less than 2x) is handled as downsampling.
func NearestSupported(coord ir.CoordinateTransformMode, nearest ir.NearestMode, inH, inW, outH, outW int) bool {
	if coord == ir.CoordAsymmetric && nearest == ir.NearestFloor {
		return true
	}
	if coord == ir.CoordAlignCorners && nearest == ir.NearestRoundPreferCeil {
		return true
	}
	if outH/inH > 1 && outW/inW > 1 {
		if coord == ir.CoordAsymmetric && nearest == ir.NearestSimple {
			return true
		}
		return coord != ir.CoordAsymmetric && (nearest == ir.NearestRoundPreferCeil || nearest == ir.NearestRoundPreferFloor)
	}
	if coord != ir.CoordAlignCorners && nearest == ir.NearestSimple {
		return true
	}
	return nearest == ir.NearestRoundPreferCeil && ((outH > 1 && outW > 1) || coord != ir.CoordHalfPixel)
}

// NewInterpolate binds a 4D Interpolate resizing the spatial axes to the bilinear or nearest
// neighbor scale kernel.
func NewInterpolate(ctx *engine.CreationContext, opts *common.Options, node *ir.Node) (engine.Operation, error) {
	attrs := node.Attrs.(*ir.InterpolateAttrs)
	input, output := node.Inputs[0].Shape(), node.Outputs[0]
	if err := opts.CheckFloat(ctx, node, input.DType); err != nil {
		return nil, err
	}
	if input.Rank() != 4 || input.Dimensions[0] != output.Dimensions[0] || input.Dimensions[1] != output.Dimensions[1] {
		return nil, engine.Unsupportedf("%s: only the spatial axes of a 4D input can be resized, got %s -> %s", node, input, output)
	}
	for _, pad := range slices.Concat(attrs.PadsBegin, attrs.PadsEnd) {
		if pad != 0 {
			return nil, engine.Unsupportedf("%s: paddings are not supported", node)
		}
	}
	if attrs.Antialias {
		return nil, engine.Unsupportedf("%s: antialias is not supported", node)
	}
	if attrs.CoordinateTransform == ir.CoordTFHalfPixelForNN {
		return nil, engine.Unsupportedf("%s: coordinate transformation mode %s is not supported", node, attrs.CoordinateTransform)
	}
	if attrs.NearestMode == ir.NearestCeil {
		return nil, engine.Unsupportedf("%s: nearest mode %s is not supported", node, attrs.NearestMode)
	}
	desc, err := common.ScaleDescFor(node)
	if err != nil {
		return nil, engine.Unsupportedf("%s: %v", node, err)
	}
	sampling := Sampling(attrs.CoordinateTransform, desc.OutH, desc.OutW)
	alignCorners := attrs.CoordinateTransform == ir.CoordAlignCorners

	switch attrs.Mode {
	case ir.InterpolateLinear, ir.InterpolateLinearOnnx:
		desc.Mode = ir.InterpolateLinear
		switch {
		case alignCorners:
			desc.CoordinateTransform = ir.CoordAlignCorners
		case sampling == SamplingCenter:
			desc.CoordinateTransform = ir.CoordHalfPixel
		default:
			desc.CoordinateTransform = ir.CoordAsymmetric
		}
	case ir.InterpolateNearest:
		if !NearestSupported(attrs.CoordinateTransform, attrs.NearestMode, desc.InH, desc.InW, desc.OutH, desc.OutW) {
			return nil, engine.Unsupportedf("%s: nearest mode %s with coordinate transformation mode %s is not supported",
				node, attrs.NearestMode, attrs.CoordinateTransform)
		}
		desc.Mode = ir.InterpolateNearest
		switch {
		case alignCorners:
			desc.CoordinateTransform, desc.NearestMode = ir.CoordAlignCorners, ir.NearestRoundPreferCeil
		case sampling == SamplingCenter:
			desc.CoordinateTransform, desc.NearestMode = ir.CoordTFHalfPixelForNN, ir.NearestFloor
		default:
			desc.CoordinateTransform, desc.NearestMode = ir.CoordAsymmetric, ir.NearestFloor
		}
	default:
		return nil, engine.Unsupportedf("%s: interpolation mode %s is not supported", node, attrs.Mode)
	}
	return common.NewScaleOp(opts, node, desc), nil
}
