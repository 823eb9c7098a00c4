// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cuda

import (
	"slices"

	"github.com/gomlx/accel/backends/common"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/pkg/core/ir"
)

// NewInterpolate tries the nearest, linear and cubic kernels, in that order.
func NewInterpolate(ctx *engine.CreationContext, opts *common.Options, node *ir.Node) (engine.Operation, error) {
	return common.Probe(ctx, opts, node, newInterpolateNearest, newInterpolateLinear, newInterpolateCubic)
}

func newInterpolateNearest(ctx *engine.CreationContext, opts *common.Options, node *ir.Node) (engine.Operation, error) {
	return newInterpolate(ctx, opts, node, ir.InterpolateNearest)
}

func newInterpolateLinear(ctx *engine.CreationContext, opts *common.Options, node *ir.Node) (engine.Operation, error) {
	return newInterpolate(ctx, opts, node, ir.InterpolateLinear, ir.InterpolateLinearOnnx)
}

func newInterpolateCubic(ctx *engine.CreationContext, opts *common.Options, node *ir.Node) (engine.Operation, error) {
	return newInterpolate(ctx, opts, node, ir.InterpolateCubic)
}

// newInterpolate accepts the node if its mode is one of modes. The kernel implements every
// coordinate transformation and nearest mode.
func newInterpolate(ctx *engine.CreationContext, opts *common.Options, node *ir.Node, modes ...ir.InterpolateMode) (engine.Operation, error) {
	attrs := node.Attrs.(*ir.InterpolateAttrs)
	if !slices.Contains(modes, attrs.Mode) {
		return nil, engine.Unsupportedf("%s kernel: mode is %s", modes[0], attrs.Mode)
	}
	if err := opts.CheckFloat(ctx, node, node.Outputs[0].DType); err != nil {
		return nil, err
	}
	if attrs.Antialias {
		return nil, engine.Unsupportedf("%s kernel: antialias is not supported", modes[0])
	}
	for _, pad := range slices.Concat(attrs.PadsBegin, attrs.PadsEnd) {
		if pad != 0 {
			return nil, engine.Unsupportedf("%s kernel: paddings are not supported", modes[0])
		}
	}
	desc, err := common.ScaleDescFor(node)
	if err != nil {
		return nil, engine.Unsupportedf("%s kernel: %v", modes[0], err)
	}
	desc.Mode = attrs.Mode
	desc.CoordinateTransform = attrs.CoordinateTransform
	desc.NearestMode = attrs.NearestMode
	desc.CubeCoeff = attrs.CubeCoeff
	return common.NewScaleOp(opts, node, desc), nil
}
