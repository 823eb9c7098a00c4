// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package common

import (
	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/backends/kernels"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
)

// NewBinary creates an elementwise binary operation with numpy broadcasting.
func NewBinary(ctx *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	if !kernels.SupportedBinary(node.Type) {
		return nil, engine.Unsupportedf("%s: no elementwise kernel", node)
	}
	aShape, bShape, outShape := node.Inputs[0].Shape(), node.Inputs[1].Shape(), node.Outputs[0]
	if err := opts.CheckNumeric(ctx, node, aShape.DType); err != nil {
		return nil, err
	}
	if node.Type == ir.OpTypePower && !opts.IsFloat(ctx, aShape.DType) {
		return nil, engine.Unsupportedf("%s: power is only implemented for float types", node)
	}
	return NewKernelOp(opts, node, "eltwise_"+node.Type.String(), func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.Binary(node.Type, aShape, bShape, outShape, inputs[0], inputs[1], outputs[0])
	}), nil
}

// signedOps are the unary ops the integer kernels implement.
var signedOps = map[ir.OpType]bool{ir.OpTypeAbs: true, ir.OpTypeNegative: true, ir.OpTypeSign: true}

// NewUnary creates an elementwise unary math operation.
func NewUnary(ctx *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	if !kernels.SupportedUnary(node.Type) || node.Type == ir.OpTypeRound {
		return nil, engine.Unsupportedf("%s: no unary kernel", node)
	}
	shape := node.Outputs[0]
	if !opts.IsFloat(ctx, shape.DType) && !(signedOps[node.Type] && opts.IsInt(shape.DType)) {
		return nil, engine.Unsupportedf("%s: dtype %s not supported", node, shape.DType)
	}
	return NewKernelOp(opts, node, node.Type.String(), func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.Unary(node.Type, shape, inputs[0], outputs[0])
	}), nil
}

// NewRound binds Round to the native half-to-even kernel. Other tie breaking modes must be
// decomposed beforehand.
func NewRound(ctx *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	attrs := node.Attrs.(*ir.RoundAttrs)
	if attrs.Mode != ir.RoundHalfToEven {
		return nil, engine.Unsupportedf("%s: round mode %q has no native kernel, it is handled by the DecomposeRound pass",
			node, attrs.Mode)
	}
	shape := node.Outputs[0]
	if err := opts.CheckFloat(ctx, node, shape.DType); err != nil {
		return nil, err
	}
	return NewKernelOp(opts, node, "round", func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.Unary(ir.OpTypeRound, shape, inputs[0], outputs[0])
	}), nil
}

// NewSelect creates a broadcasting select on a Bool condition.
func NewSelect(ctx *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	condShape, trueShape, falseShape := node.Inputs[0].Shape(), node.Inputs[1].Shape(), node.Inputs[2].Shape()
	outShape := node.Outputs[0]
	if condShape.DType != dtypes.Bool {
		return nil, engine.Unsupportedf("%s: condition must be Bool, got %s", node, condShape.DType)
	}
	if err := opts.CheckNumeric(ctx, node, outShape.DType); err != nil {
		return nil, err
	}
	return NewKernelOp(opts, node, "select", func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.Select(condShape, trueShape, falseShape, outShape, inputs[0], inputs[1], inputs[2], outputs[0])
	}), nil
}

// ActivationOf returns the kernel activation computing a standalone activation node.
func ActivationOf(node *ir.Node) (kernels.Activation, bool) {
	switch node.Type {
	case ir.OpTypeRelu:
		return kernels.Activation{Kind: ir.ActivationRelu}, true
	case ir.OpTypeSigmoid:
		return kernels.Activation{Kind: ir.ActivationSigmoid}, true
	case ir.OpTypeTanh:
		return kernels.Activation{Kind: ir.ActivationTanh}, true
	case ir.OpTypeElu:
		return kernels.Activation{Kind: ir.ActivationElu, A: node.Attrs.(*ir.EluAttrs).Alpha}, true
	case ir.OpTypeHSwish:
		return kernels.Activation{Kind: ir.ActivationHardSwish}, true
	case ir.OpTypeSoftPlus:
		return kernels.Activation{Kind: ir.ActivationSoftRelu}, true
	case ir.OpTypeLeakyRelu:
		return kernels.Activation{Kind: ir.ActivationLeakyRelu, A: node.Attrs.(*ir.LeakyReluAttrs).Slope}, true
	}
	return kernels.Activation{}, false
}

// NewActivation creates a standalone activation layer. Clamp is handled by NewClamp.
func NewActivation(ctx *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	act, ok := ActivationOf(node)
	if !ok {
		return nil, engine.Unsupportedf("%s: no activation kernel", node)
	}
	shape := node.Outputs[0]
	if err := opts.CheckFloat(ctx, node, shape.DType); err != nil {
		return nil, err
	}
	return NewKernelOp(opts, node, string(act.Kind), func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.ActivationLayer(shape.DType, inputs[0], outputs[0], shape.Size(), act)
	}), nil
}

// NewClippedRelu binds a Clamp with a lower bound of 0 to the clipped relu kernel.
func NewClippedRelu(ctx *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	attrs := node.Attrs.(*ir.ClampAttrs)
	if attrs.Min != 0 {
		return nil, engine.Unsupportedf("%s: clipped relu requires a lower bound of 0, got %g", node, attrs.Min)
	}
	shape := node.Outputs[0]
	if err := opts.CheckFloat(ctx, node, shape.DType); err != nil {
		return nil, err
	}
	act := kernels.Activation{Kind: ir.ActivationBoundedRelu, A: attrs.Max}
	return NewKernelOp(opts, node, "clipped_relu", func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.ActivationLayer(shape.DType, inputs[0], outputs[0], shape.Size(), act)
	}), nil
}

// NewClamp binds Clamp to the generic clamp kernel.
func NewClamp(ctx *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	attrs := node.Attrs.(*ir.ClampAttrs)
	if attrs.Min > attrs.Max {
		return nil, engine.Unsupportedf("%s: min %g is larger than max %g", node, attrs.Min, attrs.Max)
	}
	shape := node.Outputs[0]
	if err := opts.CheckNumeric(ctx, node, shape.DType); err != nil {
		return nil, err
	}
	return NewKernelOp(opts, node, "clamp", func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.Clamp(shape.DType, inputs[0], outputs[0], shape.Size(), attrs.Min, attrs.Max)
	}), nil
}
