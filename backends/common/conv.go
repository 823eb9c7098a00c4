// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package common

import (
	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/backends/kernels"
	"github.com/gomlx/accel/pkg/core/ir"
	"k8s.io/klog/v2"
)

// ConvDescFor returns the kernel descriptor of a Convolution or GroupConvolution node.
//
// Group convolution weights [G, O/G, I/G, kh, kw] are read as [O, I/G, kh, kw] with G groups;
// with I/G == 1 this is the depthwise layout [G·M, 1, kh, kw] with depth multiplier M = O/G.
func ConvDescFor(node *ir.Node) kernels.ConvDesc {
	attrs := node.Attrs.(*ir.ConvolutionAttrs)
	input, weights, output := node.Inputs[0].Shape(), node.Inputs[1].Shape(), node.Outputs[0]
	desc := kernels.ConvDesc{
		DType:       output.DType,
		Batch:       input.Dimensions[0],
		InChannels:  input.Dimensions[1],
		InH:         input.Dimensions[2],
		InW:         input.Dimensions[3],
		OutChannels: output.Dimensions[1],
		OutH:        output.Dimensions[2],
		OutW:        output.Dimensions[3],
		Groups:      1,
		Strides:     [2]int{attrs.Strides[0], attrs.Strides[1]},
		Dilations:   [2]int{attrs.Dilations[0], attrs.Dilations[1]},
		PadsBegin:   [2]int{attrs.PadsBegin[0], attrs.PadsBegin[1]},
		Activation:  kernels.Activation{Kind: attrs.Activation, A: attrs.ActivationA, B: attrs.ActivationB},
	}
	kernelDims := weights.Dimensions[2:]
	if node.Type == ir.OpTypeGroupConvolution {
		desc.Groups = weights.Dimensions[0]
		kernelDims = weights.Dimensions[3:]
	}
	desc.KernelH, desc.KernelW = kernelDims[0], kernelDims[1]
	return desc
}

// IsDepthwise returns whether a GroupConvolution has a single input channel per group.
func IsDepthwise(node *ir.Node) bool {
	return node.Type == ir.OpTypeGroupConvolution && node.Inputs[1].Shape().Dimensions[2] == 1
}

// NewConvolution binds Convolution and GroupConvolution, with the optional bias and the fused
// activation, to the convolution kernel.
func NewConvolution(ctx *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	attrs := node.Attrs.(*ir.ConvolutionAttrs)
	if err := opts.CheckFloat(ctx, node, node.Outputs[0].DType); err != nil {
		return nil, err
	}
	if !kernels.SupportedActivation(attrs.Activation) {
		return nil, engine.Unsupportedf("%s: fused activation %q is not supported", node, attrs.Activation)
	}
	desc := ConvDescFor(node)
	hasBias := len(node.Inputs) == 3
	if hasBias && node.Inputs[2].Shape().Size() != desc.OutChannels {
		return nil, engine.Unsupportedf("%s: bias %s must hold one value per output channel (%d)",
			node, node.Inputs[2].Shape(), desc.OutChannels)
	}
	label := "convolution"
	if node.Type == ir.OpTypeGroupConvolution {
		label = "group_convolution"
		if IsDepthwise(node) {
			label = "depthwise_convolution"
		}
	}
	klog.V(2).Infof("%s: %s", node, desc)
	return NewKernelOp(opts, node, label, func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		var bias device.Pointer
		if hasBias {
			bias = inputs[2]
		}
		kernels.Convolution(desc, inputs[0], inputs[1], bias, outputs[0])
	}), nil
}
