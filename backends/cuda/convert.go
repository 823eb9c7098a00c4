// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package cuda

import (
	"github.com/gomlx/accel/backends/common"
	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/backends/kernels"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
)

// NewConvert binds Convert between any two numeric dtypes to the casting kernel.
func NewConvert(ctx *engine.CreationContext, opts *common.Options, node *ir.Node) (engine.Operation, error) {
	src, dst := node.Inputs[0].Shape().DType, node.Outputs[0].DType
	for _, dtype := range []dtypes.DType{src, dst} {
		if dtype == dtypes.Bool || !dtype.IsValid() {
			return nil, engine.Unsupportedf("%s: conversion from %s to %s is not supported", node, src, dst)
		}
		if dtype == dtypes.Float16 && !opts.IsFloat(ctx, dtype) {
			return nil, engine.Unsupportedf("%s: device has no float16 support", node)
		}
	}
	numElements := node.Outputs[0].Size()
	if src == dst {
		numBytes := node.Outputs[0].ByteSize()
		return common.NewKernelOp(opts, node, "copy", func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
			kernels.Copy(outputs[0], inputs[0], numBytes)
		}), nil
	}
	return common.NewKernelOp(opts, node, "convert", func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.ReferenceConvert(src, dst, inputs[0], outputs[0], numElements)
	}), nil
}
