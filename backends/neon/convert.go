// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package neon

import (
	"slices"

	"github.com/gomlx/accel/backends/common"
	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/backends/kernels"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
)

type conversion struct{ src, dst dtypes.DType }

// depthConversions have a native saturating kernel.
var depthConversions = map[conversion]bool{
	{dtypes.Uint8, dtypes.Uint16}:    true,
	{dtypes.Uint8, dtypes.Int16}:     true,
	{dtypes.Uint8, dtypes.Int32}:     true,
	{dtypes.Uint16, dtypes.Uint8}:    true,
	{dtypes.Uint16, dtypes.Uint32}:   true,
	{dtypes.Int16, dtypes.Uint8}:     true,
	{dtypes.Int16, dtypes.Int32}:     true,
	{dtypes.Float16, dtypes.Float32}: true,
	{dtypes.Float32, dtypes.Float16}: true,
}

// referenceConversions are done by the plain casting loop, per source dtype.
var referenceConversions = map[dtypes.DType][]dtypes.DType{
	dtypes.Uint8:   {dtypes.Int32, dtypes.Uint32, dtypes.Float16, dtypes.Float32},
	dtypes.Int16:   {dtypes.Uint16, dtypes.Int32, dtypes.Uint32, dtypes.Float16, dtypes.Float32},
	dtypes.Uint16:  {dtypes.Int32, dtypes.Float16, dtypes.Float32},
	dtypes.Int32:   {dtypes.Uint8, dtypes.Int16, dtypes.Uint32, dtypes.Float16, dtypes.Float32},
	dtypes.Uint32:  {dtypes.Uint8, dtypes.Int32, dtypes.Float16, dtypes.Float32},
	dtypes.Float16: {dtypes.Uint8, dtypes.Int16, dtypes.Int32},
	dtypes.Float32: {dtypes.Uint8, dtypes.Int16, dtypes.Int32},
}

// ConvertKernel returns the kernel used to convert src to dst: "copy", "depth_convert" or
// "reference_convert". ok is false if the conversion is not supported.
func ConvertKernel(src, dst dtypes.DType) (label string, ok bool) {
	switch {
	case src == dst:
		return "copy", true
	case depthConversions[conversion{src, dst}]:
		return "depth_convert", true
	case slices.Contains(referenceConversions[src], dst):
		return "reference_convert", true
	}
	return "", false
}

// NewConvert binds Convert to the native depth conversion when it exists, and to the reference
// conversion otherwise.
func NewConvert(_ *engine.CreationContext, opts *common.Options, node *ir.Node) (engine.Operation, error) {
	src, dst := node.Inputs[0].Shape().DType, node.Outputs[0].DType
	label, ok := ConvertKernel(src, dst)
	if !ok {
		return nil, engine.Unsupportedf("%s: conversion from %s to %s is not supported", node, src, dst)
	}
	numElements := node.Outputs[0].Size()
	return common.NewKernelOp(opts, node, label, func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		switch label {
		case "reference_convert":
			kernels.ReferenceConvert(src, dst, inputs[0], outputs[0], numElements)
		default:
			kernels.DepthConvert(src, dst, inputs[0], outputs[0], numElements)
		}
	}), nil
}
