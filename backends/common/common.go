// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package common holds the operation factories shared by the neon and cuda plugins.
//
// A plugin describes its kernels' legality with an Options value (accepted dtypes, GEMM compute
// types, capturability) and registers the constructors of this package with Options.Factory.
// Constructors only inspect the node: they never touch the device.
package common

import (
	"slices"
	"strings"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Options describe the native kernels of a plugin.
type Options struct {
	// Capturable marks the operations built with these options as replayable in a captured graph.
	Capturable bool

	// FloatTypes and IntTypes are accepted by the float and integer kernels.
	// Float16 additionally requires the device to support it.
	FloatTypes, IntTypes []dtypes.DType

	// GemmComputeTypes maps the MatMul input dtype to its accumulation dtype.
	// Dtypes not listed are not supported by MatMul.
	GemmComputeTypes map[dtypes.DType]dtypes.DType
}

// Constructor builds an operation for node with the given plugin options.
type Constructor func(ctx *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error)

// Factory binds c to the options, to be registered in an engine.Registry.
func (o *Options) Factory(c Constructor) engine.Factory {
	return func(ctx *engine.CreationContext, node *ir.Node) (engine.Operation, error) {
		return c(ctx, o, node)
	}
}

// IsFloat returns whether the float kernels accept dtype on the device of ctx.
func (o *Options) IsFloat(ctx *engine.CreationContext, dtype dtypes.DType) bool {
	if !slices.Contains(o.FloatTypes, dtype) {
		return false
	}
	return dtype != dtypes.Float16 || ctx == nil || ctx.Device == nil || ctx.Device.Properties().Float16
}

// IsInt returns whether the integer kernels accept dtype.
func (o *Options) IsInt(dtype dtypes.DType) bool {
	return slices.Contains(o.IntTypes, dtype)
}

// CheckFloat returns an unsupported error if dtype is not accepted by the float kernels.
func (o *Options) CheckFloat(ctx *engine.CreationContext, node *ir.Node, dtype dtypes.DType) error {
	if o.IsFloat(ctx, dtype) {
		return nil
	}
	return engine.Unsupportedf("%s: dtype %s not supported, float kernels accept %s", node, dtype, dtypeList(o.FloatTypes))
}

// CheckNumeric returns an unsupported error if dtype is accepted by neither the float nor the
// integer kernels.
func (o *Options) CheckNumeric(ctx *engine.CreationContext, node *ir.Node, dtype dtypes.DType) error {
	if o.IsFloat(ctx, dtype) || o.IsInt(dtype) {
		return nil
	}
	return engine.Unsupportedf("%s: dtype %s not supported, kernels accept %s", node, dtype,
		dtypeList(append(slices.Clone(o.FloatTypes), o.IntTypes...)))
}

func dtypeList(list []dtypes.DType) string {
	names := make([]string, len(list))
	for ii, dtype := range list {
		names[ii] = dtype.String()
	}
	return strings.Join(names, ", ")
}

// KernelFunc runs a host kernel on the buffers of one execution.
type KernelFunc func(inputs, outputs []device.Pointer, work engine.Workbuffers)

// KernelOp is an operation made of a single kernel launch.
type KernelOp struct {
	engine.Base
	capturable bool
	label      string
	kernel     KernelFunc
}

// NewKernelOp creates an operation launching kernel for node. label names the kernel in logs and
// errors.
func NewKernelOp(opts *Options, node *ir.Node, label string, kernel KernelFunc) *KernelOp {
	return &KernelOp{Base: engine.Base{IRNode: node}, capturable: opts.Capturable, label: label, kernel: kernel}
}

// Label of the kernel, e.g. "gemm" or "depth_convert".
func (op *KernelOp) Label() string { return op.label }

// Capturable implements engine.Operation.
func (op *KernelOp) Capturable() bool { return op.capturable }

// Execute implements engine.Operation.
func (op *KernelOp) Execute(stream *device.Stream, inputs, outputs []device.Pointer, work engine.Workbuffers) error {
	return stream.Launch(op.label+":"+op.Node().Name, func() error {
		op.kernel(inputs, outputs, work)
		return nil
	})
}

// Probe tries the constructors in order and returns the first operation created. If all fail,
// the error lists every reason and wraps engine.ErrUnsupported if they all do.
func Probe(ctx *engine.CreationContext, opts *Options, node *ir.Node, candidates ...Constructor) (engine.Operation, error) {
	var reasons []string
	allUnsupported := true
	for _, candidate := range candidates {
		op, err := candidate(ctx, opts, node)
		if err == nil {
			if len(reasons) > 0 {
				klog.V(1).Infof("%s: falling back after %d rejected kernels: %s", node, len(reasons), strings.Join(reasons, "; "))
			}
			return op, nil
		}
		allUnsupported = allUnsupported && errors.Is(err, engine.ErrUnsupported)
		reasons = append(reasons, err.Error())
	}
	if allUnsupported {
		return nil, engine.Unsupportedf("%s: no kernel accepts it:\n  %s", node, strings.Join(reasons, "\n  "))
	}
	return nil, errors.Errorf("%s: no kernel accepts it:\n  %s", node, strings.Join(reasons, "\n  "))
}
