// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package common

import (
	"slices"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/backends/kernels"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/pkg/errors"
)

// NewConcat creates a concatenation along the node's axis.
func NewConcat(_ *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	axis := node.Attrs.(*ir.ConcatAttrs).Axis
	inputShapes := make([]shapes.Shape, len(node.Inputs))
	for ii, input := range node.Inputs {
		inputShapes[ii] = input.Shape()
	}
	return NewKernelOp(opts, node, "concat", func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.Concat(axis, inputShapes, inputs, outputs[0])
	}), nil
}

// NewReshape creates a copy of the input: reshapes don't move elements.
func NewReshape(_ *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	numBytes := node.Outputs[0].ByteSize()
	return NewKernelOp(opts, node, "reshape", func(inputs, outputs []device.Pointer, _ engine.Workbuffers) {
		kernels.Copy(outputs[0], inputs[0], numBytes)
	}), nil
}

// TransposeOp permutes the axes of its input.
//
// A constant permutation (or none, meaning reversed axes) is resolved at conversion. A runtime
// permutation is downloaded before each execution, which synchronizes the stream: such an
// operation can't be captured.
type TransposeOp struct {
	engine.Base
	capturable  bool
	input       shapes.Shape
	permutation []int // nil for a runtime permutation.
}

// NewTranspose creates a TransposeOp.
func NewTranspose(_ *engine.CreationContext, opts *Options, node *ir.Node) (engine.Operation, error) {
	op := &TransposeOp{Base: engine.Base{IRNode: node}, capturable: opts.Capturable, input: node.Inputs[0].Shape()}
	rank := op.input.Rank()
	switch {
	case len(node.Inputs) == 1:
		op.permutation = make([]int, rank)
		for ii := range op.permutation {
			op.permutation[ii] = rank - 1 - ii
		}
	case node.Inputs[1].Node.IsConstant():
		permutation, err := ir.ConstantInts(node.Inputs[1].Node)
		if err != nil {
			return nil, engine.Unsupportedf("%s: %v", node, err)
		}
		if err := validPermutation(permutation, rank); err != nil {
			return nil, engine.Unsupportedf("%s: %v", node, err)
		}
		op.permutation = permutation
	default:
		if dtype := node.Inputs[1].Shape().DType; !dtype.IsInt() {
			return nil, engine.Unsupportedf("%s: permutation dtype %s is not an integer type", node, dtype)
		}
		op.capturable = false
	}
	return op, nil
}

func validPermutation(permutation []int, rank int) error {
	if len(permutation) != rank {
		return errors.Errorf("permutation %v doesn't have %d axes", permutation, rank)
	}
	sorted := slices.Clone(permutation)
	slices.Sort(sorted)
	for ii, axis := range sorted {
		if axis != ii {
			return errors.Errorf("%v is not a permutation of %d axes", permutation, rank)
		}
	}
	return nil
}

// Capturable implements engine.Operation.
func (op *TransposeOp) Capturable() bool { return op.capturable }

// Permutation returns the permutation resolved at conversion, or nil if it is only known at runtime.
func (op *TransposeOp) Permutation() []int { return op.permutation }

// Execute implements engine.Operation.
func (op *TransposeOp) Execute(stream *device.Stream, inputs, outputs []device.Pointer, _ engine.Workbuffers) error {
	permutation := op.permutation
	if permutation == nil {
		permShape := op.Node().Inputs[1].Shape()
		host := make([]byte, permShape.ByteSize())
		if err := stream.Download(host, inputs[1]); err != nil {
			return err
		}
		if err := stream.Synchronize(); err != nil {
			return err
		}
		permutation = make([]int, permShape.Size())
		for ii, axis := range ir.DecodeFloat64s(permShape.DType, host) {
			permutation[ii] = int(axis)
		}
		if err := validPermutation(permutation, op.input.Rank()); err != nil {
			return errors.WithMessagef(err, "%s", op.Node())
		}
	}
	return stream.Launch("transpose:"+op.Node().Name, func() error {
		kernels.Permute(op.input, permutation, inputs[0], outputs[0])
		return nil
	})
}
