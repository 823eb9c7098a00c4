// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"math"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/exceptions"
)

// minElementsPerTask is the smallest chunk of elementwise work handed to a worker.
const minElementsPerTask = 16 * 1024

// Activation describes an activation function, either standalone or fused into a convolution.
// A and B are the kind dependent parameters (see ir.ConvolutionAttrs).
type Activation struct {
	Kind ir.ActivationKind
	A, B float64
}

// IsIdentity returns whether the activation is a no-op.
func (a Activation) IsIdentity() bool {
	return a.Kind == "" || a.Kind == ir.ActivationIdentity
}

// SupportedActivation returns whether kind is implemented by the activation kernel.
func SupportedActivation(kind ir.ActivationKind) bool {
	switch kind {
	case "", ir.ActivationIdentity, ir.ActivationSigmoid, ir.ActivationTanh, ir.ActivationRelu,
		ir.ActivationBoundedRelu, ir.ActivationLuBoundedRelu, ir.ActivationLeakyRelu, ir.ActivationSoftRelu,
		ir.ActivationElu, ir.ActivationAbs, ir.ActivationSqrt, ir.ActivationHardSwish:
		return true
	}
	return false
}

// Apply evaluates the activation on x.
func (a Activation) Apply(x float64) float64 {
	switch a.Kind {
	case "", ir.ActivationIdentity:
		return x
	case ir.ActivationSigmoid:
		return 1 / (1 + math.Exp(-x))
	case ir.ActivationTanh:
		return math.Tanh(x)
	case ir.ActivationRelu:
		return math.Max(0, x)
	case ir.ActivationBoundedRelu:
		return math.Min(a.A, math.Max(0, x))
	case ir.ActivationLuBoundedRelu:
		return math.Min(a.A, math.Max(a.B, x))
	case ir.ActivationLeakyRelu:
		if x > 0 {
			return x
		}
		return a.A * x
	case ir.ActivationSoftRelu:
		return math.Log1p(math.Exp(x))
	case ir.ActivationElu:
		if x >= 0 {
			return x
		}
		return a.A * (math.Exp(x) - 1)
	case ir.ActivationAbs:
		return math.Abs(x)
	case ir.ActivationSqrt:
		return math.Sqrt(x)
	case ir.ActivationHardSwish:
		return x * math.Min(6, math.Max(0, x+3)) / 6
	}
	exceptions.Panicf("activation %q not implemented", a.Kind)
	return 0
}

// ActivationLayer applies act to numElements values of dtype, from src into dst.
// src and dst may be the same buffer.
func ActivationLayer(dtype dtypes.DType, src, dst device.Pointer, numElements int, act Activation) {
	in, out := newView(dtype, src, numElements), newView(dtype, dst, numElements)
	Workers.ParallelFor(numElements, minElementsPerTask, func(start, end int) {
		for ii := start; ii < end; ii++ {
			out.Set(ii, act.Apply(in.At(ii)))
		}
	})
}

// Clamp limits numElements values of dtype to [minValue, maxValue].
func Clamp(dtype dtypes.DType, src, dst device.Pointer, numElements int, minValue, maxValue float64) {
	ActivationLayer(dtype, src, dst, numElements,
		Activation{Kind: ir.ActivationLuBoundedRelu, A: maxValue, B: minValue})
}
