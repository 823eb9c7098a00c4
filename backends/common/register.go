// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package common

import (
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/pkg/core/ir"
)

// RegisterShared registers the operations whose conversion is the same for every plugin.
// Convert, Interpolate and Clamp are left to the plugin.
func RegisterShared(registry *engine.Registry, opts *Options) {
	for op := ir.OpTypeAdd; op <= ir.OpTypeEqual; op++ {
		registry.Register(op, opts.Factory(NewBinary))
	}
	for op := ir.OpTypeAbs; op <= ir.OpTypeNegative; op++ {
		registry.Register(op, opts.Factory(NewUnary))
	}
	for _, op := range []ir.OpType{ir.OpTypeRelu, ir.OpTypeSigmoid, ir.OpTypeTanh, ir.OpTypeElu,
		ir.OpTypeHSwish, ir.OpTypeSoftPlus, ir.OpTypeLeakyRelu} {
		registry.Register(op, opts.Factory(NewActivation))
	}
	registry.Register(ir.OpTypeRound, opts.Factory(NewRound))
	registry.Register(ir.OpTypeSelect, opts.Factory(NewSelect))
	registry.Register(ir.OpTypeConcat, opts.Factory(NewConcat))
	registry.Register(ir.OpTypeReshape, opts.Factory(NewReshape))
	registry.Register(ir.OpTypeTranspose, opts.Factory(NewTranspose))
	registry.Register(ir.OpTypeMatMul, opts.Factory(NewMatMul))
	registry.Register(ir.OpTypeConvolution, opts.Factory(NewConvolution))
	registry.Register(ir.OpTypeGroupConvolution, opts.Factory(NewConvolution))
}
