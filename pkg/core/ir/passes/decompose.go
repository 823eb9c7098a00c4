// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package passes

import (
	"github.com/gomlx/accel/pkg/core/ir"
)

// DecomposeRound rewrites Round nodes whose mode is not half-to-even into primitives:
//
//	sign(x) * select(|x| - floor(|x|) < 0.5, floor(|x|), ceiling(|x|))
//
// The last node keeps the friendly name of the Round. Integer Rounds are left untouched.
var DecomposeRound = Pass{Name: "DecomposeRound", Run: decomposeRound}

func decomposeRound(g *ir.Graph) *ir.Graph {
	return ir.Rewrite(g, func(r *ir.Rewriter, node *ir.Node, inputs []ir.Value) ([]ir.Value, bool) {
		if node.Type != ir.OpTypeRound || node.Attrs.(*ir.RoundAttrs).Mode == ir.RoundHalfToEven {
			return nil, false
		}
		x := inputs[0]
		dtype := x.Shape().DType
		if !dtype.IsFloat() {
			return nil, false
		}
		dst, name := r.Dst, node.Name
		abs := dst.Unary(ir.OpTypeAbs, name+"/abs", x)
		ceil := dst.Unary(ir.OpTypeCeiling, name+"/ceiling", abs)
		floor := dst.Unary(ir.OpTypeFloor, name+"/floor", abs)
		diff := dst.Subtract(name+"/diff", abs, floor)
		half := ir.ScalarConstant(dst, name+"/half", dtype, 0.5)
		mask := dst.Less(name+"/mask", diff, half)
		selected := dst.Select(name+"/select", mask, floor, ceil)
		sign := dst.Unary(ir.OpTypeSign, name+"/sign", x)
		result := dst.Multiply(name, sign, selected)
		inheritFusedNames([]ir.Value{abs, ceil, floor, diff, half, mask, selected, sign, result}, node)
		return []ir.Value{result}, true
	})
}

// DecomposeSwish rewrites Swish(x, beta) into x * sigmoid(beta * x).
var DecomposeSwish = Pass{Name: "DecomposeSwish", Run: decomposeSwish}

func decomposeSwish(g *ir.Graph) *ir.Graph {
	return ir.Rewrite(g, func(r *ir.Rewriter, node *ir.Node, inputs []ir.Value) ([]ir.Value, bool) {
		if node.Type != ir.OpTypeSwish {
			return nil, false
		}
		x := inputs[0]
		dst, name := r.Dst, node.Name
		created := make([]ir.Value, 0, 4)
		sigmoidInput := x
		if beta := node.Attrs.(*ir.SwishAttrs).Beta; beta != 1 {
			betaValue := ir.ScalarConstant(dst, name+"/beta", x.Shape().DType, beta)
			sigmoidInput = dst.Multiply(name+"/scaled", x, betaValue)
			created = append(created, betaValue, sigmoidInput)
		}
		sigmoid := dst.Unary(ir.OpTypeSigmoid, name+"/sigmoid", sigmoidInput)
		result := dst.Multiply(name, x, sigmoid)
		created = append(created, sigmoid, result)
		inheritFusedNames(created, node)
		return []ir.Value{result}, true
	})
}
