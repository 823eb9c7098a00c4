// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

// OpType is an enum of all operations a graph node can hold.
//
// Each OpType has a fixed attribute type (see Attrs), which makes Node a tagged variant:
// the pair (OpType, Attrs) is checked when the node is built.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota
	OpTypeParameter
	OpTypeConstant
	OpTypeResult

	OpTypeConvolution
	OpTypeGroupConvolution
	OpTypeConvert
	OpTypeInterpolate
	OpTypeRound
	OpTypeConcat
	OpTypeMatMul
	OpTypeTranspose
	OpTypeReshape
	OpTypeSelect

	// Elementwise binary ops, with numpy broadcasting.
	OpTypeAdd
	OpTypeSubtract
	OpTypeMultiply
	OpTypeDivide
	OpTypeMaximum
	OpTypeMinimum
	OpTypePower
	OpTypeLess
	OpTypeGreater
	OpTypeEqual

	// Elementwise unary ops.
	OpTypeAbs
	OpTypeFloor
	OpTypeCeiling
	OpTypeSign
	OpTypeSqrt
	OpTypeExp
	OpTypeNegative

	// Activations.
	OpTypeRelu
	OpTypeSigmoid
	OpTypeTanh
	OpTypeElu
	OpTypeHSwish
	OpTypeSoftPlus
	OpTypeLeakyRelu
	OpTypeClamp
	OpTypeSwish
	OpTypeGelu

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

// IsBinary returns whether op is an elementwise binary op.
func (op OpType) IsBinary() bool {
	return op >= OpTypeAdd && op <= OpTypeEqual
}

// IsComparison returns whether op is a binary op with a boolean output.
func (op OpType) IsComparison() bool {
	return op == OpTypeLess || op == OpTypeGreater || op == OpTypeEqual
}

// IsUnary returns whether op is an elementwise unary math op.
func (op OpType) IsUnary() bool {
	return op >= OpTypeAbs && op <= OpTypeNegative
}

// IsActivation returns whether op is an activation function.
func (op OpType) IsActivation() bool {
	return op >= OpTypeRelu && op <= OpTypeGelu
}

// IsGraphBoundary returns whether op is a Parameter, Constant or Result: nodes that don't execute
// any kernel, but define where data enters and leaves a graph.
func (op OpType) IsGraphBoundary() bool {
	return op == OpTypeParameter || op == OpTypeConstant || op == OpTypeResult
}
