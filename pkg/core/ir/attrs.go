// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"github.com/gomlx/accel/pkg/core/dtypes"
)

// PadType selects how convolution paddings are computed.
type PadType string

const (
	PadExplicit  PadType = "explicit"
	PadValid     PadType = "valid"
	PadSameUpper PadType = "same_upper"
	PadSameLower PadType = "same_lower"
)

// ActivationKind is the activation fused into a convolution.
type ActivationKind string

const (
	ActivationIdentity      ActivationKind = "identity"
	ActivationSigmoid       ActivationKind = "sigmoid"
	ActivationTanh          ActivationKind = "tanh"
	ActivationRelu          ActivationKind = "relu"
	ActivationBoundedRelu   ActivationKind = "bounded_relu"    // min(A, max(0, x))
	ActivationLuBoundedRelu ActivationKind = "lu_bounded_relu" // min(A, max(B, x))
	ActivationLeakyRelu     ActivationKind = "leaky_relu"
	ActivationSoftRelu      ActivationKind = "soft_relu"
	ActivationElu           ActivationKind = "elu"
	ActivationAbs           ActivationKind = "abs"
	ActivationSqrt          ActivationKind = "sqrt"
	ActivationHardSwish     ActivationKind = "hard_swish"
	ActivationSwish         ActivationKind = "swish"
	ActivationGelu          ActivationKind = "gelu"
	ActivationMish          ActivationKind = "mish"
)

// ConvolutionAttrs holds the attributes of Convolution and GroupConvolution.
//
// Per-axis slices are ordered like the spatial axes of the input: [H, W].
type ConvolutionAttrs struct {
	Strides   []int   `yaml:"strides"`
	Dilations []int   `yaml:"dilations"`
	PadsBegin []int   `yaml:"pads_begin"`
	PadsEnd   []int   `yaml:"pads_end"`
	AutoPad   PadType `yaml:"auto_pad"`

	// Activation fused into the convolution, set by passes.FuseConvolutionActivation.
	// Empty means no activation.
	Activation ActivationKind `yaml:"activation"`

	// ActivationA and ActivationB are the activation parameters: the upper and lower bounds
	// for bounded relus, the slope for leaky relu, alpha for elu.
	ActivationA float64 `yaml:"activation_a"`
	ActivationB float64 `yaml:"activation_b"`
}

// ConvertAttrs holds the destination type of a Convert node.
type ConvertAttrs struct {
	DType dtypes.DType `yaml:"-"`
}

// InterpolateMode is the resize method.
type InterpolateMode string

const (
	InterpolateNearest    InterpolateMode = "nearest"
	InterpolateLinear     InterpolateMode = "linear"
	InterpolateLinearOnnx InterpolateMode = "linear_onnx"
	InterpolateCubic      InterpolateMode = "cubic"
)

// CoordinateTransformMode maps output coordinates to input coordinates in Interpolate.
type CoordinateTransformMode string

const (
	CoordHalfPixel        CoordinateTransformMode = "half_pixel"
	CoordPytorchHalfPixel CoordinateTransformMode = "pytorch_half_pixel"
	CoordAsymmetric       CoordinateTransformMode = "asymmetric"
	CoordTFHalfPixelForNN CoordinateTransformMode = "tf_half_pixel_for_nn"
	CoordAlignCorners     CoordinateTransformMode = "align_corners"
)

// NearestMode selects how a fractional coordinate is rounded in nearest Interpolate.
type NearestMode string

const (
	NearestRoundPreferFloor NearestMode = "round_prefer_floor"
	NearestRoundPreferCeil  NearestMode = "round_prefer_ceil"
	NearestFloor            NearestMode = "floor"
	NearestCeil             NearestMode = "ceil"
	NearestSimple           NearestMode = "simple"
)

// InterpolateAttrs holds the attributes of an Interpolate (resize) node.
type InterpolateAttrs struct {
	Mode                InterpolateMode         `yaml:"mode"`
	CoordinateTransform CoordinateTransformMode `yaml:"coordinate_transformation_mode"`
	NearestMode         NearestMode             `yaml:"nearest_mode"`
	Antialias           bool                    `yaml:"antialias"`
	PadsBegin           []int                   `yaml:"pads_begin"`
	PadsEnd             []int                   `yaml:"pads_end"`
	CubeCoeff           float64                 `yaml:"cube_coeff"`

	// Sizes is the full output shape. It must have the same rank as the input.
	Sizes []int `yaml:"sizes"`
}

// RoundMode selects how Round breaks ties.
type RoundMode string

const (
	RoundHalfToEven       RoundMode = "half_to_even"
	RoundHalfAwayFromZero RoundMode = "half_away_from_zero"
)

// RoundAttrs holds the attributes of a Round node.
type RoundAttrs struct {
	Mode RoundMode `yaml:"mode"`
}

// ConcatAttrs holds the attributes of a Concat node.
type ConcatAttrs struct {
	Axis int `yaml:"axis"`
}

// MatMulAttrs holds the attributes of a MatMul node.
type MatMulAttrs struct {
	TransposeA bool `yaml:"transpose_a"`
	TransposeB bool `yaml:"transpose_b"`
}

// ClampAttrs holds the attributes of a Clamp node.
type ClampAttrs struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

// EluAttrs holds the attributes of an Elu node.
type EluAttrs struct {
	Alpha float64 `yaml:"alpha"`
}

// LeakyReluAttrs holds the slope of a LeakyRelu node.
type LeakyReluAttrs struct {
	Slope float64 `yaml:"slope"`
}

// SwishAttrs holds the beta of a Swish node: x * sigmoid(beta * x).
type SwishAttrs struct {
	Beta float64 `yaml:"beta"`
}

// newAttrs returns a pointer to the default attribute value for op, or nil if op takes no attributes.
func newAttrs(op OpType) any {
	switch op {
	case OpTypeConvolution, OpTypeGroupConvolution:
		return &ConvolutionAttrs{}
	case OpTypeConvert:
		return &ConvertAttrs{}
	case OpTypeInterpolate:
		return &InterpolateAttrs{}
	case OpTypeRound:
		return &RoundAttrs{}
	case OpTypeConcat:
		return &ConcatAttrs{}
	case OpTypeMatMul:
		return &MatMulAttrs{}
	case OpTypeClamp:
		return &ClampAttrs{}
	case OpTypeElu:
		return &EluAttrs{Alpha: 1}
	case OpTypeLeakyRelu:
		return &LeakyReluAttrs{Slope: 0.01}
	case OpTypeSwish:
		return &SwishAttrs{Beta: 1}
	}
	return nil
}
