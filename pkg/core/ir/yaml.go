// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"io"
	"strconv"
	"strings"

	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// graphFile is the YAML layout of a graph:
//
//	name: tiny
//	nodes:
//	  - {name: x, op: Parameter, dtype: f32, shape: [1, 3, 8, 8]}
//	  - {name: w, op: Constant, dtype: f32, shape: [4, 3, 3, 3], fill: 0.5}
//	  - {name: conv, op: Convolution, inputs: [x, w], attrs: {pads_begin: [1, 1], pads_end: [1, 1]}}
//	  - {name: out, op: Result, inputs: [conv]}
//
// Inputs refer to "<node>" (output 0) or "<node>:<index>".
type graphFile struct {
	Name  string     `yaml:"name"`
	Nodes []nodeSpec `yaml:"nodes"`
}

type nodeSpec struct {
	Name       string    `yaml:"name"`
	Op         string    `yaml:"op"`
	Inputs     []string  `yaml:"inputs"`
	DType      string    `yaml:"dtype"`
	Shape      []int     `yaml:"shape"`
	Values     []float64 `yaml:"values"`
	Fill       *float64  `yaml:"fill"`
	Attrs      yaml.Node `yaml:"attrs"`
	FusedNames []string  `yaml:"fused_names"`
}

// LoadYAML reads a graph in the YAML layout documented in graphFile.
func LoadYAML(r io.Reader) (*Graph, error) {
	var file graphFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, errors.Wrap(err, "parsing graph YAML")
	}
	g := New(file.Name)
	for ii := range file.Nodes {
		spec := &file.Nodes[ii]
		err := exceptions.TryCatch[error](func() { addNodeFromSpec(g, spec) })
		if err != nil {
			return nil, errors.WithMessagef(err, "node #%d (%q)", ii, spec.Name)
		}
	}
	return g, nil
}

func (spec *nodeSpec) decodeAttrs(attrs any) {
	if spec.Attrs.Kind == 0 {
		return
	}
	if err := spec.Attrs.Decode(attrs); err != nil {
		exceptions.Panicf("decoding attributes: %v", err)
	}
}

func (spec *nodeSpec) dtype() dtypes.DType {
	dtype, err := dtypes.Parse(spec.DType)
	if err != nil {
		exceptions.Panicf("%v", err)
	}
	return dtype
}

func (spec *nodeSpec) payload(shape shapes.Shape) []byte {
	values := spec.Values
	if spec.Fill != nil {
		values = make([]float64, shape.Size())
		for ii := range values {
			values[ii] = *spec.Fill
		}
	}
	if len(values) != shape.Size() {
		exceptions.Panicf("constant of shape %s needs %d values, got %d", shape, shape.Size(), len(values))
	}
	return EncodeFloat64s(shape.DType, values)
}

func resolveInput(g *Graph, ref string) Value {
	name, index := ref, 0
	if idx := strings.LastIndex(ref, ":"); idx != -1 {
		var err error
		index, err = strconv.Atoi(ref[idx+1:])
		if err != nil {
			exceptions.Panicf("invalid input reference %q", ref)
		}
		name = ref[:idx]
	}
	node := g.NodeByName(name)
	if node == nil {
		exceptions.Panicf("input %q not defined before use", ref)
	}
	return node.Output(index)
}

func addNodeFromSpec(g *Graph, spec *nodeSpec) {
	op, err := OpTypeString(spec.Op)
	if err != nil || op == OpTypeInvalid || op == OpTypeLast {
		exceptions.Panicf("unknown op %q", spec.Op)
	}
	inputs := make([]Value, len(spec.Inputs))
	for ii, ref := range spec.Inputs {
		inputs[ii] = resolveInput(g, ref)
	}
	wantInputs := func(counts ...int) {
		for _, count := range counts {
			if len(inputs) == count {
				return
			}
		}
		exceptions.Panicf("%s takes %v inputs, got %d", op, counts, len(inputs))
	}

	var value Value
	switch {
	case op == OpTypeParameter:
		wantInputs(0)
		value = g.Parameter(spec.Name, shapes.Make(spec.dtype(), spec.Shape...))
	case op == OpTypeConstant:
		wantInputs(0)
		shape := shapes.Make(spec.dtype(), spec.Shape...)
		value = g.Constant(spec.Name, shape, spec.payload(shape))
	case op == OpTypeResult:
		wantInputs(1)
		g.Result(spec.Name, inputs[0])
		return
	case op == OpTypeConvolution || op == OpTypeGroupConvolution:
		wantInputs(2, 3)
		var attrs ConvolutionAttrs
		spec.decodeAttrs(&attrs)
		if op == OpTypeConvolution {
			value = g.Convolution(spec.Name, attrs, inputs[0], inputs[1], inputs[2:]...)
		} else {
			value = g.GroupConvolution(spec.Name, attrs, inputs[0], inputs[1], inputs[2:]...)
		}
	case op == OpTypeConvert:
		wantInputs(1)
		value = g.Convert(spec.Name, inputs[0], spec.dtype())
	case op == OpTypeInterpolate:
		wantInputs(1)
		var attrs InterpolateAttrs
		spec.decodeAttrs(&attrs)
		value = g.Interpolate(spec.Name, attrs, inputs[0])
	case op == OpTypeRound:
		wantInputs(1)
		attrs := RoundAttrs{Mode: RoundHalfToEven}
		spec.decodeAttrs(&attrs)
		value = g.Round(spec.Name, inputs[0], attrs.Mode)
	case op == OpTypeConcat:
		var attrs ConcatAttrs
		spec.decodeAttrs(&attrs)
		value = g.Concat(spec.Name, attrs.Axis, inputs...)
	case op == OpTypeMatMul:
		wantInputs(2)
		var attrs MatMulAttrs
		spec.decodeAttrs(&attrs)
		value = g.MatMul(spec.Name, inputs[0], inputs[1], attrs.TransposeA, attrs.TransposeB)
	case op == OpTypeTranspose:
		wantInputs(1, 2)
		if len(inputs) == 2 && !inputs[1].Node.IsConstant() {
			value = g.TransposeDynamic(spec.Name, inputs[0], inputs[1], shapes.Make(inputs[0].Shape().DType, spec.Shape...))
		} else {
			value = g.Transpose(spec.Name, inputs[0], inputs[1:]...)
		}
	case op == OpTypeReshape:
		wantInputs(1)
		value = g.Reshape(spec.Name, inputs[0], spec.Shape...)
	case op == OpTypeSelect:
		wantInputs(3)
		value = g.Select(spec.Name, inputs[0], inputs[1], inputs[2])
	case op.IsBinary():
		wantInputs(2)
		value = g.Binary(op, spec.Name, inputs[0], inputs[1])
	case op.IsUnary():
		wantInputs(1)
		value = g.Unary(op, spec.Name, inputs[0])
	case op.IsActivation():
		wantInputs(1)
		attrs := newAttrs(op)
		if attrs != nil {
			spec.decodeAttrs(attrs)
			value = g.Activation(op, spec.Name, attrs, inputs[0])
		} else {
			value = g.Unary(op, spec.Name, inputs[0])
		}
	default:
		exceptions.Panicf("op %s can't be loaded from YAML", op)
	}
	if len(spec.FusedNames) > 0 {
		value.Node.FusedNames = spec.FusedNames
	}
}
