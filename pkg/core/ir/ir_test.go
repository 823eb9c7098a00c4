// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ir

import (
	"strings"
	"testing"

	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatMulShape(t *testing.T) {
	f32 := func(dims ...int) shapes.Shape { return shapes.Make(dtypes.Float32, dims...) }
	testCases := []struct {
		a, b       shapes.Shape
		tA, tB     bool
		wantOutput []int
	}{
		{f32(10), f32(10, 20), false, false, []int{20}},
		{f32(4, 3, 5), f32(5), false, false, []int{4, 3}},
		{f32(7), f32(7), false, false, []int{}},
		{f32(2, 3), f32(3, 4), false, false, []int{2, 4}},
		{f32(3, 2), f32(4, 3), true, true, []int{2, 4}},
		{f32(5, 1, 2, 3), f32(6, 3, 4), false, false, []int{5, 6, 2, 4}},
		{f32(10), f32(2, 20, 10), false, true, []int{2, 20}},
	}
	for _, tc := range testCases {
		output, err := MatMulShape(tc.a, tc.b, tc.tA, tc.tB)
		require.NoErrorf(t, err, "MatMul(%s, %s)", tc.a, tc.b)
		if diff := cmp.Diff(tc.wantOutput, output.Dimensions, cmpopts.EquateEmpty()); diff != "" {
			t.Errorf("MatMul(%s, %s) output mismatch (-want +got):\n%s", tc.a, tc.b, diff)
		}
	}
	_, err := MatMulShape(f32(2, 3), f32(4, 5), false, false)
	require.Error(t, err)
}

func TestConvolutionShape(t *testing.T) {
	g := New("conv")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 1, 3, 8, 8))
	weights := g.Constant("w", shapes.Make(dtypes.Float32, 4, 3, 3, 3), make([]byte, 4*3*3*3*4))
	y := g.Convolution("y", ConvolutionAttrs{Strides: []int{2, 2}, PadsBegin: []int{1, 1}, PadsEnd: []int{1, 1}}, x, weights)
	assert.Equal(t, []int{1, 4, 4, 4}, y.Shape().Dimensions)

	same := g.Convolution("same", ConvolutionAttrs{AutoPad: PadSameUpper}, x, weights)
	assert.Equal(t, []int{1, 4, 8, 8}, same.Shape().Dimensions)
	attrs := same.Node.Attrs.(*ConvolutionAttrs)
	assert.Equal(t, []int{1, 1}, attrs.PadsBegin)

	groupWeights := g.Constant("gw", shapes.Make(dtypes.Float32, 3, 2, 1, 3, 3), make([]byte, 3*2*3*3*4))
	gy := g.GroupConvolution("gy", ConvolutionAttrs{}, x, groupWeights)
	assert.Equal(t, []int{1, 6, 6, 6}, gy.Shape().Dimensions)

	err := exceptions.TryCatch[error](func() { g.Convolution("bad", ConvolutionAttrs{}, x, groupWeights) })
	require.Error(t, err)
}

func TestConsumersAndRewrite(t *testing.T) {
	g := New("chain")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 2, 2))
	a := g.Unary(OpTypeAbs, "a", x)
	b := g.Add("b", a, x)
	g.Result("out", b)

	consumers := g.Consumers()
	require.Len(t, consumers[x.Node.ID()][0], 2)
	assert.Equal(t, "a", consumers[x.Node.ID()][0][0].Node.Name)
	assert.Equal(t, 1, consumers[x.Node.ID()][0][1].InputIndex)

	// Replace Abs with Relu, keeping the name.
	rewritten := Rewrite(g, func(r *Rewriter, node *Node, inputs []Value) ([]Value, bool) {
		if node.Type != OpTypeAbs {
			return nil, false
		}
		return []Value{r.Dst.Unary(OpTypeRelu, node.Name, inputs[0])}, true
	})
	require.Equal(t, g.NumNodes(), rewritten.NumNodes())
	assert.Equal(t, OpTypeRelu, rewritten.NodeByName("a").Type)
	assert.Equal(t, rewritten.NodeByName("a"), rewritten.NodeByName("b").Inputs[0].Node)
	require.Len(t, rewritten.Results(), 1)
	require.Len(t, rewritten.Parameters(), 1)

	// Dropping a node that is still consumed is a bug.
	err := exceptions.TryCatch[error](func() {
		Rewrite(g, func(r *Rewriter, node *Node, inputs []Value) ([]Value, bool) {
			return nil, node.Type == OpTypeAbs
		})
	})
	require.ErrorContains(t, err, "dropped")

	// A dropped node may feed a node that is itself replaced: the pair is folded into one.
	folded := Rewrite(g, func(r *Rewriter, node *Node, inputs []Value) ([]Value, bool) {
		switch node.Name {
		case "a":
			return nil, true
		case "b":
			assert.True(t, r.IsDropped(node.Inputs[0]))
			assert.Nil(t, inputs[0].Node)
			x := r.Map(node.Inputs[1])
			return []Value{r.Dst.Add(node.Name, r.Dst.Unary(OpTypeRelu, "a", x), x)}, true
		}
		return nil, false
	})
	assert.Equal(t, OpTypeRelu, folded.NodeByName("a").Type)
	assert.Equal(t, "a", folded.NodeByName("b").Inputs[0].Node.Name)
}

func TestConstants(t *testing.T) {
	g := New("constants")
	c := ConstantOf(g, "perm", []int{3}, int64(2), int64(0), int64(1))
	ints, err := ConstantInts(c.Node)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0, 1}, ints)

	f := ConstantOf(g, "f", []int{2}, float32(1.5), float32(-2))
	floats, err := ConstantFloats(f.Node)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, -2}, floats)

	_, err = ConstantValues[int32](f.Node)
	require.Error(t, err)

	y := g.Transpose("t", g.Parameter("x", shapes.Make(dtypes.Int8, 2, 3, 4)), c)
	assert.Equal(t, []int{4, 2, 3}, y.Shape().Dimensions)

	data := EncodeFloat64s(dtypes.Float16, []float64{0.5, -3})
	assert.Equal(t, []float64{0.5, -3}, DecodeFloat64s(dtypes.Float16, data))
}

const tinyGraph = `
name: tiny
nodes:
  - {name: x, op: Parameter, dtype: f32, shape: [1, 3, 8, 8]}
  - {name: w, op: Constant, dtype: f32, shape: [4, 3, 3, 3], fill: 0.5}
  - name: conv
    op: Convolution
    inputs: [x, w]
    attrs: {pads_begin: [1, 1], pads_end: [1, 1]}
  - {name: clamp, op: Clamp, inputs: [conv], attrs: {min: 0, max: 6}}
  - {name: cast, op: Convert, inputs: [clamp], dtype: f16}
  - {name: out, op: Result, inputs: [cast]}
`

func TestLoadYAML(t *testing.T) {
	g, err := LoadYAML(strings.NewReader(tinyGraph))
	require.NoError(t, err)
	assert.Equal(t, "tiny", g.Name)
	require.Equal(t, 6, g.NumNodes())
	assert.Equal(t, shapes.Make(dtypes.Float16, 1, 4, 8, 8), g.NodeByName("cast").Outputs[0])
	assert.Equal(t, &ClampAttrs{Min: 0, Max: 6}, g.NodeByName("clamp").Attrs)

	_, err = LoadYAML(strings.NewReader("nodes:\n  - {name: y, op: Relu, inputs: [missing]}\n"))
	require.ErrorContains(t, err, "missing")
}
