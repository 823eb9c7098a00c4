// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package neon

import (
	"context"
	"fmt"
	"testing"

	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tensor(dtype dtypes.DType, dims []int, values ...float64) *engine.Tensor {
	return &engine.Tensor{Shape: shapes.Make(dtype, dims...), Data: ir.EncodeFloat64s(dtype, values)}
}

func infer(t *testing.T, g *ir.Graph, inputs map[string]*engine.Tensor) (map[string][]float64, *engine.CompiledModel) {
	t.Helper()
	m, err := engine.Compile(New(), g, nil)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	outputs, err := m.Infer(context.Background(), inputs)
	require.NoError(t, err)
	values := make(map[string][]float64, len(outputs))
	for name, output := range outputs {
		values[name] = ir.DecodeFloat64s(output.Shape.DType, output.Data)
	}
	return values, m
}

func creationContext() *engine.CreationContext {
	cfg := engine.DefaultConfig()
	dev, _ := New().NewDevice(cfg)
	return &engine.CreationContext{Device: dev, Config: cfg}
}

func TestConvertKernel(t *testing.T) {
	for _, tc := range []struct {
		src, dst dtypes.DType
		want     string
	}{
		{dtypes.Float32, dtypes.Float32, "copy"},
		{dtypes.Uint8, dtypes.Uint16, "depth_convert"},
		{dtypes.Uint8, dtypes.Int32, "depth_convert"},
		{dtypes.Int16, dtypes.Uint8, "depth_convert"},
		{dtypes.Float16, dtypes.Float32, "depth_convert"},
		{dtypes.Float32, dtypes.Float16, "depth_convert"},
		{dtypes.Uint8, dtypes.Float32, "reference_convert"},
		{dtypes.Int16, dtypes.Uint16, "reference_convert"},
		{dtypes.Int32, dtypes.Uint8, "reference_convert"},
		{dtypes.Uint32, dtypes.Int32, "reference_convert"},
		{dtypes.Float32, dtypes.Int32, "reference_convert"},
		{dtypes.Float16, dtypes.Int16, "reference_convert"},
		{dtypes.Float32, dtypes.Uint16, ""},
		{dtypes.Uint16, dtypes.Int16, ""},
		{dtypes.Int32, dtypes.Int64, ""},
		{dtypes.Float64, dtypes.Float32, ""},
		{dtypes.Bool, dtypes.Float32, ""},
	} {
		label, ok := ConvertKernel(tc.src, tc.dst)
		assert.Equalf(t, tc.want != "", ok, "%s -> %s", tc.src, tc.dst)
		assert.Equalf(t, tc.want, label, "%s -> %s", tc.src, tc.dst)
	}

	g := ir.New("convert")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 2))
	_, err := New().Registry().Create(creationContext(), g.Convert("to_u16", x, dtypes.Uint16).Node)
	require.ErrorIs(t, err, engine.ErrUnsupported)
}

func TestConvert(t *testing.T) {
	g := ir.New("convert")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 2))
	g.Result("truncated", g.Convert("f32_to_u8", x, dtypes.Uint8))
	y := g.Parameter("y", shapes.Make(dtypes.Uint16, 2))
	g.Result("saturated", g.Convert("u16_to_u8", y, dtypes.Uint8))
	g.Result("half", g.Convert("f32_to_f16", x, dtypes.Float16))
	outputs, m := infer(t, g, map[string]*engine.Tensor{
		"x": tensor(dtypes.Float32, []int{2}, 300.7, -5.5),
		"y": tensor(dtypes.Uint16, []int{2}, 300, 7),
	})
	assert.Equal(t, []float64{44, 251}, outputs["truncated"])
	assert.Equal(t, []float64{255, 7}, outputs["saturated"])
	assert.InDeltaSlice(t, []float64{300.75, -5.5}, outputs["half"], 0.01)

	assert.False(t, m.UsesGraphCapture())
	for _, run := range m.Subgraph().Runs {
		assert.False(t, run.Capturable)
	}
}

func TestRoundIsDecomposed(t *testing.T) {
	g := ir.New("round")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 5))
	g.Result("away", g.Round("round_away", x, ir.RoundHalfAwayFromZero))
	g.Result("even", g.Round("round_even", x, ir.RoundHalfToEven))
	outputs, _ := infer(t, g, map[string]*engine.Tensor{"x": tensor(dtypes.Float32, []int{5}, 0.5, 1.5, 2.5, -0.5, -1.2)})
	assert.Equal(t, []float64{1, 2, 3, -1, -1}, outputs["away"])
	assert.Equal(t, []float64{0, 2, 2, 0, -1}, outputs["even"])

	// Without the decomposition the mode is rejected.
	g = ir.New("round")
	x = g.Parameter("x", shapes.Make(dtypes.Float32, 5))
	_, err := New().Registry().Create(creationContext(), g.Round("round_away", x, ir.RoundHalfAwayFromZero).Node)
	require.ErrorIs(t, err, engine.ErrUnsupported)
}

func TestSwishIsDecomposed(t *testing.T) {
	g := ir.New("swish")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 2))
	g.Result("y", g.Activation(ir.OpTypeSwish, "swish", &ir.SwishAttrs{Beta: 1}, x))
	outputs, _ := infer(t, g, map[string]*engine.Tensor{"x": tensor(dtypes.Float32, []int{2}, 0, 2)})
	assert.InDeltaSlice(t, []float64{0, 2 / (1 + 0.1353352832)}, outputs["y"], 1e-5)

	// Integer Swish decomposes into an unsupported Sigmoid and a supported Multiply.
	g = ir.New("swish")
	x = g.Parameter("x", shapes.Make(dtypes.Int32, 2))
	g.Result("y", g.Activation(ir.OpTypeSwish, "swish", &ir.SwishAttrs{Beta: 1}, x))
	supported, err := engine.QuerySupported(New(), g, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, supported.Len())
	_, err = engine.Compile(New(), g, nil)
	require.ErrorIs(t, err, engine.ErrUnsupported)
}

func interpolateNode(t *testing.T, inDims, outDims []int, attrs ir.InterpolateAttrs) *ir.Node {
	t.Helper()
	g := ir.New("interpolate")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, inDims...))
	attrs.Sizes = outDims
	return g.Interpolate("interpolate", attrs, x).Node
}

func TestInterpolateRejections(t *testing.T) {
	nearest := ir.InterpolateAttrs{Mode: ir.InterpolateNearest, CoordinateTransform: ir.CoordAsymmetric, NearestMode: ir.NearestFloor}
	withPads, withAntialias, tfHalfPixel, ceil, cubic := nearest, nearest, nearest, nearest, nearest
	withPads.PadsBegin = []int{0, 0, 1, 0}
	withAntialias.Antialias = true
	tfHalfPixel.CoordinateTransform = ir.CoordTFHalfPixelForNN
	ceil.NearestMode = ir.NearestCeil
	cubic.Mode = ir.InterpolateCubic

	for name, tc := range map[string]struct {
		in, out []int
		attrs   ir.InterpolateAttrs
	}{
		"rank-3":               {[]int{1, 2, 2}, []int{1, 4, 4}, nearest},
		"channels-resized":     {[]int{1, 2, 2, 2}, []int{1, 4, 4, 4}, nearest},
		"batch-resized":        {[]int{1, 2, 2, 2}, []int{2, 2, 4, 4}, nearest},
		"pads":                 {[]int{1, 1, 2, 2}, []int{1, 1, 4, 4}, withPads},
		"antialias":            {[]int{1, 1, 2, 2}, []int{1, 1, 4, 4}, withAntialias},
		"tf_half_pixel_for_nn": {[]int{1, 1, 2, 2}, []int{1, 1, 4, 4}, tfHalfPixel},
		"ceil":                 {[]int{1, 1, 2, 2}, []int{1, 1, 4, 4}, ceil},
		"cubic":                {[]int{1, 1, 2, 2}, []int{1, 1, 4, 4}, cubic},
	} {
		_, err := New().Registry().Create(creationContext(), interpolateNode(t, tc.in, tc.out, tc.attrs))
		assert.ErrorIsf(t, err, engine.ErrUnsupported, "case %s", name)
	}
}

func TestNearestSupported(t *testing.T) {
	for _, tc := range []struct {
		coord                ir.CoordinateTransformMode
		nearest              ir.NearestMode
		inH, inW, outH, outW int
		want                 bool
	}{
		// Always supported combinations.
		{ir.CoordAsymmetric, ir.NearestFloor, 3, 3, 7, 5, true},
		{ir.CoordAlignCorners, ir.NearestRoundPreferCeil, 3, 3, 7, 5, true},
		// Upsampling.
		{ir.CoordAsymmetric, ir.NearestSimple, 2, 2, 5, 5, true},
		{ir.CoordHalfPixel, ir.NearestRoundPreferFloor, 2, 2, 4, 6, true},
		{ir.CoordHalfPixel, ir.NearestRoundPreferFloor, 2, 2, 5, 5, true},
		{ir.CoordAsymmetric, ir.NearestRoundPreferCeil, 2, 2, 4, 4, false},
		{ir.CoordHalfPixel, ir.NearestFloor, 2, 2, 4, 4, false},
		// Only one axis upsampled, or less than 2x, counts as downsampling.
		{ir.CoordHalfPixel, ir.NearestSimple, 4, 4, 4, 2, true},
		{ir.CoordHalfPixel, ir.NearestSimple, 2, 4, 4, 4, true},
		{ir.CoordHalfPixel, ir.NearestRoundPreferCeil, 2, 2, 3, 3, true},
		{ir.CoordHalfPixel, ir.NearestFloor, 2, 2, 3, 3, false},
		// Downsampling.
		{ir.CoordHalfPixel, ir.NearestSimple, 4, 4, 2, 2, true},
		{ir.CoordAlignCorners, ir.NearestSimple, 4, 4, 2, 2, false},
		{ir.CoordHalfPixel, ir.NearestSimple, 5, 5, 2, 2, true},
		{ir.CoordHalfPixel, ir.NearestRoundPreferCeil, 4, 4, 2, 2, true},
		{ir.CoordHalfPixel, ir.NearestRoundPreferCeil, 4, 4, 1, 2, false},
		{ir.CoordPytorchHalfPixel, ir.NearestRoundPreferCeil, 4, 4, 1, 2, true},
		{ir.CoordHalfPixel, ir.NearestRoundPreferFloor, 4, 4, 2, 2, false},
	} {
		got := NearestSupported(tc.coord, tc.nearest, tc.inH, tc.inW, tc.outH, tc.outW)
		assert.Equalf(t, tc.want, got, "%s/%s %dx%d -> %dx%d", tc.coord, tc.nearest, tc.inH, tc.inW, tc.outH, tc.outW)
	}
}

func TestSampling(t *testing.T) {
	assert.Equal(t, SamplingCenter, Sampling(ir.CoordHalfPixel, 1, 1))
	assert.Equal(t, SamplingCenter, Sampling(ir.CoordPytorchHalfPixel, 2, 2))
	assert.Equal(t, SamplingTopLeft, Sampling(ir.CoordPytorchHalfPixel, 1, 2))
	assert.Equal(t, SamplingTopLeft, Sampling(ir.CoordAsymmetric, 4, 4))
	assert.Equal(t, "CENTER", fmt.Sprint(SamplingCenter))
}

func TestInterpolate(t *testing.T) {
	g := ir.New("interpolate")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 1, 1, 2, 2))
	g.Result("nearest", g.Interpolate("resize_nearest", ir.InterpolateAttrs{
		Mode: ir.InterpolateNearest, CoordinateTransform: ir.CoordAsymmetric, NearestMode: ir.NearestFloor,
		Sizes: []int{1, 1, 4, 4},
	}, x))
	g.Result("linear", g.Interpolate("resize_linear", ir.InterpolateAttrs{
		Mode: ir.InterpolateLinear, CoordinateTransform: ir.CoordAlignCorners, Sizes: []int{1, 1, 3, 3},
	}, x))
	outputs, _ := infer(t, g, map[string]*engine.Tensor{"x": tensor(dtypes.Float32, []int{1, 1, 2, 2}, 1, 2, 3, 4)})
	assert.Equal(t, []float64{
		1, 1, 2, 2,
		1, 1, 2, 2,
		3, 3, 4, 4,
		3, 3, 4, 4,
	}, outputs["nearest"])
	assert.InDeltaSlice(t, []float64{
		1, 1.5, 2,
		2, 2.5, 3,
		3, 3.5, 4,
	}, outputs["linear"], 1e-6)
}

func TestQuerySupported(t *testing.T) {
	g := ir.New("query")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 1, 1, 2, 2))
	g.Result("resized", g.Interpolate("antialiased", ir.InterpolateAttrs{
		Mode: ir.InterpolateLinear, Antialias: true, Sizes: []int{1, 1, 4, 4},
	}, x))
	g.Result("activated", g.Unary(ir.OpTypeRelu, "relu", x))
	g.Result("rounded", g.Round("round", x, ir.RoundHalfAwayFromZero))

	supported, err := engine.QuerySupported(New(), g, nil)
	require.NoError(t, err)
	_, found := supported.Get("antialiased")
	assert.False(t, found)
	_, found = supported.Get("resized")
	assert.False(t, found)
	for _, name := range []string{"x", "relu", "activated", "round", "rounded"} {
		plugin, found := supported.Get(name)
		assert.Truef(t, found, "%s should be supported", name)
		assert.Equal(t, PluginName, plugin)
	}
}
