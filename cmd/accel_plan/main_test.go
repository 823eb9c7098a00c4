// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"os"
	"strings"
	"testing"

	"github.com/gomlx/accel/backends/cuda"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/backends/neon"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2"
)

func TestMain(m *testing.M) {
	klog.InitFlags(nil)
	flag.Parse()
	os.Exit(m.Run())
}

func tinyGraph(t *testing.T) *ir.Graph {
	f, err := os.Open("testdata/tiny.yaml")
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	graph, err := ir.LoadYAML(f)
	require.NoError(t, err)
	return graph
}

func TestSupportRows(t *testing.T) {
	graph, err := ir.LoadYAML(strings.NewReader(`
name: partial
nodes:
  - {name: x, op: Parameter, dtype: f32, shape: [2, 3]}
  - {name: g, op: Gelu, inputs: [x]}
  - {name: r, op: Relu, inputs: [x]}
  - {name: out_g, op: Result, inputs: [g]}
  - {name: out_r, op: Result, inputs: [r]}
`))
	require.NoError(t, err)
	supported, err := engine.QuerySupported(neon.New(), graph, nil)
	require.NoError(t, err)
	rows, unsupported := supportRows(graph, supported)
	require.Len(t, rows, 5)
	assert.Equal(t, []bool{false, true, false, true, false}, unsupported)
	assert.Equal(t, []string{"g", "Gelu"}, rows[1][:2])
	assert.Equal(t, "-", rows[1][3])
	assert.Equal(t, neon.PluginName, rows[2][3])
}

func TestCompiledReports(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.NumStreams = 2
	model, err := engine.Compile(cuda.New(), tinyGraph(t), cfg)
	require.NoError(t, err)
	defer model.Close()
	require.True(t, model.UsesGraphCapture())

	// Convolution, bias and relu are fused into one step.
	steps := stepRows(model.Subgraph())
	require.Len(t, steps, 5)
	assert.Equal(t, "Parameter", steps[0][2])
	assert.Equal(t, "memcpy", steps[0][3])
	for _, name := range []string{"conv", "biased", "act"} {
		assert.Contains(t, steps[1][1], name)
	}
	assert.Equal(t, "convolution", steps[1][3])
	for _, step := range steps {
		assert.Equal(t, "true", step[4])
		assert.Equal(t, "0", step[5])
	}

	var numConstants int
	for _, row := range memoryRows(model.Subgraph().Plan) {
		if row[0] == "constants" {
			numConstants++
		}
	}
	assert.Equal(t, 3, numConstants)

	elapsed, err := runRequests(model, 4, 7)
	require.NoError(t, err)
	assert.True(t, elapsed > 0)
	stats := model.Device().Stats()
	assert.Equal(t, int64(4), stats.GraphLaunches.Load())
	assert.LessOrEqual(t, stats.GraphInstantiations.Load(), int64(2))
}

func TestRunRequestsEager(t *testing.T) {
	cfg := engine.DefaultConfig()
	cfg.PerfCount = true
	model, err := engine.Compile(neon.New(), tinyGraph(t), cfg)
	require.NoError(t, err)
	defer model.Close()
	assert.False(t, model.UsesGraphCapture())
	require.Len(t, stepRows(model.Subgraph()), 7)

	_, err = runRequests(model, 3, 1)
	require.NoError(t, err)
	ops := model.Profiler().Ops()
	require.NotEmpty(t, ops)
	for _, timing := range ops {
		assert.Equal(t, 3, timing.Count, "op %s", timing.Name)
	}
	assert.Equal(t, 3, model.Profiler().Stages()[engine.StagePreprocess].Count)
}

func TestRandomInputs(t *testing.T) {
	params := tinyGraph(t).Parameters()
	inputs := randomInputs(params, 3)
	require.Len(t, inputs, 1)
	x := inputs["x"]
	require.NotNil(t, x)
	assert.Equal(t, dtypes.Float32, x.Shape.DType)
	values := ir.DecodeFloat64s(dtypes.Float32, x.Data)
	require.Len(t, values, 32)
	for _, v := range values {
		assert.True(t, v >= -1 && v < 1, "value %g out of range", v)
	}
	// Same seed, same inputs.
	assert.Equal(t, x.Data, randomInputs(params, 3)["x"].Data)
}
