// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/kernels"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/core/ir/passes"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

func TestMain(m *testing.M) {
	klog.InitFlags(nil)
	flag.Parse()
	os.Exit(m.Run())
}

// unaryOp runs an elementwise kernel. Abs is made non-capturable, to split the runs.
type unaryOp struct {
	Base
	capturable bool
}

func (op *unaryOp) Capturable() bool { return op.capturable }

func (op *unaryOp) Execute(stream *device.Stream, inputs, outputs []device.Pointer, _ Workbuffers) error {
	node := op.Node()
	return stream.Launch(node.Name, func() error {
		if node.Type == ir.OpTypeRelu {
			kernels.ActivationLayer(node.Outputs[0].DType, inputs[0], outputs[0], node.Outputs[0].Size(),
				kernels.Activation{Kind: ir.ActivationRelu})
			return nil
		}
		kernels.Unary(node.Type, node.Outputs[0], inputs[0], outputs[0])
		return nil
	})
}

type testPlugin struct {
	registry     *Registry
	graphCapture bool
}

func newTestPlugin(graphCapture bool) *testPlugin {
	p := &testPlugin{registry: NewRegistry("test"), graphCapture: graphCapture}
	for _, op := range []ir.OpType{ir.OpTypeNegative, ir.OpTypeAbs, ir.OpTypeRelu} {
		p.registry.Register(op, func(_ *CreationContext, node *ir.Node) (Operation, error) {
			if node.Outputs[0].DType != dtypes.Float32 {
				return nil, Unsupportedf("%s: only Float32 is supported", node)
			}
			return &unaryOp{Base: Base{IRNode: node}, capturable: node.Type != ir.OpTypeAbs}, nil
		})
	}
	return p
}

func (p *testPlugin) Name() string          { return "test" }
func (p *testPlugin) Registry() *Registry   { return p.registry }
func (p *testPlugin) Passes(*Config) []passes.Pass { return nil }
func (p *testPlugin) NewDevice(cfg *Config) (*device.Device, error) {
	return device.New(cfg.DeviceID, device.Properties{Name: "test", GraphCapture: p.graphCapture}), nil
}

// testGraph: r1 = relu(abs(-x)), r2 = -x.
func testGraph() *ir.Graph {
	g := ir.New("test")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 3))
	negative := g.Unary(ir.OpTypeNegative, "negative", x)
	abs := g.Unary(ir.OpTypeAbs, "abs", negative)
	relu := g.Unary(ir.OpTypeRelu, "relu", abs)
	g.Result("r1", relu)
	g.Result("r2", negative)
	return g
}

func float32Tensor(values ...float64) *Tensor {
	return &Tensor{Shape: shapes.Make(dtypes.Float32, len(values)), Data: ir.EncodeFloat64s(dtypes.Float32, values)}
}

func values(tensor *Tensor) []float64 {
	return ir.DecodeFloat64s(tensor.Shape.DType, tensor.Data)
}

func TestConfig(t *testing.T) {
	cfg, err := ParseConfig(map[string]string{
		KeyDeviceID:                   "NVIDIA.1",
		KeyInferencePrecisionHint:     "f16",
		KeyPerformanceHint:            "THROUGHPUT",
		KeyPerformanceHintNumRequests: "4",
		KeyPerfCount:                  "YES",
		KeyUseGraphCapture:            "NO",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.DeviceID)
	assert.Equal(t, dtypes.Float16, cfg.Precision())
	assert.Equal(t, 4, cfg.OptimalNumStreams())
	assert.True(t, cfg.PerfCount)
	assert.False(t, cfg.UseGraphCapture)

	require.NoError(t, cfg.Set(KeyExecutionModeHint, "ACCURACY"))
	assert.Equal(t, dtypes.Float32, cfg.Precision())
	require.NoError(t, cfg.Set(KeyNumStreams, "AUTO"))
	require.NoError(t, cfg.Set(KeyPerformanceHintNumRequests, "0"))
	assert.Equal(t, ReasonableLimitOfStreams, cfg.OptimalNumStreams())
	assert.Equal(t, 1, DefaultConfig().OptimalNumStreams())

	for key, value := range map[string]string{
		KeyDeviceID:               "GPU.1",
		KeyInferencePrecisionHint: "i8",
		KeyNumStreams:             "many",
		KeyPerfCount:              "maybe",
		"NOT_A_KEY":               "1",
	} {
		_, err := ParseConfig(map[string]string{key: value})
		require.Errorf(t, err, "%s=%q", key, value)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("DEVICE_ID: 2\nNUM_STREAMS: 3\nPERF_COUNT: YES\n"), 0o644))
	cfg, err = LoadConfigFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.DeviceID)
	assert.Equal(t, 3, cfg.OptimalNumStreams())
	require.NoError(t, os.WriteFile(path, []byte("NUM_STREAMS: [1, 2]\n"), 0o644))
	_, err = LoadConfigFile(path)
	require.Error(t, err)
}

func TestRegistry(t *testing.T) {
	plugin := newTestPlugin(false)
	ctx := &CreationContext{Device: device.New(0, device.Properties{Name: "test"}), Config: DefaultConfig()}
	g := ir.New("registry")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 3))
	sigmoid := g.Unary(ir.OpTypeSigmoid, "sigmoid", x)
	_, err := plugin.Registry().Create(ctx, sigmoid.Node)
	require.ErrorIs(t, err, ErrUnsupported)

	ints := g.Parameter("ints", shapes.Make(dtypes.Int32, 3))
	_, err = plugin.Registry().Create(ctx, g.Unary(ir.OpTypeAbs, "abs", ints).Node)
	require.ErrorIs(t, err, ErrUnsupported)
	assert.Contains(t, err.Error(), "only Float32")

	assert.True(t, plugin.Registry().Has(ir.OpTypeRelu))
	assert.Equal(t, []ir.OpType{ir.OpTypeAbs, ir.OpTypeNegative, ir.OpTypeRelu}, plugin.Registry().OpTypes())
}

func TestPartition(t *testing.T) {
	plugin := newTestPlugin(true)
	ctx := &CreationContext{Device: device.New(0, device.Properties{Name: "test", GraphCapture: true}), Config: DefaultConfig()}
	subgraph, err := NewSubgraph(ctx, plugin.Registry(), testGraph())
	require.NoError(t, err)
	want := []Run{{0, 2, true}, {2, 3, false}, {3, 6, true}}
	if diff := cmp.Diff(want, subgraph.Runs); diff != "" {
		t.Fatalf("runs mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, subgraph.IsCapturable())
	assert.Contains(t, subgraph.String(), "capturable=false")

	// Without graph capture on the device, parameters and results don't form capturable runs.
	g := ir.New("io")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 3))
	g.Result("r", g.Unary(ir.OpTypeAbs, "abs", x))
	ctx.Device = device.New(0, device.Properties{Name: "test"})
	subgraph, err = NewSubgraph(ctx, plugin.Registry(), g)
	require.NoError(t, err)
	if diff := cmp.Diff([]Run{{0, 3, false}}, subgraph.Runs); diff != "" {
		t.Fatalf("runs mismatch (-want +got):\n%s", diff)
	}
	assert.False(t, subgraph.IsCapturable())
}

func TestUnsupportedNodesAreAllReported(t *testing.T) {
	g := ir.New("unsupported")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 3))
	g.Result("r1", g.Unary(ir.OpTypeSigmoid, "sigmoid", x))
	g.Result("r2", g.Unary(ir.OpTypeTanh, "tanh", x))

	cfg := DefaultConfig()
	cfg.ThrowOnUnsupported = false
	_, err := Compile(newTestPlugin(false), g, cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 nodes")
	assert.Contains(t, err.Error(), "sigmoid")
	assert.Contains(t, err.Error(), "tanh")

	_, err = Compile(newTestPlugin(false), g, nil)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestInfer(t *testing.T) {
	for _, graphCapture := range []bool{false, true} {
		m, err := Compile(newTestPlugin(graphCapture), testGraph(), nil)
		require.NoError(t, err)
		assert.Equal(t, graphCapture, m.UsesGraphCapture())
		for range 3 {
			outputs, err := m.Infer(context.Background(), map[string]*Tensor{"x": float32Tensor(-1, 2, -3)})
			require.NoError(t, err)
			assert.Equal(t, []float64{1, 2, 3}, values(outputs["r1"]))
			assert.Equal(t, []float64{1, -2, 3}, values(outputs["r2"]))
		}

		_, err = m.Infer(context.Background(), map[string]*Tensor{"x": float32Tensor(1, 2)})
		require.ErrorContains(t, err, "expected")
		_, err = m.Infer(context.Background(), nil)
		require.ErrorContains(t, err, "missing input")
		m.Close()
	}
}

func TestCaptureContext(t *testing.T) {
	m, err := Compile(newTestPlugin(true), testGraph(), nil)
	require.NoError(t, err)
	defer m.Close()
	stats := m.Device().Stats()

	// First request captures one graph per capturable run.
	_, err = m.Infer(context.Background(), map[string]*Tensor{"x": float32Tensor(-1, 2, -3)})
	require.NoError(t, err)
	assert.EqualValues(t, 2, stats.GraphInstantiations.Load())
	assert.EqualValues(t, 0, stats.MemcpyNodeUpdates.Load())
	capture := m.CaptureContexts()[0]
	assert.Equal(t, CaptureCaptured, capture.State())

	// New host buffers: the 3 memcpy nodes are updated, nothing is re-instantiated.
	outputs, err := m.Infer(context.Background(), map[string]*Tensor{"x": float32Tensor(4, -5, 6)})
	require.NoError(t, err)
	assert.Equal(t, []float64{4, 5, 6}, values(outputs["r1"]))
	assert.EqualValues(t, 2, stats.GraphInstantiations.Load())
	assert.EqualValues(t, 3, stats.MemcpyNodeUpdates.Load())

	// Same host buffers: nothing to update.
	ws, err := m.pool.WaitAndGet(context.Background())
	require.NoError(t, err)
	defer m.pool.Put(ws)
	inputs := []*Tensor{float32Tensor(7, 8, -9)}
	results := []*Tensor{NewTensor(shapes.Make(dtypes.Float32, 3)), NewTensor(shapes.Make(dtypes.Float32, 3))}
	req := NewRequestContext(context.Background(), inputs, results, m.streams[ws.Index()], m.manager.Bind(ws),
		m.profiler, m.captures[ws.Index()])
	capture = req.CaptureContext()
	require.NoError(t, capture.Prepare(req))
	require.NoError(t, capture.Launch(req))
	updates := stats.MemcpyNodeUpdates.Load()
	require.NoError(t, capture.Prepare(req))
	require.NoError(t, capture.Launch(req))
	assert.Equal(t, updates, stats.MemcpyNodeUpdates.Load())
	assert.Equal(t, []float64{7, 8, 9}, values(results[0]))

	// Invalidate forces an update of the memcpy nodes, Reset a new capture.
	capture.Invalidate()
	assert.Equal(t, CaptureStale, capture.State())
	require.NoError(t, capture.Prepare(req))
	assert.Equal(t, updates+3, stats.MemcpyNodeUpdates.Load())
	capture.Reset()
	require.Error(t, capture.Launch(req))
	require.NoError(t, capture.Prepare(req))
	assert.EqualValues(t, 4, stats.GraphInstantiations.Load())
}

func TestCancel(t *testing.T) {
	m, err := Compile(newTestPlugin(false), testGraph(), nil)
	require.NoError(t, err)
	defer m.Close()
	require.Equal(t, 1, m.NumStreams())

	// Hold the only workspace, so the request waits.
	ws, err := m.pool.WaitAndGet(context.Background())
	require.NoError(t, err)
	var g errgroup.Group
	g.Go(func() error {
		_, err := m.Infer(context.Background(), map[string]*Tensor{"x": float32Tensor(1, 2, 3)})
		return err
	})
	time.Sleep(10 * time.Millisecond)
	m.Cancel()
	require.ErrorIs(t, g.Wait(), context.Canceled)
	m.pool.Put(ws)

	// Requests after Cancel run normally.
	_, err = m.Infer(context.Background(), map[string]*Tensor{"x": float32Tensor(1, 2, 3)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Infer(ctx, map[string]*Tensor{"x": float32Tensor(1, 2, 3)})
	require.True(t, errors.Is(err, context.Canceled))
}

func TestConcurrentRequests(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumStreams = 2
	m, err := Compile(newTestPlugin(true), testGraph(), cfg)
	require.NoError(t, err)
	defer m.Close()
	var g errgroup.Group
	for ii := range 8 {
		g.Go(func() error {
			v := float64(ii)
			outputs, err := m.Infer(context.Background(), map[string]*Tensor{"x": float32Tensor(-v, v, -2*v)})
			if err != nil {
				return err
			}
			if got := values(outputs["r1"]); !cmp.Equal(got, []float64{v, v, 2 * v}) {
				return errors.Errorf("request %d: got %v", ii, got)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestProfiler(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PerfCount = true
	m, err := Compile(newTestPlugin(true), testGraph(), cfg)
	require.NoError(t, err)
	defer m.Close()
	assert.False(t, m.UsesGraphCapture())
	for range 2 {
		_, err = m.Infer(context.Background(), map[string]*Tensor{"x": float32Tensor(1, 2, 3)})
		require.NoError(t, err)
	}
	ops := m.Profiler().Ops()
	require.Len(t, ops, 3)
	assert.Equal(t, "negative", ops[0].Name)
	assert.Equal(t, "Abs", ops[1].Type)
	assert.Equal(t, 2, ops[2].Count)
	for _, stage := range m.Profiler().Stages() {
		assert.Equalf(t, 2, stage.Count, "stage %s", stage.Name)
	}

	disabled := NewProfiler(false)
	disabled.StartStage(StagePreprocess)()
	disabled.RecordOp(0, "x", "Abs", time.Second)
	assert.Empty(t, disabled.Ops())
}

func TestQuerySupported(t *testing.T) {
	g := ir.New("query")
	x := g.Parameter("x", shapes.Make(dtypes.Float32, 3))
	y := g.Parameter("y", shapes.Make(dtypes.Float32, 3))
	g.Result("r1", g.Unary(ir.OpTypeSigmoid, "sigmoid", x))
	g.Result("r2", g.Unary(ir.OpTypeRelu, "relu", x))
	g.Result("r3", g.Unary(ir.OpTypeTanh, "tanh", y))
	g.Result("r4", y)

	supported, err := QuerySupported(newTestPlugin(false), g, nil)
	require.NoError(t, err)
	var names []string
	for pair := supported.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
		assert.Equal(t, "test", pair.Value)
	}
	// sigmoid and tanh are unsupported, so are the results they feed; y stays since it's returned.
	assert.Equal(t, []string{"x", "y", "relu", "r2", "r4"}, names)
}
