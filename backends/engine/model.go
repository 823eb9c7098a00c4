// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"
	"sync"
	"time"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/memory"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/core/ir/passes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CompiledModel is a graph lowered for a plugin: its operations, memory and streams.
// Infer can be called concurrently, up to the number of streams in parallel.
type CompiledModel struct {
	plugin   Plugin
	config   *Config
	device   *device.Device
	subgraph *Subgraph
	runner   *TopologyRunner
	manager  *memory.Manager
	pool     *memory.Pool
	profiler *Profiler

	// Per workspace.
	streams  []*device.Stream
	captures []*CaptureContext

	useCapture bool

	mu     sync.Mutex
	ctx    context.Context // Cancelled by Cancel; replaced for the following requests.
	cancel context.CancelFunc
}

// Compile lowers graph for plugin. cfg may be nil for the default configuration.
func Compile(plugin Plugin, graph *ir.Graph, cfg *Config) (*CompiledModel, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	dev, err := plugin.NewDevice(cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s: opening device %d", plugin.Name(), cfg.DeviceID)
	}
	lowered := passes.Apply(graph, plugin.Passes(cfg)...)
	creation := &CreationContext{Device: dev, Config: cfg}
	subgraph, err := NewSubgraph(creation, plugin.Registry(), lowered)
	if err != nil {
		return nil, err
	}
	m := &CompiledModel{
		plugin:   plugin,
		config:   cfg,
		device:   dev,
		subgraph: subgraph,
		runner:   NewTopologyRunner(subgraph),
		profiler: NewProfiler(cfg.PerfCount || cfg.OperationBenchmark),
	}
	// Per-op timings are only meaningful when steps are executed one by one.
	m.useCapture = cfg.UseGraphCapture && dev.Properties().GraphCapture && subgraph.IsCapturable() && !m.profiler.Enabled()
	m.ctx, m.cancel = context.WithCancel(context.Background())

	if m.manager, err = memory.NewManager(dev, subgraph.Plan); err != nil {
		return nil, err
	}
	if err = m.initSharedBuffers(); err != nil {
		m.manager.Free()
		return nil, err
	}
	numStreams := cfg.OptimalNumStreams()
	if m.pool, err = memory.NewPool(dev, m.manager.MutableSize(), numStreams); err != nil {
		m.manager.Free()
		return nil, err
	}
	for range numStreams {
		m.streams = append(m.streams, dev.NewStream())
		m.captures = append(m.captures, NewCaptureContext(m.runner))
	}
	klog.V(1).Infof("%s: compiled %q on %s: %d steps, %d streams, graph capture=%v",
		plugin.Name(), graph.Name, dev, len(subgraph.Steps), numStreams, m.useCapture)

	if cfg.OperationBenchmark {
		m.benchmarkOperations(operationBenchmarkIterations)
	}
	return m, nil
}

// initSharedBuffers uploads the constants and initializes the immutable workbuffers.
func (m *CompiledModel) initSharedBuffers() error {
	return m.manager.InitImmutable(func(proxy *memory.Proxy) error {
		stream := m.device.NewStream()
		for id, data := range m.subgraph.Constants {
			if err := stream.Upload(proxy.Pointer(id), data); err != nil {
				return errors.WithMessagef(err, "uploading constant #%d", id)
			}
		}
		for _, step := range m.subgraph.Steps {
			initializer, ok := step.Op.(ImmutableInitializer)
			if !ok {
				continue
			}
			if err := initializer.InitSharedImmutableWorkbuffers(stream, proxy.Pointers(step.Immutable)); err != nil {
				return errors.WithMessagef(err, "initializing workbuffers of %s", step.Node)
			}
		}
		return stream.Synchronize()
	})
}

// Plugin that compiled the model.
func (m *CompiledModel) Plugin() Plugin { return m.plugin }

// Config used to compile the model.
func (m *CompiledModel) Config() *Config { return m.config }

// Device of the model.
func (m *CompiledModel) Device() *device.Device { return m.device }

// Subgraph returns the execution sequence.
func (m *CompiledModel) Subgraph() *Subgraph { return m.subgraph }

// Profiler of the model, enabled with PERF_COUNT.
func (m *CompiledModel) Profiler() *Profiler { return m.profiler }

// NumStreams returns the number of requests that can run in parallel.
func (m *CompiledModel) NumStreams() int { return len(m.streams) }

// UsesGraphCapture returns whether requests replay captured device graphs.
func (m *CompiledModel) UsesGraphCapture() bool { return m.useCapture }

// CaptureContexts returns the capture context of each workspace.
func (m *CompiledModel) CaptureContexts() []*CaptureContext { return m.captures }

// Parameters returns the names and shapes of the expected inputs, in order.
func (m *CompiledModel) Parameters() []*ir.Node { return m.subgraph.Graph.Parameters() }

// Results returns the result nodes, in order.
func (m *CompiledModel) Results() []*ir.Node { return m.subgraph.Graph.Results() }

// requestContext returns a context cancelled either by ctx or by Cancel.
func (m *CompiledModel) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	m.mu.Lock()
	modelCtx := m.ctx
	m.mu.Unlock()
	reqCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(modelCtx, cancel)
	return reqCtx, func() {
		stop()
		cancel()
	}
}

// Cancel cancels the requests in flight, including those waiting for a workspace.
// Requests started afterwards run normally.
func (m *CompiledModel) Cancel() {
	m.mu.Lock()
	m.cancel()
	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.mu.Unlock()
	m.pool.Interrupt()
}

// Close releases the device memory. No request may be running.
func (m *CompiledModel) Close() {
	m.Cancel()
	m.pool.Close()
	m.manager.Free()
}

// Infer runs the model on inputs, given by parameter name, and returns the outputs by result name.
func (m *CompiledModel) Infer(ctx context.Context, inputs map[string]*Tensor) (map[string]*Tensor, error) {
	ctx, cancel := m.requestContext(ctx)
	defer cancel()

	stopStage := m.profiler.StartStage(StagePreprocess)
	parameters, results := m.Parameters(), m.Results()
	ordered := make([]*Tensor, len(parameters))
	for ii, param := range parameters {
		tensor, found := inputs[param.Name]
		if !found {
			stopStage()
			return nil, errors.Errorf("missing input %q", param.Name)
		}
		if !tensor.Shape.Equal(param.Outputs[0]) || len(tensor.Data) != param.Outputs[0].ByteSize() {
			stopStage()
			return nil, errors.Errorf("input %q has shape %s (%d bytes), expected %s",
				param.Name, tensor.Shape, len(tensor.Data), param.Outputs[0])
		}
		ordered[ii] = tensor
	}
	if len(inputs) != len(parameters) {
		stopStage()
		return nil, errors.Errorf("got %d inputs, model %q has %d parameters", len(inputs), m.subgraph.Graph.Name, len(parameters))
	}
	outputs := make([]*Tensor, len(results))
	for ii, result := range results {
		outputs[ii] = NewTensor(result.Outputs[0])
	}
	stopStage()

	stopStage = m.profiler.StartStage(StageStartPipeline)
	workspace, err := m.pool.WaitAndGet(ctx)
	if err != nil {
		stopStage()
		return nil, err
	}
	defer m.pool.Put(workspace)
	stream := m.streams[workspace.Index()]
	var capture *CaptureContext
	if m.useCapture {
		capture = m.captures[workspace.Index()]
	}
	req := NewRequestContext(ctx, ordered, outputs, stream, m.manager.Bind(workspace), m.profiler, capture)
	if capture != nil {
		if err = capture.Prepare(req); err == nil {
			err = capture.Launch(req)
		}
	} else {
		err = m.runner.Run(req)
	}
	stopStage()
	if err != nil {
		return nil, err
	}

	stopStage = m.profiler.StartStage(StageWaitPipeline)
	err = stream.Synchronize()
	stopStage()
	if err != nil {
		return nil, errors.WithMessagef(err, "request %s", req.ID)
	}

	stopStage = m.profiler.StartStage(StagePostprocess)
	defer stopStage()
	named := make(map[string]*Tensor, len(results))
	for ii, result := range results {
		named[result.Name] = outputs[ii]
	}
	return named, nil
}

// operationBenchmarkIterations is the number of executions of each op with OPERATION_BENCHMARK.
const operationBenchmarkIterations = 10

// benchmarkOperations executes every operation a few times on a workspace with whatever it holds,
// recording the timings in the profiler. Failures are logged and otherwise ignored.
func (m *CompiledModel) benchmarkOperations(iterations int) {
	workspace, err := m.pool.WaitAndGet(context.Background())
	if err != nil {
		klog.Warningf("operation benchmark: %+v", err)
		return
	}
	defer m.pool.Put(workspace)
	proxy := m.manager.Bind(workspace)
	stream := m.streams[workspace.Index()]
	for index, step := range m.subgraph.Steps {
		if step.Kind != StepOperation {
			continue
		}
		inputs, outputs := proxy.Pointers(step.Inputs), proxy.Pointers(step.Outputs)
		work := Workbuffers{Immutable: proxy.Pointers(step.Immutable), Mutable: proxy.Pointers(step.Mutable)}
		for range iterations {
			start := time.Now()
			if err := step.Op.Execute(stream, inputs, outputs, work); err != nil {
				klog.Warningf("operation benchmark of %s: %v", step.Node, err)
				break
			}
			m.profiler.RecordOp(index, step.Node.Name, step.Node.Type.String(), time.Since(start))
		}
	}
}
