// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"time"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// TopologyRunner executes the steps of a Subgraph one by one, in topological order.
type TopologyRunner struct {
	subgraph *Subgraph
}

// NewTopologyRunner returns a runner for subgraph.
func NewTopologyRunner(subgraph *Subgraph) *TopologyRunner {
	return &TopologyRunner{subgraph: subgraph}
}

// Subgraph executed by the runner.
func (r *TopologyRunner) Subgraph() *Subgraph { return r.subgraph }

// Run executes every step for the request.
func (r *TopologyRunner) Run(req *RequestContext) error {
	return r.RunRange(req, 0, len(r.subgraph.Steps))
}

// RunRange executes the steps [start, end). Cancellation is checked before each step.
func (r *TopologyRunner) RunRange(req *RequestContext, start, end int) error {
	for index := start; index < end; index++ {
		if err := req.Err(); err != nil {
			return errors.Wrapf(err, "request %s", req.ID)
		}
		if err := r.executeStep(req, index); err != nil {
			return errors.WithMessagef(err, "request %s", req.ID)
		}
	}
	return nil
}

// executeStep issues the step at index on the request's stream. While the stream is capturing
// this records the step instead.
func (r *TopologyRunner) executeStep(req *RequestContext, index int) error {
	step := r.subgraph.Steps[index]
	stream, proxy := req.Stream(), req.Proxy()
	switch step.Kind {
	case StepParameter:
		return stream.Upload(proxy.Pointer(step.Outputs[0]), req.Input(step.IOIndex).Data)
	case StepResult:
		return stream.Download(req.Output(step.IOIndex).Data, proxy.Pointer(step.Inputs[0]))
	}

	inputs, outputs := proxy.Pointers(step.Inputs), proxy.Pointers(step.Outputs)
	work := Workbuffers{Immutable: proxy.Pointers(step.Immutable), Mutable: proxy.Pointers(step.Mutable)}
	profiling := req.Profiler().Enabled() && !stream.IsCapturing()
	var start time.Time
	if profiling {
		start = time.Now()
	}
	if err := step.Op.Execute(stream, inputs, outputs, work); err != nil {
		return errors.WithMessagef(err, "executing %s", step.Node)
	}
	if profiling {
		req.Profiler().RecordOp(index, step.Node.Name, step.Node.Type.String(), time.Since(start))
	}
	if klog.V(3).Enabled() {
		klog.Infof("request %s: executed #%d %s", req.ID, index, step.Node)
	}
	return nil
}
