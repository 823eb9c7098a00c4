// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/gomlx/accel/backends/device"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// CaptureState is the state of a CaptureContext.
type CaptureState int

const (
	// CaptureUninitialized: nothing captured yet, the next request records the graphs.
	CaptureUninitialized CaptureState = iota

	// CaptureCaptured: graphs are instantiated and bound to the last request's host buffers.
	CaptureCaptured

	// CaptureStale: graphs are instantiated but their memcpy nodes must be re-bound.
	CaptureStale
)

// String implements fmt.Stringer.
func (s CaptureState) String() string {
	switch s {
	case CaptureUninitialized:
		return "Uninitialized"
	case CaptureCaptured:
		return "Captured"
	case CaptureStale:
		return "Stale"
	}
	return "Invalid"
}

// memcpyBinding ties a memcpy node of a captured run to its parameter or result step.
type memcpyBinding struct {
	run, node, step int
}

// CaptureContext holds the device graphs captured for one workspace: one instantiated graph per
// capturable run. Device addresses are fixed by the workspace, so only the host side of the
// parameter uploads and result downloads changes between requests.
//
// It is owned by whoever holds the workspace and is not safe for concurrent use.
type CaptureContext struct {
	runner   *TopologyRunner
	state    CaptureState
	execs    []*device.GraphExec // Per run, nil for non-capturable runs.
	bindings []memcpyBinding
	hosts    [][]byte // Host buffer currently bound to each binding.
}

// NewCaptureContext returns an uninitialized CaptureContext for the runner's subgraph.
func NewCaptureContext(runner *TopologyRunner) *CaptureContext {
	return &CaptureContext{runner: runner}
}

// State returns the current state.
func (c *CaptureContext) State() CaptureState { return c.state }

// Invalidate marks the captured graphs as bound to outdated addresses. It's a no-op unless
// the state is CaptureCaptured.
func (c *CaptureContext) Invalidate() {
	if c.state == CaptureCaptured {
		c.state = CaptureStale
	}
}

// Reset drops the captured graphs.
func (c *CaptureContext) Reset() {
	c.state = CaptureUninitialized
	c.execs, c.bindings, c.hosts = nil, nil, nil
}

func (c *CaptureContext) hostBuffer(req *RequestContext, stepIndex int) []byte {
	step := c.runner.subgraph.Steps[stepIndex]
	if step.Kind == StepParameter {
		return req.Input(step.IOIndex).Data
	}
	return req.Output(step.IOIndex).Data
}

func (c *CaptureContext) devicePointer(req *RequestContext, stepIndex int) device.Pointer {
	step := c.runner.subgraph.Steps[stepIndex]
	if step.Kind == StepParameter {
		return req.Proxy().Pointer(step.Outputs[0])
	}
	return req.Proxy().Pointer(step.Inputs[0])
}

func sameBuffer(a, b []byte) bool {
	return len(a) == len(b) && (len(a) == 0 || &a[0] == &b[0])
}

// Prepare makes the graphs ready to be launched for req: it captures them if uninitialized, or
// re-binds the memcpy nodes if the host buffers changed since the last request.
func (c *CaptureContext) Prepare(req *RequestContext) error {
	if c.state == CaptureCaptured {
		for ii, binding := range c.bindings {
			if !sameBuffer(c.hosts[ii], c.hostBuffer(req, binding.step)) {
				c.Invalidate()
				break
			}
		}
	}
	switch c.state {
	case CaptureUninitialized:
		if err := c.capture(req); err != nil {
			c.Reset()
			return err
		}
	case CaptureStale:
		if err := c.update(req); err != nil {
			c.Reset()
			return err
		}
	}
	return nil
}

// capture records every capturable run into its own device graph.
func (c *CaptureContext) capture(req *RequestContext) error {
	subgraph := c.runner.subgraph
	stream := req.Stream()
	c.execs = make([]*device.GraphExec, len(subgraph.Runs))
	c.bindings, c.hosts = nil, nil
	for runIdx, run := range subgraph.Runs {
		if !run.Capturable {
			continue
		}
		if err := stream.BeginCapture(); err != nil {
			return errors.WithMessagef(err, "capturing run #%d", runIdx)
		}
		var ioSteps []int
		for index := run.Start; index < run.End; index++ {
			if err := c.runner.executeStep(req, index); err != nil {
				stream.AbortCapture()
				return errors.WithMessagef(err, "capturing run #%d", runIdx)
			}
			if subgraph.Steps[index].Kind != StepOperation {
				ioSteps = append(ioSteps, index)
			}
		}
		graph, err := stream.EndCapture()
		if err != nil {
			return err
		}
		if len(graph.MemcpyNodes()) != len(ioSteps) {
			return errors.Errorf("capturing run #%d: recorded %d memcpy nodes, expected %d for the parameters and results",
				runIdx, len(graph.MemcpyNodes()), len(ioSteps))
		}
		if c.execs[runIdx], err = graph.Instantiate(); err != nil {
			return errors.WithMessagef(err, "instantiating run #%d", runIdx)
		}
		for node, stepIdx := range ioSteps {
			c.bindings = append(c.bindings, memcpyBinding{run: runIdx, node: node, step: stepIdx})
			c.hosts = append(c.hosts, c.hostBuffer(req, stepIdx))
		}
	}
	c.state = CaptureCaptured
	klog.V(1).Infof("request %s: captured %d graphs with %d memcpy nodes", req.ID, len(subgraph.Runs), len(c.bindings))
	return nil
}

// update re-binds the memcpy nodes to the request's host buffers.
func (c *CaptureContext) update(req *RequestContext) error {
	for ii, binding := range c.bindings {
		host := c.hostBuffer(req, binding.step)
		if err := c.execs[binding.run].SetMemcpyNodeParams(binding.node, c.devicePointer(req, binding.step), host); err != nil {
			return errors.WithMessagef(err, "updating memcpy node for %s", c.runner.subgraph.Steps[binding.step].Node)
		}
		c.hosts[ii] = host
	}
	c.state = CaptureCaptured
	return nil
}

// Launch runs the request: captured runs are replayed, the others executed step by step.
// Prepare must have been called for the same request.
func (c *CaptureContext) Launch(req *RequestContext) error {
	if c.state != CaptureCaptured {
		return errors.Errorf("launching graphs in state %s", c.state)
	}
	for runIdx, run := range c.runner.subgraph.Runs {
		if err := req.Err(); err != nil {
			return errors.Wrapf(err, "request %s", req.ID)
		}
		if !run.Capturable {
			if err := c.runner.RunRange(req, run.Start, run.End); err != nil {
				return err
			}
			continue
		}
		if err := c.execs[runIdx].Launch(req.Stream()); err != nil {
			return errors.WithMessagef(err, "request %s: run #%d", req.ID, runIdx)
		}
	}
	return nil
}
