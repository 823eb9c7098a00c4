// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"fmt"
	"strings"

	"github.com/gomlx/accel/backends/memory"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// StepKind distinguishes the steps of the execution sequence.
type StepKind int

const (
	// StepOperation executes a converted Operation.
	StepOperation StepKind = iota

	// StepParameter uploads a request input.
	StepParameter

	// StepResult downloads a request output.
	StepResult
)

// Step is one entry of the execution sequence, with the buffers it reads and writes.
type Step struct {
	Node *ir.Node
	Kind StepKind

	// Op is the converted operation, nil for parameter and result steps.
	Op Operation

	// IOIndex is the index of the parameter (or result) among the graph's parameters (or results).
	IOIndex int

	Inputs, Outputs    []memory.BufferID
	Immutable, Mutable []memory.BufferID

	// memcpyCapturable is set for parameter and result steps on devices that capture graphs.
	memcpyCapturable bool
}

// Capturable returns whether the step can be recorded into a device graph.
// Parameter and result steps are recorded as memcpy nodes, if the device captures graphs at all.
func (s *Step) Capturable() bool {
	if s.Kind != StepOperation {
		return s.memcpyCapturable
	}
	return s.Op.Capturable()
}

// Run is a maximal range [Start, End) of steps with the same capturability.
type Run struct {
	Start, End int
	Capturable bool
}

// Subgraph is the compiled execution sequence of a graph: ordered steps, their runs and the
// memory plan. It is immutable once built and shared by all requests.
type Subgraph struct {
	Graph *ir.Graph
	Steps []*Step
	Runs  []Run
	Plan  *memory.Plan

	// Constants maps the constant buffers to their payloads.
	Constants map[memory.BufferID][]byte
}

// NewSubgraph converts every node of graph, in topological order, and plans its memory.
//
// With ctx.Config.ThrowOnUnsupported the first conversion failure is returned; otherwise all
// the failures are collected into one error.
func NewSubgraph(ctx *CreationContext, registry *Registry, graph *ir.Graph) (*Subgraph, error) {
	s := &Subgraph{Graph: graph, Constants: make(map[memory.BufferID][]byte)}
	extractor := memory.NewLifetimeExtractor()
	buffers := make(map[ir.Value]memory.BufferID)
	var failures []string
	parameterIdx, resultIdx := 0, 0
	graphCapture := ctx.Device != nil && ctx.Device.Properties().GraphCapture

	for _, node := range graph.Nodes() {
		if node.Type == ir.OpTypeConstant {
			id := extractor.AddConstant(node.Outputs[0].ByteSize())
			buffers[node.Output(0)] = id
			s.Constants[id] = node.Data
			continue
		}
		step := &Step{Node: node, memcpyCapturable: graphCapture}
		switch node.Type {
		case ir.OpTypeParameter:
			step.Kind, step.IOIndex = StepParameter, parameterIdx
			parameterIdx++
		case ir.OpTypeResult:
			step.Kind, step.IOIndex = StepResult, resultIdx
			resultIdx++
		default:
			op, err := registry.Create(ctx, node)
			if err != nil {
				if ctx.Config == nil || ctx.Config.ThrowOnUnsupported {
					return nil, err
				}
				// Keep registering its buffers, so the consumers can still be walked.
				failures = append(failures, err.Error())
			}
			step.Op = op
		}

		index := len(s.Steps)
		for _, input := range node.Inputs {
			id := buffers[input]
			extractor.UseTensor(index, id)
			step.Inputs = append(step.Inputs, id)
		}
		for ii, output := range node.Outputs {
			id := extractor.AddTensor(index, output.ByteSize())
			buffers[node.Output(ii)] = id
			step.Outputs = append(step.Outputs, id)
		}
		if step.Kind == StepResult {
			extractor.MarkOutput(step.Inputs[0])
		}
		if requester, ok := step.Op.(WorkbufferRequester); ok {
			request := requester.WorkbufferRequest()
			step.Immutable, step.Mutable = extractor.AddWorkbuffers(index, request.Immutable, request.Mutable)
		}
		if step.Kind != StepOperation || step.Op != nil {
			s.Steps = append(s.Steps, step)
		}
	}
	if len(failures) > 0 {
		return nil, errors.Errorf("%d nodes of graph %q can't be converted by %s:\n  %s",
			len(failures), graph.Name, registry.Name(), strings.Join(failures, "\n  "))
	}

	s.Plan = extractor.Build(len(s.Steps))
	s.Runs = partition(s.Steps)
	klog.V(1).Infof("graph %q: %d steps in %d runs, mutable arena %d bytes",
		graph.Name, len(s.Steps), len(s.Runs), s.Plan.Mutable.TotalSize())
	return s, nil
}

// partition splits the steps into maximal runs, cutting wherever capturability flips.
func partition(steps []*Step) []Run {
	var runs []Run
	for index, step := range steps {
		capturable := step.Capturable()
		if len(runs) == 0 || runs[len(runs)-1].Capturable != capturable {
			runs = append(runs, Run{Start: index, End: index + 1, Capturable: capturable})
			continue
		}
		runs[len(runs)-1].End = index + 1
	}
	return runs
}

// IsCapturable returns whether at least one run can be captured.
func (s *Subgraph) IsCapturable() bool {
	for _, run := range s.Runs {
		if run.Capturable {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer, listing the runs and steps.
func (s *Subgraph) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "subgraph %q: %d steps, %d runs", s.Graph.Name, len(s.Steps), len(s.Runs))
	for _, run := range s.Runs {
		fmt.Fprintf(&sb, "\n  run [%d, %d) capturable=%v", run.Start, run.End, run.Capturable)
		for _, step := range s.Steps[run.Start:run.End] {
			fmt.Fprintf(&sb, "\n    %s in=%v out=%v", step.Node, step.Inputs, step.Outputs)
		}
	}
	return sb.String()
}
