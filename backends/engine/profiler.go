// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"slices"
	"sync"
	"time"
)

// Stage of an inference request, timed by the Profiler.
type Stage int

const (
	StagePreprocess Stage = iota
	StageStartPipeline
	StageWaitPipeline
	StagePostprocess
	numStages
)

var stageNames = [numStages]string{"preprocess", "start_pipeline", "wait_pipeline", "postprocess"}

// String implements fmt.Stringer.
func (s Stage) String() string {
	if s < 0 || s >= numStages {
		return "unknown"
	}
	return stageNames[s]
}

// Timing aggregates the durations of a stage or an operation.
type Timing struct {
	Name  string
	Type  string
	Count int
	Total time.Duration
}

// Average duration, or 0 if never timed.
func (t Timing) Average() time.Duration {
	if t.Count == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Count)
}

// Profiler aggregates stage and per-operation timings over the requests of a compiled model.
// It is safe for concurrent use. A disabled profiler records nothing.
type Profiler struct {
	enabled bool

	mu     sync.Mutex
	stages [numStages]Timing
	ops    map[int]*Timing // By step index.
}

// NewProfiler returns a Profiler; if enabled is false all methods are no-ops.
func NewProfiler(enabled bool) *Profiler {
	p := &Profiler{enabled: enabled, ops: make(map[int]*Timing)}
	for stage := range numStages {
		p.stages[stage].Name = stage.String()
	}
	return p
}

// Enabled returns whether the profiler records timings.
func (p *Profiler) Enabled() bool { return p != nil && p.enabled }

// StartStage starts timing stage. Call the returned function at the end of the stage.
func (p *Profiler) StartStage(stage Stage) (stop func()) {
	if !p.Enabled() {
		return func() {}
	}
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		p.mu.Lock()
		defer p.mu.Unlock()
		p.stages[stage].Count++
		p.stages[stage].Total += elapsed
	}
}

// RecordOp adds one execution of the step at index.
func (p *Profiler) RecordOp(index int, name, opType string, elapsed time.Duration) {
	if !p.Enabled() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	timing, found := p.ops[index]
	if !found {
		timing = &Timing{Name: name, Type: opType}
		p.ops[index] = timing
	}
	timing.Count++
	timing.Total += elapsed
}

// Stages returns the stage timings, in pipeline order.
func (p *Profiler) Stages() []Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.stages[:])
}

// Ops returns the per-operation timings, in execution order.
func (p *Profiler) Ops() []Timing {
	p.mu.Lock()
	defer p.mu.Unlock()
	indices := make([]int, 0, len(p.ops))
	for index := range p.ops {
		indices = append(indices, index)
	}
	slices.Sort(indices)
	timings := make([]Timing, len(indices))
	for ii, index := range indices {
		timings[ii] = *p.ops[index]
	}
	return timings
}
