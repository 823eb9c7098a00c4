// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/backends/memory"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/support/sets"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// supportRows lists every node of graph, with the plugin supporting it or "-".
// The second value marks the unsupported rows.
func supportRows(graph *ir.Graph, supported *orderedmap.OrderedMap[string, string]) (rows [][]string, unsupported []bool) {
	for _, node := range graph.Nodes() {
		plugin, found := supported.Get(node.Name)
		if !found {
			plugin = "-"
		}
		rows = append(rows, []string{node.Name, node.Type.String(), shapesString(node), plugin})
		unsupported = append(unsupported, !found)
	}
	return
}

func shapesString(node *ir.Node) string {
	parts := make([]string, len(node.Outputs))
	for ii, shape := range node.Outputs {
		parts[ii] = shape.String()
	}
	return strings.Join(parts, ", ")
}

func reportSupported(plugin engine.Plugin, graph *ir.Graph, supported *orderedmap.OrderedMap[string, string]) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("Graph %q on %s: %d of %d nodes supported",
		graph.Name, plugin.Name(), supported.Len(), graph.NumNodes())))
	t := newTable([]string{"Node", "Op", "Shapes", "Plugin"})
	rows, unsupported := supportRows(graph, supported)
	for ii, row := range rows {
		t.Row(unsupported[ii], row...)
	}
	fmt.Println(t.Render())
}

// labeled is implemented by operations that report the kernel they launch.
type labeled interface {
	Label() string
}

// stepRows lists the execution sequence: index, node, kind, kernel, capturability and run.
func stepRows(subgraph *engine.Subgraph) [][]string {
	runOf := make([]int, len(subgraph.Steps))
	for runIdx, run := range subgraph.Runs {
		for ii := run.Start; ii < run.End; ii++ {
			runOf[ii] = runIdx
		}
	}
	rows := make([][]string, 0, len(subgraph.Steps))
	for ii, step := range subgraph.Steps {
		kernel := "memcpy"
		if step.Kind == engine.StepOperation {
			kernel = step.Node.Type.String()
			if l, ok := step.Op.(labeled); ok {
				kernel = l.Label()
			}
		}
		rows = append(rows, []string{
			strconv.Itoa(ii),
			strings.Join(step.Node.FusedNames, "+"),
			step.Node.Type.String(),
			kernel,
			strconv.FormatBool(step.Capturable()),
			strconv.Itoa(runOf[ii]),
		})
	}
	return rows
}

func reportSteps(model *engine.CompiledModel) {
	subgraph := model.Subgraph()
	fmt.Println(titleStyle.Render(fmt.Sprintf("Execution sequence: %d steps, %d runs, graph capture=%v, %d streams",
		len(subgraph.Steps), len(subgraph.Runs), model.UsesGraphCapture(), model.NumStreams())))
	t := newTable([]string{"#", "Nodes", "Op", "Kernel", "Capturable", "Run"}, lipgloss.Right, lipgloss.Left)
	for _, row := range stepRows(subgraph) {
		t.Row(row[4] == "false", row...)
	}
	fmt.Println(t.Render())
}

// arena pairs a memory model with its name.
type arena struct {
	name  string
	model *memory.Model
}

func arenas(plan *memory.Plan) []arena {
	return []arena{
		{"constants", plan.Constants},
		{"immutable", plan.Immutable},
		{"mutable", plan.Mutable},
	}
}

// memoryRows lists every allocation of every arena of plan, sorted by offset within each arena.
func memoryRows(plan *memory.Plan) [][]string {
	var rows [][]string
	for _, a := range arenas(plan) {
		for _, alloc := range a.model.Allocations() {
			offset, _ := a.model.Offset(alloc.ID)
			rows = append(rows, []string{
				a.name,
				strconv.Itoa(int(alloc.ID)),
				humanize.Comma(int64(offset)),
				humanize.IBytes(uint64(alloc.Size)),
				fmt.Sprintf("[%d, %d]", alloc.Start, alloc.End),
			})
		}
	}
	return rows
}

func reportMemory(model *engine.CompiledModel) {
	plan := model.Subgraph().Plan
	fmt.Println(titleStyle.Render("Memory plan"))
	summary := newTable([]string{"Arena", "Buffers", "Size", "Copies"}, lipgloss.Left, lipgloss.Right)
	for _, a := range arenas(plan) {
		copies := 1
		if a.name == "mutable" {
			copies = model.NumStreams()
		}
		summary.Row(false, a.name, humanize.Comma(int64(a.model.NumBuffers())),
			humanize.IBytes(uint64(a.model.TotalSize())), strconv.Itoa(copies))
	}
	if len(plan.Empty) > 0 {
		ids := make([]string, 0, len(plan.Empty))
		for _, id := range sets.Sorted(plan.Empty) {
			ids = append(ids, strconv.Itoa(int(id)))
		}
		summary.Row(false, "empty", strconv.Itoa(len(ids)), "0 B", strings.Join(ids, ","))
	}
	fmt.Println(summary.Render())

	t := newTable([]string{"Arena", "Buffer", "Offset", "Size", "Lifetime"}, lipgloss.Left, lipgloss.Right, lipgloss.Right, lipgloss.Right, lipgloss.Left)
	for _, row := range memoryRows(plan) {
		t.Row(false, row...)
	}
	fmt.Println(t.Render())
	fmt.Printf("Device memory allocated: %s\n", humanize.IBytes(uint64(model.Device().Allocated())))
}

func reportRun(model *engine.CompiledModel, numRequests int, elapsed time.Duration) {
	fmt.Println(titleStyle.Render(fmt.Sprintf("%s requests in %s (%.1f requests/s)",
		humanize.Comma(int64(numRequests)), elapsed.Round(time.Microsecond),
		float64(numRequests)/elapsed.Seconds())))
	stats := model.Device().Stats()
	t := newTable([]string{"Counter", "Value"}, lipgloss.Left, lipgloss.Right)
	t.Row(false, "kernel launches", humanize.Comma(stats.KernelLaunches.Load()))
	t.Row(false, "graph instantiations", humanize.Comma(stats.GraphInstantiations.Load()))
	t.Row(false, "graph launches", humanize.Comma(stats.GraphLaunches.Load()))
	t.Row(false, "memcpy node updates", humanize.Comma(stats.MemcpyNodeUpdates.Load()))
	t.Row(false, "allocations", humanize.Comma(stats.Allocations.Load()))
	fmt.Println(t.Render())

	profiler := model.Profiler()
	if !profiler.Enabled() {
		return
	}
	fmt.Println(titleStyle.Render("Profile"))
	t = newTable([]string{"Stage / Op", "Type", "Count", "Total", "Average"}, lipgloss.Left, lipgloss.Left, lipgloss.Right)
	for _, timing := range profiler.Stages() {
		t.Row(false, timingRow(timing, "stage")...)
	}
	for _, timing := range profiler.Ops() {
		t.Row(false, timingRow(timing, timing.Type)...)
	}
	fmt.Println(t.Render())
}

func timingRow(timing engine.Timing, kind string) []string {
	return []string{
		timing.Name, kind, humanize.Comma(int64(timing.Count)),
		timing.Total.Round(time.Microsecond).String(),
		timing.Average().Round(time.Microsecond).String(),
	}
}
