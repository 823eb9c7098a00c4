// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package passes implements graph rewrites run before a graph is lowered by a backend.
//
// Passes only rewrite the IR into other IR node patterns: they never call kernels. Nodes created
// by a pass inherit the fused names of the nodes they replace, so the supported-nodes query can
// still report the original names.
package passes

import (
	"slices"

	"github.com/gomlx/accel/pkg/core/ir"
	"k8s.io/klog/v2"
)

// Pass rewrites a graph into an equivalent one. The input graph is not modified.
type Pass struct {
	Name string
	Run  func(g *ir.Graph) *ir.Graph
}

// Apply runs the passes in order.
func Apply(g *ir.Graph, passes ...Pass) *ir.Graph {
	for _, pass := range passes {
		before := g.NumNodes()
		g = pass.Run(g)
		klog.V(2).Infof("pass %s on graph %q: %d -> %d nodes", pass.Name, g.Name, before, g.NumNodes())
	}
	return g
}

// inheritFusedNames marks the nodes of values as built from the original nodes.
func inheritFusedNames(values []ir.Value, originals ...*ir.Node) {
	var names []string
	for _, original := range originals {
		for _, name := range original.FusedNames {
			if !slices.Contains(names, name) {
				names = append(names, name)
			}
		}
	}
	for _, value := range values {
		value.Node.FusedNames = slices.Clone(names)
	}
}
