// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/core/ir/passes"
	"github.com/gomlx/accel/pkg/support/sets"
	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"k8s.io/klog/v2"
)

// QuerySupported returns the names of the nodes of graph that plugin can execute, mapped to the
// plugin name, in the graph's topological order.
//
// The graph goes through the plugin's passes first; a converted node reports all the original
// names it was built from, unless another node built from one of them fails to convert. Boundary nodes follow their neighbors: constants and parameters are
// dropped when all their consumers are unsupported, and results when their producer is.
func QuerySupported(plugin Plugin, graph *ir.Graph, cfg *Config) (*orderedmap.OrderedMap[string, string], error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	dev, err := plugin.NewDevice(cfg)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s: opening device", plugin.Name())
	}
	ctx := &CreationContext{Device: dev, Config: cfg}
	lowered := passes.Apply(graph, plugin.Passes(cfg)...)

	// A node decomposed into pieces is supported only if every piece is.
	supported, unsupported := sets.Make[string](), sets.Make[string]()
	for _, node := range lowered.Nodes() {
		if node.Type.IsGraphBoundary() {
			continue
		}
		if _, err := plugin.Registry().Create(ctx, node); err != nil {
			klog.V(1).Infof("%s: %v", plugin.Name(), err)
			unsupported.Insert(node.FusedNames...)
			continue
		}
		supported.Insert(node.FusedNames...)
	}
	for name := range unsupported {
		supported.Remove(name)
	}
	// Boundary nodes are supported by default.
	for _, node := range graph.Nodes() {
		if node.Type.IsGraphBoundary() {
			supported.Insert(node.Name)
		}
	}

	consumers := graph.Consumers()
	for _, node := range graph.Nodes() {
		if node.Type != ir.OpTypeConstant && node.Type != ir.OpTypeParameter {
			continue
		}
		uses := consumers[node.ID()][0]
		if len(uses) == 0 {
			continue
		}
		// A parameter or constant returned directly stays with its result.
		anySupported := false
		for _, use := range uses {
			if use.Node.Type == ir.OpTypeResult || supported.Has(use.Node.Name) {
				anySupported = true
				break
			}
		}
		if !anySupported {
			supported.Remove(node.Name)
		}
	}
	for _, node := range graph.Results() {
		if !supported.Has(node.Inputs[0].Node.Name) {
			supported.Remove(node.Name)
		}
	}

	result := orderedmap.New[string, string]()
	for _, node := range graph.Nodes() {
		if supported.Has(node.Name) {
			result.Set(node.Name, plugin.Name())
		}
	}
	return result, nil
}
