// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package passes

import (
	"github.com/gomlx/accel/pkg/core/ir"
	"k8s.io/klog/v2"
)

// FuseConvolutionActivation folds the pattern Convolution -> [Add(bias)] -> [activation] into a
// single Convolution node carrying the bias input and ir.ConvolutionAttrs.Activation.
//
// Each intermediate value must have a single consumer. The bias must be a Constant broadcastable
// to [1, O, 1, 1]. Only activations with a native convolution descriptor are fused.
var FuseConvolutionActivation = Pass{Name: "FuseConvolutionActivation", Run: fuseConvolutionActivation}

type fusionGroup struct {
	conv, bias, activation *ir.Node
}

// last returns the node at the end of the fused chain.
func (f *fusionGroup) last() *ir.Node {
	switch {
	case f.activation != nil:
		return f.activation
	case f.bias != nil:
		return f.bias
	}
	return f.conv
}

// fusedActivation returns the activation descriptor of node, if it can be fused.
func fusedActivation(node *ir.Node) (kind ir.ActivationKind, a, b float64, ok bool) {
	switch node.Type {
	case ir.OpTypeRelu:
		return ir.ActivationRelu, 0, 0, true
	case ir.OpTypeSigmoid:
		return ir.ActivationSigmoid, 0, 0, true
	case ir.OpTypeTanh:
		return ir.ActivationTanh, 0, 0, true
	case ir.OpTypeAbs:
		return ir.ActivationAbs, 0, 0, true
	case ir.OpTypeSqrt:
		return ir.ActivationSqrt, 0, 0, true
	case ir.OpTypeHSwish:
		return ir.ActivationHardSwish, 0, 0, true
	case ir.OpTypeSoftPlus:
		return ir.ActivationSoftRelu, 0, 0, true
	case ir.OpTypeElu:
		return ir.ActivationElu, node.Attrs.(*ir.EluAttrs).Alpha, 0, true
	case ir.OpTypeLeakyRelu:
		return ir.ActivationLeakyRelu, node.Attrs.(*ir.LeakyReluAttrs).Slope, 0, true
	case ir.OpTypeClamp:
		attrs := node.Attrs.(*ir.ClampAttrs)
		if attrs.Min == 0 {
			return ir.ActivationBoundedRelu, attrs.Max, 0, true
		}
		return ir.ActivationLuBoundedRelu, attrs.Max, attrs.Min, true
	}
	return "", 0, 0, false
}

func isBiasFor(conv *ir.Node, bias ir.Value) bool {
	if !bias.Node.IsConstant() || bias.Shape().DType != conv.Outputs[0].DType {
		return false
	}
	channels := conv.Outputs[0].Dimensions[1]
	dims := bias.Shape().Dimensions
	switch len(dims) {
	case 3:
		return dims[0] == channels && dims[1] == 1 && dims[2] == 1
	case 4:
		return dims[0] == 1 && dims[1] == channels && dims[2] == 1 && dims[3] == 1
	}
	return false
}

func findFusionGroups(g *ir.Graph) map[*ir.Node]*fusionGroup {
	consumers := g.Consumers()
	singleConsumer := func(node *ir.Node) *ir.Use {
		uses := consumers[node.ID()][0]
		if len(uses) != 1 {
			return nil
		}
		return &uses[0]
	}
	groups := make(map[*ir.Node]*fusionGroup)
	for _, node := range g.Nodes() {
		if node.Type != ir.OpTypeConvolution || len(node.Inputs) != 2 {
			continue
		}
		if node.Attrs.(*ir.ConvolutionAttrs).Activation != "" {
			continue
		}
		group := &fusionGroup{conv: node}
		current := node
		if use := singleConsumer(current); use != nil && use.Node.Type == ir.OpTypeAdd {
			add := use.Node
			other := add.Inputs[1-use.InputIndex]
			if isBiasFor(node, other) && add.Outputs[0].Equal(node.Outputs[0]) {
				group.bias = add
				current = add
			}
		}
		if use := singleConsumer(current); use != nil {
			if _, _, _, ok := fusedActivation(use.Node); ok {
				group.activation = use.Node
			}
		}
		if group.bias == nil && group.activation == nil {
			continue
		}
		groups[group.last()] = group
		groups[node] = group
		if group.bias != nil && group.activation != nil {
			groups[group.bias] = group
		}
	}
	return groups
}

func fuseConvolutionActivation(g *ir.Graph) *ir.Graph {
	groups := findFusionGroups(g)
	if len(groups) == 0 {
		return g
	}
	return ir.Rewrite(g, func(r *ir.Rewriter, node *ir.Node, inputs []ir.Value) ([]ir.Value, bool) {
		group, found := groups[node]
		if !found {
			return nil, false
		}
		if node != group.last() {
			// Dropped: its only consumer is later in the same group.
			return nil, true
		}
		attrs := *group.conv.Attrs.(*ir.ConvolutionAttrs)
		convInputs := []ir.Value{r.Map(group.conv.Inputs[0]), r.Map(group.conv.Inputs[1])}
		originals := []*ir.Node{group.conv}
		if group.bias != nil {
			for _, input := range group.bias.Inputs {
				if input.Node != group.conv {
					convInputs = append(convInputs, r.Map(input))
				}
			}
			originals = append(originals, group.bias)
		}
		if group.activation != nil {
			attrs.Activation, attrs.ActivationA, attrs.ActivationB, _ = fusedActivation(group.activation)
			originals = append(originals, group.activation)
		} else {
			attrs.Activation = ir.ActivationIdentity
		}
		fused := r.Dst.Convolution(node.Name, attrs, convInputs[0], convInputs[1], convInputs[2:]...)
		inheritFusedNames([]ir.Value{fused}, originals...)
		klog.V(1).Infof("fused %v into convolution %q (activation=%s)", fused.Node.FusedNames, node.Name, attrs.Activation)
		return []ir.Value{fused}, true
	})
}
