// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ir defines the dataflow graph handed to an accelerator backend.
//
// A Graph is a list of Nodes in topological order: a node only consumes outputs of nodes created
// before it. Each Node is a tagged variant: its OpType selects the concrete attribute struct
// stored in Node.Attrs (e.g. *ConvolutionAttrs for OpTypeConvolution).
//
// Graphs are built with the methods of Graph (Parameter, Constant, Convolution, ...), which run a
// light shape inference. Graphs handed over by a host engine are assumed to be already validated.
package ir

import (
	"encoding/binary"
	"fmt"
	"slices"

	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Graph is a topologically ordered computation graph.
type Graph struct {
	Name string

	nodes      []*Node
	parameters []*Node
	results    []*Node
	names      map[string]*Node
}

// Node is one operation of the Graph.
type Node struct {
	graph *Graph
	id    int

	// Type of the operation.
	Type OpType

	// Name is the friendly name of the node, unique in the graph.
	Name string

	// Inputs are the ordered values consumed by the node.
	Inputs []Value

	// Outputs are the ordered shapes of the tensors produced by the node.
	Outputs []shapes.Shape

	// Attrs holds a pointer to the attribute struct of Type, or nil if Type takes no attributes.
	Attrs any

	// FusedNames lists the names of the original nodes this node was built from.
	// It always includes at least the node's own name.
	FusedNames []string

	// Data holds the little-endian payload of a Constant.
	Data []byte
}

// Value refers to one output of a Node.
type Value struct {
	Node  *Node
	Index int
}

// Use is one consumer of a Value: the consuming node and the index of the input.
type Use struct {
	Node       *Node
	InputIndex int
}

// New creates an empty Graph.
func New(name string) *Graph {
	return &Graph{Name: name, names: make(map[string]*Node)}
}

// ID returns the index of the node in its graph's topological order.
func (n *Node) ID() int { return n.id }

// Graph returns the graph holding the node.
func (n *Node) Graph() *Graph { return n.graph }

// Output returns the Value for the node's output at the given index.
func (n *Node) Output(index int) Value { return Value{Node: n, Index: index} }

// String implements fmt.Stringer.
func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.Type, n.Name)
}

// IsConstant returns whether the node is a Constant.
func (n *Node) IsConstant() bool { return n.Type == OpTypeConstant }

// Shape returns the shape of the value.
func (v Value) Shape() shapes.Shape { return v.Node.Outputs[v.Index] }

// String implements fmt.Stringer.
func (v Value) String() string {
	if v.Index == 0 {
		return v.Node.Name
	}
	return fmt.Sprintf("%s:%d", v.Node.Name, v.Index)
}

// Nodes returns the nodes in topological order. The returned slice must not be modified.
func (g *Graph) Nodes() []*Node { return g.nodes }

// NumNodes returns the number of nodes in the graph.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// Parameters returns the Parameter nodes, in creation order.
func (g *Graph) Parameters() []*Node { return g.parameters }

// Results returns the Result nodes, in creation order.
func (g *Graph) Results() []*Node { return g.results }

// NodeByName returns the node with the given name, or nil.
func (g *Graph) NodeByName(name string) *Node { return g.names[name] }

// Consumers returns, for each node output, the list of uses, indexed by [nodeID][outputIndex].
func (g *Graph) Consumers() [][][]Use {
	consumers := make([][][]Use, len(g.nodes))
	for _, node := range g.nodes {
		consumers[node.id] = make([][]Use, len(node.Outputs))
	}
	for _, node := range g.nodes {
		for inputIdx, input := range node.Inputs {
			producer := input.Node.id
			consumers[producer][input.Index] = append(consumers[producer][input.Index], Use{Node: node, InputIndex: inputIdx})
		}
	}
	return consumers
}

// addNode appends a new node. Inputs must belong to g; the name is made unique if empty.
func (g *Graph) addNode(op OpType, name string, attrs any, inputs []Value, outputs ...shapes.Shape) *Node {
	for ii, input := range inputs {
		if input.Node == nil || input.Node.graph != g {
			exceptions.Panicf("%s(%q): input #%d is not a node of graph %q", op, name, ii, g.Name)
		}
		if input.Index < 0 || input.Index >= len(input.Node.Outputs) {
			exceptions.Panicf("%s(%q): input #%d refers to output %d of %s, which has %d outputs",
				op, name, ii, input.Index, input.Node, len(input.Node.Outputs))
		}
	}
	if name == "" {
		name = fmt.Sprintf("%s_%d", op, len(g.nodes))
	}
	if _, found := g.names[name]; found {
		exceptions.Panicf("%s(%q): a node with that name already exists in graph %q", op, name, g.Name)
	}
	node := &Node{
		graph:      g,
		id:         len(g.nodes),
		Type:       op,
		Name:       name,
		Inputs:     slices.Clone(inputs),
		Outputs:    outputs,
		Attrs:      attrs,
		FusedNames: []string{name},
	}
	g.nodes = append(g.nodes, node)
	g.names[name] = node
	switch op {
	case OpTypeParameter:
		g.parameters = append(g.parameters, node)
	case OpTypeResult:
		g.results = append(g.results, node)
	}
	return node
}

// CopyNode adds to g a copy of node (possibly from another graph), consuming the given inputs.
// Attributes are shared, since nodes are immutable.
func (g *Graph) CopyNode(node *Node, inputs []Value) *Node {
	outputs := make([]shapes.Shape, len(node.Outputs))
	for ii, output := range node.Outputs {
		outputs[ii] = output.Clone()
	}
	newNode := g.addNode(node.Type, node.Name, node.Attrs, inputs, outputs...)
	newNode.FusedNames = slices.Clone(node.FusedNames)
	newNode.Data = node.Data
	return newNode
}

// Rewriter holds the state of a Rewrite: the graph being built and the mapping of the values of
// the source graph to the values of the destination graph.
type Rewriter struct {
	Src, Dst *Graph
	mapped   [][]Value
}

// Map returns the destination value that replaced the source value v.
// It panics if v's node was dropped by the RewriteFunc.
func (r *Rewriter) Map(v Value) Value {
	outputs := r.mapped[v.Node.id]
	if outputs == nil {
		exceptions.Panicf("Rewrite(%s): %s was dropped, but it is still consumed", r.Src.Name, v.Node)
	}
	return outputs[v.Index]
}

// IsDropped returns whether the node producing v was dropped by the RewriteFunc.
func (r *Rewriter) IsDropped(v Value) bool {
	return r.mapped[v.Node.id] == nil
}

// RewriteFunc is called for each node of the source graph by Rewrite, with the inputs already
// mapped to the destination graph. It returns the values that replace the node's outputs, or
// ok=false to have the node copied unchanged. Returning ok=true with no outputs drops the node.
//
// Inputs produced by a dropped node are passed as the zero Value: fn must then replace or drop
// the node, it is an error to have it copied.
type RewriteFunc func(r *Rewriter, node *Node, inputs []Value) (outputs []Value, ok bool)

// Rewrite builds a new graph from src, letting fn replace or drop individual nodes.
func Rewrite(src *Graph, fn RewriteFunc) *Graph {
	r := &Rewriter{Src: src, Dst: New(src.Name), mapped: make([][]Value, src.NumNodes())}
	for _, node := range src.nodes {
		inputs := make([]Value, len(node.Inputs))
		var dropped *Node
		for ii, input := range node.Inputs {
			if r.IsDropped(input) {
				dropped = input.Node
				continue
			}
			inputs[ii] = r.Map(input)
		}
		if outputs, ok := fn(r, node, inputs); ok {
			if len(outputs) != 0 && len(outputs) != len(node.Outputs) {
				exceptions.Panicf("Rewrite(%s): replacement of %s returned %d outputs, wanted %d",
					src.Name, node, len(outputs), len(node.Outputs))
			}
			if len(outputs) > 0 {
				r.mapped[node.id] = outputs
			}
			continue
		}
		if dropped != nil {
			exceptions.Panicf("Rewrite(%s): %s was dropped, but it is still consumed by %s", src.Name, dropped, node)
		}
		newNode := r.Dst.CopyNode(node, inputs)
		r.mapped[node.id] = make([]Value, len(node.Outputs))
		for ii := range node.Outputs {
			r.mapped[node.id][ii] = newNode.Output(ii)
		}
	}
	return r.Dst
}

// ConstantValues decodes the payload of a Constant node into a slice of T.
// It returns an error if the node is not a constant of dtype T.
func ConstantValues[T dtypes.Supported](node *Node) ([]T, error) {
	if node.Type != OpTypeConstant {
		return nil, errors.Errorf("node %s is not a Constant", node)
	}
	if want := dtypes.FromGenericsType[T](); node.Outputs[0].DType != want {
		return nil, errors.Errorf("constant %s has dtype %s, wanted %s", node, node.Outputs[0].DType, want)
	}
	values := make([]T, node.Outputs[0].Size())
	if _, err := binary.Decode(node.Data, binary.LittleEndian, values); err != nil {
		return nil, errors.Wrapf(err, "decoding constant %s", node)
	}
	return values, nil
}

// ConstantInts decodes the payload of an integer Constant node into []int.
func ConstantInts(node *Node) ([]int, error) {
	if node.Type != OpTypeConstant {
		return nil, errors.Errorf("node %s is not a Constant", node)
	}
	dtype := node.Outputs[0].DType
	if !dtype.IsInt() {
		return nil, errors.Errorf("constant %s has dtype %s, wanted an integer type", node, dtype)
	}
	size := node.Outputs[0].Size()
	ints := make([]int, size)
	elementSize := dtype.Size()
	for ii := range size {
		raw := node.Data[ii*elementSize : (ii+1)*elementSize]
		switch dtype {
		case dtypes.Int8:
			ints[ii] = int(int8(raw[0]))
		case dtypes.Uint8:
			ints[ii] = int(raw[0])
		case dtypes.Int16:
			ints[ii] = int(int16(binary.LittleEndian.Uint16(raw)))
		case dtypes.Uint16:
			ints[ii] = int(binary.LittleEndian.Uint16(raw))
		case dtypes.Int32:
			ints[ii] = int(int32(binary.LittleEndian.Uint32(raw)))
		case dtypes.Uint32:
			ints[ii] = int(binary.LittleEndian.Uint32(raw))
		case dtypes.Int64:
			ints[ii] = int(int64(binary.LittleEndian.Uint64(raw)))
		case dtypes.Uint64:
			ints[ii] = int(binary.LittleEndian.Uint64(raw))
		}
	}
	return ints, nil
}

// ConstantFloats decodes the payload of a float Constant node into []float64.
func ConstantFloats(node *Node) ([]float64, error) {
	switch node.Outputs[0].DType {
	case dtypes.Float32:
		values, err := ConstantValues[float32](node)
		if err != nil {
			return nil, err
		}
		floats := make([]float64, len(values))
		for ii, v := range values {
			floats[ii] = float64(v)
		}
		return floats, nil
	case dtypes.Float16:
		values, err := ConstantValues[float16.Float16](node)
		if err != nil {
			return nil, err
		}
		floats := make([]float64, len(values))
		for ii, v := range values {
			floats[ii] = float64(v.Float32())
		}
		return floats, nil
	case dtypes.Float64:
		return ConstantValues[float64](node)
	}
	return nil, errors.Errorf("constant %s has dtype %s, wanted a float type", node, node.Outputs[0].DType)
}
