// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"github.com/pkg/errors"
)

// MemcpyDirection of a memory copy between host and device.
type MemcpyDirection int

const (
	MemcpyHostToDevice MemcpyDirection = iota
	MemcpyDeviceToHost
)

// String implements fmt.Stringer.
func (d MemcpyDirection) String() string {
	if d == MemcpyHostToDevice {
		return "memcpy_htod"
	}
	return "memcpy_dtoh"
}

// MemcpyNode is a recorded copy between a host buffer and a device address.
type MemcpyNode struct {
	Direction MemcpyDirection
	Device    Pointer
	Host      []byte
}

func (m *MemcpyNode) run() error {
	if len(m.Host) == 0 {
		return nil
	}
	deviceBytes := m.Device.Bytes(len(m.Host))
	if m.Direction == MemcpyHostToDevice {
		copy(deviceBytes, m.Host)
	} else {
		copy(m.Host, deviceBytes)
	}
	return nil
}

type graphNode struct {
	name   string
	kernel Kernel
	memcpy *MemcpyNode
}

// Graph is a recording of stream commands. Instantiate it to obtain a launchable GraphExec.
type Graph struct {
	device      *Device
	nodes       []*graphNode
	memcpyNodes []*MemcpyNode
}

// NumNodes returns the number of recorded commands.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// MemcpyNodes returns the recorded memcpy nodes, in recording order.
func (g *Graph) MemcpyNodes() []*MemcpyNode { return g.memcpyNodes }

// Instantiate creates an executable copy of the graph. Memcpy node parameters are copied, so
// they can be updated on the GraphExec without affecting the Graph.
func (g *Graph) Instantiate() (*GraphExec, error) {
	exec := &GraphExec{device: g.device, nodes: make([]*graphNode, len(g.nodes))}
	for ii, node := range g.nodes {
		newNode := *node
		if node.memcpy != nil {
			memcpy := *node.memcpy
			newNode.memcpy = &memcpy
			exec.memcpyNodes = append(exec.memcpyNodes, newNode.memcpy)
		}
		exec.nodes[ii] = &newNode
	}
	g.device.stats.GraphInstantiations.Add(1)
	return exec, nil
}

// GraphExec is an instantiated, launchable graph bound to fixed device addresses.
type GraphExec struct {
	device      *Device
	nodes       []*graphNode
	memcpyNodes []*MemcpyNode
}

// NumMemcpyNodes returns the number of memcpy nodes of the graph.
func (e *GraphExec) NumMemcpyNodes() int { return len(e.memcpyNodes) }

// MemcpyNode returns the memcpy node at the given index, in recording order.
func (e *GraphExec) MemcpyNode(index int) MemcpyNode { return *e.memcpyNodes[index] }

// SetMemcpyNodeParams updates the addresses of a memcpy node. The direction and size can't change.
func (e *GraphExec) SetMemcpyNodeParams(index int, devicePtr Pointer, host []byte) error {
	if index < 0 || index >= len(e.memcpyNodes) {
		return errors.Errorf("memcpy node %d out of range (%d nodes)", index, len(e.memcpyNodes))
	}
	node := e.memcpyNodes[index]
	if len(host) != len(node.Host) {
		return errors.Errorf("memcpy node %d: size can't change from %d to %d bytes", index, len(node.Host), len(host))
	}
	node.Device = devicePtr
	node.Host = host
	e.device.stats.MemcpyNodeUpdates.Add(1)
	return nil
}

// Launch replays the graph on the stream.
func (e *GraphExec) Launch(stream *Stream) error {
	if stream.IsCapturing() {
		return errors.New("launching a graph on a capturing stream is not supported")
	}
	e.device.stats.GraphLaunches.Add(1)
	for _, node := range e.nodes {
		var err error
		if node.memcpy != nil {
			err = node.memcpy.run()
		} else {
			err = runKernel(node.name, node.kernel)
		}
		if err != nil {
			return errors.WithMessage(err, "graph launch")
		}
	}
	return nil
}
