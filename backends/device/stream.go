// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// Kernel is the body of a kernel launch. It runs on the device when the stream reaches it.
type Kernel func() error

// Stream is an ordered command queue of a Device.
//
// Commands issued on a Stream run in issue order. While the stream is capturing, commands are
// recorded into a Graph instead of running. A Stream is owned by one request at a time and is not
// safe for concurrent use.
type Stream struct {
	device    *Device
	mu        sync.Mutex
	capturing *Graph
}

// NewStream creates a stream on the device.
func (d *Device) NewStream() *Stream {
	return &Stream{device: d}
}

// Device returns the device of the stream.
func (s *Stream) Device() *Device { return s.device }

// IsCapturing returns whether the stream is recording into a graph.
func (s *Stream) IsCapturing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capturing != nil
}

// Launch issues a kernel.
func (s *Stream) Launch(name string, kernel Kernel) error {
	s.mu.Lock()
	graph := s.capturing
	s.mu.Unlock()
	if graph != nil {
		graph.nodes = append(graph.nodes, &graphNode{name: name, kernel: kernel})
		return nil
	}
	s.device.stats.KernelLaunches.Add(1)
	return runKernel(name, kernel)
}

func runKernel(name string, kernel Kernel) (err error) {
	exception := exceptions.Try(func() { err = kernel() })
	if exception != nil {
		if e, ok := exception.(error); ok {
			return errors.WithMessagef(e, "kernel %q failed", name)
		}
		return errors.Errorf("kernel %q failed: %v", name, exception)
	}
	return errors.WithMessagef(err, "kernel %q failed", name)
}

// Upload copies host bytes to the device. While capturing, it records a memcpy node whose
// addresses can later be updated on the instantiated graph.
func (s *Stream) Upload(dst Pointer, src []byte) error {
	return s.memcpy(MemcpyHostToDevice, dst, src)
}

// Download copies device bytes to the host. While capturing, it records a memcpy node.
func (s *Stream) Download(dst []byte, src Pointer) error {
	return s.memcpy(MemcpyDeviceToHost, src, dst)
}

func (s *Stream) memcpy(direction MemcpyDirection, devicePtr Pointer, host []byte) error {
	node := &MemcpyNode{Direction: direction, Device: devicePtr, Host: host}
	s.mu.Lock()
	graph := s.capturing
	s.mu.Unlock()
	if graph != nil {
		graph.nodes = append(graph.nodes, &graphNode{name: direction.String(), memcpy: node})
		graph.memcpyNodes = append(graph.memcpyNodes, node)
		return nil
	}
	return node.run()
}

// CopyOnDevice copies n bytes between two device addresses, as a kernel on the stream.
func (s *Stream) CopyOnDevice(dst, src Pointer, n int) error {
	return s.Launch("memcpy_dtod", func() error {
		copy(dst.Bytes(n), src.Bytes(n))
		return nil
	})
}

// Synchronize waits for all issued work. Synchronizing a capturing stream is an error, since
// captured work doesn't run until the graph is launched.
func (s *Stream) Synchronize() error {
	if s.IsCapturing() {
		return errors.New("stream synchronization is not permitted while capturing")
	}
	return nil
}

// BeginCapture starts recording the stream into a new graph.
func (s *Stream) BeginCapture() error {
	if !s.device.properties.GraphCapture {
		return errors.Errorf("device %s doesn't support graph capture", s.device.properties.Name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturing != nil {
		return errors.New("stream is already capturing")
	}
	s.capturing = &Graph{device: s.device}
	return nil
}

// EndCapture stops recording and returns the captured graph.
func (s *Stream) EndCapture() (*Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturing == nil {
		return nil, errors.New("stream is not capturing")
	}
	graph := s.capturing
	s.capturing = nil
	return graph, nil
}

// AbortCapture stops recording and discards what was recorded. It's a no-op if not capturing.
func (s *Stream) AbortCapture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capturing = nil
}
