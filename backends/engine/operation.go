// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package engine turns an IR graph into an executable plan for a backend plugin and runs it.
//
// Compile converts every node through the plugin's Registry into an Operation, extracts buffer
// lifetimes, plans memory, and partitions the sequence into runs of capturable operations.
// Infer then executes requests: each request takes a workspace (mutable arena) from the pool,
// and either replays captured device graphs or executes the operations one by one.
package engine

import (
	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/pkg/errors"
)

// ErrUnsupported is wrapped by every conversion failure due to an operation the plugin can't
// lower. Test with errors.Is.
var ErrUnsupported = errors.New("operation not supported")

// Unsupportedf returns an error wrapping ErrUnsupported with a formatted reason.
func Unsupportedf(format string, args ...any) error {
	return errors.WithMessagef(ErrUnsupported, format, args...)
}

// Workbuffers are the scratch buffers of one operation, as requested by WorkbufferRequest.
type Workbuffers struct {
	Immutable, Mutable []device.Pointer
}

// WorkbufferRequest lists the byte sizes of the scratch buffers an operation needs.
// Immutable workbuffers are initialized once and shared by all requests; mutable ones are
// only valid during one Execute.
type WorkbufferRequest struct {
	Immutable, Mutable []int
}

// Operation is a converted IR node, ready to be launched on a stream.
//
// Implementations must not do device work at construction: everything is deferred to Execute
// (and InitSharedImmutableWorkbuffers).
type Operation interface {
	// Node returns the IR node the operation was created from.
	Node() *ir.Node

	// Execute enqueues the operation on stream. inputs and outputs are ordered like the node's.
	Execute(stream *device.Stream, inputs, outputs []device.Pointer, work Workbuffers) error

	// Capturable returns whether Execute can be recorded into a device graph: it must only
	// enqueue work on stream, without synchronizing or reading device memory on the host.
	Capturable() bool
}

// WorkbufferRequester is implemented by operations that need scratch buffers.
type WorkbufferRequester interface {
	WorkbufferRequest() WorkbufferRequest
}

// ImmutableInitializer is implemented by operations that fill their immutable workbuffers once,
// at compile time.
type ImmutableInitializer interface {
	InitSharedImmutableWorkbuffers(stream *device.Stream, buffers []device.Pointer) error
}

// Base implements the Node method of Operation and the default, capturable behavior.
// Plugins embed it in their operations.
type Base struct {
	IRNode *ir.Node
}

// Node implements Operation.
func (b *Base) Node() *ir.Node { return b.IRNode }

// Capturable implements Operation.
func (b *Base) Capturable() bool { return true }

// NotCapturable can be embedded instead of Base by operations that can't be captured.
type NotCapturable struct {
	Base
}

// Capturable implements Operation.
func (n *NotCapturable) Capturable() bool { return false }
