// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"context"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/memory"
	"github.com/gomlx/accel/pkg/core/shapes"
	"github.com/google/uuid"
)

// Tensor is a host tensor: a shape and its little-endian contents.
type Tensor struct {
	Shape shapes.Shape
	Data  []byte
}

// NewTensor returns a zero-initialized tensor of the given shape.
func NewTensor(shape shapes.Shape) *Tensor {
	return &Tensor{Shape: shape, Data: make([]byte, shape.ByteSize())}
}

// RequestContext carries the state of one inference request through the execution: the host
// tensors, the stream and workspace it holds, and the capture context bound to that workspace.
type RequestContext struct {
	ID uuid.UUID

	ctx      context.Context
	inputs   []*Tensor // Ordered like the graph's parameters.
	outputs  []*Tensor // Ordered like the graph's results.
	stream   *device.Stream
	proxy    *memory.Proxy
	profiler *Profiler
	capture  *CaptureContext
}

// NewRequestContext creates the context of a request.
func NewRequestContext(ctx context.Context, inputs, outputs []*Tensor, stream *device.Stream,
	proxy *memory.Proxy, profiler *Profiler, capture *CaptureContext) *RequestContext {
	return &RequestContext{
		ID:       uuid.New(),
		ctx:      ctx,
		inputs:   inputs,
		outputs:  outputs,
		stream:   stream,
		proxy:    proxy,
		profiler: profiler,
		capture:  capture,
	}
}

// Context of the request, cancelled when the request is.
func (r *RequestContext) Context() context.Context { return r.ctx }

// Err returns a non-nil error if the request was cancelled.
func (r *RequestContext) Err() error { return r.ctx.Err() }

// Stream executing the request.
func (r *RequestContext) Stream() *device.Stream { return r.stream }

// Proxy resolving the buffers of the request.
func (r *RequestContext) Proxy() *memory.Proxy { return r.proxy }

// Profiler of the compiled model, possibly disabled.
func (r *RequestContext) Profiler() *Profiler { return r.profiler }

// CaptureContext bound to the request's workspace, or nil if graphs are not used.
func (r *RequestContext) CaptureContext() *CaptureContext { return r.capture }

// Input returns the host tensor of the parameter at index.
func (r *RequestContext) Input(index int) *Tensor { return r.inputs[index] }

// Output returns the host tensor of the result at index.
func (r *RequestContext) Output(index int) *Tensor { return r.outputs[index] }
