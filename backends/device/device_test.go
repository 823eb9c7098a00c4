// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"testing"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate(t *testing.T) {
	dev := New(0, Properties{Name: "test", MemoryLimit: 1024})
	a, err := dev.Allocate(1000)
	require.NoError(t, err)
	assert.EqualValues(t, 1000, dev.Allocated())

	_, err = dev.Allocate(100)
	require.ErrorContains(t, err, "out of memory")

	a.Free()
	a.Free()
	assert.EqualValues(t, 0, dev.Allocated())

	b, err := dev.Allocate(16)
	require.NoError(t, err)
	p := b.Pointer(8)
	assert.Equal(t, p, b.Pointer(0).Add(8))
	assert.Len(t, p.Bytes(8), 8)
	require.NotNil(t, exceptions.Try(func() { p.Bytes(9) }))
	assert.True(t, Pointer{}.IsNil())
}

func TestStreamCapture(t *testing.T) {
	dev := New(0, Properties{Name: "test", GraphCapture: true})
	stream := dev.NewStream()
	alloc, err := dev.Allocate(4)
	require.NoError(t, err)
	ptr := alloc.Pointer(0)

	input := []byte{1, 2, 3, 4}
	output := make([]byte, 4)
	require.NoError(t, stream.BeginCapture())
	require.Error(t, stream.Synchronize())
	require.NoError(t, stream.Upload(ptr, input))
	require.NoError(t, stream.Launch("double", func() error {
		for ii, v := range ptr.Bytes(4) {
			ptr.Bytes(4)[ii] = 2 * v
		}
		return nil
	}))
	require.NoError(t, stream.Download(output, ptr))
	graph, err := stream.EndCapture()
	require.NoError(t, err)

	// Nothing ran during capture.
	assert.Equal(t, []byte{0, 0, 0, 0}, output)
	assert.EqualValues(t, 0, dev.Stats().KernelLaunches.Load())
	assert.Equal(t, 3, graph.NumNodes())
	require.Len(t, graph.MemcpyNodes(), 2)

	exec, err := graph.Instantiate()
	require.NoError(t, err)
	require.NoError(t, exec.Launch(stream))
	assert.Equal(t, []byte{2, 4, 6, 8}, output)

	// Re-bind the host buffers without recapturing.
	input2 := []byte{5, 5, 5, 5}
	output2 := make([]byte, 4)
	require.NoError(t, exec.SetMemcpyNodeParams(0, ptr, input2))
	require.NoError(t, exec.SetMemcpyNodeParams(1, ptr, output2))
	require.NoError(t, exec.Launch(stream))
	assert.Equal(t, []byte{10, 10, 10, 10}, output2)
	assert.EqualValues(t, 2, dev.Stats().MemcpyNodeUpdates.Load())
	require.Error(t, exec.SetMemcpyNodeParams(0, ptr, make([]byte, 3)))
}

func TestKernelFailures(t *testing.T) {
	dev := New(0, Properties{Name: "test"})
	stream := dev.NewStream()
	require.Error(t, stream.BeginCapture(), "capture not supported by the device")

	err := stream.Launch("failing", func() error { return errors.New("boom") })
	require.ErrorContains(t, err, "boom")
	require.ErrorContains(t, err, "failing")

	err = stream.Launch("panicking", func() error {
		exceptions.Panicf("out of bounds")
		return nil
	})
	require.ErrorContains(t, err, "out of bounds")
}
