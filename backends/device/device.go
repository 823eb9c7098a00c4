// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package device models an accelerator: device memory allocations, an ordered command stream,
// and stream capture into replayable graphs.
//
// The device is realized on the host: allocations are Go byte slices and kernels are Go
// functions. Launch ordering, capture and replay follow the semantics of a CUDA stream, so
// the execution engine built on top of it is the same one that drives a native device.
package device

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Properties describes what a device supports.
type Properties struct {
	// Name of the device, e.g. "NEON" or "NVIDIA.0".
	Name string

	// Float16 indicates whether native float16 kernels are available.
	Float16 bool

	// GraphCapture indicates whether streams can be captured into replayable graphs.
	GraphCapture bool

	// MemoryLimit is the maximum number of bytes that can be allocated. 0 means unlimited.
	MemoryLimit int64

	// NumCores is used by kernels that parallelize work on the host.
	NumCores int
}

// Device is one accelerator. It is safe for concurrent use.
type Device struct {
	id         int
	properties Properties

	allocated atomic.Int64
	stats     Stats
}

// Stats are counters of device activity, used for profiling and tests.
type Stats struct {
	KernelLaunches      atomic.Int64
	GraphInstantiations atomic.Int64
	GraphLaunches       atomic.Int64
	MemcpyNodeUpdates   atomic.Int64
	Allocations         atomic.Int64
}

// New creates a device with the given id and properties.
func New(id int, properties Properties) *Device {
	if properties.NumCores <= 0 {
		properties.NumCores = runtime.NumCPU()
	}
	if properties.Name == "" {
		properties.Name = fmt.Sprintf("device.%d", id)
	}
	klog.V(1).Infof("device %d (%s): float16=%v, graph capture=%v, memory limit=%s",
		id, properties.Name, properties.Float16, properties.GraphCapture, limitString(properties.MemoryLimit))
	return &Device{id: id, properties: properties}
}

func limitString(limit int64) string {
	if limit <= 0 {
		return "unlimited"
	}
	return humanize.IBytes(uint64(limit))
}

// ID returns the device id.
func (d *Device) ID() int { return d.id }

// Properties returns the device properties.
func (d *Device) Properties() Properties { return d.properties }

// Stats returns the device counters.
func (d *Device) Stats() *Stats { return &d.stats }

// Allocated returns the number of bytes currently allocated.
func (d *Device) Allocated() int64 { return d.allocated.Load() }

// String implements fmt.Stringer.
func (d *Device) String() string {
	return fmt.Sprintf("%s (allocated %s)", d.properties.Name, humanize.IBytes(uint64(d.Allocated())))
}

// Allocation is one contiguous block of device memory.
type Allocation struct {
	device *Device
	data   []byte
	once   sync.Once
}

// Allocate reserves size bytes of device memory. Allocating 0 bytes returns an empty allocation.
func (d *Device) Allocate(size int) (*Allocation, error) {
	if size < 0 {
		return nil, errors.Errorf("device %s: invalid allocation size %d", d.properties.Name, size)
	}
	if limit := d.properties.MemoryLimit; limit > 0 && d.allocated.Load()+int64(size) > limit {
		return nil, errors.Errorf("device %s: out of memory allocating %s (allocated %s of %s)",
			d.properties.Name, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(d.allocated.Load())),
			humanize.IBytes(uint64(limit)))
	}
	d.allocated.Add(int64(size))
	d.stats.Allocations.Add(1)
	return &Allocation{device: d, data: make([]byte, size)}, nil
}

// Size returns the size in bytes of the allocation.
func (a *Allocation) Size() int { return len(a.data) }

// Free releases the allocation. It's safe to call more than once.
func (a *Allocation) Free() {
	a.once.Do(func() {
		a.device.allocated.Add(-int64(len(a.data)))
		a.data = nil
	})
}

// Pointer returns a pointer to the given offset of the allocation.
func (a *Allocation) Pointer(offset int) Pointer {
	if offset < 0 || offset > len(a.data) {
		exceptions.Panicf("Allocation.Pointer(%d) out of bounds for allocation of %d bytes", offset, len(a.data))
	}
	return Pointer{allocation: a, offset: offset}
}
