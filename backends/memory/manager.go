// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package memory

import (
	"sync"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Manager owns the memory of a compiled model: the constants blob and the immutable workbuffers
// blob, both shared by every request, plus the plan of the per-request mutable arena.
type Manager struct {
	device *device.Device
	plan   *Plan

	constants, immutable *device.Allocation

	immutableOnce sync.Once
	immutableErr  error
}

// NewManager allocates the shared blobs of plan on dev.
func NewManager(dev *device.Device, plan *Plan) (*Manager, error) {
	m := &Manager{device: dev, plan: plan}
	var err error
	if m.constants, err = dev.Allocate(plan.Constants.TotalSize()); err != nil {
		return nil, errors.WithMessagef(err, "allocating constants blob")
	}
	if m.immutable, err = dev.Allocate(plan.Immutable.TotalSize()); err != nil {
		m.constants.Free()
		return nil, errors.WithMessagef(err, "allocating immutable workbuffers blob")
	}
	klog.V(1).Infof("memory.Manager on %s: constants=%d bytes, immutable=%d bytes, mutable arena=%d bytes",
		dev, plan.Constants.TotalSize(), plan.Immutable.TotalSize(), plan.Mutable.TotalSize())
	return m, nil
}

// Plan returns the memory plan of the manager.
func (m *Manager) Plan() *Plan { return m.plan }

// Device returns the device holding the memory.
func (m *Manager) Device() *device.Device { return m.device }

// MutableSize is the size in bytes of each per-request arena.
func (m *Manager) MutableSize() int { return m.plan.Mutable.TotalSize() }

// InitImmutable runs initialize exactly once, with a proxy that resolves constants and
// immutable workbuffers. Later calls return the error of the first one.
func (m *Manager) InitImmutable(initialize func(proxy *Proxy) error) error {
	m.immutableOnce.Do(func() {
		m.immutableErr = initialize(m.Bind(nil))
	})
	return m.immutableErr
}

// Bind returns a Proxy resolving buffer ids, with the mutable buffers placed in workspace.
// workspace may be nil if only shared buffers are going to be resolved.
func (m *Manager) Bind(workspace *Workspace) *Proxy {
	return &Proxy{manager: m, workspace: workspace}
}

// Free releases the shared blobs.
func (m *Manager) Free() {
	m.constants.Free()
	m.immutable.Free()
}

// Proxy resolves buffer ids to device pointers for one request.
type Proxy struct {
	manager   *Manager
	workspace *Workspace
}

// Workspace returns the mutable workspace bound to the proxy, or nil.
func (p *Proxy) Workspace() *Workspace { return p.workspace }

// Pointer returns the device address of the buffer id. Zero-sized buffers resolve to the nil
// pointer. It panics for unknown ids.
func (p *Proxy) Pointer(id BufferID) device.Pointer {
	plan := p.manager.plan
	if plan.Empty.Has(id) {
		return device.Pointer{}
	}
	location, found := plan.Locations[id]
	if !found {
		exceptions.Panicf("memory.Proxy: unknown buffer #%d", id)
	}
	switch location {
	case LocationConstants:
		offset, _ := plan.Constants.Offset(id)
		return p.manager.constants.Pointer(offset)
	case LocationImmutable:
		offset, _ := plan.Immutable.Offset(id)
		return p.manager.immutable.Pointer(offset)
	}
	if p.workspace == nil {
		exceptions.Panicf("memory.Proxy: mutable buffer #%d resolved without a workspace", id)
	}
	offset, _ := plan.Mutable.Offset(id)
	return p.workspace.allocation.Pointer(offset)
}

// Pointers resolves a list of buffer ids.
func (p *Proxy) Pointers(ids []BufferID) []device.Pointer {
	ptrs := make([]device.Pointer, len(ids))
	for ii, id := range ids {
		ptrs[ii] = p.Pointer(id)
	}
	return ptrs
}
