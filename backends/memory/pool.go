// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"

	"github.com/gomlx/accel/backends/device"
	"github.com/pkg/errors"
)

// Workspace is one pre-allocated mutable arena, exclusively owned by the request holding it.
type Workspace struct {
	index      int
	allocation *device.Allocation
}

// Index of the workspace in its pool.
func (w *Workspace) Index() int { return w.index }

// Pointer returns the address at offset within the workspace.
func (w *Workspace) Pointer(offset int) device.Pointer { return w.allocation.Pointer(offset) }

// Pool holds a fixed number of workspaces, typically one per stream.
//
// WaitAndGet blocks until a workspace is free. The wait is cancellable through its context:
// Interrupt wakes every waiter up so they re-check their cancellation.
type Pool struct {
	mu     sync.Mutex
	cond   sync.Cond // Broadcast whenever a workspace is returned or on Interrupt.
	free   []*Workspace
	all    []*Workspace
	closed bool
}

// NewPool allocates numWorkspaces arenas of size bytes each on dev.
func NewPool(dev *device.Device, size, numWorkspaces int) (*Pool, error) {
	if numWorkspaces <= 0 {
		return nil, errors.Errorf("memory.Pool requires at least 1 workspace, got %d", numWorkspaces)
	}
	p := &Pool{}
	p.cond = sync.Cond{L: &p.mu}
	for ii := range numWorkspaces {
		allocation, err := dev.Allocate(size)
		if err != nil {
			p.Close()
			return nil, errors.WithMessagef(err, "allocating workspace %d of %d", ii, numWorkspaces)
		}
		w := &Workspace{index: ii, allocation: allocation}
		p.all = append(p.all, w)
		p.free = append(p.free, w)
	}
	return p, nil
}

// Size returns the total number of workspaces.
func (p *Pool) Size() int { return len(p.all) }

// NumFree returns the number of workspaces currently available.
func (p *Pool) NumFree() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free)
}

// WaitAndGet returns a free workspace, waiting for one if needed. It returns an error if ctx
// is cancelled before a workspace becomes available, or if the pool is closed.
func (p *Pool) WaitAndGet(ctx context.Context) (*Workspace, error) {
	stop := context.AfterFunc(ctx, p.Interrupt)
	defer stop()
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.free) == 0 && !p.closed {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "waiting for a free workspace")
		}
		p.cond.Wait()
	}
	if p.closed {
		return nil, errors.New("memory.Pool is closed")
	}
	last := len(p.free) - 1
	w := p.free[last]
	p.free = p.free[:last]
	return w, nil
}

// Put returns a workspace to the pool.
func (p *Pool) Put(w *Workspace) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, w)
	p.cond.Broadcast()
}

// Interrupt wakes up every waiter, so they can check for cancellation.
func (p *Pool) Interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cond.Broadcast()
}

// Close frees the workspaces and fails pending and future waits.
// Workspaces still held by requests are freed as well: Close must only be called once no
// request is running.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for _, w := range p.all {
		w.allocation.Free()
	}
	p.free = nil
	p.cond.Broadcast()
}
