// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package memory plans and manages the device memory of a compiled model.
//
// The LifetimeExtractor walks the execution sequence once and records, for every buffer, the
// closed interval of operation indices [Start, End] during which it must stay alive. The
// ModelBuilder packs those intervals into a single arena (a Model), reusing the space of dead
// buffers. The Manager then owns the constant and immutable blobs, and the Pool hands out the
// per-request mutable arenas.
package memory

import (
	"fmt"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
)

// BufferID identifies a buffer (tensor or workbuffer) within a compiled model.
type BufferID int

// Alignment of every buffer offset and size within an arena, in bytes.
const Alignment = 256

// AlignUp rounds size up to a multiple of Alignment.
func AlignUp(size int) int {
	return (size + Alignment - 1) / Alignment * Alignment
}

// Allocation is the lifetime and size of one buffer: it is live from operation Start to operation
// End, both included. Two buffers whose intervals share an operation index can't share memory.
type Allocation struct {
	ID         BufferID
	Start, End int
	Size       int
}

// String implements fmt.Stringer.
func (a Allocation) String() string {
	return fmt.Sprintf("#%d[%d, %d] %s", a.ID, a.Start, a.End, humanize.IBytes(uint64(a.Size)))
}

// Model maps buffers to offsets in an arena of TotalSize bytes. No two buffers whose lifetimes
// overlap share any byte of the arena.
type Model struct {
	allocations []Allocation
	offsets     map[BufferID]int
	totalSize   int
}

// TotalSize of the arena needed to hold every buffer of the model.
func (m *Model) TotalSize() int { return m.totalSize }

// NumBuffers returns the number of buffers in the model.
func (m *Model) NumBuffers() int { return len(m.allocations) }

// Offset returns the offset of the buffer id in the arena, and whether it is part of the model.
func (m *Model) Offset(id BufferID) (offset int, found bool) {
	offset, found = m.offsets[id]
	return
}

// Allocations returns the allocations of the model, sorted by offset. The returned slice must
// not be modified.
func (m *Model) Allocations() []Allocation { return m.allocations }

// String implements fmt.Stringer.
func (m *Model) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "memory model: %d buffers, %s", len(m.allocations), humanize.IBytes(uint64(m.totalSize)))
	for _, a := range m.allocations {
		fmt.Fprintf(&sb, "\n  @%-10d %s", m.offsets[a.ID], a)
	}
	return sb.String()
}

func newModel(allocations []Allocation, offsets map[BufferID]int, totalSize int) *Model {
	sorted := slices.Clone(allocations)
	slices.SortFunc(sorted, func(a, b Allocation) int {
		if c := offsets[a.ID] - offsets[b.ID]; c != 0 {
			return c
		}
		return a.Start - b.Start
	})
	return &Model{allocations: sorted, offsets: offsets, totalSize: totalSize}
}
