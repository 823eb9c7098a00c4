// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package memory

import (
	"cmp"
	"slices"

	"github.com/emirpasic/gods/v2/queues/priorityqueue"
	"github.com/emirpasic/gods/v2/trees/redblacktree"
	"github.com/gomlx/exceptions"
	"k8s.io/klog/v2"
)

// ModelBuilder collects allocations and packs them into a Model.
type ModelBuilder struct {
	allocations []Allocation
	ids         map[BufferID]struct{}
}

// NewModelBuilder returns an empty ModelBuilder.
func NewModelBuilder() *ModelBuilder {
	return &ModelBuilder{ids: make(map[BufferID]struct{})}
}

// AddAllocation registers a buffer live from operation index start to end, both included.
//
// It panics if id was already registered, if size is not positive or if end < start: these are
// bugs of the caller.
func (b *ModelBuilder) AddAllocation(id BufferID, start, end, size int) {
	if _, found := b.ids[id]; found {
		exceptions.Panicf("memory.ModelBuilder: buffer #%d registered twice", id)
	}
	if size <= 0 {
		exceptions.Panicf("memory.ModelBuilder: buffer #%d has invalid size %d", id, size)
	}
	if end < start {
		exceptions.Panicf("memory.ModelBuilder: buffer #%d has reversed lifetime [%d, %d]", id, start, end)
	}
	b.ids[id] = struct{}{}
	b.allocations = append(b.allocations, Allocation{ID: id, Start: start, End: end, Size: size})
}

// NumAllocations returns the number of allocations registered so far.
func (b *ModelBuilder) NumAllocations() int { return len(b.allocations) }

// placed is an allocation with its offset and aligned size, as kept in the active queue.
type placed struct {
	end, offset, size int
	id                BufferID
}

// freeList is the set of free ranges of the arena, keyed by offset, always coalesced: no two
// ranges are adjacent.
type freeList struct {
	tree *redblacktree.Tree[int, int] // offset -> size
}

func (f *freeList) release(offset, size int) {
	// Merge with the range to the left, if it ends at offset.
	if left, found := f.tree.Floor(offset); found && left.Key+left.Value == offset {
		offset, size = left.Key, left.Value+size
		f.tree.Remove(left.Key)
	}
	// Merge with the range to the right, if it starts at offset+size.
	if rightSize, found := f.tree.Get(offset + size); found {
		f.tree.Remove(offset + size)
		size += rightSize
	}
	f.tree.Put(offset, size)
}

// take returns the lowest offset free range that fits size, carving it out of the list.
func (f *freeList) take(size int) (offset int, found bool) {
	it := f.tree.Iterator()
	for it.Next() {
		if it.Value() >= size {
			offset, rangeSize := it.Key(), it.Value()
			f.tree.Remove(offset)
			if rangeSize > size {
				f.tree.Put(offset+size, rangeSize-size)
			}
			return offset, true
		}
	}
	return 0, false
}

// takeTail removes and returns the free range ending at arenaEnd, if there is one.
func (f *freeList) takeTail(arenaEnd int) (offset int, found bool) {
	last := f.tree.Right()
	if last == nil || last.Key+last.Value != arenaEnd {
		return 0, false
	}
	f.tree.Remove(last.Key)
	return last.Key, true
}

// Build packs the allocations into a Model.
//
// Allocations are swept in order of start index. Before placing an allocation every active one
// whose last operation comes before its start is released back to the free list. The allocation then takes the lowest
// offset free range that fits its aligned size. If none fits, the arena grows: a free range at
// the end of the arena is extended, otherwise the buffer is appended at the end.
func (b *ModelBuilder) Build() *Model {
	sorted := slices.Clone(b.allocations)
	slices.SortStableFunc(sorted, func(x, y Allocation) int {
		if c := cmp.Compare(x.Start, y.Start); c != 0 {
			return c
		}
		// Larger buffers first, for tighter packing.
		return cmp.Compare(y.Size, x.Size)
	})

	free := &freeList{tree: redblacktree.New[int, int]()}
	active := priorityqueue.NewWith[placed](func(x, y placed) int {
		if c := cmp.Compare(x.end, y.end); c != 0 {
			return c
		}
		return cmp.Compare(x.offset, y.offset)
	})
	offsets := make(map[BufferID]int, len(sorted))
	totalSize := 0
	for _, alloc := range sorted {
		for {
			next, ok := active.Peek()
			if !ok || next.end >= alloc.Start {
				break
			}
			active.Dequeue()
			free.release(next.offset, next.size)
		}
		size := AlignUp(alloc.Size)
		offset, found := free.take(size)
		if !found {
			if offset, found = free.takeTail(totalSize); !found {
				offset = totalSize
			}
			totalSize = offset + size
		}
		offsets[alloc.ID] = offset
		active.Enqueue(placed{end: alloc.End, offset: offset, size: size, id: alloc.ID})
	}
	model := newModel(b.allocations, offsets, totalSize)
	if klog.V(2).Enabled() {
		klog.Infof("%s", model)
	}
	return model
}
