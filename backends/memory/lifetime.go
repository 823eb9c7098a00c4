// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package memory

import (
	"github.com/gomlx/accel/pkg/support/sets"
	"github.com/gomlx/exceptions"
)

// Location selects where a buffer lives.
type Location int

const (
	// LocationMutable holds tensors and mutable workbuffers, one copy per in-flight request.
	LocationMutable Location = iota

	// LocationConstants holds the constants of the model, shared by all requests.
	LocationConstants

	// LocationImmutable holds the immutable workbuffers, initialized once and shared by all requests.
	LocationImmutable
)

type tensorLifetime struct {
	start, end int
	size       int
	isOutput   bool
}

// LifetimeExtractor records buffers while the execution sequence is walked, in order.
//
// Tensors start at the index of their producer and end at their last consumer; graph outputs
// stay alive until the last operation of the sequence. Workbuffers are requested per operation:
// immutable ones live in their own blob for the whole model, mutable ones only during
// the operation.
//
// Zero-sized buffers are valid but take no memory: they resolve to the nil pointer.
type LifetimeExtractor struct {
	nextID    BufferID
	numOps    int
	tensors   map[BufferID]*tensorLifetime
	order     []BufferID
	locations map[BufferID]Location
	empty     sets.Set[BufferID]
	constants *ModelBuilder
	immutable *ModelBuilder
	mutable   *ModelBuilder
}

// NewLifetimeExtractor returns an empty LifetimeExtractor.
func NewLifetimeExtractor() *LifetimeExtractor {
	return &LifetimeExtractor{
		tensors:   make(map[BufferID]*tensorLifetime),
		locations: make(map[BufferID]Location),
		empty:     sets.Make[BufferID](),
		constants: NewModelBuilder(),
		immutable: NewModelBuilder(),
		mutable:   NewModelBuilder(),
	}
}

func (e *LifetimeExtractor) newID(location Location, size int) BufferID {
	if size < 0 {
		exceptions.Panicf("memory.LifetimeExtractor: negative buffer size %d", size)
	}
	id := e.nextID
	e.nextID++
	e.locations[id] = location
	if size == 0 {
		e.empty.Insert(id)
	}
	return id
}

func (e *LifetimeExtractor) visit(index int) {
	if index < 0 {
		exceptions.Panicf("memory.LifetimeExtractor: negative operation index %d", index)
	}
	e.numOps = max(e.numOps, index+1)
}

// AddTensor registers a tensor of size bytes produced by the operation at index.
func (e *LifetimeExtractor) AddTensor(index, size int) BufferID {
	e.visit(index)
	id := e.newID(LocationMutable, size)
	e.tensors[id] = &tensorLifetime{start: index, end: index, size: size}
	e.order = append(e.order, id)
	return id
}

// AddConstant registers a constant of size bytes.
func (e *LifetimeExtractor) AddConstant(size int) BufferID {
	id := e.newID(LocationConstants, size)
	if size > 0 {
		// Constants all live for the whole model: lifetimes don't matter within the blob.
		e.constants.AddAllocation(id, 0, 0, size)
	}
	return id
}

// UseTensor records that the operation at index consumes the tensor id.
// Constants can be used freely.
func (e *LifetimeExtractor) UseTensor(index int, id BufferID) {
	e.visit(index)
	if location, found := e.locations[id]; found && location == LocationConstants {
		return
	}
	t, found := e.tensors[id]
	if !found {
		exceptions.Panicf("memory.LifetimeExtractor: operation #%d uses unknown tensor #%d", index, id)
	}
	if index < t.start {
		exceptions.Panicf("memory.LifetimeExtractor: operation #%d uses tensor #%d before it is produced at #%d",
			index, id, t.start)
	}
	t.end = max(t.end, index)
}

// MarkOutput keeps the tensor id alive until the end of the sequence.
func (e *LifetimeExtractor) MarkOutput(id BufferID) {
	t, found := e.tensors[id]
	if !found {
		return // Constants are always alive.
	}
	t.isOutput = true
}

// AddWorkbuffers registers the workbuffers requested by the operation at index.
func (e *LifetimeExtractor) AddWorkbuffers(index int, immutableSizes, mutableSizes []int) (immutable, mutable []BufferID) {
	e.visit(index)
	for _, size := range immutableSizes {
		id := e.newID(LocationImmutable, size)
		if size > 0 {
			e.immutable.AddAllocation(id, 0, 0, size)
		}
		immutable = append(immutable, id)
	}
	for _, size := range mutableSizes {
		id := e.newID(LocationMutable, size)
		if size > 0 {
			e.mutable.AddAllocation(id, index, index, size)
		}
		mutable = append(mutable, id)
	}
	return
}

// LocationOf returns where the buffer id lives.
func (e *LifetimeExtractor) LocationOf(id BufferID) (location Location, found bool) {
	location, found = e.locations[id]
	return
}

// Plan is the result of the lifetime extraction: one model per arena.
type Plan struct {
	Constants, Immutable, Mutable *Model

	// Locations maps every buffer to its arena.
	Locations map[BufferID]Location

	// Empty holds the zero-sized buffers, which are in no model.
	Empty sets.Set[BufferID]

	// NumOps is the length of the execution sequence.
	NumOps int
}

// Build finishes the extraction for a sequence of numOps operations and packs each arena.
// numOps may be larger than the last index seen, when trailing operations use no buffers.
func (e *LifetimeExtractor) Build(numOps int) *Plan {
	numOps = max(numOps, e.numOps)
	for _, id := range e.order {
		t := e.tensors[id]
		if t.size == 0 {
			continue
		}
		end := t.end
		if t.isOutput {
			end = numOps - 1
		}
		e.mutable.AddAllocation(id, t.start, end, t.size)
	}
	return &Plan{
		Constants: e.constants.Build(),
		Immutable: e.immutable.Build(),
		Mutable:   e.mutable.Build(),
		Locations: e.locations,
		Empty:     e.empty,
		NumOps:    numOps,
	}
}
