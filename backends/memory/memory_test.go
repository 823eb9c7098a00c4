// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/exceptions"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestChainReusesMemory(t *testing.T) {
	const size = 1000
	e := NewLifetimeExtractor()
	var previous BufferID
	for index := range 4 {
		if index > 0 {
			e.UseTensor(index, previous)
		}
		previous = e.AddTensor(index, size)
	}
	e.MarkOutput(previous)
	plan := e.Build(4)
	assert.Equal(t, 2*AlignUp(size), plan.Mutable.TotalSize())
	assert.Equal(t, 4, plan.Mutable.NumBuffers())
	assert.Equal(t, 0, plan.Constants.TotalSize())
}

func TestNeighborsShareBoundary(t *testing.T) {
	// Consecutive lifetimes touch at one operation, where the consumer reads its input while
	// writing its output: they can't share memory.
	b := NewModelBuilder()
	for ii := range 4 {
		b.AddAllocation(BufferID(ii), ii, ii+1, 1)
	}
	model := b.Build()
	assert.Equal(t, 2*AlignUp(1), model.TotalSize())
	for ii := range 4 {
		offset, _ := model.Offset(BufferID(ii))
		assert.Equal(t, (ii%2)*Alignment, offset, "buffer #%d", ii)
	}

	// Single operation lifetimes at different indices do share.
	b = NewModelBuilder()
	for ii := range 4 {
		b.AddAllocation(BufferID(ii), ii, ii, 100)
	}
	assert.Equal(t, AlignUp(100), b.Build().TotalSize())
}

func TestEmptyModel(t *testing.T) {
	model := NewModelBuilder().Build()
	assert.Equal(t, 0, model.TotalSize())
	assert.Equal(t, 0, model.NumBuffers())

	e := NewLifetimeExtractor()
	id := e.AddTensor(0, 0)
	plan := e.Build(1)
	assert.Equal(t, 0, plan.Mutable.TotalSize())
	assert.True(t, plan.Empty.Has(id))
}

func TestBuilderContractViolations(t *testing.T) {
	b := NewModelBuilder()
	b.AddAllocation(1, 0, 2, 10)
	require.NotNil(t, exceptions.Try(func() { b.AddAllocation(1, 3, 4, 10) }), "duplicate id")
	require.NotNil(t, exceptions.Try(func() { b.AddAllocation(2, 0, 1, 0) }), "zero size")
	require.NotNil(t, exceptions.Try(func() { b.AddAllocation(3, 2, 1, 8) }), "reversed lifetime")
	b.AddAllocation(4, 2, 2, 8)
	assert.Equal(t, 2, b.NumAllocations())

	e := NewLifetimeExtractor()
	require.NotNil(t, exceptions.Try(func() { e.UseTensor(0, 7) }), "unknown tensor")
	id := e.AddTensor(2, 8)
	require.NotNil(t, exceptions.Try(func() { e.UseTensor(1, id) }), "used before produced")
}

func TestLowestOffsetFit(t *testing.T) {
	b := NewModelBuilder()
	b.AddAllocation(0, 0, 0, 512) // @0, dead after operation 0.
	b.AddAllocation(1, 0, 2, 256) // @512.
	b.AddAllocation(2, 1, 2, 256) // Reuses @0, after 3 is placed.
	b.AddAllocation(3, 1, 2, 600) // Doesn't fit in the free 512 at @0: appended at @768.
	model := b.Build()
	got := make(map[BufferID]int)
	for _, a := range model.Allocations() {
		got[a.ID], _ = model.Offset(a.ID)
	}
	want := map[BufferID]int{0: 0, 1: 512, 2: 0, 3: 768}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("offsets mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 768+768, model.TotalSize())
	assert.Contains(t, model.String(), "4 buffers")
}

func TestRandomizedNoOverlap(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	for trial := range 50 {
		b := NewModelBuilder()
		numOps := 1 + rng.IntN(30)
		numAllocs := rng.IntN(60)
		allocs := make([]Allocation, numAllocs)
		for ii := range allocs {
			start := rng.IntN(numOps)
			allocs[ii] = Allocation{
				ID:    BufferID(ii),
				Start: start,
				End:   start + rng.IntN(numOps-start),
				Size:  1 + rng.IntN(4096),
			}
			b.AddAllocation(allocs[ii].ID, allocs[ii].Start, allocs[ii].End, allocs[ii].Size)
		}
		model := b.Build()
		require.Equal(t, numAllocs, model.NumBuffers())
		for ii, x := range allocs {
			offsetX, found := model.Offset(x.ID)
			require.True(t, found)
			require.Zerof(t, offsetX%Alignment, "trial %d: unaligned offset %d", trial, offsetX)
			require.LessOrEqualf(t, offsetX+x.Size, model.TotalSize(), "trial %d: %s out of arena", trial, x)
			for _, y := range allocs[ii+1:] {
				if x.End < y.Start || y.End < x.Start {
					continue // Lifetimes don't overlap.
				}
				offsetY, _ := model.Offset(y.ID)
				overlap := offsetX < offsetY+y.Size && offsetY < offsetX+x.Size
				require.Falsef(t, overlap, "trial %d: %s@%d and %s@%d overlap", trial, x, offsetX, y, offsetY)
			}
		}
	}
}

func TestManagerAndProxy(t *testing.T) {
	dev := device.New(0, device.Properties{Name: "test"})
	e := NewLifetimeExtractor()
	constant := e.AddConstant(16)
	tensor := e.AddTensor(0, 32)
	e.UseTensor(1, tensor)
	e.UseTensor(1, constant)
	immutable, mutable := e.AddWorkbuffers(1, []int{8}, []int{64, 0})
	plan := e.Build(2)

	m, err := NewManager(dev, plan)
	require.NoError(t, err)
	defer m.Free()

	var calls int
	for range 2 {
		require.NoError(t, m.InitImmutable(func(proxy *Proxy) error {
			calls++
			copy(proxy.Pointer(immutable[0]).Bytes(8), "whatever")
			return nil
		}))
	}
	assert.Equal(t, 1, calls)

	pool, err := NewPool(dev, m.MutableSize(), 2)
	require.NoError(t, err)
	defer pool.Close()
	w, err := pool.WaitAndGet(context.Background())
	require.NoError(t, err)
	proxy := m.Bind(w)
	assert.Equal(t, "whatever", string(proxy.Pointer(immutable[0]).Bytes(8)))
	assert.True(t, proxy.Pointer(mutable[1]).IsNil())
	assert.False(t, proxy.Pointer(tensor).IsNil())
	assert.Len(t, proxy.Pointers([]BufferID{constant, tensor, mutable[0]}), 3)
	require.NotNil(t, exceptions.Try(func() { m.Bind(nil).Pointer(tensor) }))
	require.NotNil(t, exceptions.Try(func() { proxy.Pointer(1000) }))
	pool.Put(w)
}

func TestPoolWaitAndCancel(t *testing.T) {
	dev := device.New(0, device.Properties{Name: "test"})
	pool, err := NewPool(dev, 1024, 1)
	require.NoError(t, err)
	defer pool.Close()

	held, err := pool.WaitAndGet(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, pool.NumFree())

	// A cancelled wait returns context.Canceled.
	ctx, cancel := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error {
		_, err := pool.WaitAndGet(ctx)
		return err
	})
	time.Sleep(10 * time.Millisecond)
	cancel()
	require.ErrorIs(t, g.Wait(), context.Canceled)

	// A waiter gets the workspace once it's returned.
	var g2 errgroup.Group
	g2.Go(func() error {
		w, err := pool.WaitAndGet(context.Background())
		if err == nil {
			pool.Put(w)
		}
		return err
	})
	time.Sleep(10 * time.Millisecond)
	pool.Put(held)
	require.NoError(t, g2.Wait())
	assert.Equal(t, 1, pool.NumFree())
}
