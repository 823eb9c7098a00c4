// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool bounds the number of goroutines used by the host kernels.
//
// Kernels split their outer loop (batch, output channels, rows) with ParallelFor; the pool
// keeps the total number of running goroutines near MaxParallelism across all concurrent
// requests, and the calling goroutine always takes part in the work.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers with a soft limit on parallelism.
type Pool struct {
	// maxParallelism is a soft target on the limit of parallel work to do.
	// If 0 everything runs inline, if negative it's unlimited.
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int
}

// New returns a new Pool with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	w := &Pool{maxParallelism: runtime.NumCPU()}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// MaxParallelism is a soft target for parallelism.
// If 0 parallelism is disabled, if -1 it is unlimited.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism. It should only be changed while no tasks are running.
func (w *Pool) SetMaxParallelism(maxParallelism int) {
	w.maxParallelism = maxParallelism
}

// lockedIsFull returns whether all available workers are in use.
//
// It must be called with w.mu acquired.
func (w *Pool) lockedIsFull() bool {
	if w.maxParallelism == 0 {
		return true
	} else if w.maxParallelism < 0 {
		return false
	}
	return w.numRunning >= w.maxParallelism
}

// lockedRunTaskInGoroutine runs task in a new goroutine and keeps tabs on w.numRunning.
//
// It must be called with w.mu acquired.
func (w *Pool) lockedRunTaskInGoroutine(task func()) {
	w.numRunning++
	go func() {
		defer func() {
			w.mu.Lock()
			w.numRunning--
			w.cond.Signal()
			w.mu.Unlock()
		}()
		task()
	}()
}

// StartIfAvailable runs the task in a separate goroutine if there are workers left.
// It returns true if it found a worker, false otherwise.
func (w *Pool) StartIfAvailable(task func()) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.lockedIsFull() {
		return false
	}
	w.lockedRunTaskInGoroutine(task)
	return true
}

// ParallelFor calls fn over [0, n) split into contiguous chunks of at least minChunk items.
// Chunks are handed to free workers; whatever is left is run by the calling goroutine, so it
// never deadlocks even when the pool is saturated. It returns when every chunk is done.
//
// Panics in fn are re-raised in the calling goroutine.
func (w *Pool) ParallelFor(n, minChunk int, fn func(start, end int)) {
	if n <= 0 {
		return
	}
	minChunk = max(minChunk, 1)
	numChunks := (n + minChunk - 1) / minChunk
	if w.maxParallelism > 0 {
		numChunks = min(numChunks, w.maxParallelism)
	}
	if numChunks <= 1 || w.maxParallelism == 0 {
		fn(0, n)
		return
	}
	chunkSize := (n + numChunks - 1) / numChunks

	var (
		wg         sync.WaitGroup
		panicMu    sync.Mutex
		firstPanic any
	)
	runChunk := func(start, end int) {
		defer func() {
			if r := recover(); r != nil {
				panicMu.Lock()
				if firstPanic == nil {
					firstPanic = r
				}
				panicMu.Unlock()
			}
		}()
		fn(start, end)
	}
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		if end < n {
			wg.Add(1)
			if w.StartIfAvailable(func() { defer wg.Done(); runChunk(start, end) }) {
				continue
			}
			wg.Done()
		}
		runChunk(start, end)
	}
	wg.Wait()
	if firstPanic != nil {
		panic(firstPanic)
	}
}
