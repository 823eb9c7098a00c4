// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package device

import (
	"fmt"

	"github.com/gomlx/exceptions"
)

// Pointer is a device address: an allocation plus a byte offset.
//
// Pointers are comparable: two pointers are equal if they refer to the same address. The zero
// value is the nil pointer.
type Pointer struct {
	allocation *Allocation
	offset     int
}

// IsNil returns whether p is the nil pointer.
func (p Pointer) IsNil() bool { return p.allocation == nil }

// Offset returns the offset of p within its allocation.
func (p Pointer) Offset() int { return p.offset }

// Add returns p advanced by delta bytes.
func (p Pointer) Add(delta int) Pointer {
	if p.IsNil() {
		exceptions.Panicf("Pointer.Add(%d) on nil pointer", delta)
	}
	return p.allocation.Pointer(p.offset + delta)
}

// Bytes returns the n bytes starting at p. It panics if the range is out of the allocation.
func (p Pointer) Bytes(n int) []byte {
	if n == 0 {
		return nil
	}
	if p.IsNil() {
		exceptions.Panicf("Pointer.Bytes(%d) on nil pointer", n)
	}
	if p.offset+n > len(p.allocation.data) {
		exceptions.Panicf("Pointer.Bytes(%d) at offset %d out of bounds for allocation of %d bytes",
			n, p.offset, len(p.allocation.data))
	}
	return p.allocation.data[p.offset : p.offset+n : p.offset+n]
}

// String implements fmt.Stringer.
func (p Pointer) String() string {
	if p.IsNil() {
		return "nil"
	}
	return fmt.Sprintf("%p+%d", p.allocation, p.offset)
}
