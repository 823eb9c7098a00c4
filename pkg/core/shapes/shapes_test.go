// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/exceptions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	require.False(t, Invalid().Ok())

	scalar := Scalar(dtypes.Float64)
	require.True(t, scalar.IsScalar())
	require.Equal(t, 1, scalar.Size())
	require.Equal(t, 8, scalar.ByteSize())

	s := Make(dtypes.Float16, 2, 3, 4)
	assert.Equal(t, 3, s.Rank())
	assert.Equal(t, 24, s.Size())
	assert.Equal(t, 48, s.ByteSize())
	assert.Equal(t, 4, s.Dim(-1))
	assert.Equal(t, "(Float16)[2 3 4]", s.String())
	assert.True(t, s.Equal(s.Clone()))
	assert.False(t, s.Equal(s.WithDType(dtypes.Float32)))
	assert.True(t, s.EqualDimensions(s.WithDType(dtypes.Float32)))

	empty := Make(dtypes.Int32, 3, 0)
	assert.True(t, empty.IsZeroSize())
	assert.Equal(t, 0, empty.ByteSize())

	require.NotNil(t, exceptions.Try(func() { Make(dtypes.Int32, -1) }))
	require.NotNil(t, exceptions.Try(func() { s.Dim(3) }))
}

func TestStridesAndIter(t *testing.T) {
	s := Make(dtypes.Float32, 2, 3)
	assert.Equal(t, []int{3, 1}, s.Strides())

	var visited [][]int
	for flat, indices := range s.Iter() {
		assert.Equal(t, len(visited), flat)
		visited = append(visited, append([]int(nil), indices...))
	}
	assert.Equal(t, [][]int{{0, 0}, {0, 1}, {0, 2}, {1, 0}, {1, 1}, {1, 2}}, visited)

	count := 0
	for range Make(dtypes.Float32, 0, 3).Iter() {
		count++
	}
	assert.Zero(t, count)
}
