// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package _default registers all accelerator plugins: NEON and CUDA.
//
// To use it simply include:
//
//	import _ "github.com/gomlx/accel/backends/default"
package _default

import (
	_ "github.com/gomlx/accel/backends/cuda"
	_ "github.com/gomlx/accel/backends/neon"
)
