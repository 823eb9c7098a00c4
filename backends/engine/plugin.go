// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/ir/passes"
)

// Plugin is an accelerator backend: a set of operation factories for a kind of device.
type Plugin interface {
	// Name of the plugin, e.g. "neon" or "cuda".
	Name() string

	// Registry with the plugin's operation factories.
	Registry() *Registry

	// NewDevice opens the device selected by cfg.
	NewDevice(cfg *Config) (*device.Device, error)

	// Passes returns the IR rewrites to run before conversion.
	Passes(cfg *Config) []passes.Pass
}
