// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package neon implements the plugin for ARM CPUs with NEON kernels.
//
// The device has no stream capture: every operation executes eagerly, in topological order.
// Round with ties away from zero and Swish have no native kernel, and are decomposed by IR passes
// before conversion.
package neon

import (
	"github.com/gomlx/accel/backends"
	"github.com/gomlx/accel/backends/common"
	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/core/ir/passes"
)

// PluginName is returned by Plugin.Name.
const PluginName = "NEON"

// Options describe the NEON kernels.
var Options = &common.Options{
	Capturable: false,
	FloatTypes: []dtypes.DType{dtypes.Float16, dtypes.Float32},
	IntTypes:   []dtypes.DType{dtypes.Int32},
	GemmComputeTypes: map[dtypes.DType]dtypes.DType{
		dtypes.Float16: dtypes.Float16,
		dtypes.Float32: dtypes.Float32,
	},
}

// BackendName is the name used to select the plugin with backends.New.
const BackendName = "neon"

func init() {
	backends.Register(BackendName, func() engine.Plugin { return New() })
}

// Plugin for NEON. It is stateless and safe for concurrent use.
type Plugin struct {
	registry *engine.Registry
}

// New returns the NEON plugin.
func New() *Plugin {
	registry := engine.NewRegistry(PluginName)
	common.RegisterShared(registry, Options)
	registry.Register(ir.OpTypeConvert, Options.Factory(NewConvert))
	registry.Register(ir.OpTypeInterpolate, Options.Factory(NewInterpolate))
	registry.Register(ir.OpTypeClamp, Options.Factory(common.NewClamp))
	return &Plugin{registry: registry}
}

// Name implements engine.Plugin.
func (p *Plugin) Name() string { return PluginName }

// Registry implements engine.Plugin.
func (p *Plugin) Registry() *engine.Registry { return p.registry }

// NewDevice implements engine.Plugin. The CPU is device 0; the id is only used for logging.
func (p *Plugin) NewDevice(cfg *engine.Config) (*device.Device, error) {
	return device.New(cfg.DeviceID, device.Properties{Name: PluginName, Float16: true}), nil
}

// Passes implements engine.Plugin.
func (p *Plugin) Passes(*engine.Config) []passes.Pass {
	return []passes.Pass{passes.DecomposeRound, passes.DecomposeSwish}
}
