// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package cuda implements the plugin for NVIDIA GPUs.
//
// Operations are capturable by default: the requests of a compiled model replay captured device
// graphs, and only re-bind the memcpy nodes of the parameters and results. Operations that need
// to synchronize with the host (e.g. a Transpose with a runtime permutation) are executed between
// the graph launches.
package cuda

import (
	"fmt"

	"github.com/gomlx/accel/backends"
	"github.com/gomlx/accel/backends/common"
	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/core/ir/passes"
	"github.com/pkg/errors"
)

// PluginName is returned by Plugin.Name and prefixes the device names.
const PluginName = "NVIDIA"

// Options describe the CUDA kernels.
var Options = &common.Options{
	Capturable: true,
	FloatTypes: []dtypes.DType{dtypes.Float16, dtypes.Float32, dtypes.Float64},
	IntTypes:   []dtypes.DType{dtypes.Int8, dtypes.Int16, dtypes.Int32, dtypes.Int64},
	GemmComputeTypes: map[dtypes.DType]dtypes.DType{
		dtypes.Float16: dtypes.Float16,
		dtypes.Int8:    dtypes.Int32,
		dtypes.Float32: dtypes.Float32,
		dtypes.Float64: dtypes.Float64,
	},
}

// BackendName is the name used to select the plugin with backends.New.
const BackendName = "cuda"

func init() {
	backends.Register(BackendName, func() engine.Plugin { return New() })
}

// Plugin for NVIDIA GPUs.
type Plugin struct {
	registry   *engine.Registry
	numDevices int
}

// New returns the plugin with a single GPU.
func New() *Plugin { return NewWithDevices(1) }

// NewWithDevices returns the plugin with numDevices GPUs, addressed as NVIDIA.0, NVIDIA.1, ...
func NewWithDevices(numDevices int) *Plugin {
	registry := engine.NewRegistry(PluginName)
	common.RegisterShared(registry, Options)
	registry.Register(ir.OpTypeConvert, Options.Factory(NewConvert))
	registry.Register(ir.OpTypeInterpolate, Options.Factory(NewInterpolate))
	registry.Register(ir.OpTypeClamp, Options.Factory(NewClamp))
	return &Plugin{registry: registry, numDevices: numDevices}
}

// Name implements engine.Plugin.
func (p *Plugin) Name() string { return PluginName }

// Registry implements engine.Plugin.
func (p *Plugin) Registry() *engine.Registry { return p.registry }

// NewDevice implements engine.Plugin.
func (p *Plugin) NewDevice(cfg *engine.Config) (*device.Device, error) {
	if cfg.DeviceID < 0 || cfg.DeviceID >= p.numDevices {
		return nil, errors.Errorf("device %s.%d not found: %d devices available", PluginName, cfg.DeviceID, p.numDevices)
	}
	return device.New(cfg.DeviceID, device.Properties{
		Name:         fmt.Sprintf("%s.%d", PluginName, cfg.DeviceID),
		Float16:      true,
		GraphCapture: true,
	}), nil
}

// Passes implements engine.Plugin.
func (p *Plugin) Passes(*engine.Config) []passes.Pass {
	return []passes.Pass{passes.DecomposeSwish, passes.FuseConvolutionActivation, passes.DecomposeRound}
}

// NewClamp tries the clipped relu kernel first, and the generic clamp kernel otherwise.
func NewClamp(ctx *engine.CreationContext, opts *common.Options, node *ir.Node) (engine.Operation, error) {
	return common.Probe(ctx, opts, node, common.NewClippedRelu, common.NewClamp)
}
