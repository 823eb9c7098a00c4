// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"slices"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// CreationContext carries what factories need to convert a node: the target device and the
// plugin configuration. It is constructor-injected: there are no global devices.
type CreationContext struct {
	Device *device.Device
	Config *Config
}

// PreferredFloat returns the float dtype operations should compute in, following the
// INFERENCE_PRECISION_HINT, the EXECUTION_MODE_HINT and the capabilities of the device.
func (c *CreationContext) PreferredFloat() dtypes.DType {
	if c.Config != nil && c.Config.Precision() == dtypes.Float16 && c.Device.Properties().Float16 {
		return dtypes.Float16
	}
	return dtypes.Float32
}

// Factory converts node into an Operation, or returns an error wrapping ErrUnsupported.
// Factories must not do device work.
type Factory func(ctx *CreationContext, node *ir.Node) (Operation, error)

// Registry maps operation kinds to factories. It is populated once, at plugin initialization,
// and is read-only afterwards.
type Registry struct {
	name      string
	factories map[ir.OpType]Factory
}

// NewRegistry returns an empty Registry for the named plugin.
func NewRegistry(name string) *Registry {
	return &Registry{name: name, factories: make(map[ir.OpType]Factory)}
}

// Name of the plugin owning the registry.
func (r *Registry) Name() string { return r.name }

// Register the factory for op. It panics if op already has one.
func (r *Registry) Register(op ir.OpType, factory Factory) {
	if _, found := r.factories[op]; found {
		exceptions.Panicf("registry %q: op %s registered twice", r.name, op)
	}
	r.factories[op] = factory
}

// Has returns whether op has a factory.
func (r *Registry) Has(op ir.OpType) bool {
	_, found := r.factories[op]
	return found
}

// OpTypes returns the registered op types, sorted.
func (r *Registry) OpTypes() []ir.OpType {
	ops := make([]ir.OpType, 0, len(r.factories))
	for op := range r.factories {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// Create converts node with the registered factory.
func (r *Registry) Create(ctx *CreationContext, node *ir.Node) (op Operation, err error) {
	factory, found := r.factories[node.Type]
	if !found {
		return nil, Unsupportedf("%s: op type %s not implemented by %s", node.Name, node.Type, r.name)
	}
	// Factories may panic on malformed nodes: report those as conversion errors.
	if exception := exceptions.Try(func() { op, err = factory(ctx, node) }); exception != nil {
		return nil, errors.Errorf("%s: converting %s panicked: %v", r.name, node, exception)
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "%s: converting %s", r.name, node)
	}
	return op, nil
}
