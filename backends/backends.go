// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends selects an accelerator plugin by name.
//
// Plugins register themselves during package initialization, so a program picks the ones it wants
// by importing them, usually all at once with:
//
//	import _ "github.com/gomlx/accel/backends/default"
//
// The plugin and its configuration are then chosen at runtime with New, from the environment
// variable GOMLX_ACCEL_BACKEND or from DefaultConfig.
package backends

import (
	"os"
	"slices"
	"strings"

	"github.com/gomlx/accel/backends/engine"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Constructor returns a new instance of a plugin.
type Constructor func() engine.Plugin

var (
	registeredConstructors = make(map[string]Constructor)
	firstRegistered        string
)

// Register a plugin constructor under the given name. Names are case-insensitive.
//
// Call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	name = strings.ToLower(name)
	if len(registeredConstructors) == 0 {
		firstRegistered = name
	}
	registeredConstructors[name] = constructor
}

// List returns the names of the registered plugins, sorted.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// DefaultConfig is used by New when GOMLX_ACCEL_BACKEND is not set.
//
// See NewWithConfig for the format.
var DefaultConfig string

// GOMLX_ACCEL_BACKEND is the environment variable with the plugin configuration used by New.
const GOMLX_ACCEL_BACKEND = "GOMLX_ACCEL_BACKEND"

// New returns the default plugin and its configuration.
//
// The configuration is taken from, in order: the environment variable GOMLX_ACCEL_BACKEND,
// the variable DefaultConfig, or the first registered plugin with the default configuration.
func New() (engine.Plugin, *engine.Config, error) {
	if config, found := os.LookupEnv(GOMLX_ACCEL_BACKEND); found {
		return NewWithConfig(config)
	}
	return NewWithConfig(DefaultConfig)
}

// NewWithConfig creates the plugin described by config, formatted as
//
//	"<plugin_name>:<KEY>=<value>,<KEY>=<value>,..."
//
// Both parts are optional: "cuda", "DEVICE_ID=1" and "cuda:NUM_STREAMS=AUTO,PERF_COUNT=YES" are all
// valid. Without a plugin name, the first registered plugin is used. Keys are the ones accepted by
// engine.ParseConfig.
func NewWithConfig(config string) (engine.Plugin, *engine.Config, error) {
	if len(registeredConstructors) == 0 {
		return nil, nil, errors.New(`no registered accelerator plugins: maybe import them with import _ "github.com/gomlx/accel/backends/default"?`)
	}
	name, keys := splitConfig(config)
	if name == "" {
		name = firstRegistered
	}
	constructor, found := registeredConstructors[strings.ToLower(name)]
	if !found {
		return nil, nil, errors.Errorf("can't find plugin %q for configuration %q, registered plugins are %q",
			name, config, List())
	}
	values, err := ParseKeyValues(keys)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "configuration %q", config)
	}
	cfg, err := engine.ParseConfig(values)
	if err != nil {
		return nil, nil, errors.WithMessagef(err, "configuration %q", config)
	}
	plugin := constructor()
	klog.V(1).Infof("backends: using plugin %s with configuration %q", plugin.Name(), keys)
	return plugin, cfg, nil
}

// splitConfig separates the plugin name from the key/value list. A config without ":" is a plugin
// name, unless it contains a "=".
func splitConfig(config string) (name, keys string) {
	config = strings.TrimSpace(config)
	if idx := strings.Index(config, ":"); idx != -1 && !strings.Contains(config[:idx], "=") {
		return config[:idx], config[idx+1:]
	}
	if strings.Contains(config, "=") {
		return "", config
	}
	return config, ""
}

// ParseKeyValues parses a comma-separated list of KEY=value pairs. Empty items are ignored.
func ParseKeyValues(list string) (map[string]string, error) {
	values := make(map[string]string)
	for item := range strings.SplitSeq(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		key, value, found := strings.Cut(item, "=")
		key = strings.ToUpper(strings.TrimSpace(key))
		if !found || key == "" {
			return nil, errors.Errorf("invalid configuration item %q: expected KEY=value", item)
		}
		if _, dup := values[key]; dup {
			return nil, errors.Errorf("configuration key %s given more than once", key)
		}
		values[key] = strings.TrimSpace(value)
	}
	return values, nil
}
