// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package engine

import (
	"os"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Configuration keys accepted by ParseConfig.
const (
	KeyDeviceID                   = "DEVICE_ID"
	KeyInferencePrecisionHint     = "INFERENCE_PRECISION_HINT"
	KeyNumStreams                 = "NUM_STREAMS"
	KeyPerformanceHint            = "PERFORMANCE_HINT"
	KeyPerformanceHintNumRequests = "PERFORMANCE_HINT_NUM_REQUESTS"
	KeyPerfCount                  = "PERF_COUNT"
	KeyOperationBenchmark         = "OPERATION_BENCHMARK"
	KeyUseGraphCapture            = "USE_GRAPH_CAPTURE"
	KeyExecutionModeHint          = "EXECUTION_MODE_HINT"
	KeyThrowOnUnsupported         = "THROW_ON_UNSUPPORTED"
)

// PerformanceMode is the PERFORMANCE_HINT value.
type PerformanceMode string

const (
	PerformanceLatency    PerformanceMode = "LATENCY"
	PerformanceThroughput PerformanceMode = "THROUGHPUT"
)

// ExecutionMode is the EXECUTION_MODE_HINT value.
type ExecutionMode string

const (
	ExecutionPerformance ExecutionMode = "PERFORMANCE"
	ExecutionAccuracy    ExecutionMode = "ACCURACY"
)

// StreamsAuto is the NumStreams value for "AUTO".
const StreamsAuto = -1

// ReasonableLimitOfStreams bounds the automatic number of streams.
const ReasonableLimitOfStreams = 10

// Config of a plugin, as parsed from key/value pairs.
type Config struct {
	DeviceID           int
	InferencePrecision dtypes.DType

	// NumStreams is the number of streams requested, StreamsAuto, or 0 if not set.
	NumStreams int

	PerformanceHint    PerformanceMode
	HintNumRequests    int
	PerfCount          bool
	OperationBenchmark bool
	UseGraphCapture    bool
	ExecutionMode      ExecutionMode

	// ThrowOnUnsupported makes Compile fail on the first node that can't be converted, instead
	// of reporting all of them.
	ThrowOnUnsupported bool
}

// DefaultConfig returns the configuration used when no key is given.
func DefaultConfig() *Config {
	return &Config{
		InferencePrecision: dtypes.Float32,
		PerformanceHint:    PerformanceLatency,
		UseGraphCapture:    true,
		ExecutionMode:      ExecutionPerformance,
		ThrowOnUnsupported: true,
	}
}

var deviceIDRegexp = regexp.MustCompile(`^(NVIDIA\.)?(\d+)$`)

func parseBool(key, value string) (bool, error) {
	switch strings.ToUpper(value) {
	case "YES", "TRUE", "1":
		return true, nil
	case "NO", "FALSE", "0":
		return false, nil
	}
	return false, errors.Errorf("invalid value %q for %s: expected YES or NO", value, key)
}

// ParseConfig builds a Config from key/value pairs on top of DefaultConfig.
// Unknown keys and malformed values are errors.
func ParseConfig(values map[string]string) (*Config, error) {
	cfg := DefaultConfig()
	// Sorted keys, so the first error reported is deterministic.
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := cfg.Set(key, values[key]); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Set one configuration key.
func (cfg *Config) Set(key, value string) (err error) {
	value = strings.TrimSpace(value)
	switch key {
	case KeyDeviceID:
		match := deviceIDRegexp.FindStringSubmatch(value)
		if match == nil {
			return errors.Errorf("device id %q is not supported: supported ids are 0, 1, 2, NVIDIA.0, NVIDIA.1, ...", value)
		}
		cfg.DeviceID, err = strconv.Atoi(match[2])
		return errors.Wrapf(err, "parsing device id %q", value)
	case KeyInferencePrecisionHint:
		dtype, err := dtypes.Parse(value)
		if err != nil || (dtype != dtypes.Float16 && dtype != dtypes.Float32) {
			return errors.Errorf("inference precision %q is not supported: use f16 or f32", value)
		}
		cfg.InferencePrecision = dtype
	case KeyNumStreams:
		if strings.EqualFold(value, "AUTO") {
			cfg.NumStreams = StreamsAuto
			return nil
		}
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return errors.Errorf("%s=%q is not a non-negative number or AUTO", key, value)
		}
		cfg.NumStreams = n
	case KeyPerformanceHint:
		switch mode := PerformanceMode(strings.ToUpper(value)); mode {
		case PerformanceLatency, PerformanceThroughput:
			cfg.PerformanceHint = mode
		default:
			return errors.Errorf("%s=%q: expected LATENCY or THROUGHPUT", key, value)
		}
	case KeyPerformanceHintNumRequests:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return errors.Errorf("%s=%q is not a non-negative number", key, value)
		}
		cfg.HintNumRequests = n
	case KeyPerfCount:
		cfg.PerfCount, err = parseBool(key, value)
	case KeyOperationBenchmark:
		cfg.OperationBenchmark, err = parseBool(key, value)
	case KeyUseGraphCapture:
		cfg.UseGraphCapture, err = parseBool(key, value)
	case KeyThrowOnUnsupported:
		cfg.ThrowOnUnsupported, err = parseBool(key, value)
	case KeyExecutionModeHint:
		switch mode := ExecutionMode(strings.ToUpper(value)); mode {
		case ExecutionPerformance, ExecutionAccuracy:
			cfg.ExecutionMode = mode
		default:
			return errors.Errorf("%s=%q: expected PERFORMANCE or ACCURACY", key, value)
		}
	default:
		return errors.Errorf("configuration key %q is not supported", key)
	}
	return err
}

// LoadConfigFile reads a YAML mapping of configuration keys to values.
func LoadConfigFile(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config file")
	}
	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(contents, &raw); err != nil {
		return nil, errors.Wrapf(err, "parsing config file %q", path)
	}
	values := make(map[string]string, len(raw))
	for key, node := range raw {
		if node.Kind != yaml.ScalarNode {
			return nil, errors.Errorf("config file %q: value of %s must be a scalar (line %d)", path, key, node.Line)
		}
		values[key] = node.Value
	}
	cfg, err := ParseConfig(values)
	return cfg, errors.WithMessagef(err, "config file %q", path)
}

// autoStreamsRequired returns whether the number of streams is derived from the hints.
func (cfg *Config) autoStreamsRequired() bool {
	return (cfg.PerformanceHint == PerformanceThroughput && cfg.NumStreams <= 0) || cfg.NumStreams == StreamsAuto
}

// OptimalNumStreams returns the number of streams (and workspaces) to create.
// THROUGHPUT or AUTO use the number of requests hinted, bounded by ReasonableLimitOfStreams.
// LATENCY uses 1 stream unless NUM_STREAMS is set.
func (cfg *Config) OptimalNumStreams() int {
	if cfg.autoStreamsRequired() {
		if cfg.HintNumRequests > 0 {
			return min(cfg.HintNumRequests, ReasonableLimitOfStreams)
		}
		return ReasonableLimitOfStreams
	}
	if cfg.NumStreams > 0 {
		return cfg.NumStreams
	}
	return 1
}

// Precision returns the effective float compute precision: ACCURACY execution mode forces f32.
func (cfg *Config) Precision() dtypes.DType {
	if cfg.ExecutionMode == ExecutionAccuracy {
		return dtypes.Float32
	}
	return cfg.InferencePrecision
}
