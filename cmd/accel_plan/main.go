// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// accel_plan compiles a graph described in YAML for an accelerator plugin and reports which nodes
// the plugin supports, the execution sequence, the memory plan and, optionally, the timings of a
// number of concurrent inference requests.
//
// Usage:
//
//	accel_plan [flags] graph.yaml
//
// The plugin is selected with -backend, or with the environment variable GOMLX_ACCEL_BACKEND,
// formatted as "<plugin>:<KEY>=<value>,...". E.g.:
//
//	accel_plan -backend=cuda:NUM_STREAMS=2,PERF_COUNT=YES -requests=100 graph.yaml
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/gomlx/accel/backends"
	_ "github.com/gomlx/accel/backends/default"
	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/gomlx/accel/pkg/support/fsutil"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"k8s.io/klog/v2"
)

var (
	flagBackend = flag.String("backend", "",
		fmt.Sprintf("Plugin and configuration, formatted as \"<plugin>:<KEY>=<value>,...\". "+
			"Defaults to $%s, or to the first registered plugin.", backends.GOMLX_ACCEL_BACKEND))
	flagConfig = flag.String("config", "",
		"YAML file with the plugin configuration keys. It replaces the keys given with -backend.")
	flagQuery    = flag.Bool("query", false, "Only report the supported nodes, don't compile.")
	flagPlan     = flag.Bool("plan", true, "Report the execution sequence and the memory plan.")
	flagRequests = flag.Int("requests", 0, "Number of inference requests to run on random inputs.")
	flagSeed     = flag.Uint64("seed", 42, "Seed of the random inputs.")
	flagNoColor  = flag.Bool("nocolor", false, "Disable colors in the output.")
)

func main() {
	klog.InitFlags(nil)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] graph.yaml\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Registered plugins: %q\n\n", backends.List())
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		klog.Errorf("Expected one graph file, got %d arguments. See 'accel_plan -help'.", flag.NArg())
		os.Exit(1)
	}
	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	graph := loadGraph(flag.Arg(0))
	plugin, cfg := must.M2(selectPlugin())
	if *flagConfig != "" {
		cfg = must.M1(engine.LoadConfigFile(must.M1(fsutil.ResolveFile(*flagConfig))))
	}

	supported := must.M1(engine.QuerySupported(plugin, graph, cfg))
	reportSupported(plugin, graph, supported)
	if *flagQuery {
		return
	}

	model := must.M1(engine.Compile(plugin, graph, cfg))
	defer model.Close()
	if *flagPlan {
		reportSteps(model)
		reportMemory(model)
	}
	if *flagRequests > 0 {
		elapsed := must.M1(runRequests(model, *flagRequests, *flagSeed))
		reportRun(model, *flagRequests, elapsed)
	}
}

func loadGraph(path string) *ir.Graph {
	f := must.M1(os.Open(must.M1(fsutil.ResolveFile(path))))
	defer func() { must.M(f.Close()) }()
	return must.M1(ir.LoadYAML(f))
}

func selectPlugin() (engine.Plugin, *engine.Config, error) {
	if *flagBackend != "" {
		return backends.NewWithConfig(*flagBackend)
	}
	return backends.New()
}
