// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"math/rand/v2"
	"os"
	"time"

	"github.com/gomlx/accel/backends/engine"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/accel/pkg/core/ir"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"
)

// randomInputs returns one tensor per parameter of the model: floats uniform in [-1, 1),
// integers in [0, 10) and booleans with 50% probability.
func randomInputs(parameters []*ir.Node, seed uint64) map[string]*engine.Tensor {
	rng := rand.New(rand.NewPCG(seed, seed))
	inputs := make(map[string]*engine.Tensor, len(parameters))
	for _, param := range parameters {
		shape := param.Outputs[0]
		values := make([]float64, shape.Size())
		for ii := range values {
			switch {
			case shape.DType.IsFloat():
				values[ii] = 2*rng.Float64() - 1
			case shape.DType == dtypes.Bool:
				values[ii] = float64(rng.IntN(2))
			default:
				values[ii] = float64(rng.IntN(10))
			}
		}
		inputs[param.Name] = &engine.Tensor{Shape: shape.Clone(), Data: ir.EncodeFloat64s(shape.DType, values)}
	}
	return inputs
}

// runRequests runs numRequests inferences on random inputs, as many in parallel as the model has
// streams, and returns the wall time. It stops at the first failure.
func runRequests(model *engine.CompiledModel, numRequests int, seed uint64) (time.Duration, error) {
	inputs := randomInputs(model.Parameters(), seed)

	out := termenv.NewOutput(os.Stderr)
	out.HideCursor()
	defer out.ShowCursor()
	bar := progressbar.NewOptions(numRequests,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSetDescription("requests"),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionClearOnFinish(),
	)

	start := time.Now()
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(max(model.NumStreams(), 1))
	for ii := range numRequests {
		g.Go(func() error {
			if _, err := model.Infer(ctx, inputs); err != nil {
				return errors.WithMessagef(err, "request #%d", ii)
			}
			return bar.Add(1)
		})
	}
	err := g.Wait()
	elapsed := time.Since(start)
	_ = bar.Finish()
	return elapsed, err
}
