// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package kernels

import (
	"fmt"

	"github.com/gomlx/accel/backends/device"
	"github.com/gomlx/accel/pkg/core/dtypes"
	"github.com/gomlx/exceptions"
)

// ConvDesc describes a 2D NCHW convolution.
//
// Weights are laid out [OutChannels, InChannels/Groups, KernelH, KernelW]: a depthwise
// convolution with depth multiplier M has Groups = InChannels and OutChannels = M * InChannels.
// The optional bias has OutChannels elements.
type ConvDesc struct {
	DType dtypes.DType

	Batch, InChannels, InH, InW int
	OutChannels, OutH, OutW     int
	KernelH, KernelW            int
	Groups                      int

	// Per spatial axis [H, W].
	Strides, Dilations, PadsBegin [2]int

	Activation Activation
}

// String implements fmt.Stringer.
func (d ConvDesc) String() string {
	return fmt.Sprintf("conv(%s N=%d C=%d %dx%d -> O=%d %dx%d, kernel %dx%d, groups=%d, strides=%v, dilations=%v, pads=%v, act=%q)",
		d.DType, d.Batch, d.InChannels, d.InH, d.InW, d.OutChannels, d.OutH, d.OutW, d.KernelH, d.KernelW,
		d.Groups, d.Strides, d.Dilations, d.PadsBegin, d.Activation.Kind)
}

// Convolution computes out = act(conv(input, weights) + bias). bias may be nil.
// Work is parallelized over (batch, output channel).
func Convolution(desc ConvDesc, input, weights, bias, out device.Pointer) {
	groups := max(desc.Groups, 1)
	if desc.InChannels%groups != 0 || desc.OutChannels%groups != 0 {
		exceptions.Panicf("kernels.Convolution: channels not divisible by groups in %s", desc)
	}
	inPerGroup, outPerGroup := desc.InChannels/groups, desc.OutChannels/groups
	kernelSize := inPerGroup * desc.KernelH * desc.KernelW
	inImage := desc.InH * desc.InW
	outImage := desc.OutH * desc.OutW

	vin := newView(desc.DType, input, desc.Batch*desc.InChannels*inImage)
	vw := newView(desc.DType, weights, desc.OutChannels*kernelSize)
	vout := newView(desc.DType, out, desc.Batch*desc.OutChannels*outImage)
	var vbias view
	hasBias := !bias.IsNil()
	if hasBias {
		vbias = newView(desc.DType, bias, desc.OutChannels)
	}

	Workers.ParallelFor(desc.Batch*desc.OutChannels, 1, func(start, end int) {
		for task := start; task < end; task++ {
			batch, oc := task/desc.OutChannels, task%desc.OutChannels
			firstIn := (oc / outPerGroup) * inPerGroup
			outBase := task * outImage
			for oy := range desc.OutH {
				for ox := range desc.OutW {
					var sum float64
					for ic := range inPerGroup {
						inBase := (batch*desc.InChannels + firstIn + ic) * inImage
						wBase := oc*kernelSize + ic*desc.KernelH*desc.KernelW
						for ky := range desc.KernelH {
							iy := oy*desc.Strides[0] - desc.PadsBegin[0] + ky*desc.Dilations[0]
							if iy < 0 || iy >= desc.InH {
								continue
							}
							for kx := range desc.KernelW {
								ix := ox*desc.Strides[1] - desc.PadsBegin[1] + kx*desc.Dilations[1]
								if ix < 0 || ix >= desc.InW {
									continue
								}
								sum += vin.At(inBase+iy*desc.InW+ix) * vw.At(wBase+ky*desc.KernelW+kx)
							}
						}
					}
					if hasBias {
						sum += vbias.At(oc)
					}
					vout.Set(outBase+oy*desc.OutW+ox, desc.Activation.Apply(sum))
				}
			}
		}
	})
}
