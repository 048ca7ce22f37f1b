// encoder.go - Variationales Netz (Encoder)
//
// Dieses Modul enthaelt:
// - Variational: drei Faltungen mit Batch-Norm und ELU, Dropout, Dense-Kopf
// - Network: Mittelwert und Standardabweichung der latenten Normalverteilung
// - Sample: Reparametrisierung mean + eps * stddev
package vae

import (
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/blackbox/convvae/dataset"
	"github.com/blackbox/convvae/ml"
	"github.com/blackbox/convvae/ml/nn"
	"github.com/blackbox/convvae/model"
)

// encodedSize is the flattened output of the last convolution: 128x3x3.
const encodedSize = 128 * 3 * 3

// Variational is the encoder network q(z|x).
type Variational struct {
	Conv1 *nn.Conv2D
	Conv2 *nn.Conv2D
	Conv3 *nn.Conv2D
	Dense *nn.Linear

	hiddenSize int
	keepProb   float64

	// Mean and Stddev are the distribution nodes of the last Sample call.
	Mean   *gorgonia.Node
	Stddev *gorgonia.Node

	meanVal, stddevVal *gorgonia.Value
}

// NewVariational registers the encoder parameters under "encoder.".
func NewVariational(p *nn.Params, rng *rand.Rand, c model.Config) *Variational {
	norm := c.Norm
	return &Variational{
		Conv1: nn.NewConv2D(p, rng, "encoder.conv1", 1, nn.ConvOptions{
			Kernel: 5, Filters: 32, Stride: 2, Padding: ml.PaddingSame, Activation: nn.ELU, Norm: &norm,
		}),
		Conv2: nn.NewConv2D(p, rng, "encoder.conv2", 32, nn.ConvOptions{
			Kernel: 5, Filters: 64, Stride: 2, Padding: ml.PaddingSame, Activation: nn.ELU, Norm: &norm,
		}),
		Conv3: nn.NewConv2D(p, rng, "encoder.conv3", 64, nn.ConvOptions{
			Kernel: 5, Filters: 128, Stride: 1, Padding: ml.PaddingValid, Activation: nn.ELU, Norm: &norm,
		}),
		Dense:      nn.NewLinear(p, rng, "encoder.dense", encodedSize, 2*c.HiddenSize, nil),
		hiddenSize: c.HiddenSize,
		keepProb:   c.KeepProb,
	}
}

func (v *Variational) HiddenSize() int {
	return v.hiddenSize
}

// Network encodes x [B, 784] into mean and stddev, each [B, H]. The second
// half of the dense output is read as log variance. Dropout is only active
// in ml.ModeTrain.
func (v *Variational) Network(ctx *ml.Context, x *gorgonia.Node) (mean, stddev *gorgonia.Node) {
	b := x.Shape()[0]
	h := gorgonia.Must(gorgonia.Reshape(x, tensor.Shape{b, 1, dataset.ImageSize, dataset.ImageSize}))
	h = v.Conv1.Forward(ctx, h)
	h = v.Conv2.Forward(ctx, h)
	h = v.Conv3.Forward(ctx, h)
	if ctx.Mode() == ml.ModeTrain && v.keepProb < 1 {
		mask := ctx.Noise("encoder.dropout", ml.DropoutMask(v.keepProb), h.Shape()...)
		h = gorgonia.Must(gorgonia.HadamardProd(h, mask))
	}
	h = gorgonia.Must(gorgonia.Reshape(h, tensor.Shape{b, encodedSize}))
	h = v.Dense.Forward(ctx, h)

	mean = gorgonia.Must(gorgonia.Slice(h, nil, gorgonia.S(0, v.hiddenSize)))
	logVar := gorgonia.Must(gorgonia.Slice(h, nil, gorgonia.S(v.hiddenSize, 2*v.hiddenSize)))
	stddev = gorgonia.Must(gorgonia.Sqrt(gorgonia.Must(gorgonia.Exp(logVar))))
	return mean, stddev
}

// Sample encodes x and draws z = mean + eps*stddev with eps ~ N(0, I). The
// distribution is kept in Mean and Stddev for the KL term.
func (v *Variational) Sample(ctx *ml.Context, x *gorgonia.Node) *gorgonia.Node {
	v.Mean, v.Stddev = v.Network(ctx, x)
	v.meanVal, v.stddevVal = ctx.Read(v.Mean), ctx.Read(v.Stddev)

	eps := ctx.Noise("encoder.eps", ml.RandNormal, v.Mean.Shape()...)
	return gorgonia.Must(gorgonia.Add(v.Mean, gorgonia.Must(gorgonia.HadamardProd(eps, v.Stddev))))
}

func (v *Variational) Distribution() (mean, stddev *gorgonia.Node) {
	return v.Mean, v.Stddev
}

// Computed returns copies of mean and stddev from the last run of the
// graph built by Sample. Both are nil before the first run.
func (v *Variational) Computed() (mean, stddev []float64) {
	if v.meanVal == nil || *v.meanVal == nil || *v.stddevVal == nil {
		return nil, nil
	}
	return append([]float64(nil), ml.Floats(*v.meanVal)...), append([]float64(nil), ml.Floats(*v.stddevVal)...)
}
