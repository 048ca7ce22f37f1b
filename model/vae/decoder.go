// decoder.go - Generatives Netz (Decoder)
//
// Dieses Modul enthaelt:
// - Generative: vier transponierte Faltungen bis 1x28x28 mit Sigmoid
// - LogLikelihood: Bernoulli-Log-Likelihood pro Pixel
// - SamplePrior/SampleLatent: Samples aus N(0, I) dekodieren
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

// logEpsilon keeps log away from zero probabilities.
const logEpsilon = 1e-8

// Generative is the decoder network p(x|z).
type Generative struct {
	Deconv1 *nn.ConvTranspose2D
	Deconv2 *nn.ConvTranspose2D
	Deconv3 *nn.ConvTranspose2D
	Deconv4 *nn.ConvTranspose2D

	hiddenSize int
}

// NewGenerative registers the decoder parameters under "decoder.".
func NewGenerative(p *nn.Params, rng *rand.Rand, c model.Config) *Generative {
	norm := c.Norm
	return &Generative{
		Deconv1: nn.NewConvTranspose2D(p, rng, "decoder.deconv1", c.HiddenSize, nn.ConvOptions{
			Kernel: 3, Filters: 128, Stride: 1, Padding: ml.PaddingValid, Activation: nn.ELU, Norm: &norm,
		}),
		Deconv2: nn.NewConvTranspose2D(p, rng, "decoder.deconv2", 128, nn.ConvOptions{
			Kernel: 5, Filters: 64, Stride: 1, Padding: ml.PaddingValid, Activation: nn.ELU, Norm: &norm,
		}),
		Deconv3: nn.NewConvTranspose2D(p, rng, "decoder.deconv3", 64, nn.ConvOptions{
			Kernel: 5, Filters: 32, Stride: 2, Padding: ml.PaddingSame, Activation: nn.ELU, Norm: &norm,
		}),
		Deconv4: nn.NewConvTranspose2D(p, rng, "decoder.deconv4", 32, nn.ConvOptions{
			Kernel: 5, Filters: 1, Stride: 2, Padding: ml.PaddingSame, Activation: nn.Sigmoid,
		}),
		hiddenSize: c.HiddenSize,
	}
}

func (g *Generative) HiddenSize() int {
	return g.hiddenSize
}

// Network decodes z [B, H] into pixel probabilities [B, 784].
func (g *Generative) Network(ctx *ml.Context, z *gorgonia.Node) *gorgonia.Node {
	b := z.Shape()[0]
	h := gorgonia.Must(gorgonia.Reshape(z, tensor.Shape{b, g.hiddenSize, 1, 1}))
	h = g.Deconv1.Forward(ctx, h) // 3x3
	h = g.Deconv2.Forward(ctx, h) // 7x7
	h = g.Deconv3.Forward(ctx, h) // 14x14
	h = g.Deconv4.Forward(ctx, h) // 28x28
	return gorgonia.Must(gorgonia.Reshape(h, tensor.Shape{b, dataset.Pixels}))
}

// LogLikelihood returns x*log(p) + (1-x)*log(1-p) per pixel, with p the
// decoded probabilities of z.
func (g *Generative) LogLikelihood(ctx *ml.Context, x, z *gorgonia.Node) *gorgonia.Node {
	p := g.Network(ctx, z)

	logP := gorgonia.Must(gorgonia.Log(gorgonia.Must(gorgonia.Add(p, gorgonia.NewConstant(logEpsilon)))))
	logNotP := gorgonia.Must(gorgonia.Log(gorgonia.Must(gorgonia.Sub(gorgonia.NewConstant(1+logEpsilon), p))))
	notX := gorgonia.Must(gorgonia.Sub(gorgonia.NewConstant(1.0), x))

	return gorgonia.Must(gorgonia.Add(
		gorgonia.Must(gorgonia.HadamardProd(x, logP)),
		gorgonia.Must(gorgonia.HadamardProd(notX, logNotP)),
	))
}

// SamplePrior draws batch latent vectors from N(0, I).
func (g *Generative) SamplePrior(ctx *ml.Context, batch int) *gorgonia.Node {
	return ctx.Noise("decoder.prior", ml.RandNormal, batch, g.hiddenSize)
}

// SampleLatent decodes batch prior samples.
func (g *Generative) SampleLatent(ctx *ml.Context, batch int) *gorgonia.Node {
	return g.Network(ctx, g.SamplePrior(ctx, batch))
}
