// model.go - Zusammensetzung von Encoder, Decoder und Verlust
//
// Dieses Modul enthaelt:
// - Model: Parametermenge mit Variational und Generative
// - KLStandardNormal: KL(q || N(0, I))
// - NegativeELBO: -(log p(x|z) - KL)
package vae

import (
	"fmt"
	"math/rand"

	"gorgonia.org/gorgonia"

	"github.com/blackbox/convvae/ml"
	"github.com/blackbox/convvae/ml/nn"
	"github.com/blackbox/convvae/model"
)

func init() {
	model.Register("convvae", New)
}

// Model is the convolutional VAE.
type Model struct {
	config model.Config
	params *nn.Params

	Variational *Variational
	Generative  *Generative
}

// New initialises a model with fresh weights drawn from rng.
func New(c model.Config, rng *rand.Rand) (model.Model, error) {
	if c.HiddenSize <= 0 {
		return nil, fmt.Errorf("hidden size must be positive, got %d", c.HiddenSize)
	}
	if c.KeepProb <= 0 || c.KeepProb > 1 {
		return nil, fmt.Errorf("keep probability must be in (0, 1], got %v", c.KeepProb)
	}

	p := nn.NewParams()
	return &Model{
		config:      c,
		params:      p,
		Variational: NewVariational(p, rng, c),
		Generative:  NewGenerative(p, rng, c),
	}, nil
}

func (m *Model) Config() model.Config   { return m.config }
func (m *Model) Params() *nn.Params     { return m.params }
func (m *Model) Encoder() model.Encoder { return m.Variational }
func (m *Model) Decoder() model.Decoder { return m.Generative }

// Validate checks that the latent sizes of encoder and decoder agree.
func (m *Model) Validate() error {
	if enc, dec := m.Variational.HiddenSize(), m.Generative.HiddenSize(); enc != dec {
		return fmt.Errorf("%w: %d != %d", model.ErrHiddenSizeMismatch, enc, dec)
	}
	return nil
}

// KLStandardNormal returns -0.5 * sum(1 + 2 log(stddev) - mean^2 - stddev^2).
func KLStandardNormal(mean, stddev *gorgonia.Node) *gorgonia.Node {
	logStd := gorgonia.Must(gorgonia.Log(gorgonia.Must(gorgonia.Add(stddev, gorgonia.NewConstant(logEpsilon)))))
	t := gorgonia.Must(gorgonia.Mul(logStd, gorgonia.NewConstant(2.0)))
	t = gorgonia.Must(gorgonia.Sub(t, gorgonia.Must(gorgonia.Square(mean))))
	t = gorgonia.Must(gorgonia.Sub(t, gorgonia.Must(gorgonia.Square(stddev))))
	t = gorgonia.Must(gorgonia.Add(t, gorgonia.NewConstant(1.0)))
	return gorgonia.Must(gorgonia.Mul(gorgonia.Must(gorgonia.Sum(t)), gorgonia.NewConstant(-0.5)))
}

// NegativeELBO samples z from the encoder and returns the scalar
// -(sum log p(x|z) - KL(q(z|x) || N(0, I))), with q the distribution the
// encoder recorded while sampling.
func NegativeELBO(ctx *ml.Context, dec model.Decoder, enc model.Encoder, x *gorgonia.Node) *gorgonia.Node {
	z := enc.Sample(ctx, x)
	mean, stddev := enc.Distribution()

	ll := gorgonia.Must(gorgonia.Sum(dec.LogLikelihood(ctx, x, z)))
	return gorgonia.Must(gorgonia.Sub(KLStandardNormal(mean, stddev), ll))
}
