package vae

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/blackbox/convvae/dataset"
	"github.com/blackbox/convvae/ml"
	"github.com/blackbox/convvae/ml/nn"
	"github.com/blackbox/convvae/model"
)

func newModel(t *testing.T, hidden int) *Model {
	t.Helper()

	m, err := model.New(model.DefaultConfig(hidden), rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	require.IsType(t, &Model{}, m)
	return m.(*Model)
}

func images(ctx *ml.Context, rng *rand.Rand, batch int) *gorgonia.Node {
	return ctx.Constant("x", ml.RandUniform(rng, 0, 1, batch, dataset.Pixels))
}

func run(t *testing.T, ctx *ml.Context, loss *gorgonia.Node) *ml.Machine {
	t.Helper()

	m, err := ctx.Compile(loss)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	require.NoError(t, m.Run())
	return m
}

func TestEncoderShapes(t *testing.T) {
	m := newModel(t, 6)
	rng := rand.New(rand.NewSource(2))

	for _, mode := range []ml.Mode{ml.ModeTrain, ml.ModeSample, ml.ModeInfer} {
		t.Run(mode.String(), func(t *testing.T) {
			ctx := ml.NewContext(mode, rng)
			z := m.Variational.Sample(ctx, images(ctx, rng, 3))

			assert.Equal(t, tensor.Shape{3, 6}, z.Shape())
			mean, stddev := m.Variational.Distribution()
			assert.Equal(t, tensor.Shape{3, 6}, mean.Shape())
			assert.Equal(t, tensor.Shape{3, 6}, stddev.Shape())

			run(t, ctx, nil)
			_, values := m.Variational.Computed()
			require.Len(t, values, 18)
			for _, s := range values {
				assert.GreaterOrEqual(t, s, 0.0)
			}
		})
	}
}

func TestDecoderProbabilities(t *testing.T) {
	m := newModel(t, 4)
	rng := rand.New(rand.NewSource(3))
	ctx := ml.NewContext(ml.ModeSample, rng)

	p := m.Generative.SampleLatent(ctx, 2)
	require.Equal(t, tensor.Shape{2, dataset.Pixels}, p.Shape())
	out := ctx.Read(p)
	run(t, ctx, nil)

	for _, v := range ml.Floats(*out) {
		require.Greater(t, v, 0.0)
		require.Less(t, v, 1.0)
	}
}

func TestSamplePriorThroughInterface(t *testing.T) {
	var dec model.Decoder = newModel(t, 5).Generative
	ctx := ml.NewContext(ml.ModeSample, rand.New(rand.NewSource(4)))

	z := dec.SamplePrior(ctx, 7)
	assert.Equal(t, tensor.Shape{7, 5}, z.Shape())
}

func TestNegativeELBO(t *testing.T) {
	m := newModel(t, 3)
	rng := rand.New(rand.NewSource(4))
	ctx := ml.NewContext(ml.ModeTrain, rng)

	loss := NegativeELBO(ctx, m.Decoder(), m.Encoder(), images(ctx, rng, 2))
	require.True(t, loss.IsScalar())
	out := ctx.Read(loss)

	// the KL term uses the distribution the sample was drawn from
	mean, stddev := m.Encoder().Distribution()
	require.NotNil(t, mean)
	require.NotNil(t, stddev)

	machine := run(t, ctx, loss)
	value := ml.Scalar(*out)
	assert.True(t, ml.IsFinite(value))
	assert.Positive(t, value, "Bernoulli likelihood of non-binary pixels is below one")

	var withGrad int
	for _, vg := range machine.Gradients() {
		g, err := vg.Grad()
		require.NoError(t, err)
		for _, v := range ml.Floats(g) {
			if v != 0 {
				withGrad++
				break
			}
		}
	}
	assert.Equal(t, len(ctx.Learnables()), withGrad, "every trainable tensor should receive a gradient")

	var trainable int
	m.Params().Each(func(p *nn.Param) {
		if p.Trainable {
			trainable++
		}
	})
	assert.Equal(t, trainable, len(ctx.Learnables()))
}

func TestKLStandardNormal(t *testing.T) {
	kl := func(mean, stddev *tensor.Dense) float64 {
		ctx := ml.NewContext(ml.ModeInfer, nil)
		out := ctx.Read(KLStandardNormal(ctx.Constant("mean", mean), ctx.Constant("stddev", stddev)))
		run(t, ctx, nil)
		return ml.Scalar(*out)
	}

	assert.InDelta(t, 0, kl(ml.Zeros(2, 3), ml.Full(1, 2, 3)), 1e-6)

	// KL(N(1, 1) || N(0, 1)) = 0.5 per dimension
	assert.InDelta(t, 2, kl(ml.Full(1, 1, 4), ml.Full(1, 1, 4)), 1e-6)

	// KL(N(0, 2^2) || N(0, 1)) = 0.5*(4 - 1 - 2 ln 2)
	assert.InDelta(t, 0.5*(3-2*math.Log(2)), kl(ml.Zeros(1, 1), ml.Full(2, 1, 1)), 1e-6)
}

func TestParameterLayout(t *testing.T) {
	m := newModel(t, 10)
	names := m.Params().Names()

	assert.Equal(t, "encoder.conv1.weight", names[0])
	assert.Contains(t, names, "encoder.conv3.norm.running_var")
	assert.Contains(t, names, "encoder.dense.weight")
	assert.Contains(t, names, "decoder.deconv4.bias")
	assert.NotContains(t, names, "decoder.deconv4.norm.beta")

	w, ok := m.Params().Get("decoder.deconv1.weight")
	require.True(t, ok)
	assert.Equal(t, tensor.Shape{128, 10, 3, 3}, w.Value.Shape())
}

func TestNewValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	_, err := New(model.DefaultConfig(0), rng)
	assert.Error(t, err)

	c := model.DefaultConfig(2)
	c.KeepProb = 0
	_, err = New(c, rng)
	assert.Error(t, err)

	c = model.DefaultConfig(2)
	c.Architecture = "unbekannt"
	_, err = model.New(c, rng)
	assert.ErrorIs(t, err, model.ErrUnsupportedModel)
}

func TestValidateHiddenSizes(t *testing.T) {
	m := newModel(t, 2)
	require.NoError(t, m.Validate())

	m.Generative = NewGenerative(nn.NewParams(), rand.New(rand.NewSource(1)), model.DefaultConfig(3))
	assert.ErrorIs(t, m.Validate(), model.ErrHiddenSizeMismatch)
}
