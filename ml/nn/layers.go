// layers.go - Layer mit Parametern auf gorgonia-Graphen
//
// Dieses Modul enthaelt:
// - Activation: ELU, Sigmoid
// - BatchNorm: Normalisierung pro Kanal mit gelernter Skala/Offset und
//   Laufstatistik
// - Linear, Conv2D, ConvTranspose2D
// - Glorot-Initialisierung
package nn

import (
	"fmt"
	"math"
	"math/rand"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/blackbox/convvae/ml"
)

// Activation is applied after a layer's linear part. nil means identity.
type Activation func(x *gorgonia.Node) *gorgonia.Node

// ELU is the exponential linear unit, relu(x) + exp(min(x, 0)) - 1.
func ELU(x *gorgonia.Node) *gorgonia.Node {
	pos := gorgonia.Must(gorgonia.Rectify(x))
	neg := gorgonia.Must(gorgonia.Sub(x, pos))
	expm1 := gorgonia.Must(gorgonia.Sub(gorgonia.Must(gorgonia.Exp(neg)), gorgonia.NewConstant(1.0)))
	return gorgonia.Must(gorgonia.Add(pos, expm1))
}

// Sigmoid squashes to (0, 1).
func Sigmoid(x *gorgonia.Node) *gorgonia.Node {
	return gorgonia.Must(gorgonia.Sigmoid(x))
}

func (a Activation) apply(x *gorgonia.Node) *gorgonia.Node {
	if a == nil {
		return x
	}
	return a(x)
}

// glorotUniform draws from U(-l, l) with l = sqrt(6/(fanIn+fanOut)).
func glorotUniform(rng *rand.Rand, fanIn, fanOut int, shape ...int) *tensor.Dense {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	return ml.RandUniform(rng, -limit, limit, shape...)
}

// perChannel applies fn to x [N, C, H, W] viewed as a [N*H*W, C] matrix,
// so per-channel vectors broadcast along axis 0.
func perChannel(x *gorgonia.Node, fn func(flat *gorgonia.Node) *gorgonia.Node) *gorgonia.Node {
	shape := x.Shape()
	if len(shape) != 4 {
		panic(fmt.Errorf("nn: per-channel op needs NCHW input, got %v", shape))
	}
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]

	nhwc := gorgonia.Must(gorgonia.Transpose(x, 0, 2, 3, 1))
	flat := gorgonia.Must(gorgonia.Reshape(nhwc, tensor.Shape{n * h * w, c}))
	flat = fn(flat)
	nhwc = gorgonia.Must(gorgonia.Reshape(flat, tensor.Shape{n, h, w, c}))
	return gorgonia.Must(gorgonia.Transpose(nhwc, 0, 3, 1, 2))
}

func addBias(x, bias *gorgonia.Node) *gorgonia.Node {
	return gorgonia.Must(gorgonia.BroadcastAdd(x, bias, nil, []byte{0}))
}

// NormOptions configures batch normalisation.
type NormOptions struct {
	Epsilon float64
	// Rate is the weight of the current batch in the running statistics.
	Rate float64
	// Scale learns a per-channel multiplier after normalisation.
	Scale bool
}

// BatchNorm normalises every channel of an NCHW input.
type BatchNorm struct {
	Gamma *Param
	Beta  *Param

	RunningMean *Param
	RunningVar  *Param

	Epsilon float64
	Rate    float64
}

// NewBatchNorm registers the parameters of a batch norm over channels.
func NewBatchNorm(p *Params, prefix string, channels int, opts NormOptions) *BatchNorm {
	bn := &BatchNorm{
		Beta:        p.Add(prefix+".beta", ml.Zeros(channels), true),
		RunningMean: p.Add(prefix+".running_mean", ml.Zeros(channels), false),
		RunningVar:  p.Add(prefix+".running_var", ml.Full(1, channels), false),
		Epsilon:     opts.Epsilon,
		Rate:        opts.Rate,
	}
	if opts.Scale {
		bn.Gamma = p.Add(prefix+".gamma", ml.Full(1, channels), true)
	}
	return bn
}

// Forward normalises with batch statistics in ModeTrain and ModeSample and
// with the running statistics in ModeInfer. ModeTrain also moves the
// running statistics towards the batch statistics after each run.
func (bn *BatchNorm) Forward(ctx *ml.Context, x *gorgonia.Node) *gorgonia.Node {
	return perChannel(x, func(flat *gorgonia.Node) *gorgonia.Node {
		var mean, variance, centered *gorgonia.Node
		if ctx.Mode() == ml.ModeInfer {
			mean = bn.RunningMean.Node(ctx)
			variance = bn.RunningVar.Node(ctx)
			centered = gorgonia.Must(gorgonia.BroadcastSub(flat, mean, nil, []byte{0}))
		} else {
			mean = gorgonia.Must(gorgonia.Mean(flat, 0))
			centered = gorgonia.Must(gorgonia.BroadcastSub(flat, mean, nil, []byte{0}))
			variance = gorgonia.Must(gorgonia.Mean(gorgonia.Must(gorgonia.Square(centered)), 0))
			if ctx.Mode() == ml.ModeTrain {
				bn.track(ctx, mean, variance)
			}
		}

		std := gorgonia.Must(gorgonia.Sqrt(gorgonia.Must(gorgonia.Add(variance, gorgonia.NewConstant(bn.Epsilon)))))
		y := gorgonia.Must(gorgonia.BroadcastHadamardDiv(centered, std, nil, []byte{0}))
		if bn.Gamma != nil {
			y = gorgonia.Must(gorgonia.BroadcastHadamardProd(y, bn.Gamma.Node(ctx), nil, []byte{0}))
		}
		return addBias(y, bn.Beta.Node(ctx))
	})
}

// track updates running = running + rate*(batch - running) after each run.
func (bn *BatchNorm) track(ctx *ml.Context, mean, variance *gorgonia.Node) {
	meanVal, varVal := ctx.Read(mean), ctx.Read(variance)
	ctx.AfterRun(func() error {
		for _, s := range []struct {
			running *Param
			batch   *gorgonia.Value
		}{{bn.RunningMean, meanVal}, {bn.RunningVar, varVal}} {
			if *s.batch == nil {
				return fmt.Errorf("%s: batch statistics were not computed", s.running.Name)
			}
			batch := (*s.batch).Data().([]float64)
			running := s.running.Floats()
			for i := range running {
				running[i] += bn.Rate * (batch[i] - running[i])
			}
		}
		return nil
	})
}

// Linear is a fully connected layer on [B, In] inputs.
type Linear struct {
	Weight     *Param
	Bias       *Param
	Activation Activation
}

// NewLinear registers a fully connected layer with bias.
func NewLinear(p *Params, rng *rand.Rand, prefix string, in, out int, act Activation) *Linear {
	return &Linear{
		Weight:     p.Add(prefix+".weight", glorotUniform(rng, in, out, in, out), true),
		Bias:       p.Add(prefix+".bias", ml.Zeros(out), true),
		Activation: act,
	}
}

func (l *Linear) Forward(ctx *ml.Context, x *gorgonia.Node) *gorgonia.Node {
	xw := gorgonia.Must(gorgonia.Mul(x, l.Weight.Node(ctx)))
	return l.Activation.apply(addBias(xw, l.Bias.Node(ctx)))
}

// ConvOptions describes one convolution layer.
type ConvOptions struct {
	Kernel     int
	Filters    int
	Stride     int
	Padding    ml.Padding
	Activation Activation
	// Norm enables batch normalisation, which replaces the bias.
	Norm *NormOptions
}

func (o ConvOptions) stride() int {
	return max(o.Stride, 1)
}

// conv holds what Conv2D and ConvTranspose2D share: an NCHW kernel
// [Filters, In, K, K] followed by batch norm or bias and an activation.
type conv struct {
	Weight *Param
	Bias   *Param
	Norm   *BatchNorm

	Kernel     int
	Stride     int
	Padding    ml.Padding
	Activation Activation
}

func newConv(p *Params, rng *rand.Rand, prefix string, in int, opts ConvOptions) conv {
	k := opts.Kernel
	c := conv{
		Weight:     p.Add(prefix+".weight", glorotUniform(rng, k*k*in, k*k*opts.Filters, opts.Filters, in, k, k), true),
		Kernel:     k,
		Stride:     opts.stride(),
		Padding:    opts.Padding,
		Activation: opts.Activation,
	}
	if opts.Norm != nil {
		c.Norm = NewBatchNorm(p, prefix+".norm", opts.Filters, *opts.Norm)
	} else {
		c.Bias = p.Add(prefix+".bias", ml.Zeros(opts.Filters), true)
	}
	return c
}

// apply convolves x with stride 1 or c.Stride and symmetric padding pad.
func (c *conv) apply(ctx *ml.Context, x *gorgonia.Node, pad, stride int) *gorgonia.Node {
	y := gorgonia.Must(gorgonia.Conv2d(x, c.Weight.Node(ctx),
		tensor.Shape{c.Kernel, c.Kernel},
		[]int{pad, pad},
		[]int{stride, stride},
		[]int{1, 1},
	))

	switch {
	case c.Norm != nil:
		y = c.Norm.Forward(ctx, y)
	case c.Bias != nil:
		bias := c.Bias.Node(ctx)
		y = perChannel(y, func(flat *gorgonia.Node) *gorgonia.Node { return addBias(flat, bias) })
	}
	return c.Activation.apply(y)
}

// Conv2D is a convolution on NCHW input. SAME padding keeps
// ceil(in/stride) outputs for odd kernels.
type Conv2D struct {
	conv
}

// NewConv2D registers a convolution from in channels to opts.Filters.
func NewConv2D(p *Params, rng *rand.Rand, prefix string, in int, opts ConvOptions) *Conv2D {
	return &Conv2D{conv: newConv(p, rng, prefix, in, opts)}
}

func (c *Conv2D) Forward(ctx *ml.Context, x *gorgonia.Node) *gorgonia.Node {
	var pad int
	if c.Padding == ml.PaddingSame {
		pad = (c.Kernel - 1) / 2
	}
	return c.apply(ctx, x, pad, c.Stride)
}

// ConvTranspose2D is the transposed counterpart of Conv2D: output size is
// in*stride for SAME and in+kernel-1 for VALID. It is evaluated as a stride
// 1 convolution over the input with stride-1 zeros inserted before every
// element, so Weight holds the equivalent direct-convolution kernel.
type ConvTranspose2D struct {
	conv
}

// NewConvTranspose2D registers a transposed convolution from in channels
// to opts.Filters.
func NewConvTranspose2D(p *Params, rng *rand.Rand, prefix string, in int, opts ConvOptions) *ConvTranspose2D {
	if opts.Padding == ml.PaddingValid && opts.stride() > 1 {
		panic(fmt.Errorf("nn: %s: VALID transposed convolution supports stride 1 only", prefix))
	}
	return &ConvTranspose2D{conv: newConv(p, rng, prefix, in, opts)}
}

func (c *ConvTranspose2D) Forward(ctx *ml.Context, x *gorgonia.Node) *gorgonia.Node {
	pad := c.Kernel - 1
	if c.Padding == ml.PaddingSame {
		pad = (c.Kernel - 1) / 2
	}
	return c.apply(ctx, upsample(ctx, x, c.Stride), pad, 1)
}

// upsample inserts stride-1 zero rows and columns before every element of
// x [N, C, H, W], giving [N, C, H*stride, W*stride].
func upsample(ctx *ml.Context, x *gorgonia.Node, stride int) *gorgonia.Node {
	if stride == 1 {
		return x
	}
	shape := x.Shape()
	n, c, h, w := shape[0], shape[1], shape[2], shape[3]

	// columns: [N, C, H, W, 1] -> [N, C, H, W, stride] -> [N, C, H, W*stride]
	cols := gorgonia.Must(gorgonia.Reshape(x, tensor.Shape{n, c, h, w, 1}))
	zeros := ctx.Constant("upsample.zeros", ml.Zeros(n, c, h, w, stride-1))
	cols = gorgonia.Must(gorgonia.Concat(4, zeros, cols))
	cols = gorgonia.Must(gorgonia.Reshape(cols, tensor.Shape{n, c, h, w * stride}))

	// rows: [N, C, H, 1, W'] -> [N, C, H, stride, W'] -> [N, C, H*stride, W']
	rows := gorgonia.Must(gorgonia.Reshape(cols, tensor.Shape{n, c, h, 1, w * stride}))
	zeros = ctx.Constant("upsample.zeros", ml.Zeros(n, c, h, stride-1, w*stride))
	rows = gorgonia.Must(gorgonia.Concat(3, zeros, rows))
	return gorgonia.Must(gorgonia.Reshape(rows, tensor.Shape{n, c, h * stride, w * stride}))
}
