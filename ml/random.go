// random.go - Zufallstensoren
package ml

import (
	"math/rand"

	"gorgonia.org/tensor"
)

// DrawFunc fills a fresh tensor of the given shape from rng.
type DrawFunc func(rng *rand.Rand, shape ...int) *tensor.Dense

// RandNormal draws a tensor from N(0, 1).
func RandNormal(rng *rand.Rand, shape ...int) *tensor.Dense {
	t := Zeros(shape...)
	data := Floats(t)
	for i := range data {
		data[i] = rng.NormFloat64()
	}
	return t
}

// RandUniform draws a tensor from U(lo, hi).
func RandUniform(rng *rand.Rand, lo, hi float64, shape ...int) *tensor.Dense {
	t := Zeros(shape...)
	data := Floats(t)
	for i := range data {
		data[i] = lo + (hi-lo)*rng.Float64()
	}
	return t
}

// DropoutMask returns a DrawFunc producing inverted dropout masks: each
// element is 1/keep with probability keep and 0 otherwise.
func DropoutMask(keep float64) DrawFunc {
	return func(rng *rand.Rand, shape ...int) *tensor.Dense {
		t := Zeros(shape...)
		data := Floats(t)
		for i := range data {
			if rng.Float64() < keep {
				data[i] = 1 / keep
			}
		}
		return t
	}
}
