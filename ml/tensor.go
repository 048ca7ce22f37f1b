// tensor.go - Hilfsfunktionen fuer gorgonia-Tensoren
//
// Dieses Modul enthaelt:
// - Konstruktoren: New, Zeros, Full (float64, row-major)
// - Zugriff: Floats, Scalar
// - IsFinite: NaN/Inf-Pruefung
package ml

import (
	"fmt"
	"math"

	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Float is the element type of every tensor in a graph.
var Float = tensor.Float64

func numel(shape []int) int {
	n := 1
	for _, d := range shape {
		if d < 0 {
			panic(fmt.Errorf("ml: negative dimension in shape %v", shape))
		}
		n *= d
	}
	return n
}

// New wraps data in a dense tensor of the given shape. data is not copied.
func New(data []float64, shape ...int) *tensor.Dense {
	if n := numel(shape); n != len(data) {
		panic(fmt.Errorf("ml: shape %v needs %d elements, got %d", shape, n, len(data)))
	}
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// Zeros creates a zero-filled tensor.
func Zeros(shape ...int) *tensor.Dense {
	return New(make([]float64, numel(shape)), shape...)
}

// Full creates a tensor with every element set to v.
func Full(v float64, shape ...int) *tensor.Dense {
	data := make([]float64, numel(shape))
	for i := range data {
		data[i] = v
	}
	return New(data, shape...)
}

// Valuer is satisfied by tensor.Tensor and gorgonia.Value.
type Valuer interface {
	Shape() tensor.Shape
	Dtype() tensor.Dtype
	Data() interface{}
}

// Floats returns the backing slice of a float64 tensor. Writes are visible
// to the tensor.
func Floats(t Valuer) []float64 {
	data, ok := t.Data().([]float64)
	if !ok {
		panic(fmt.Errorf("ml: tensor of type %v is not float64", t.Dtype()))
	}
	return data
}

// Scalar extracts the single element of a graph value.
func Scalar(v gorgonia.Value) float64 {
	switch d := v.Data().(type) {
	case float64:
		return d
	case []float64:
		if len(d) == 1 {
			return d[0]
		}
	}
	panic(fmt.Errorf("ml: value of shape %v is not a scalar", v.Shape()))
}

// IsFinite reports whether every element is neither NaN nor infinite.
func IsFinite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
