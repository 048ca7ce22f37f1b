// dump.go - Dump-Funktionen fuer Tensor-Debugging und Visualisierung
// Dieses Modul stellt Hilfsfunktionen zum Ausgeben von Tensor-Inhalten bereit.
package ml

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

func mul(s ...int) int {
	p := 1
	for _, v := range s {
		p *= v
	}

	return p
}

// DumpOptions configures tensor dump output format.
type DumpOptions func(*dumpOptions)

// DumpWithPrecision sets the number of decimal places to print.
func DumpWithPrecision(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.Precision = n
	}
}

// DumpWithThreshold sets the threshold for printing the entire tensor. If the number of elements
// is less than or equal to this value, the entire tensor will be printed. Otherwise, only the
// beginning and end of each dimension will be printed.
func DumpWithThreshold(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.Threshold = n
	}
}

// DumpWithEdgeItems sets the number of elements to print at the beginning and end of each dimension.
func DumpWithEdgeItems(n int) DumpOptions {
	return func(opts *dumpOptions) {
		opts.EdgeItems = n
	}
}

type dumpOptions struct {
	Precision, Threshold, EdgeItems int
}

// Dump converts a tensor to a human-readable string representation.
func Dump(t Valuer, optsFuncs ...DumpOptions) string {
	opts := dumpOptions{Precision: 4, Threshold: 1000, EdgeItems: 3}
	for _, optsFunc := range optsFuncs {
		optsFunc(&opts)
	}

	shape := []int(t.Shape())
	if mul(shape...) <= opts.Threshold {
		opts.EdgeItems = math.MaxInt
	}

	return dump(Floats(t), shape, opts.EdgeItems, func(f float64) string {
		return strconv.FormatFloat(f, 'f', opts.Precision, 64)
	})
}

func dump(s []float64, shape []int, items int, fn func(float64) string) string {
	var sb strings.Builder
	var f func([]int, int)
	f = func(dims []int, stride int) {
		prefix := strings.Repeat(" ", len(shape)-len(dims)+1)
		sb.WriteString("[")
		defer func() { sb.WriteString("]") }()
		for i := 0; i < dims[0]; i++ {
			if items < dims[0]-items && i >= items && i < dims[0]-items {
				sb.WriteString("..., ")
				// skip to next printable element
				skip := dims[0] - 2*items
				if len(dims) > 1 {
					stride += mul(append(dims[1:], skip)...)
					fmt.Fprint(&sb, strings.Repeat("\n", len(dims)-1), prefix)
				}
				i += skip - 1
			} else if len(dims) > 1 {
				f(dims[1:], stride)
				stride += mul(dims[1:]...)
				if i < dims[0]-1 {
					fmt.Fprint(&sb, ",", strings.Repeat("\n", len(dims)-1), prefix)
				}
			} else {
				text := fn(s[stride+i])
				if len(text) > 0 && text[0] != '-' {
					sb.WriteString(" ")
				}

				sb.WriteString(text)
				if i < dims[0]-1 {
					sb.WriteString(", ")
				}
			}
		}
	}
	f(shape, 0)

	return sb.String()
}
