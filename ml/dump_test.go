package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorgonia.org/tensor"
)

func TestDump(t *testing.T) {
	cases := []struct {
		name string
		t    tensor.Tensor
		opts []DumpOptions
		want string
	}{
		{
			name: "vector",
			t:    New([]float64{0, -1, 2.5}, 3),
			opts: []DumpOptions{DumpWithPrecision(1)},
			want: "[ 0.0, -1.0,  2.5]",
		},
		{
			name: "matrix",
			t:    New([]float64{0, 1, 2, 3, 4, 5}, 2, 3),
			opts: []DumpOptions{DumpWithPrecision(1)},
			want: "[[ 0.0,  1.0,  2.0],\n [ 3.0,  4.0,  5.0]]",
		},
		{
			name: "edge items",
			t:    New([]float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, 10),
			opts: []DumpOptions{DumpWithPrecision(0), DumpWithThreshold(5), DumpWithEdgeItems(2)},
			want: "[ 0,  1, ...,  8,  9]",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Dump(tt.t, tt.opts...))
		})
	}
}
