// synthetic.go - Generierte Testbilder ohne Dateien
package dataset

import (
	"math"
	"math/rand"
)

// syntheticSeed fixes the image content independent of the sampling rng.
const syntheticSeed = 1

// Synthetic is a deterministic set of anti-aliased rings and bars.
type Synthetic struct {
	*Batcher
}

// NewSynthetic generates n images. rng only drives the sampling order.
func NewSynthetic(n int, rng *rand.Rand) (*Synthetic, error) {
	gen := rand.New(rand.NewSource(syntheticSeed))

	images := make([][]byte, n)
	for i := range images {
		if i%2 == 0 {
			images[i] = ring(gen)
		} else {
			images[i] = bar(gen)
		}
	}

	b, err := NewBatcher(images, rng)
	if err != nil {
		return nil, err
	}
	return &Synthetic{Batcher: b}, nil
}

func (s *Synthetic) Name() string {
	return "synthetic"
}

func ring(gen *rand.Rand) []byte {
	cx := 10 + 8*gen.Float64()
	cy := 10 + 8*gen.Float64()
	r := 4 + 5*gen.Float64()
	return draw(func(x, y float64) float64 {
		d := math.Abs(math.Hypot(x-cx, y-cy) - r)
		return 1.5 - d
	})
}

func bar(gen *rand.Rand) []byte {
	angle := math.Pi * gen.Float64()
	cx := 10 + 8*gen.Float64()
	cy := 10 + 8*gen.Float64()
	sin, cos := math.Sincos(angle)
	half := 5 + 4*gen.Float64()
	return draw(func(x, y float64) float64 {
		along := (x-cx)*cos + (y-cy)*sin
		across := -(x-cx)*sin + (y-cy)*cos
		if math.Abs(along) > half {
			return 0
		}
		return 1.5 - math.Abs(across)
	})
}

// draw rasterises a coverage function sampled at pixel centres.
func draw(coverage func(x, y float64) float64) []byte {
	img := make([]byte, Pixels)
	for y := 0; y < ImageSize; y++ {
		for x := 0; x < ImageSize; x++ {
			c := min(max(coverage(float64(x)+0.5, float64(y)+0.5), 0), 1)
			img[y*ImageSize+x] = byte(math.Round(255 * c))
		}
	}
	return img
}

var _ Provider = (*Synthetic)(nil)
