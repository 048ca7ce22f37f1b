// imageio.go - Export dekodierter Bilder
//
// Dieses Modul enthaelt:
// - Format: png, bmp, tiff
// - Gray: Wahrscheinlichkeiten -> 8-Bit-Graustufen (Min-Max-Skalierung)
// - Encode: Bild im gewaehlten Format schreiben
// - WriteBatch: ein Bild pro Batch-Index parallel nach <dir>/<i>.<ext>
package imageio

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/blackbox/convvae/ml"
)

// Format is an image file format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

var ErrUnknownFormat = errors.New("unknown image format")

// ParseFormat accepts png, bmp and tiff (or tif).
func ParseFormat(s string) (Format, error) {
	switch s {
	case "png", "":
		return FormatPNG, nil
	case "bmp":
		return FormatBMP, nil
	case "tiff", "tif":
		return FormatTIFF, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

func (f Format) Ext() string {
	return "." + string(f)
}

// Gray converts h*w values into an 8-bit image. Values are stretched so the
// minimum maps to 0 and the maximum to 255; a constant image is all black.
func Gray(values []float64, w, h int) *image.Gray {
	if len(values) != w*h {
		panic(fmt.Errorf("imageio: %d values for %dx%d image", len(values), w, h))
	}

	lo, hi := floats.Min(values), floats.Max(values)
	scale := hi - lo
	if scale == 0 {
		scale = 1
	}

	img := image.NewGray(image.Rect(0, 0, w, h))
	for i, v := range values {
		b := (v-lo)*255/scale + 0.4999
		img.Pix[i] = uint8(min(max(b, 0), 255))
	}
	return img
}

// Upscale enlarges img by an integer factor with nearest-neighbour sampling.
func Upscale(img *image.Gray, factor int) *image.Gray {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewGray(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// Encode writes img to w in format f.
func Encode(w io.Writer, img image.Image, f Format) error {
	switch f {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
	}
}

// EnsureDir creates dir if it does not exist yet.
func EnsureDir(dir string) error {
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(dir, 0o755)
	} else if err != nil {
		return err
	}
	return nil
}

// Options controls WriteBatch.
type Options struct {
	Format Format
	// Size is the edge length of the square source images.
	Size int
	// Scale is an optional integer upscaling factor.
	Scale int
	// Threads limits concurrent file writes; 0 means GOMAXPROCS.
	Threads int
}

func writeFile(path string, img image.Image, f Format) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := Encode(file, img, f); err != nil {
		file.Close()
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return file.Close()
}

// WriteBatch writes row i of probs [B, Size*Size] to dir/<i>.<ext> and
// returns the written paths in index order.
func WriteBatch(ctx context.Context, dir string, probs ml.Valuer, opts Options) ([]string, error) {
	shape := probs.Shape()
	if len(shape) != 2 || shape[1] != opts.Size*opts.Size {
		return nil, fmt.Errorf("cannot write %v as %dx%d images", probs.Shape(), opts.Size, opts.Size)
	}
	if err := EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create image directory: %w", err)
	}

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.GOMAXPROCS(0)
	}

	batch, pixels := shape[0], shape[1]
	data := ml.Floats(probs)
	paths := make([]string, batch)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)
	for i := 0; i < batch; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			img := Upscale(Gray(data[i*pixels:(i+1)*pixels], opts.Size, opts.Size), opts.Scale)
			path := filepath.Join(dir, strconv.Itoa(i)+opts.Format.Ext())
			if err := writeFile(path, img, opts.Format); err != nil {
				return err
			}
			paths[i] = path
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}
