package imageio

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackbox/convvae/ml"
)

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{
		"":     FormatPNG,
		"png":  FormatPNG,
		"bmp":  FormatBMP,
		"tif":  FormatTIFF,
		"tiff": FormatTIFF,
	}
	for in, want := range cases {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseFormat("jpeg")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestGrayStretchesRange(t *testing.T) {
	img := Gray([]float64{0.2, 0.4, 0.6, 0.3}, 2, 2)
	assert.Equal(t, []uint8{0, 127, 255, 64}, img.Pix)

	flat := Gray([]float64{0.5, 0.5, 0.5, 0.5}, 2, 2)
	assert.Equal(t, []uint8{0, 0, 0, 0}, flat.Pix)
}

func TestUpscale(t *testing.T) {
	img := Gray([]float64{0, 1, 1, 0}, 2, 2)
	big := Upscale(img, 3)

	assert.Equal(t, image.Rect(0, 0, 6, 6), big.Bounds())
	assert.Equal(t, uint8(0), big.GrayAt(2, 2).Y)
	assert.Equal(t, uint8(255), big.GrayAt(3, 0).Y)
	assert.Same(t, img, Upscale(img, 1))
}

func TestEncodeDecodes(t *testing.T) {
	img := Gray([]float64{0, 0.25, 0.5, 1}, 2, 2)

	for _, f := range []Format{FormatPNG, FormatBMP, FormatTIFF} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, img, f))

			decoded, name, err := image.Decode(&buf)
			require.NoError(t, err)
			assert.Equal(t, string(f), name)
			assert.Equal(t, img.Bounds(), decoded.Bounds())
		})
	}
}

func TestWriteBatch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "img")
	probs := ml.New([]float64{
		0, 0.5, 0.5, 1,
		1, 0.5, 0.5, 0,
		0.1, 0.2, 0.3, 0.4,
	}, 3, 4)

	paths, err := WriteBatch(context.Background(), dir, probs, Options{Format: FormatPNG, Size: 2, Threads: 2})
	require.NoError(t, err)
	require.Len(t, paths, 3)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	for i, p := range paths {
		assert.Equal(t, filepath.Join(dir, []string{"0.png", "1.png", "2.png"}[i]), p)
	}

	first, err := os.ReadFile(paths[1])
	require.NoError(t, err)

	// gleiche Eingabe, gleiche Bytes
	_, err = WriteBatch(context.Background(), dir, probs, Options{Format: FormatPNG, Size: 2})
	require.NoError(t, err)
	second, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWriteBatchErrors(t *testing.T) {
	_, err := WriteBatch(context.Background(), t.TempDir(), ml.Zeros(2, 5), Options{Format: FormatPNG, Size: 2})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = WriteBatch(ctx, t.TempDir(), ml.Zeros(2, 4), Options{Format: FormatPNG, Size: 2})
	assert.ErrorIs(t, err, context.Canceled)
}
