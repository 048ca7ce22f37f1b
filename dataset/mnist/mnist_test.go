package mnist

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"

	"github.com/blackbox/convvae/dataset"
)

func idx(t *testing.T, magic uint32, n int) []byte {
	t.Helper()

	var buf bytes.Buffer
	for _, v := range []uint32{magic, uint32(n), dataset.ImageSize, dataset.ImageSize} {
		require.NoError(t, binary.Write(&buf, binary.BigEndian, v))
	}
	for i := 0; i < n; i++ {
		img := make([]byte, dataset.Pixels)
		img[0] = byte(i + 1)
		buf.Write(img)
	}
	return buf.Bytes()
}

func TestDecode(t *testing.T) {
	images, err := Decode(bytes.NewReader(idx(t, imageMagic, 3)))
	require.NoError(t, err)
	require.Len(t, images, 3)
	assert.Equal(t, byte(2), images[1][0])

	_, err = Decode(bytes.NewReader(idx(t, 2049, 1)))
	assert.ErrorIs(t, err, ErrBadMagic)

	truncated := idx(t, imageMagic, 2)
	_, err = Decode(bytes.NewReader(truncated[:len(truncated)-10]))
	assert.Error(t, err)
}

func TestDecodeOversizedCount(t *testing.T) {
	b := idx(t, imageMagic, 2)
	// claim four billion images while only two follow
	binary.BigEndian.PutUint32(b[4:8], math.MaxUint32)

	_, err := Decode(bytes.NewReader(b))
	require.Error(t, err)
	assert.ErrorIs(t, err, io.EOF)
	assert.Contains(t, err.Error(), "read image 2 of 4294967295")
}

func TestLoad(t *testing.T) {
	workdir := t.TempDir()
	dir, err := dataset.Dir(workdir, "fashion-mnist")
	require.NoError(t, err)

	var gz bytes.Buffer
	w := gzip.NewWriter(&gz)
	_, err = w.Write(idx(t, imageMagic, 5))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, TrainImages), gz.Bytes(), 0o644))

	d, err := Load(workdir, "fashion-mnist", rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, "fashion-mnist", d.Name())
	assert.Equal(t, 5, d.Len())

	x, err := d.Sample(5)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, dataset.Pixels}, x.Shape())
}

func TestLoadMissingFile(t *testing.T) {
	workdir := t.TempDir()
	_, err := Load(workdir, "mnist", rand.New(rand.NewSource(1)))
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(workdir, "data", "mnist"))
	assert.NoError(t, statErr, "data directory should be created")
}
