// mnist.go - Lader fuer MNIST-Format-Datensaetze (IDX, gzip)
//
// Dieses Modul enthaelt:
// - Decode: liest eine IDX3-Bilddatei (magic 2051)
// - Load: oeffnet data/<name>/train-images-idx3-ubyte.gz mit SHA-256-Pruefung
// - Dataset: dataset.Provider ueber die geladenen Bilder
package mnist

import (
	"bufio"
	"compress/gzip"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/blackbox/convvae/dataset"
)

const (
	TrainImages = "train-images-idx3-ubyte.gz"

	imageMagic = 2051

	// maxPrealloc caps the slice capacity reserved from the header count.
	maxPrealloc = 60000
)

// knownDigests lists the SHA-256 of the published training image files.
var knownDigests = map[string]string{
	"mnist": "440fcabf73cc546fa21475e81ea370265605f56be210a4024d2ca8f203523609",
}

var ErrBadMagic = errors.New("not an IDX3 image file")

// Decode reads an uncompressed IDX3 image stream.
func Decode(r io.Reader) ([][]byte, error) {
	var header struct {
		Magic, Count, Rows, Cols uint32
	}
	if err := binary.Read(r, binary.BigEndian, &header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if header.Magic != imageMagic {
		return nil, fmt.Errorf("%w: magic %d", ErrBadMagic, header.Magic)
	}
	if header.Rows != dataset.ImageSize || header.Cols != dataset.ImageSize {
		return nil, fmt.Errorf("images are %dx%d, want %dx%d", header.Rows, header.Cols, dataset.ImageSize, dataset.ImageSize)
	}

	// the header count is untrusted, images are appended as they arrive
	images := make([][]byte, 0, min(header.Count, maxPrealloc))
	for i := uint32(0); i < header.Count; i++ {
		img := make([]byte, dataset.Pixels)
		if _, err := io.ReadFull(r, img); err != nil {
			return nil, fmt.Errorf("read image %d of %d: %w", i, header.Count, err)
		}
		images = append(images, img)
	}
	return images, nil
}

func digest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func readImages(path string) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	defer gz.Close()

	return Decode(bufio.NewReader(gz))
}

// Dataset is an MNIST-format training set.
type Dataset struct {
	*dataset.Batcher

	name string
}

// Load reads the training images of the named dataset below workdir.
func Load(workdir, name string, rng *rand.Rand) (*Dataset, error) {
	dir, err := dataset.Dir(workdir, name)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, TrainImages)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: place %s in %s: %w", name, TrainImages, dir, err)
	}

	if want, ok := knownDigests[name]; ok {
		got, err := digest(path)
		if err != nil {
			return nil, fmt.Errorf("hash %s: %w", path, err)
		}
		if got != want {
			slog.Warn("dataset file hash mismatch", "path", path, "sha256", got, "expected", want)
		}
	}

	images, err := readImages(path)
	if err != nil {
		return nil, err
	}

	b, err := dataset.NewBatcher(images, rng)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	slog.Debug("loaded dataset", "name", name, "images", len(images), "path", path)
	return &Dataset{Batcher: b, name: name}, nil
}

func (d *Dataset) Name() string {
	return d.name
}

var _ dataset.Provider = (*Dataset)(nil)
