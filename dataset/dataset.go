// dataset.go - Datenquellen fuer das Training
//
// Dieses Modul enthaelt:
// - Provider: liefert Mini-Batches flacher Grauwertbilder
// - Batcher: sequentieller Cursor ueber einen gemischten Index
// - Dir: Datenverzeichnis data/<name> anlegen
// - Groessenkonstanten fuer 28x28-Bilder
package dataset

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand"
	"os"
	"path/filepath"

	"gorgonia.org/tensor"

	"github.com/blackbox/convvae/ml"
)

const (
	ImageSize = 28
	Pixels    = ImageSize * ImageSize
)

// Provider yields batches of flattened images with values in [0, 1].
type Provider interface {
	Name() string
	Len() int
	// Sample returns the next [size, Pixels] batch.
	Sample(size int) (*tensor.Dense, error)
}

var ErrEmpty = errors.New("dataset is empty")

// Dir returns data/<name> under workdir and creates it if missing.
func Dir(workdir, name string) (string, error) {
	dir := filepath.Join(workdir, "data", name)
	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create data directory: %w", err)
		}
	}
	return dir, nil
}

// Batcher walks a shuffled permutation of images and reshuffles whenever a
// batch would run past the end.
type Batcher struct {
	images [][]byte
	order  []int
	cursor int

	rng *rand.Rand
}

// NewBatcher takes ownership of images. Every image must hold Pixels bytes.
func NewBatcher(images [][]byte, rng *rand.Rand) (*Batcher, error) {
	if len(images) == 0 {
		return nil, ErrEmpty
	}
	for i, img := range images {
		if len(img) != Pixels {
			return nil, fmt.Errorf("image %d has %d pixels, want %d", i, len(img), Pixels)
		}
	}

	b := &Batcher{images: images, order: make([]int, len(images)), rng: rng}
	for i := range b.order {
		b.order[i] = i
	}
	b.shuffle()
	return b, nil
}

func (b *Batcher) shuffle() {
	b.rng.Shuffle(len(b.order), func(i, j int) {
		b.order[i], b.order[j] = b.order[j], b.order[i]
	})
}

func (b *Batcher) Len() int {
	return len(b.images)
}

func (b *Batcher) Sample(size int) (*tensor.Dense, error) {
	if size <= 0 || size > len(b.images) {
		return nil, fmt.Errorf("batch size %d out of range [1, %d]", size, len(b.images))
	}

	if b.cursor+size > len(b.images) {
		b.shuffle()
		b.cursor = 0
	}

	data := make([]float64, 0, size*Pixels)
	for _, idx := range b.order[b.cursor : b.cursor+size] {
		for _, px := range b.images[idx] {
			data = append(data, float64(px)/255)
		}
	}
	b.cursor += size

	return ml.New(data, size, Pixels), nil
}
