// datasets.go - Auswahl der Datenquelle per Name
package trainer

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/blackbox/convvae/dataset"
	"github.com/blackbox/convvae/dataset/mnist"
)

// syntheticSize is the number of generated images for --dataset synthetic.
const syntheticSize = 4096

var ErrUnknownDataset = errors.New("unknown dataset")

// Datasets lists the accepted --dataset values.
var Datasets = []string{"mnist", "fashion-mnist", "synthetic"}

// OpenDataset returns the named training set below workdir.
func OpenDataset(workdir, name string, rng *rand.Rand) (dataset.Provider, error) {
	switch name {
	case "mnist", "fashion-mnist":
		d, err := mnist.Load(workdir, name, rng)
		if err != nil {
			return nil, err
		}
		return d, nil
	case "synthetic":
		// generated in memory, the directory is still laid out for every dataset
		if _, err := dataset.Dir(workdir, name); err != nil {
			return nil, err
		}
		d, err := dataset.NewSynthetic(syntheticSize, rng)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("%w: %q (one of %v)", ErrUnknownDataset, name, Datasets)
	}
}
