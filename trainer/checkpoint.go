// checkpoint.go - Checkpoints schreiben und Modelle daraus laden
package trainer

import (
	"context"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/blackbox/convvae/checkpoint"
	"github.com/blackbox/convvae/dataset"
	"github.com/blackbox/convvae/imageio"
	"github.com/blackbox/convvae/ml"
	"github.com/blackbox/convvae/model"
)

// SaveCheckpoint writes all parameters with the model configuration and
// run information as metadata.
func (i *Inference) SaveCheckpoint(path string) error {
	meta := i.model.Config().Metadata()
	meta["train.dataset"] = i.data.Name()
	meta["train.epochs"] = strconv.Itoa(i.epoch)
	meta["train.steps"] = strconv.Itoa(i.Steps())
	meta["train.seed"] = strconv.FormatInt(i.seed, 10)
	if i.runID != "" {
		meta["train.run_id"] = i.runID
	}

	if err := checkpoint.Save(path, i.model.Params(), i.opts.DType, meta); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

// LoadModel rebuilds the model described by a checkpoint and restores its
// weights and running statistics.
func LoadModel(path string) (model.Model, map[string]string, error) {
	f, err := checkpoint.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open checkpoint: %w", err)
	}

	c, err := model.ConfigFromMetadata(f.Metadata)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}

	// initial weights are overwritten by Restore
	m, err := model.New(c, rand.New(rand.NewSource(1)))
	if err != nil {
		return nil, nil, err
	}
	if err := f.Restore(m.Params()); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, f.Metadata, nil
}

// SampleOptions controls Sample.
type SampleOptions struct {
	Count   int
	Seed    int64
	Dir     string
	Format  imageio.Format
	Scale   int
	Threads int
}

// Sample decodes Count prior samples with the running batch-norm statistics
// and writes them to Dir.
func Sample(ctx context.Context, m model.Model, opts SampleOptions) ([]string, error) {
	if opts.Count <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", opts.Count)
	}

	probs, err := decodePrior(m, ml.NewContext(ml.ModeInfer, rand.New(rand.NewSource(opts.Seed))), opts.Count)
	if err != nil {
		return nil, err
	}

	return imageio.WriteBatch(ctx, opts.Dir, probs, imageio.Options{
		Format:  opts.Format,
		Size:    dataset.ImageSize,
		Scale:   opts.Scale,
		Threads: opts.Threads,
	})
}
