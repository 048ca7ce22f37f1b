// options.go - Optionen und Flag-Definitionen fuer das Training.
//
// Dieses Modul enthaelt:
// - Options Struktur fuer Trainingsparameter
// - Standardwerte und Flag-Registrierung
// - ParseOptionsFromFlags mit Aufloesung von Arbeitsverzeichnis und Seed

package trainer

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackbox/convvae/envconfig"
	"github.com/blackbox/convvae/imageio"
	"github.com/blackbox/convvae/ml"
)

// DefaultCheckpoint is resolved against the working directory.
const DefaultCheckpoint = "model.safetensors"

// Options holds the parameters of a training run.
type Options struct {
	BatchSize        int
	UpdatesPerEpoch  int
	MaxEpoch         int
	LearningRate     float64
	WorkingDirectory string
	HiddenSize       int

	Dataset string
	Seed    int64
	Format  imageio.Format
	// Checkpoint is the final safetensors path; empty disables it.
	Checkpoint string
	DType      ml.DType
	// Threads limits concurrent image writes.
	Threads    int
}

// DefaultOptions returns the default training options.
func DefaultOptions() Options {
	return Options{
		BatchSize:       128,
		UpdatesPerEpoch: 1000,
		MaxEpoch:        100,
		LearningRate:    1e-2,
		HiddenSize:      10,
		Dataset:         "mnist",
		Format:          imageio.FormatPNG,
		DType:           ml.DTypeF32,
	}
}

// RegisterFlags adds the training flags to the given command.
func RegisterFlags(cmd *cobra.Command) {
	d := DefaultOptions()
	cmd.Flags().Int("batch_size", d.BatchSize, "Batch size")
	cmd.Flags().Int("updates_per_epoch", d.UpdatesPerEpoch, "Number of updates per epoch")
	cmd.Flags().Int("max_epoch", d.MaxEpoch, "Max number of epochs")
	cmd.Flags().Float64("learning_rate", d.LearningRate, "Learning rate")
	cmd.Flags().String("working_directory", "", "Working directory (default $VAE_WORKDIR or current directory)")
	cmd.Flags().Int("hidden_size", d.HiddenSize, "Size of the latent space")

	cmd.Flags().String("dataset", d.Dataset, "Dataset: mnist, fashion-mnist or synthetic")
	cmd.Flags().Int64("seed", 0, "Random seed (0 for random)")
	cmd.Flags().String("format", string(d.Format), "Image format: png, bmp or tiff")
	cmd.Flags().String("checkpoint", DefaultCheckpoint, "Final checkpoint path relative to the working directory (empty to disable)")
	cmd.Flags().String("dtype", d.DType.String(), "Checkpoint dtype: F32, F16 or BF16")
}

// ParseOptionsFromFlags extracts Options from cobra command flags.
func ParseOptionsFromFlags(cmd *cobra.Command) (Options, error) {
	opts := DefaultOptions()
	flags := cmd.Flags()

	var err error
	if opts.BatchSize, err = flags.GetInt("batch_size"); err != nil {
		return opts, err
	}
	if opts.UpdatesPerEpoch, err = flags.GetInt("updates_per_epoch"); err != nil {
		return opts, err
	}
	if opts.MaxEpoch, err = flags.GetInt("max_epoch"); err != nil {
		return opts, err
	}
	if opts.LearningRate, err = flags.GetFloat64("learning_rate"); err != nil {
		return opts, err
	}
	if opts.WorkingDirectory, err = flags.GetString("working_directory"); err != nil {
		return opts, err
	}
	if opts.HiddenSize, err = flags.GetInt("hidden_size"); err != nil {
		return opts, err
	}
	if opts.Dataset, err = flags.GetString("dataset"); err != nil {
		return opts, err
	}
	if opts.Seed, err = flags.GetInt64("seed"); err != nil {
		return opts, err
	}
	if opts.Checkpoint, err = flags.GetString("checkpoint"); err != nil {
		return opts, err
	}

	if v, err := flags.GetString("format"); err != nil {
		return opts, err
	} else if opts.Format, err = imageio.ParseFormat(v); err != nil {
		return opts, err
	}
	if v, err := flags.GetString("dtype"); err != nil {
		return opts, err
	} else if opts.DType, err = ml.ParseDType(v); err != nil {
		return opts, err
	}

	if opts.WorkingDirectory == "" {
		opts.WorkingDirectory = envconfig.WorkingDirectory()
	}
	if opts.Checkpoint != "" && !filepath.IsAbs(opts.Checkpoint) {
		opts.Checkpoint = filepath.Join(opts.WorkingDirectory, opts.Checkpoint)
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	opts.Threads = int(envconfig.NumThreads())

	return opts, opts.Validate()
}

// Validate rejects options the training loop cannot run with.
func (o Options) Validate() error {
	var errs []error
	if o.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", o.BatchSize))
	}
	if o.UpdatesPerEpoch <= 0 {
		errs = append(errs, fmt.Errorf("updates_per_epoch must be positive, got %d", o.UpdatesPerEpoch))
	}
	if o.MaxEpoch < 0 {
		errs = append(errs, fmt.Errorf("max_epoch must not be negative, got %d", o.MaxEpoch))
	}
	if o.LearningRate <= 0 {
		errs = append(errs, fmt.Errorf("learning_rate must be positive, got %v", o.LearningRate))
	}
	if o.HiddenSize <= 0 {
		errs = append(errs, fmt.Errorf("hidden_size must be positive, got %d", o.HiddenSize))
	}
	return errors.Join(errs...)
}

// ImageDir is where rendered samples are written.
func (o Options) ImageDir() string {
	return filepath.Join(o.WorkingDirectory, "img")
}
