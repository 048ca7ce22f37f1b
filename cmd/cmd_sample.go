// cmd_sample.go - sample Command
// Hauptfunktionen: SampleHandler, newSampleCmd
package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/blackbox/convvae/envconfig"
	"github.com/blackbox/convvae/imageio"
	"github.com/blackbox/convvae/trainer"
)

// SampleHandler - Dekodiert Prior-Samples aus einem Checkpoint
func SampleHandler(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()

	workdir, _ := flags.GetString("working_directory")
	if workdir == "" {
		workdir = envconfig.WorkingDirectory()
	}

	path, _ := flags.GetString("checkpoint")
	if !filepath.IsAbs(path) {
		path = filepath.Join(workdir, path)
	}

	output, _ := flags.GetString("output")
	if output == "" {
		output = filepath.Join(workdir, "samples")
	}

	count, _ := flags.GetInt("count")
	scale, _ := flags.GetInt("scale")
	seed, _ := flags.GetInt64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	formatName, _ := flags.GetString("format")
	format, err := imageio.ParseFormat(formatName)
	if err != nil {
		return err
	}

	m, _, err := trainer.LoadModel(path)
	if err != nil {
		return err
	}

	paths, err := trainer.Sample(cmd.Context(), m, trainer.SampleOptions{
		Count:   count,
		Seed:    seed,
		Dir:     output,
		Format:  format,
		Scale:   scale,
		Threads: int(envconfig.NumThreads()),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d images to %s\n", len(paths), output)
	return nil
}

// newSampleCmd - Erstellt den sample Command
func newSampleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Decode prior samples from a trained checkpoint",
		Args:  cobra.NoArgs,
		RunE:  SampleHandler,
	}
	cmd.Flags().String("working_directory", "", "Working directory (default $VAE_WORKDIR or current directory)")
	cmd.Flags().String("checkpoint", trainer.DefaultCheckpoint, "Checkpoint path relative to the working directory")
	cmd.Flags().Int("count", 16, "Number of images")
	cmd.Flags().String("output", "", "Output directory (default <working_directory>/samples)")
	cmd.Flags().Int64("seed", 0, "Random seed (0 for random)")
	cmd.Flags().String("format", string(imageio.FormatPNG), "Image format: png, bmp or tiff")
	cmd.Flags().Int("scale", 1, "Integer upscaling factor")
	return cmd
}
