// cmd_train.go - train Command
// Hauptfunktionen: TrainHandler, newTrainCmd
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/blackbox/convvae/envconfig"
	"github.com/blackbox/convvae/model"
	"github.com/blackbox/convvae/store"
	"github.com/blackbox/convvae/trainer"
)

// progressWriter returns stderr if it is a terminal, nil otherwise
func progressWriter() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return os.Stderr
	}
	return nil
}

// TrainHandler - Trainiert das Modell mit den Flags des Commands
func TrainHandler(cmd *cobra.Command, args []string) error {
	opts, err := trainer.ParseOptionsFromFlags(cmd)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(opts.Seed))
	data, err := trainer.OpenDataset(opts.WorkingDirectory, opts.Dataset, rng)
	if err != nil {
		return err
	}

	m, err := model.New(model.DefaultConfig(opts.HiddenSize), rng)
	if err != nil {
		return err
	}

	inference, err := trainer.New(opts, m, data)
	if err != nil {
		return err
	}
	inference.WithOutput(cmd.OutOrStdout(), progressWriter())

	p := message.NewPrinter(language.English)
	fmt.Fprintln(cmd.ErrOrStderr(), p.Sprintf("training %d parameters on %d %s images", m.Params().Count(), data.Len(), data.Name()))

	var history *store.Store
	var run store.Run
	if !envconfig.NoHistory() {
		history = store.New(opts.WorkingDirectory)
		defer history.Close()

		run, err = history.BeginRun(store.Run{
			Dataset:         data.Name(),
			HiddenSize:      opts.HiddenSize,
			BatchSize:       opts.BatchSize,
			UpdatesPerEpoch: opts.UpdatesPerEpoch,
			MaxEpoch:        opts.MaxEpoch,
			LearningRate:    opts.LearningRate,
			Seed:            opts.Seed,
			DType:           opts.DType.String(),
		})
		if err != nil {
			slog.Warn("run history disabled", "error", err)
			history = nil
		} else {
			inference.WithRecorder(history, run.ID)
			slog.Info("training run started", "id", run.ID)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := inference.Run(ctx)

	if history != nil {
		status, checkpoint := store.StatusCompleted, opts.Checkpoint
		switch {
		case errors.Is(runErr, context.Canceled):
			status, checkpoint = store.StatusCancelled, ""
		case runErr != nil:
			status, checkpoint = store.StatusFailed, ""
		}
		if err := history.FinishRun(run.ID, status, checkpoint); err != nil {
			slog.Warn("failed to finish run", "id", run.ID, "error", err)
		}
	}

	return runErr
}

// newTrainCmd - Erstellt den train Command
func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the autoencoder",
		Args:  cobra.NoArgs,
		RunE:  TrainHandler,
	}
	trainer.RegisterFlags(cmd)
	return cmd
}
