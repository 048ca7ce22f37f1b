// inference.go - Trainingsschleife des VAE
//
// Dieses Modul enthaelt:
// - Inference: Zustandsmaschine initializing -> training -> terminal
// - Init/Update/Epoch/Run: Trainingsgraph und Adam-Solver aufbauen, Schritte, Epochen
// - Render: dekodierte Prior-Samples als Bilder speichern
package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
	"gorgonia.org/gorgonia"
	"gorgonia.org/tensor"

	"github.com/blackbox/convvae/dataset"
	"github.com/blackbox/convvae/imageio"
	"github.com/blackbox/convvae/logutil"
	"github.com/blackbox/convvae/ml"
	"github.com/blackbox/convvae/model"
	"github.com/blackbox/convvae/model/vae"
	"github.com/blackbox/convvae/progress"
	"github.com/blackbox/convvae/store"
)

type State int

const (
	StateInitializing State = iota
	StateTraining
	StateTerminal
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateTraining:
		return "training"
	case StateTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

var (
	ErrNonFiniteLoss = errors.New("loss is not finite")
	ErrState         = errors.New("invalid trainer state")
)

// Recorder persists per-epoch results. *store.Store implements it.
type Recorder interface {
	RecordEpoch(runID string, e store.Epoch) error
}

// EpochResult summarises one epoch.
type EpochResult struct {
	Epoch int
	// Loss is the mean loss over the epoch's updates.
	Loss     float64
	Stddev   float64
	Duration time.Duration
	Images   []string
}

// Inference trains a model on a dataset.
type Inference struct {
	opts  Options
	model model.Model
	data  dataset.Provider
	rng   *rand.Rand
	// seed is the resolved seed of rng, also when Options.Seed was 0
	seed int64

	// training graph, built by Init
	machine *ml.Machine
	input   *gorgonia.Node
	loss    *gorgonia.Value
	solver  *gorgonia.AdamSolver
	steps   int

	state State
	epoch int

	stdout io.Writer
	// stderr receives the progress bar; nil disables it
	stderr io.Writer

	recorder Recorder
	runID    string
}

// New checks that the model and options fit together. The training graph is
// built by Init.
func New(opts Options, m model.Model, data dataset.Provider) (*Inference, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if enc, dec := m.Encoder().HiddenSize(), m.Decoder().HiddenSize(); enc != dec {
		return nil, fmt.Errorf("%w: encoder %d, decoder %d", model.ErrHiddenSizeMismatch, enc, dec)
	}
	if opts.BatchSize > data.Len() {
		return nil, fmt.Errorf("batch size %d exceeds %s size %d", opts.BatchSize, data.Name(), data.Len())
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	return &Inference{
		opts:   opts,
		model:  m,
		data:   data,
		rng:    rand.New(rand.NewSource(seed)),
		seed:   seed,
		state:  StateInitializing,
		stdout: io.Discard,
	}, nil
}

// WithOutput sets where the loss report and the progress bar go.
func (i *Inference) WithOutput(stdout, stderr io.Writer) *Inference {
	i.stdout = stdout
	i.stderr = stderr
	return i
}

// WithRecorder records every finished epoch under runID.
func (i *Inference) WithRecorder(r Recorder, runID string) *Inference {
	i.recorder = r
	i.runID = runID
	return i
}

func (i *Inference) State() State { return i.state }

// Steps returns the number of optimizer updates taken so far.
func (i *Inference) Steps() int {
	return i.steps
}

// Seed returns the seed of the training random source.
func (i *Inference) Seed() int64 {
	return i.seed
}

func (i *Inference) Model() model.Model { return i.model }

// Init builds the training graph for BatchSize images, its gradients and
// the Adam solver over all trainable parameters.
func (i *Inference) Init() error {
	if i.state != StateInitializing {
		return fmt.Errorf("%w: init in state %v", ErrState, i.state)
	}

	ctx := ml.NewContext(ml.ModeTrain, i.rng)
	i.input = ctx.Input("x", i.opts.BatchSize, dataset.Pixels)
	loss := vae.NegativeELBO(ctx, i.model.Decoder(), i.model.Encoder(), i.input)
	i.loss = ctx.Read(loss)

	machine, err := ctx.Compile(loss)
	if err != nil {
		return fmt.Errorf("build training graph: %w", err)
	}
	i.machine = machine
	i.solver = gorgonia.NewAdamSolver(
		gorgonia.WithLearnRate(i.opts.LearningRate),
		gorgonia.WithBeta1(0.9),
		gorgonia.WithBeta2(0.999),
		gorgonia.WithEps(1.0),
	)
	i.state = StateTraining

	slog.Debug("trainer initialized", "parameters", i.model.Params().Count(), "dataset", i.data.Name(), "seed", i.seed)
	return nil
}

// Update draws one batch, takes one optimizer step and returns the loss.
func (i *Inference) Update() (float64, error) {
	if i.state != StateTraining {
		return 0, fmt.Errorf("%w: update in state %v", ErrState, i.state)
	}

	x, err := i.data.Sample(i.opts.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("sample batch: %w", err)
	}
	if err := gorgonia.Let(i.input, x); err != nil {
		return 0, fmt.Errorf("bind batch: %w", err)
	}

	defer i.machine.Reset()
	if err := i.machine.Run(); err != nil {
		return 0, fmt.Errorf("step %d: %w", i.steps, err)
	}

	loss := ml.Scalar(*i.loss)
	if !ml.IsFinite(loss) {
		return 0, fmt.Errorf("%w: step %d: %v", ErrNonFiniteLoss, i.steps, loss)
	}

	if err := i.solver.Step(i.machine.Gradients()); err != nil {
		return 0, fmt.Errorf("step %d: %w", i.steps, err)
	}
	i.steps++

	logutil.Trace("update", "step", i.steps, "loss", loss)
	return loss, nil
}

// Epoch runs UpdatesPerEpoch updates, reports the mean loss and renders
// one image per batch element.
func (i *Inference) Epoch(ctx context.Context) (EpochResult, error) {
	start := time.Now()
	res := EpochResult{Epoch: i.epoch}

	var p *progress.Progress
	var bar *progress.Bar
	if i.stderr != nil {
		p = progress.NewProgress(i.stderr)
		bar = progress.NewBar(fmt.Sprintf("epoch #%d", i.epoch), i.opts.UpdatesPerEpoch)
		p.Add("", bar)
		defer p.Stop()
	}

	losses := make([]float64, 0, i.opts.UpdatesPerEpoch)
	for t := 0; t < i.opts.UpdatesPerEpoch; t++ {
		if err := ctx.Err(); err != nil {
			if p != nil {
				p.StopAndClear()
			}
			return res, err
		}

		loss, err := i.Update()
		if err != nil {
			if p != nil {
				p.StopAndClear()
			}
			return res, err
		}
		losses = append(losses, loss)

		if bar != nil {
			bar.Set(t + 1)
		}
	}
	if p != nil {
		p.Stop()
	}

	res.Loss = stat.Mean(losses, nil)
	if len(losses) > 1 {
		res.Stddev = stat.StdDev(losses, nil)
	}
	fmt.Fprintf(i.stdout, "-log p(x) <= %f\n", res.Loss)

	images, err := i.Render(ctx)
	if err != nil {
		return res, fmt.Errorf("render epoch %d: %w", i.epoch, err)
	}
	res.Images = images
	res.Duration = time.Since(start)

	if i.recorder != nil {
		if err := i.recorder.RecordEpoch(i.runID, store.Epoch{
			Epoch:    res.Epoch,
			Loss:     res.Loss,
			Stddev:   res.Stddev,
			Duration: res.Duration,
		}); err != nil {
			slog.Warn("failed to record epoch", "epoch", res.Epoch, "error", err)
		}
	}

	slog.Debug("epoch finished", "epoch", res.Epoch, "loss", res.Loss, "stddev", res.Stddev, "duration", res.Duration)
	i.epoch++
	return res, nil
}

// Run initialises if needed, trains for MaxEpoch epochs and writes the
// final checkpoint.
func (i *Inference) Run(ctx context.Context) error {
	switch i.state {
	case StateInitializing:
		if err := i.Init(); err != nil {
			return err
		}
	case StateTerminal:
		return fmt.Errorf("%w: run in state %v", ErrState, i.state)
	}

	for i.epoch < i.opts.MaxEpoch {
		if _, err := i.Epoch(ctx); err != nil {
			return err
		}
	}
	i.state = StateTerminal
	if err := i.machine.Close(); err != nil {
		slog.Debug("failed to release training graph", "error", err)
	}

	if i.opts.Checkpoint != "" {
		if err := i.SaveCheckpoint(i.opts.Checkpoint); err != nil {
			return err
		}
		slog.Info("checkpoint written", "path", i.opts.Checkpoint, "dtype", i.opts.DType)
	}
	return nil
}

// Render decodes BatchSize prior samples and writes them to ImageDir.
func (i *Inference) Render(ctx context.Context) ([]string, error) {
	probs, err := decodePrior(i.model, ml.NewContext(ml.ModeSample, i.rng), i.opts.BatchSize)
	if err != nil {
		return nil, err
	}
	if slog.Default().Enabled(ctx, logutil.LevelTrace) {
		logutil.Trace("rendered probabilities", "epoch", i.epoch, "values", ml.Dump(probs, ml.DumpWithPrecision(3), ml.DumpWithEdgeItems(2)))
	}
	return imageio.WriteBatch(ctx, i.opts.ImageDir(), probs, imageio.Options{
		Format:  i.opts.Format,
		Size:    dataset.ImageSize,
		Threads: i.opts.Threads,
	})
}

// decodePrior runs the decoder once on batch prior samples and returns a
// copy of the probabilities [batch, Pixels].
func decodePrior(m model.Model, mctx *ml.Context, batch int) (*tensor.Dense, error) {
	out := mctx.Read(m.Decoder().SampleLatent(mctx, batch))

	machine, err := mctx.Compile(nil)
	if err != nil {
		return nil, err
	}
	defer machine.Close()

	if err := machine.Run(); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return ml.New(slices.Clone(ml.Floats(*out)), batch, dataset.Pixels), nil
}
