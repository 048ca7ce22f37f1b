// Package model - Model-Interface und Initialisierung
//
// Dieses Paket definiert die Schnittstellen von Encoder und Decoder und
// verwaltet die registrierten Architekturen.
//
// Hauptkomponenten:
// - Model: Interface für alle Modell-Architekturen
// - Config: Hyperparameter, serialisierbar als Checkpoint-Metadaten
// - Register: Registriert Modell-Konstruktoren
// - New: Erstellt neue Model-Instanzen

package model

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	"gorgonia.org/gorgonia"

	"github.com/blackbox/convvae/ml"
	"github.com/blackbox/convvae/ml/nn"
)

// Fehler-Definitionen
var (
	ErrUnsupportedModel   = errors.New("model not supported")
	ErrHiddenSizeMismatch = errors.New("encoder and decoder hidden sizes differ")
)

// Encoder maps images to a Gaussian over the latent space.
type Encoder interface {
	HiddenSize() int
	// Network returns mean and stddev, each [B, HiddenSize].
	Network(ctx *ml.Context, x *gorgonia.Node) (mean, stddev *gorgonia.Node)
	// Sample draws a reparameterised latent sample for x and remembers the
	// distribution it was drawn from.
	Sample(ctx *ml.Context, x *gorgonia.Node) *gorgonia.Node
	// Distribution returns mean and stddev of the last Sample call.
	Distribution() (mean, stddev *gorgonia.Node)
}

// Decoder maps latent vectors to per-pixel Bernoulli probabilities.
type Decoder interface {
	HiddenSize() int
	Network(ctx *ml.Context, z *gorgonia.Node) *gorgonia.Node
	LogLikelihood(ctx *ml.Context, x, z *gorgonia.Node) *gorgonia.Node
	// SamplePrior draws batch latent vectors from N(0, I), redrawn on
	// every run of the graph.
	SamplePrior(ctx *ml.Context, batch int) *gorgonia.Node
	// SampleLatent decodes batch draws from the prior.
	SampleLatent(ctx *ml.Context, batch int) *gorgonia.Node
}

// Model definiert das Interface für spezifische Modell-Architekturen
type Model interface {
	Config() Config
	Params() *nn.Params
	Encoder() Encoder
	Decoder() Decoder
}

// Validator ist ein optionales Interface für Post-Init-Validierung
type Validator interface {
	Validate() error
}

// Config enthält die Modell-Konfiguration
type Config struct {
	Architecture string
	HiddenSize   int
	// KeepProb is the dropout keep probability in the encoder.
	KeepProb float64
	Norm     nn.NormOptions
}

// DefaultConfig returns the convolutional VAE configuration.
func DefaultConfig(hiddenSize int) Config {
	return Config{
		Architecture: "convvae",
		HiddenSize:   hiddenSize,
		KeepProb:     0.9,
		Norm: nn.NormOptions{
			Epsilon: 0.001,
			Rate:    0.0003,
			Scale:   true,
		},
	}
}

// Metadata keys written to checkpoints.
const (
	keyArchitecture = "general.architecture"
	keyHiddenSize   = "vae.hidden_size"
	keyKeepProb     = "vae.keep_prob"
	keyNormEpsilon  = "vae.norm.epsilon"
	keyNormRate     = "vae.norm.rate"
	keyNormScale    = "vae.norm.scale"
)

// Metadata flattens c into string key/value pairs.
func (c Config) Metadata() map[string]string {
	return map[string]string{
		keyArchitecture: c.Architecture,
		keyHiddenSize:   strconv.Itoa(c.HiddenSize),
		keyKeepProb:     strconv.FormatFloat(c.KeepProb, 'g', -1, 64),
		keyNormEpsilon:  strconv.FormatFloat(c.Norm.Epsilon, 'g', -1, 64),
		keyNormRate:     strconv.FormatFloat(c.Norm.Rate, 'g', -1, 64),
		keyNormScale:    strconv.FormatBool(c.Norm.Scale),
	}
}

// ConfigFromMetadata is the inverse of Config.Metadata. Missing keys keep
// their DefaultConfig values.
func ConfigFromMetadata(kv map[string]string) (Config, error) {
	hidden, err := strconv.Atoi(kv[keyHiddenSize])
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", keyHiddenSize, err)
	}

	c := DefaultConfig(hidden)
	if s, ok := kv[keyArchitecture]; ok {
		c.Architecture = s
	}

	floatsByKey := map[string]*float64{
		keyKeepProb:    &c.KeepProb,
		keyNormEpsilon: &c.Norm.Epsilon,
		keyNormRate:    &c.Norm.Rate,
	}
	for k, dst := range floatsByKey {
		s, ok := kv[k]
		if !ok {
			continue
		}
		if *dst, err = strconv.ParseFloat(s, 64); err != nil {
			return Config{}, fmt.Errorf("%s: %w", k, err)
		}
	}

	if s, ok := kv[keyNormScale]; ok {
		if c.Norm.Scale, err = strconv.ParseBool(s); err != nil {
			return Config{}, fmt.Errorf("%s: %w", keyNormScale, err)
		}
	}
	return c, nil
}

// models speichert registrierte Modell-Konstruktoren
var models = make(map[string]func(Config, *rand.Rand) (Model, error))

// Register registriert einen Modell-Konstruktor für eine Architektur
func Register(name string, f func(Config, *rand.Rand) (Model, error)) {
	if _, ok := models[name]; ok {
		panic("model: model already registered")
	}

	models[name] = f
}

// New initialisiert eine neue Model-Instanz mit zufaelligen Gewichten
func New(c Config, rng *rand.Rand) (Model, error) {
	f, ok := models[c.Architecture]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedModel, c.Architecture)
	}

	m, err := f(c, rng)
	if err != nil {
		return nil, err
	}

	if validator, ok := m.(Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, err
		}
	}

	return m, nil
}
