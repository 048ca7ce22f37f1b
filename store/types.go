// Modul: types.go
// Beschreibung: Datentypen fuer die Trainingshistorie.
// Enthaelt Run, Epoch und RunStatus.

package store

import "time"

type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusCompleted RunStatus = "completed"
	StatusFailed    RunStatus = "failed"
	StatusCancelled RunStatus = "cancelled"
)

// Run is one invocation of the training loop.
type Run struct {
	ID              string
	Dataset         string
	HiddenSize      int
	BatchSize       int
	UpdatesPerEpoch int
	MaxEpoch        int
	LearningRate    float64
	Seed            int64
	DType           string
	Status          RunStatus
	Checkpoint      string
	CreatedAt       time.Time
	FinishedAt      *time.Time

	// filled by listing queries
	Epochs   int
	LastLoss float64
}

// Epoch is the loss summary of one finished epoch.
type Epoch struct {
	Epoch     int
	Loss      float64
	Stddev    float64
	Duration  time.Duration
	CreatedAt time.Time
}
