package store

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s := New(t.TempDir())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := newStore(t)

	run, err := s.BeginRun(Run{
		Dataset:         "mnist",
		HiddenSize:      10,
		BatchSize:       128,
		UpdatesPerEpoch: 1000,
		MaxEpoch:        100,
		LearningRate:    1e-2,
		Seed:            7,
		DType:           "F16",
	})
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, StatusRunning, run.Status)

	for i, loss := range []float64{210.5, 160.25} {
		require.NoError(t, s.RecordEpoch(run.ID, Epoch{Epoch: i, Loss: loss, Stddev: 3, Duration: 1500 * time.Millisecond}))
	}
	require.NoError(t, s.FinishRun(run.ID, StatusCompleted, "/tmp/model.safetensors"))

	got, err := s.Run(run.ID[:8])
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, "mnist", got.Dataset)
	assert.Equal(t, "F16", got.DType)
	assert.Equal(t, int64(7), got.Seed)
	assert.Equal(t, StatusCompleted, got.Status)
	assert.Equal(t, "/tmp/model.safetensors", got.Checkpoint)
	assert.Equal(t, 2, got.Epochs)
	assert.InDelta(t, 160.25, got.LastLoss, 1e-9)
	require.NotNil(t, got.FinishedAt)

	epochs, err := s.Epochs(run.ID)
	require.NoError(t, err)
	require.Len(t, epochs, 2)
	assert.Equal(t, 0, epochs[0].Epoch)
	assert.InDelta(t, 210.5, epochs[0].Loss, 1e-9)
	assert.Equal(t, 1500*time.Millisecond, epochs[1].Duration)
}

func TestRecordEpochReplaces(t *testing.T) {
	s := newStore(t)
	run, err := s.BeginRun(Run{HiddenSize: 2, BatchSize: 1, UpdatesPerEpoch: 1, MaxEpoch: 1, LearningRate: 1})
	require.NoError(t, err)

	require.NoError(t, s.RecordEpoch(run.ID, Epoch{Epoch: 0, Loss: 1}))
	require.NoError(t, s.RecordEpoch(run.ID, Epoch{Epoch: 0, Loss: 2}))

	epochs, err := s.Epochs(run.ID)
	require.NoError(t, err)
	require.Len(t, epochs, 1)
	assert.InDelta(t, 2, epochs[0].Loss, 1e-9)
}

func TestRunsNewestFirst(t *testing.T) {
	s := newStore(t)

	var ids []string
	for j := 0; j < 3; j++ {
		run, err := s.BeginRun(Run{HiddenSize: 2, BatchSize: 1, UpdatesPerEpoch: 1, MaxEpoch: 1, LearningRate: 1})
		require.NoError(t, err)
		ids = append(ids, run.ID)
	}

	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, ids[2], runs[0].ID)
	assert.Equal(t, ids[0], runs[2].ID)
	assert.Nil(t, runs[0].FinishedAt)
}

func TestRunNotFound(t *testing.T) {
	s := newStore(t)

	_, err := s.Run("gibtsnicht")
	assert.ErrorIs(t, err, ErrRunNotFound)
	_, err = s.Run("")
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.ErrorIs(t, s.FinishRun("gibtsnicht", StatusFailed, ""), ErrRunNotFound)
}

func TestSchemaVersion(t *testing.T) {
	s := newStore(t)
	_, err := s.Runs()
	require.NoError(t, err)

	version, err := s.db.getSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, currentSchemaVersion, version)
}

func TestNewerSchemaRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	conn, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = conn.Exec(`
		CREATE TABLE meta (id INTEGER PRIMARY KEY CHECK (id = 1), schema_version INTEGER NOT NULL);
		INSERT INTO meta (id, schema_version) VALUES (1, 99);
	`)
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	s := &Store{DBPath: path}
	t.Cleanup(func() { s.Close() })

	_, err = s.Runs()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "newer than supported")
}
