package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackbox/convvae/store"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cli := NewCLI()
	cli.SetOut(&out)
	cli.SetErr(&errOut)
	cli.SetArgs(args)

	err := cli.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTrainSampleAndRuns(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAE_NOHISTORY", "")

	out, err := execute(t, "train",
		"--working_directory", dir,
		"--dataset", "synthetic",
		"--batch_size", "3",
		"--updates_per_epoch", "2",
		"--max_epoch", "1",
		"--hidden_size", "2",
		"--seed", "5",
		"--dtype", "F16",
	)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "-log p(x) <= "), out)

	entries, err := os.ReadDir(filepath.Join(dir, "img"))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
	assert.FileExists(t, filepath.Join(dir, "model.safetensors"))

	s := store.New(dir)
	runs, err := s.Runs()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusCompleted, runs[0].Status)
	assert.Equal(t, 1, runs[0].Epochs)
	require.NoError(t, s.Close())

	out, err = execute(t, "runs", "--working_directory", dir)
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].ID[:8])
	assert.Contains(t, out, "synthetic")
	assert.Contains(t, out, "completed")

	out, err = execute(t, "runs", "show", runs[0].ID[:8], "--working_directory", dir)
	require.NoError(t, err)
	assert.Contains(t, out, runs[0].ID)
	assert.Contains(t, out, "F16")
	assert.Contains(t, out, "EPOCH")

	out, err = execute(t, "sample", "--working_directory", dir, "--count", "2", "--format", "tiff", "--seed", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote 2 images")
	assert.FileExists(t, filepath.Join(dir, "samples", "1.tiff"))
}

func TestTrainNoHistory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("VAE_NOHISTORY", "1")

	_, err := execute(t, "train",
		"--working_directory", dir,
		"--dataset", "synthetic",
		"--batch_size", "2",
		"--updates_per_epoch", "1",
		"--max_epoch", "1",
		"--hidden_size", "2",
		"--checkpoint", "",
	)
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(dir, store.FileName))
	assert.NoFileExists(t, filepath.Join(dir, "model.safetensors"))
}

func TestTrainErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := execute(t, "train", "--working_directory", dir, "--dataset", "cifar")
	assert.Error(t, err)

	_, err = execute(t, "train", "--working_directory", dir, "--dataset", "mnist")
	assert.Error(t, err, "mnist files are not present")

	_, err = execute(t, "sample", "--working_directory", dir)
	assert.Error(t, err)

	_, err = execute(t, "runs", "show", "gibtsnicht", "--working_directory", dir)
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestUsageListsEnvironment(t *testing.T) {
	cli := NewCLI()
	train, _, err := cli.Find([]string{"train"})
	require.NoError(t, err)

	usage := train.UsageString()
	assert.Contains(t, usage, "VAE_WORKDIR")
	assert.Contains(t, usage, "--updates_per_epoch")
}
