package checkpoint

import (
	"encoding/binary"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackbox/convvae/ml"
	"github.com/blackbox/convvae/ml/nn"
)

func params(seed int64) *nn.Params {
	rng := rand.New(rand.NewSource(seed))
	p := nn.NewParams()
	p.Add("a.weight", ml.RandUniform(rng, -2, 2, 3, 4), true)
	p.Add("a.bias", ml.RandUniform(rng, -2, 2, 4), true)
	p.Add("a.running_var", ml.RandUniform(rng, 0, 3, 4), false)
	return p
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		dtype ml.DType
		delta float64
	}{
		{ml.DTypeF32, 1e-6},
		{ml.DTypeF16, 2e-3},
		{ml.DTypeBF16, 3e-2},
	}

	for _, tt := range cases {
		t.Run(tt.dtype.String(), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "model.safetensors")
			src := params(1)
			meta := map[string]string{"vae.hidden_size": "4"}
			require.NoError(t, Save(path, src, tt.dtype, meta))

			f, err := Open(path)
			require.NoError(t, err)
			if diff := cmp.Diff(meta, f.Metadata); diff != "" {
				t.Errorf("metadata mismatch (-want +got):\n%s", diff)
			}
			assert.Len(t, f.Tensors, 3)
			assert.Equal(t, tt.dtype.String(), f.Tensors["a.weight"].DType)

			dst := params(2)
			require.NoError(t, f.Restore(dst))

			src.Each(func(want *nn.Param) {
				got, ok := dst.Get(want.Name)
				require.True(t, ok)
				assert.InDeltaSlice(t, want.Floats(), got.Floats(), tt.delta, want.Name)
			})
		})
	}
}

func TestHeaderAligned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.safetensors")
	require.NoError(t, Save(path, params(1), ml.DTypeF32, nil))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	n := binary.LittleEndian.Uint64(b[:8])
	assert.Zero(t, n%8)
	// 12 + 4 + 4 float32 values
	assert.Equal(t, int(8+n)+20*4, len(b))
}

func TestRestoreErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.safetensors")
	require.NoError(t, Save(path, params(1), ml.DTypeF32, nil))
	f, err := Open(path)
	require.NoError(t, err)

	missing := nn.NewParams()
	missing.Add("b.weight", ml.Zeros(2), true)
	assert.ErrorIs(t, f.Restore(missing), ErrMissingTensor)

	wrongShape := nn.NewParams()
	wrongShape.Add("a.weight", ml.Zeros(4, 3), true)
	assert.ErrorIs(t, f.Restore(wrongShape), ErrShapeMismatch)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "fehlt.safetensors"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	short := filepath.Join(dir, "short")
	require.NoError(t, os.WriteFile(short, []byte{1, 2}, 0o644))
	_, err = Open(short)
	assert.Error(t, err)

	huge := filepath.Join(dir, "huge")
	b := make([]byte, 12)
	binary.LittleEndian.PutUint64(b, 1<<40)
	require.NoError(t, os.WriteFile(huge, b, 0o644))
	_, err = Open(huge)
	assert.Error(t, err)
}

func TestSaveUnsupportedDType(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.safetensors")
	assert.Error(t, Save(path, params(1), ml.DTypeOther, nil))
	_, err := os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
