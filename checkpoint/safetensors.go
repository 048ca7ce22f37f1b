// safetensors.go - Checkpoints im safetensors-Format
//
// Dieses Modul enthaelt:
// - Save: schreibt alle Parameter (F32, F16 oder BF16) plus Metadaten
// - Open: liest Header und Rohdaten einer Datei
// - File.Restore: kopiert gespeicherte Tensoren in eine Parametermenge
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"

	"github.com/d4l3k/go-bfloat16"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	"github.com/x448/float16"

	"github.com/blackbox/convvae/ml"
	"github.com/blackbox/convvae/ml/nn"
)

const metadataKey = "__metadata__"

var (
	ErrMissingTensor = errors.New("tensor missing from checkpoint")
	ErrShapeMismatch = errors.New("tensor shape mismatch")
)

// TensorInfo describes one tensor in the header.
type TensorInfo struct {
	DType       string `json:"dtype"`
	Shape       []int  `json:"shape"`
	DataOffsets [2]int `json:"data_offsets"`
}

func encode(dtype ml.DType, values []float64) ([]byte, error) {
	f32 := make([]float32, len(values))
	for i, v := range values {
		f32[i] = float32(v)
	}

	switch dtype {
	case ml.DTypeF32:
		b := make([]byte, 4*len(f32))
		for i, v := range f32 {
			binary.LittleEndian.PutUint32(b[4*i:], math.Float32bits(v))
		}
		return b, nil
	case ml.DTypeF16:
		b := make([]byte, 2*len(f32))
		for i, v := range f32 {
			binary.LittleEndian.PutUint16(b[2*i:], float16.Fromfloat32(v).Bits())
		}
		return b, nil
	case ml.DTypeBF16:
		return bfloat16.EncodeFloat32(f32), nil
	default:
		return nil, fmt.Errorf("unsupported dtype %v", dtype)
	}
}

func decode(dtype string, raw []byte) ([]float64, error) {
	var f32 []float32
	switch dtype {
	case "F32":
		f32 = make([]float32, len(raw)/4)
		for i := range f32 {
			f32[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
	case "F16":
		f32 = make([]float32, len(raw)/2)
		for i := range f32 {
			f32[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		}
	case "BF16":
		f32 = bfloat16.DecodeFloat32(raw)
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}

	out := make([]float64, len(f32))
	for i, v := range f32 {
		out[i] = float64(v)
	}
	return out, nil
}

// Save writes every tensor of p to path. The file is written next to path
// and renamed into place.
func Save(path string, p *nn.Params, dtype ml.DType, metadata map[string]string) error {
	header := orderedmap.New[string, any]()
	if len(metadata) > 0 {
		header.Set(metadataKey, metadata)
	}

	var data bytes.Buffer
	var encodeErr error
	p.Each(func(param *nn.Param) {
		if encodeErr != nil {
			return
		}
		b, err := encode(dtype, param.Floats())
		if err != nil {
			encodeErr = fmt.Errorf("%s: %w", param.Name, err)
			return
		}
		start := data.Len()
		data.Write(b)
		header.Set(param.Name, TensorInfo{
			DType:       dtype.String(),
			Shape:       param.Value.Shape().Clone(),
			DataOffsets: [2]int{start, data.Len()},
		})
	})
	if encodeErr != nil {
		return encodeErr
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	// tensor data starts 8-byte aligned
	if pad := len(hdr) % 8; pad != 0 {
		hdr = append(hdr, bytes.Repeat([]byte{' '}, 8-pad)...)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	if err := binary.Write(f, binary.LittleEndian, uint64(len(hdr))); err != nil {
		f.Close()
		return err
	}
	for _, b := range [][]byte{hdr, data.Bytes()} {
		if _, err := f.Write(b); err != nil {
			f.Close()
			return err
		}
	}
	if err := f.Close(); err != nil {
		return err
	}

	return os.Rename(f.Name(), path)
}

// File is a parsed checkpoint held in memory.
type File struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo

	data []byte
}

// Open reads and parses the checkpoint at path.
func Open(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(b) < 8 {
		return nil, fmt.Errorf("%s: file too small: %d bytes", path, len(b))
	}

	n := binary.LittleEndian.Uint64(b[:8])
	if n > uint64(len(b)-8) {
		return nil, fmt.Errorf("%s: header length %d exceeds file size %d", path, n, len(b))
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b[8:8+n], &raw); err != nil {
		return nil, fmt.Errorf("%s: parse header: %w", path, err)
	}

	f := File{
		Metadata: map[string]string{},
		Tensors:  make(map[string]TensorInfo, len(raw)),
		data:     b[8+n:],
	}
	for k, v := range raw {
		if k == metadataKey {
			if err := json.Unmarshal(v, &f.Metadata); err != nil {
				return nil, fmt.Errorf("%s: parse metadata: %w", path, err)
			}
			continue
		}

		var info TensorInfo
		if err := json.Unmarshal(v, &info); err != nil {
			return nil, fmt.Errorf("%s: parse tensor %s: %w", path, k, err)
		}
		if info.DataOffsets[0] < 0 || info.DataOffsets[0] > info.DataOffsets[1] || info.DataOffsets[1] > len(f.data) {
			return nil, fmt.Errorf("%s: tensor %s: offsets %v out of range", path, k, info.DataOffsets)
		}
		f.Tensors[k] = info
	}

	return &f, nil
}

// Floats decodes the named tensor.
func (f *File) Floats(name string) ([]float64, []int, error) {
	info, ok := f.Tensors[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingTensor, name)
	}

	values, err := decode(info.DType, f.data[info.DataOffsets[0]:info.DataOffsets[1]])
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}

	numel := 1
	for _, d := range info.Shape {
		numel *= d
	}
	if numel != len(values) {
		return nil, nil, fmt.Errorf("%s: %d values for shape %v", name, len(values), info.Shape)
	}
	return values, info.Shape, nil
}

// Restore overwrites every tensor of p with its stored value. Shapes must
// match exactly.
func (f *File) Restore(p *nn.Params) error {
	var err error
	p.Each(func(param *nn.Param) {
		if err != nil {
			return
		}

		values, shape, ferr := f.Floats(param.Name)
		if ferr != nil {
			err = ferr
			return
		}
		if !slices.Equal(shape, []int(param.Value.Shape())) {
			err = fmt.Errorf("%w: %s is %v, checkpoint has %v", ErrShapeMismatch, param.Name, param.Value.Shape(), shape)
			return
		}
		copy(param.Floats(), values)
	})
	return err
}
