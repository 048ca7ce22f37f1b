// types.go - Datentypen und Konstanten fuer ML-Graphen
// Dieses Modul definiert grundlegende Typen wie DType, Mode und Padding.
package ml

import (
	"fmt"
	"strings"
)

// DType represents the storage type of tensor elements when they leave
// memory (checkpoints). In memory every tensor is float64.
type DType int

const (
	DTypeOther DType = iota
	DTypeF32
	DTypeF16
	DTypeBF16
)

// String gibt den Safetensors-Namen des Typs zurueck
func (d DType) String() string {
	switch d {
	case DTypeF32:
		return "F32"
	case DTypeF16:
		return "F16"
	case DTypeBF16:
		return "BF16"
	default:
		return "unknown"
	}
}

// Size gibt die Byte-Groesse eines Elements zurueck
func (d DType) Size() int {
	switch d {
	case DTypeF32:
		return 4
	case DTypeF16, DTypeBF16:
		return 2
	default:
		return 0
	}
}

// ParseDType parst einen DType-Namen (case-insensitive)
func ParseDType(s string) (DType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "F32", "FP32", "FLOAT32":
		return DTypeF32, nil
	case "F16", "FP16", "FLOAT16":
		return DTypeF16, nil
	case "BF16", "BFLOAT16":
		return DTypeBF16, nil
	default:
		return DTypeOther, fmt.Errorf("unsupported dtype %q", s)
	}
}

// Mode selects how mode-dependent ops (batch norm, dropout) behave.
type Mode int

const (
	// ModeTrain uses batch statistics, updates running statistics and
	// applies dropout.
	ModeTrain Mode = iota
	// ModeSample uses batch statistics without touching running
	// statistics. Dropout is disabled.
	ModeSample
	// ModeInfer uses running statistics. Dropout is disabled.
	ModeInfer
)

func (m Mode) String() string {
	switch m {
	case ModeTrain:
		return "train"
	case ModeSample:
		return "sample"
	case ModeInfer:
		return "infer"
	default:
		return "unknown"
	}
}

// Padding specifies the spatial padding scheme of convolutions.
type Padding int

const (
	// PaddingSame pads so that the output is ceil(in/stride).
	PaddingSame Padding = iota
	// PaddingValid applies no padding.
	PaddingValid
)

func (p Padding) String() string {
	if p == PaddingValid {
		return "VALID"
	}
	return "SAME"
}
