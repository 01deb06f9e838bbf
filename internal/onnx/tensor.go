package onnx

import (
	"fmt"
	"strings"
)

// TensorDType names the element types the ONNX bridge supports.
type TensorDType string

const (
	DTypeFloat32 TensorDType = "float32"
	DTypeInt64   TensorDType = "int64"
)

// Tensor is a dense row-major tensor holding either float32 or int64
// elements, the only two dtypes crossing the graph boundary here.
type Tensor struct {
	dtype TensorDType
	shape []int64
	data  any
}

// NewTensor creates a tensor from data and shape. The dtype is inferred
// from the element type.
func NewTensor[T ~int64 | ~float32](data []T, shape []int64) (*Tensor, error) {
	count, err := elementCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != count {
		return nil, fmt.Errorf("tensor data length %d does not match shape %v (%d elements)", len(data), shape, count)
	}

	t := &Tensor{shape: append([]int64(nil), shape...)}

	switch any(data).(type) {
	case []float32:
		t.dtype = DTypeFloat32
		converted := make([]float32, len(data))
		for i, v := range data {
			converted[i] = float32(v)
		}
		t.data = converted
	case []int64:
		t.dtype = DTypeInt64
		converted := make([]int64, len(data))
		for i, v := range data {
			converted[i] = int64(v)
		}
		t.data = converted
	default:
		return nil, fmt.Errorf("unsupported tensor element type %T", data)
	}

	return t, nil
}

// NewZeroTensor creates a zero-filled tensor from a manifest dtype string
// and shape. Symbolic (non-numeric) dims resolve to zero, which is how an
// empty incremental-decode cache is fed on the first step.
func NewZeroTensor(dtype string, shape []any) (*Tensor, error) {
	canonical, err := canonicalDType(dtype)
	if err != nil {
		return nil, err
	}

	resolved := resolveShape(shape)

	count, err := elementCount(resolved)
	if err != nil {
		return nil, err
	}

	switch canonical {
	case DTypeFloat32:
		return NewTensor(make([]float32, count), resolved)
	case DTypeInt64:
		return NewTensor(make([]int64, count), resolved)
	default:
		return nil, fmt.Errorf("unsupported tensor dtype %q", canonical)
	}
}

// DType returns the element type.
func (t *Tensor) DType() TensorDType {
	return t.dtype
}

// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() []int64 {
	return append([]int64(nil), t.shape...)
}

// Float32s returns the live float32 storage, or nil for other dtypes. The
// slice must be treated as read-only.
func (t *Tensor) Float32s() []float32 {
	data, _ := t.data.([]float32)
	return data
}

// Int64s returns the live int64 storage, or nil for other dtypes. The slice
// must be treated as read-only.
func (t *Tensor) Int64s() []int64 {
	data, _ := t.data.([]int64)
	return data
}

// Len returns the number of elements.
func (t *Tensor) Len() int {
	switch data := t.data.(type) {
	case []float32:
		return len(data)
	case []int64:
		return len(data)
	default:
		return 0
	}
}

func canonicalDType(dtype string) (TensorDType, error) {
	switch strings.ToLower(strings.TrimSpace(dtype)) {
	case "float", "float32", "f32":
		return DTypeFloat32, nil
	case "int64", "i64", "long":
		return DTypeInt64, nil
	default:
		return "", fmt.Errorf("unknown dtype %q", dtype)
	}
}

// resolveShape maps manifest shape entries to concrete dims. Numeric
// entries pass through; symbolic dims (sequence lengths and the like)
// become zero.
func resolveShape(shape []any) []int64 {
	resolved := make([]int64, len(shape))
	for i, dim := range shape {
		switch v := dim.(type) {
		case float64:
			resolved[i] = int64(v)
		case int:
			resolved[i] = int64(v)
		case int64:
			resolved[i] = v
		default:
			resolved[i] = 0
		}
	}

	return resolved
}

func elementCount(shape []int64) (int, error) {
	count := 1
	for _, dim := range shape {
		if dim < 0 {
			return 0, fmt.Errorf("negative dim in shape %v", shape)
		}

		count *= int(dim)
	}

	return count, nil
}
