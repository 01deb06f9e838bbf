// Package safetensors reads the safetensors weight files the model
// download pins, for inspection and verification tooling. The format is an
// 8-byte little-endian header length, a JSON header mapping tensor names to
// dtype, shape, and data offsets, then the raw tensor bytes.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"
)

const (
	dtypeF32  = "F32"
	dtypeF16  = "F16"
	dtypeBF16 = "BF16"
)

// TensorInfo describes one tensor as declared in the file header.
type TensorInfo struct {
	Name  string
	DType string
	Shape []int64
	Bytes int
}

// File is a parsed safetensors file. Tensor data stays in the raw byte
// buffer until requested.
type File struct {
	raw     []byte
	entries map[string]entry
	names   []string
}

type entry struct {
	dtype string
	shape []int64
	start int
	end   int
}

type headerEntry struct {
	DType   string  `json:"dtype"`
	Shape   []int64 `json:"shape"`
	Offsets [2]int  `json:"data_offsets"`
}

// Open reads and parses a safetensors file from disk.
func Open(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("safetensors: read %s: %w", path, err)
	}

	return FromBytes(data)
}

// FromBytes parses a safetensors payload.
func FromBytes(data []byte) (*File, error) {
	headerEnd, header, err := decodeHeader(data)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(header))
	for name := range header {
		if name == "__metadata__" {
			continue
		}

		names = append(names, name)
	}

	sort.Strings(names)

	entries := make(map[string]entry, len(names))
	for _, name := range names {
		var he headerEntry
		if err := json.Unmarshal(header[name], &he); err != nil {
			return nil, fmt.Errorf("safetensors: decode header entry %q: %w", name, err)
		}

		if err := validateEntry(name, he); err != nil {
			return nil, err
		}

		start := headerEnd + he.Offsets[0]
		end := headerEnd + he.Offsets[1]
		if end < start || end > len(data) {
			return nil, fmt.Errorf("safetensors: tensor %q data [%d:%d] exceeds file size %d", name, start, end, len(data))
		}

		count, err := elementCount(he.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		width, err := dtypeBytes(he.DType)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		if end-start < int(count)*width {
			return nil, fmt.Errorf("safetensors: tensor %q needs %d bytes but data has %d", name, int(count)*width, end-start)
		}

		entries[name] = entry{
			dtype: strings.ToUpper(he.DType),
			shape: append([]int64(nil), he.Shape...),
			start: start,
			end:   end,
		}
	}

	if len(entries) == 0 {
		return nil, errors.New("safetensors: no tensors found")
	}

	return &File{raw: data, entries: entries, names: names}, nil
}

// Tensors lists every tensor in the file, sorted by name.
func (f *File) Tensors() []TensorInfo {
	out := make([]TensorInfo, 0, len(f.names))
	for _, name := range f.names {
		e := f.entries[name]
		out = append(out, TensorInfo{
			Name:  name,
			DType: e.dtype,
			Shape: append([]int64(nil), e.shape...),
			Bytes: e.end - e.start,
		})
	}

	return out
}

// Has reports whether the file declares a tensor with the given name.
func (f *File) Has(name string) bool {
	_, ok := f.entries[name]
	return ok
}

// Float32 decodes a tensor's data to float32, converting from F16 or BF16
// as needed, and returns it together with the tensor shape.
func (f *File) Float32(name string) ([]float32, []int64, error) {
	e, ok := f.entries[name]
	if !ok {
		return nil, nil, fmt.Errorf("safetensors: tensor %q not found", name)
	}

	data, err := decodeTensorData(f.raw[e.start:e.end], e.dtype, e.shape)
	if err != nil {
		return nil, nil, fmt.Errorf("safetensors: tensor %q decode: %w", name, err)
	}

	return data, append([]int64(nil), e.shape...), nil
}

func decodeHeader(data []byte) (int, map[string]json.RawMessage, error) {
	if len(data) < 8 {
		return 0, nil, fmt.Errorf("safetensors: file too short (%d bytes)", len(data))
	}

	headerLen := binary.LittleEndian.Uint64(data[:8])

	headerEnd := 8 + int(headerLen)
	if headerEnd > len(data) {
		return 0, nil, fmt.Errorf("safetensors: header length %d exceeds file size %d", headerLen, len(data))
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:headerEnd], &header); err != nil {
		return 0, nil, fmt.Errorf("safetensors: parse header: %w", err)
	}

	return headerEnd, header, nil
}

func validateEntry(name string, he headerEntry) error {
	switch strings.ToUpper(he.DType) {
	case dtypeF32, dtypeF16, dtypeBF16:
	default:
		return fmt.Errorf("safetensors: tensor %q has unsupported dtype %q", name, he.DType)
	}

	if he.Offsets[0] < 0 || he.Offsets[1] < he.Offsets[0] {
		return fmt.Errorf("safetensors: tensor %q has invalid data offsets %v", name, he.Offsets)
	}

	for _, d := range he.Shape {
		if d < 0 {
			return fmt.Errorf("safetensors: tensor %q has negative shape dimension in %v", name, he.Shape)
		}
	}

	return nil
}

func elementCount(shape []int64) (int64, error) {
	total := int64(1)
	for _, d := range shape {
		if d == 0 {
			return 0, nil
		}

		if total > math.MaxInt64/d {
			return 0, fmt.Errorf("shape %v overflows element count", shape)
		}

		total *= d
	}

	return total, nil
}

func dtypeBytes(dtype string) (int, error) {
	switch strings.ToUpper(dtype) {
	case dtypeF32:
		return 4, nil
	case dtypeF16, dtypeBF16:
		return 2, nil
	default:
		return 0, fmt.Errorf("unsupported dtype %q", dtype)
	}
}

func decodeTensorData(raw []byte, dtype string, shape []int64) ([]float32, error) {
	count, err := elementCount(shape)
	if err != nil {
		return nil, err
	}

	n := int(count)
	out := make([]float32, n)

	switch dtype {
	case dtypeF32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case dtypeF16:
		for i := range out {
			out[i] = float16ToFloat32(binary.LittleEndian.Uint16(raw[i*2:]))
		}
	case dtypeBF16:
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(raw[i*2:])) << 16)
		}
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}

	return out, nil
}

func float16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h & 0x03ff)

	var bits uint32

	switch exp {
	case 0:
		if frac == 0 {
			bits = sign << 31
		} else {
			// Subnormal: normalize.
			e := int32(-14)

			for (frac & 0x0400) == 0 {
				frac <<= 1
				e--
			}

			frac &= 0x03ff
			exp32 := uint32(e + 127)
			bits = (sign << 31) | (exp32 << 23) | (frac << 13)
		}
	case 0x1f:
		// Inf / NaN.
		bits = (sign << 31) | 0x7f800000 | (frac << 13)
	default:
		exp32 := exp + (127 - 15)
		bits = (sign << 31) | (exp32 << 23) | (frac << 13)
	}

	return math.Float32frombits(bits)
}
